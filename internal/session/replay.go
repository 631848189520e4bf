package session

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/donbattle/optcg-server-go/internal/game/state"
)

const replayVersion = 1

// Frame is one committed state of a match.
type Frame struct {
	Reason   string
	Checksum string
	State    *state.GameState
}

// Replay is the ordered list of frames a match produced, with a cursor for
// stepping through them.
type Replay struct {
	GameID string

	mu     sync.RWMutex
	frames []Frame
	cursor int
}

// NewReplay creates an empty replay.
func NewReplay(gameID string) *Replay {
	return &Replay{GameID: gameID}
}

// Record appends a frame. The frame's state must not be mutated afterwards.
func (r *Replay) Record(frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

// Size returns the number of frames.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// At returns a copy of the frame at index.
func (r *Replay) At(index int) (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.frames) {
		return Frame{}, false
	}
	return copyFrame(r.frames[index]), true
}

// Start rewinds the cursor.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = 0
}

// Next returns the frame under the cursor and advances it.
func (r *Replay) Next() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.frames) {
		return Frame{}, false
	}
	frame := r.frames[r.cursor]
	r.cursor++
	return copyFrame(frame), true
}

// Previous steps the cursor back and returns the frame there.
func (r *Replay) Previous() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor == 0 || len(r.frames) == 0 {
		return Frame{}, false
	}
	r.cursor--
	return copyFrame(r.frames[r.cursor]), true
}

// Skip moves the cursor by count frames, clamped to the recording, and
// returns the frame there.
func (r *Replay) Skip(count int) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}, false
	}
	idx := r.cursor + count
	if idx >= len(r.frames) {
		idx = len(r.frames) - 1
	}
	if idx < 0 {
		idx = 0
	}
	r.cursor = idx
	return copyFrame(r.frames[idx]), true
}

func copyFrame(f Frame) Frame {
	f.State = f.State.Clone()
	return f
}

type replayHeader struct {
	GameID     string
	SavedAt    time.Time
	Version    int
	FrameCount int
}

// ReplayPath returns the file a game's replay is saved to.
func ReplayPath(directory, gameID string) string {
	return filepath.Join(directory, gameID+".replay")
}

// SaveToFile writes the replay gzip-compressed into directory.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("create replay directory: %w", err)
	}
	file, err := os.Create(ReplayPath(directory, r.GameID))
	if err != nil {
		return fmt.Errorf("create replay file: %w", err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	enc := gob.NewEncoder(zw)
	header := replayHeader{
		GameID:     r.GameID,
		SavedAt:    time.Now(),
		Version:    replayVersion,
		FrameCount: len(r.frames),
	}
	if err := enc.Encode(&header); err != nil {
		return fmt.Errorf("encode replay header: %w", err)
	}
	for i := range r.frames {
		if err := enc.Encode(&r.frames[i]); err != nil {
			return fmt.Errorf("encode frame %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush replay: %w", err)
	}
	return nil
}

// LoadReplay reads a replay saved by SaveToFile.
func LoadReplay(directory, gameID string) (*Replay, error) {
	file, err := os.Open(ReplayPath(directory, gameID))
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("open replay stream: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var header replayHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("decode replay header: %w", err)
	}
	if header.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay version %d", header.Version)
	}

	replay := NewReplay(header.GameID)
	for i := 0; i < header.FrameCount; i++ {
		var frame Frame
		if err := dec.Decode(&frame); err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i, err)
		}
		replay.frames = append(replay.frames, frame)
	}
	return replay, nil
}
