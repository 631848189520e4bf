// Package prompt suspends rules resolution to ask one player a question and
// resumes it when the player answers, the prompt is cancelled, or it times out.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/donbattle/optcg-server-go/internal/game/rules"
	"github.com/donbattle/optcg-server-go/internal/game/state"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrCancelled is returned by Wait when the prompt was cancelled.
	ErrCancelled = errors.New("prompt cancelled")
	// ErrTimedOut is returned by Wait when nobody answered in time.
	ErrTimedOut = errors.New("prompt timed out")
)

// Options tunes a single prompt. A zero Timeout waits indefinitely.
type Options struct {
	Timeout time.Duration
}

// Answer is the outcome of an answered prompt. A nil Selection means the
// prompt resolved without anybody to ask.
type Answer struct {
	PromptID  string
	Selection *rules.Selection
}

// Result reports whether a submit or cancel request was accepted.
type Result struct {
	Success bool
	Reason  string
}

func fail(format string, args ...interface{}) Result {
	return Result{Success: false, Reason: fmt.Sprintf(format, args...)}
}

// Pending is an outstanding prompt. It resolves exactly once.
type Pending struct {
	ID        string
	PlayerID  string
	Choice    rules.ChoiceSpec
	CreatedAt time.Time
	Timeout   time.Duration

	done   chan struct{}
	answer Answer
	err    error
	timer  *time.Timer
}

// Done is closed once the prompt is resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the prompt resolves or ctx is done. A cancelled or timed
// out prompt returns ErrCancelled or ErrTimedOut.
func (p *Pending) Wait(ctx context.Context) (Answer, error) {
	select {
	case <-p.done:
		return p.answer, p.err
	case <-ctx.Done():
		return Answer{PromptID: p.ID}, ctx.Err()
	}
}

// Registry holds the pending prompts of one game session.
type Registry struct {
	mu      sync.Mutex
	gameID  string
	bus     *rules.EventBus
	pending map[string]*Pending
	closed  bool
	logger  *zap.Logger
}

// NewRegistry creates a registry that publishes prompt events on bus.
func NewRegistry(gameID string, bus *rules.EventBus, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = rules.NewEventBus()
	}
	return &Registry{
		gameID:  gameID,
		bus:     bus,
		pending: make(map[string]*Pending),
		logger:  logger,
	}
}

// RequestChoice registers a prompt for playerID and publishes it together
// with a read-only snapshot of gs. With no prompt listener on the bus the
// prompt resolves at once with a nil selection.
func (r *Registry) RequestChoice(gs *state.GameState, playerID string, choice rules.ChoiceSpec, opts Options) *Pending {
	p := &Pending{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Choice:    choice,
		CreatedAt: time.Now(),
		Timeout:   opts.Timeout,
		done:      make(chan struct{}),
	}

	if r.bus.ListenerCount(rules.EventPrompt) == 0 {
		p.answer = Answer{PromptID: p.ID}
		close(p.done)
		r.logger.Debug("no prompt listener, resolving with empty selection",
			zap.String("game_id", r.gameID),
			zap.String("prompt_id", p.ID),
			zap.String("player_id", playerID),
			zap.String("kind", string(choice.Kind)))
		return p
	}

	snapshot := gs.Clone()
	checksum := ""
	if snapshot != nil {
		checksum = snapshot.Checksum()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		p.answer = Answer{PromptID: p.ID}
		p.err = ErrCancelled
		close(p.done)
		r.logger.Debug("registry closed, prompt cancelled",
			zap.String("game_id", r.gameID),
			zap.String("prompt_id", p.ID),
			zap.String("kind", string(choice.Kind)))
		return p
	}
	r.pending[p.ID] = p
	if opts.Timeout > 0 {
		id := p.ID
		p.timer = time.AfterFunc(opts.Timeout, func() { r.expire(id) })
	}
	r.mu.Unlock()

	r.logger.Debug("prompt requested",
		zap.String("game_id", r.gameID),
		zap.String("prompt_id", p.ID),
		zap.String("player_id", playerID),
		zap.String("kind", string(choice.Kind)),
		zap.Int("options", len(choice.Options)),
		zap.Duration("timeout", opts.Timeout))

	r.bus.Publish(rules.NewEvent(r.gameID, rules.PromptRequested{
		ID:        p.ID,
		PlayerID:  playerID,
		Choice:    choice,
		Snapshot:  snapshot,
		Checksum:  checksum,
		CreatedAt: p.CreatedAt,
		Timeout:   opts.Timeout,
	}))
	return p
}

// Ask requests a choice and waits for it. Cancellation, timeout and a done
// context all count as declining, reported as a nil selection.
func (r *Registry) Ask(ctx context.Context, gs *state.GameState, playerID string, choice rules.ChoiceSpec, opts Options) *rules.Selection {
	p := r.RequestChoice(gs, playerID, choice, opts)
	answer, err := p.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			r.CancelPrompt(p.ID, "context done")
		}
		r.logger.Debug("prompt ended without answer, treating as decline",
			zap.String("prompt_id", p.ID),
			zap.Error(err))
		return nil
	}
	return answer.Selection
}

// SubmitChoice answers a pending prompt. Only the addressed player may answer
// and the selection must fit the choice; a rejected answer leaves the prompt
// pending.
func (r *Registry) SubmitChoice(promptID, playerID string, selection rules.Selection) Result {
	r.mu.Lock()
	p, ok := r.pending[promptID]
	if !ok {
		r.mu.Unlock()
		return fail("prompt %s not found or already resolved", promptID)
	}
	if p.PlayerID != playerID {
		r.mu.Unlock()
		r.logger.Warn("rejected answer from wrong player",
			zap.String("prompt_id", promptID),
			zap.String("player_id", playerID),
			zap.String("expected_player_id", p.PlayerID))
		return fail("player %s may not answer this prompt", playerID)
	}
	if reason := validateSelection(p.Choice, selection); reason != "" {
		r.mu.Unlock()
		return Result{Reason: reason}
	}
	r.take(p)
	r.mu.Unlock()

	sel := selection
	r.finish(p, Answer{PromptID: promptID, Selection: &sel}, nil)
	r.bus.Publish(rules.NewEvent(r.gameID, rules.PromptAnswered{
		ID:        promptID,
		PlayerID:  playerID,
		Selection: selection,
	}))
	return Result{Success: true}
}

// CancelPrompt withdraws a pending prompt; its waiter receives ErrCancelled.
func (r *Registry) CancelPrompt(promptID, reason string) Result {
	r.mu.Lock()
	p, ok := r.pending[promptID]
	if !ok {
		r.mu.Unlock()
		return fail("prompt %s not found or already resolved", promptID)
	}
	r.take(p)
	r.mu.Unlock()

	r.finish(p, Answer{PromptID: promptID}, ErrCancelled)
	r.logger.Debug("prompt cancelled",
		zap.String("prompt_id", promptID),
		zap.String("reason", reason))
	r.bus.Publish(rules.NewEvent(r.gameID, rules.PromptCancelled{
		ID:       promptID,
		PlayerID: p.PlayerID,
		Reason:   reason,
	}))
	return Result{Success: true}
}

// CancelAll cancels every pending prompt and returns how many there were.
func (r *Registry) CancelAll(reason string) int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	cancelled := 0
	for _, id := range ids {
		if r.CancelPrompt(id, reason).Success {
			cancelled++
		}
	}
	return cancelled
}

// Close cancels every pending prompt and makes later requests resolve as
// cancelled without being published. It returns how many were pending.
func (r *Registry) Close(reason string) int {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.CancelAll(reason)
}

// Closed reports whether Close was called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// PendingFor lists the unanswered prompts addressed to playerID.
func (r *Registry) PendingFor(playerID string) []*Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Pending
	for _, p := range r.pending {
		if p.PlayerID == playerID {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of pending prompts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) expire(promptID string) {
	r.mu.Lock()
	p, ok := r.pending[promptID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.take(p)
	r.mu.Unlock()

	r.finish(p, Answer{PromptID: promptID}, ErrTimedOut)
	r.logger.Info("prompt timed out",
		zap.String("game_id", r.gameID),
		zap.String("prompt_id", promptID),
		zap.String("player_id", p.PlayerID))
	r.bus.Publish(rules.NewEvent(r.gameID, rules.PromptTimedOut{
		ID:       promptID,
		PlayerID: p.PlayerID,
	}))
}

// take removes p from the pending set. The caller holds r.mu.
func (r *Registry) take(p *Pending) {
	delete(r.pending, p.ID)
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (r *Registry) finish(p *Pending, answer Answer, err error) {
	p.answer = answer
	p.err = err
	close(p.done)
}

func validateSelection(choice rules.ChoiceSpec, selection rules.Selection) string {
	if selection.Action != "" && !choice.HasAction(selection.Action) {
		return fmt.Sprintf("%q is not an available answer", selection.Action)
	}
	seen := make(map[string]bool, len(selection.OptionIDs))
	for _, id := range selection.OptionIDs {
		if seen[id] {
			return fmt.Sprintf("option %s selected twice", id)
		}
		seen[id] = true
		if !choice.HasOption(id) {
			return fmt.Sprintf("option %s is not offered", id)
		}
	}
	if choice.Max > 0 && len(selection.OptionIDs) > choice.Max {
		return fmt.Sprintf("at most %d options may be selected", choice.Max)
	}
	if len(selection.OptionIDs) < choice.Min {
		return fmt.Sprintf("at least %d options must be selected", choice.Min)
	}
	return ""
}
