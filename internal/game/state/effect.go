package state

// Stat is a derived card characteristic a modifier can change.
type Stat string

const (
	StatPower   Stat = "power"
	StatCost    Stat = "cost"
	StatCounter Stat = "counter"
)

// Valid reports whether s is a known stat.
func (s Stat) Valid() bool {
	return s == StatPower || s == StatCost || s == StatCounter
}

// Mode is how a modifier combines with the running value.
type Mode string

const (
	ModeAdd      Mode = "add"
	ModeSetBase  Mode = "setBase"
	ModePerCount Mode = "perCount"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAdd || m == ModeSetBase || m == ModePerCount
}

// Duration is the lifetime tag of a modifier.
type Duration string

const (
	// DurationThisTurn expires when any turn ends.
	DurationThisTurn Duration = "thisTurn"
	// DurationThisBattle expires when the battle that created it ends.
	DurationThisBattle Duration = "thisBattle"
	// DurationUntilOwnerNextTurn expires when the creating side's next turn starts.
	DurationUntilOwnerNextTurn Duration = "untilOwnerNextTurn"
	// DurationPermanent lasts until the target changes zone.
	DurationPermanent Duration = "permanent"
)

// Valid reports whether d is a known duration.
func (d Duration) Valid() bool {
	switch d {
	case DurationThisTurn, DurationThisBattle, DurationUntilOwnerNextTurn, DurationPermanent:
		return true
	}
	return false
}

// ContinuousEffect is a stat modifier applied to a set of instances.
type ContinuousEffect struct {
	ID       string
	Seq      int // precedence; a higher Seq is newer
	Stat     Stat
	Mode     Mode
	Amount   int
	Selector string // count selector name for perCount
	PerUnit  int    // amount per counted unit for perCount

	TargetIDs    []string
	Duration     Duration
	SourceID     string
	CreatedTurn  int
	CreatedPhase Phase
	Side         Side
	BattleID     int // battle that created a thisBattle modifier
}

// Targets reports whether the modifier applies to the instance id.
func (e *ContinuousEffect) Targets(instanceID string) bool {
	if e == nil {
		return false
	}
	for _, id := range e.TargetIDs {
		if id == instanceID {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the modifier.
func (e *ContinuousEffect) Copy() *ContinuousEffect {
	if e == nil {
		return nil
	}
	out := *e
	out.TargetIDs = append([]string(nil), e.TargetIDs...)
	return &out
}
