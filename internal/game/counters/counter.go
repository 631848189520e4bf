package counters

import "strings"

// Counter tracks how many times something has happened under a name.
type Counter struct {
	Name  string
	Count int
}

// NewCounter creates a counter with the given name and count.
func NewCounter(name string, count int) *Counter {
	if count < 0 {
		count = 0
	}
	return &Counter{
		Name:  name,
		Count: count,
	}
}

// Add adds the specified amount to the counter.
func (c *Counter) Add(amount int) {
	if amount > 0 {
		c.Count += amount
	}
}

// Copy creates a deep copy of the counter.
func (c *Counter) Copy() *Counter {
	return &Counter{
		Name:  c.Name,
		Count: c.Count,
	}
}

// turnPrefix scopes counters that reset when a turn ends.
const turnPrefix = "turn:"

// Usage records how often each ability of a card instance has been used.
// Lifetime counts survive until the instance leaves its zone; turn counts are
// cleared by ResetTurn.
type Usage struct {
	Counters map[string]*Counter
}

// NewUsage creates an empty usage collection.
func NewUsage() *Usage {
	return &Usage{
		Counters: make(map[string]*Counter),
	}
}

// Record notes one use of the ability, both for the current turn and for the
// lifetime of the instance.
func (u *Usage) Record(abilityID string) {
	if u == nil || abilityID == "" {
		return
	}
	u.add(abilityID, 1)
	u.add(turnPrefix+abilityID, 1)
}

func (u *Usage) add(name string, amount int) {
	if existing, ok := u.Counters[name]; ok {
		existing.Add(amount)
		return
	}
	u.Counters[name] = NewCounter(name, amount)
}

// Total returns how many times the ability has been used by this instance.
func (u *Usage) Total(abilityID string) int {
	if u == nil {
		return 0
	}
	if counter, ok := u.Counters[abilityID]; ok {
		return counter.Count
	}
	return 0
}

// ThisTurn returns how many times the ability has been used this turn.
func (u *Usage) ThisTurn(abilityID string) int {
	return u.Total(turnPrefix + abilityID)
}

// ResetTurn clears every per-turn counter.
func (u *Usage) ResetTurn() {
	if u == nil {
		return
	}
	for name := range u.Counters {
		if strings.HasPrefix(name, turnPrefix) {
			delete(u.Counters, name)
		}
	}
}

// Copy creates a deep copy of the usage collection.
func (u *Usage) Copy() *Usage {
	if u == nil {
		return nil
	}
	out := NewUsage()
	for name, counter := range u.Counters {
		out.Counters[name] = counter.Copy()
	}
	return out
}
