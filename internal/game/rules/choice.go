package rules

// ChoiceKind names the question a prompt asks.
type ChoiceKind string

const (
	ChoiceBlocker     ChoiceKind = "blocker"
	ChoiceCounter     ChoiceKind = "counter"
	ChoiceLifeTrigger ChoiceKind = "lifeTrigger"
)

// Life trigger answers.
const (
	TriggerActivate  = "activate"
	TriggerAddToHand = "addToHand"
)

// ChoiceOption is one selectable answer, usually a card instance.
type ChoiceOption struct {
	ID     string
	CardID string
	Label  string
	Value  int
}

// ChoiceSpec describes the decision a player is asked to make. Min and Max
// bound how many option ids a valid selection may carry.
type ChoiceSpec struct {
	Kind     ChoiceKind
	Message  string
	Options  []ChoiceOption
	Actions  []string // named answers, e.g. activate or addToHand
	Min      int
	Max      int
	BattleID int
}

// HasOption reports whether id is one of the offered option ids.
func (c ChoiceSpec) HasOption(id string) bool {
	for _, opt := range c.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// HasAction reports whether action is one of the offered named answers.
func (c ChoiceSpec) HasAction(action string) bool {
	for _, a := range c.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Selection is a player's answer to a prompt.
type Selection struct {
	OptionIDs []string
	Action    string
}

// Empty reports whether the selection declines every option.
func (s Selection) Empty() bool {
	return len(s.OptionIDs) == 0 && s.Action == ""
}
