package rules

import "github.com/donbattle/optcg-server-go/internal/game/state"

// turnSequence is the fixed phase order of a turn.
var turnSequence = []state.Phase{
	state.PhaseRefresh,
	state.PhaseDraw,
	state.PhaseDon,
	state.PhaseMain,
	state.PhaseEnd,
}

// PhaseSequence returns a copy of the turn's phase order.
func PhaseSequence() []state.Phase {
	return append([]state.Phase(nil), turnSequence...)
}

// NextPhase returns the phase after p. wrapped is true when the turn is over
// and the sequence starts again for the next turn player.
func NextPhase(p state.Phase) (next state.Phase, wrapped bool) {
	for i, phase := range turnSequence {
		if phase == p {
			if i+1 < len(turnSequence) {
				return turnSequence[i+1], false
			}
			return turnSequence[0], true
		}
	}
	return turnSequence[0], true
}

// DonForTurn returns how many DON!! cards the turn player adds in the DON
// phase. The side going first only gets one on the first turn of the match.
func DonForTurn(turn int, perTurn int) int {
	if turn <= 1 {
		return 1
	}
	return perTurn
}

// CanAttackOnTurn reports whether attacks are allowed on the given match turn
// when the first-turn restriction is active. Each side's first turn is
// attack-free.
func CanAttackOnTurn(turn int, restrictFirstTurns bool) bool {
	if !restrictFirstTurns {
		return true
	}
	return turn > 2
}
