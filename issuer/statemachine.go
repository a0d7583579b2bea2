package issuer

import "github.com/alovak/cardflow-issuing/issuer/models"

// legalTransitions is the card lifecycle. REVOKED is terminal and no state
// lists itself.
var legalTransitions = map[models.CardState][]models.CardState{
	models.CardStateActive:    {models.CardStateSuspended, models.CardStateRevoked},
	models.CardStateInactive:  {models.CardStateActive, models.CardStateRevoked},
	models.CardStateSuspended: {models.CardStateActive, models.CardStateRevoked},
	models.CardStateRevoked:   {},
}

// LegalTargets returns the states a card in current may move to.
// The returned slice is owned by the caller.
func LegalTargets(current models.CardState) []models.CardState {
	targets := legalTransitions[current]
	out := make([]models.CardState, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether from -> to is a legal lifecycle change.
func CanTransition(from, to models.CardState) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
