package cursor

import (
	"errors"
	"time"

	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// Phase is an alias for domain.Phase for internal use.
type Phase = domain.Phase

// ErrInvalidTransition is returned when an invalid phase transition is attempted.
var ErrInvalidTransition = errors.New("invalid phase transition")

// ValidTransitions defines allowed phase transitions.
// Catch-up happens once per process; there is no way back from steady.
var ValidTransitions = map[Phase][]Phase{
	domain.PhaseInit:       {domain.PhaseCatchingUp, domain.PhaseStopped},
	domain.PhaseCatchingUp: {domain.PhaseSteady, domain.PhaseStopped},
	domain.PhaseSteady:     {domain.PhaseStopped},
}

// CanTransition checks if a transition from one phase to another is valid.
func CanTransition(from, to Phase) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a phase change with metadata.
type Transition struct {
	From      Phase
	To        Phase
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to Phase, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// PhaseDescription returns a human-readable description of a phase.
func PhaseDescription(p Phase) string {
	switch p {
	case domain.PhaseInit:
		return "Initializing - marker not read yet"
	case domain.PhaseCatchingUp:
		return "Catching up - replaying requests missed while offline"
	case domain.PhaseSteady:
		return "Steady - polling for new requests"
	case domain.PhaseStopped:
		return "Stopped - loop exited"
	default:
		return "Unknown phase"
	}
}
