package domain

import (
	"math/big"
	"time"
)

// Phase is the consumption loop's top-level state.
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseCatchingUp Phase = "catching_up"
	PhaseSteady     Phase = "steady"
	PhaseStopped    Phase = "stopped"
)

// Activity is what the loop is doing inside the steady phase.
type Activity string

const (
	ActivityIdle       Activity = "idle"
	ActivityPolling    Activity = "polling"
	ActivityProcessing Activity = "processing"
	ActivitySleeping   Activity = "sleeping"
)

// Cursor is a point-in-time view of the consumer's position.
// Marker is the contract's lastProcessedNonce as read at startup; HighWater is
// the highest nonce this process has handled since.
type Cursor struct {
	Phase     Phase
	Activity  Activity
	Marker    *big.Int
	HighWater *big.Int
	NextBlock uint64
	Processed uint64
	Skipped   uint64
	LastPoll  time.Time
	LastError string
	UpdatedAt time.Time
}
