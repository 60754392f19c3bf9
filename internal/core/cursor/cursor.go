// Package cursor tracks where the mint consumer is.
//
// The authoritative marker is the contract's lastProcessedNonce; the tracker
// never persists it. What the tracker adds is local bookkeeping for one process
// lifetime:
//
//   - Phase: INIT → CATCHING_UP → STEADY, with STOPPED reachable from any of them
//   - HighWater: the highest nonce already handled here, so a re-fetched range
//     does not mint twice
//   - NextBlock: the first block the next steady-state poll will read
//
// Quick start:
//
//	tr := cursor.NewTracker()
//	tr.SetStateChangeCallback(func(t cursor.Transition) {
//	    slog.Info("phase changed", "from", t.From, "to", t.To)
//	})
//	tr.Begin(marker)                  // INIT → CATCHING_UP
//	if tr.ShouldProcess(nonce) { ... }
//	tr.MarkHandled(nonce)
//	tr.EnterSteady(head + 1, "caught up")
package cursor

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// Tracker holds the consumer's in-memory cursor. Safe for concurrent readers;
// the consumer loop is the only writer.
type Tracker struct {
	mu            sync.RWMutex
	cur           domain.Cursor
	history       []Transition
	stateCallback func(Transition)
}

// NewTracker returns a tracker in the INIT phase.
func NewTracker() *Tracker {
	return &Tracker{
		cur: domain.Cursor{
			Phase:     domain.PhaseInit,
			Activity:  domain.ActivityIdle,
			UpdatedAt: time.Now(),
		},
	}
}

// SetStateChangeCallback registers a callback invoked after every phase change.
func (t *Tracker) SetStateChangeCallback(fn func(Transition)) {
	t.mu.Lock()
	t.stateCallback = fn
	t.mu.Unlock()
}

// Begin records the contract marker and enters CATCHING_UP.
func (t *Tracker) Begin(marker *big.Int) error {
	t.UpdateMarker(marker)
	return t.setPhase(domain.PhaseCatchingUp, "marker read from contract")
}

// UpdateMarker records a fresh contract marker read, raising HighWater to it
// when the contract is ahead of this process.
func (t *Tracker) UpdateMarker(marker *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.Marker = copyInt(marker)
	if t.cur.HighWater == nil || (marker != nil && marker.Cmp(t.cur.HighWater) > 0) {
		t.cur.HighWater = copyInt(marker)
	}
}

// EnterSteady switches to STEADY with the first block to poll.
func (t *Tracker) EnterSteady(nextBlock uint64, reason string) error {
	if err := t.setPhase(domain.PhaseSteady, reason); err != nil {
		return err
	}
	t.mu.Lock()
	t.cur.NextBlock = nextBlock
	t.mu.Unlock()
	return nil
}

// Stop moves to STOPPED. Stopping twice is a no-op.
func (t *Tracker) Stop(reason string) error {
	if t.Phase() == domain.PhaseStopped {
		return nil
	}
	return t.setPhase(domain.PhaseStopped, reason)
}

func (t *Tracker) setPhase(to Phase, reason string) error {
	t.mu.Lock()
	from := t.cur.Phase
	if !CanTransition(from, to) {
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	tr := NewTransition(from, to, reason)
	t.cur.Phase = to
	t.cur.Activity = domain.ActivityIdle
	t.cur.UpdatedAt = tr.Timestamp
	t.history = append(t.history, tr)
	cb := t.stateCallback
	t.mu.Unlock()

	if cb != nil {
		cb(tr)
	}
	return nil
}

// SetActivity records what the steady loop is doing.
func (t *Tracker) SetActivity(a domain.Activity) {
	t.mu.Lock()
	t.cur.Activity = a
	t.cur.UpdatedAt = time.Now()
	t.mu.Unlock()
}

// ShouldProcess reports whether nonce is above the high-water mark.
func (t *Tracker) ShouldProcess(nonce *big.Int) bool {
	if nonce == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur.HighWater == nil || nonce.Cmp(t.cur.HighWater) > 0
}

// MarkHandled raises the high-water mark to nonce. It never moves backwards.
func (t *Tracker) MarkHandled(nonce *big.Int) {
	if nonce == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cur.HighWater == nil || nonce.Cmp(t.cur.HighWater) > 0 {
		t.cur.HighWater = copyInt(nonce)
	}
	t.cur.Processed++
	t.cur.UpdatedAt = time.Now()
}

// MarkSkipped counts an event that was not submitted.
func (t *Tracker) MarkSkipped() {
	t.mu.Lock()
	t.cur.Skipped++
	t.mu.Unlock()
}

// AdvanceBlock moves NextBlock forward. Smaller values are ignored.
func (t *Tracker) AdvanceBlock(next uint64) {
	t.mu.Lock()
	if next > t.cur.NextBlock {
		t.cur.NextBlock = next
	}
	t.mu.Unlock()
}

// RecordPoll stamps a poll cycle outcome.
func (t *Tracker) RecordPoll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.cur.LastError = err.Error()
		return
	}
	t.cur.LastPoll = time.Now()
	t.cur.LastError = ""
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur.Phase
}

// NextBlock returns the first block of the next poll.
func (t *Tracker) NextBlock() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur.NextBlock
}

// Snapshot returns a copy of the cursor.
func (t *Tracker) Snapshot() domain.Cursor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := t.cur
	c.Marker = copyInt(t.cur.Marker)
	c.HighWater = copyInt(t.cur.HighWater)
	return c
}

// History returns the recorded transitions, oldest first.
func (t *Tracker) History() []Transition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Transition, len(t.history))
	copy(out, t.history)
	return out
}

func copyInt(n *big.Int) *big.Int {
	if n == nil {
		return nil
	}
	return new(big.Int).Set(n)
}
