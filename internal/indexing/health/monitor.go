package health

import (
	"context"
	"math/big"
	"time"

	"github.com/vietddude/mint-oracle/internal/core/cursor"
	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// StaleFactor is how many poll intervals may pass without a successful poll
// before a steady consumer is reported critical.
const StaleFactor = 6

// CursorSource exposes the consumer position.
type CursorSource interface {
	Snapshot() domain.Cursor
}

// phaseHistory is implemented by cursor.Tracker.
type phaseHistory interface {
	History() []cursor.Transition
}

// LeaseStatus reports whether this instance holds the consumer lease.
type LeaseStatus interface {
	Held() bool
}

// Monitor derives a health report from the consumer cursor.
type Monitor struct {
	cursor       CursorSource
	lease        LeaseStatus
	head         HeadReader
	pollInterval time.Duration
	now          func() time.Time
}

// NewMonitor creates a new health monitor. lease may be nil.
func NewMonitor(src CursorSource, lease LeaseStatus, pollInterval time.Duration) *Monitor {
	return &Monitor{
		cursor:       src,
		lease:        lease,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// WithHead makes reports include the chain head and the block lag behind it.
// Wrap the reader in a HeadCache; every check calls it.
func (m *Monitor) WithHead(head HeadReader) *Monitor {
	m.head = head
	return m
}

// CheckHealth evaluates every component; the worst status wins.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{Consumer: m.consumerHealth()}
	if m.head != nil {
		m.addLag(ctx, &report.Consumer)
	}
	report.SystemStatus = report.Consumer.Status

	if m.lease != nil {
		lh := &LeaseHealth{Status: StatusHealthy, Held: m.lease.Held()}
		if !lh.Held {
			// Standby instance: alive but not consuming.
			lh.Status = StatusDegraded
		}
		report.Lease = lh
		report.SystemStatus = worse(report.SystemStatus, lh.Status)
	}
	return report
}

func (m *Monitor) consumerHealth() ConsumerHealth {
	cur := m.cursor.Snapshot()
	h := ConsumerHealth{
		Status:    StatusHealthy,
		Phase:     string(cur.Phase),
		Activity:  string(cur.Activity),
		Marker:    bigString(cur.Marker),
		HighWater: bigString(cur.HighWater),
		NextBlock: cur.NextBlock,
		Processed: cur.Processed,
		Skipped:   cur.Skipped,
		LastError: cur.LastError,
	}
	if ph, ok := m.cursor.(phaseHistory); ok {
		for _, tr := range ph.History() {
			h.Transitions = append(h.Transitions, PhaseChange{
				From:   string(tr.From),
				To:     string(tr.To),
				Reason: tr.Reason,
				At:     tr.Timestamp,
			})
		}
	}
	if !cur.LastPoll.IsZero() {
		last := cur.LastPoll
		h.LastPoll = &last
		h.PollAge = m.now().Sub(last).Truncate(time.Second).String()
	}

	switch cur.Phase {
	case domain.PhaseStopped:
		h.Status = StatusCritical
	case domain.PhaseInit, domain.PhaseCatchingUp:
		h.Status = StatusDegraded
	case domain.PhaseSteady:
		switch {
		case cur.LastPoll.IsZero():
			h.Status = StatusDegraded
		case m.now().Sub(cur.LastPoll) > StaleFactor*m.pollInterval:
			h.Status = StatusCritical
		case cur.LastError != "":
			h.Status = StatusDegraded
		}
	}
	return h
}

// addLag fills in head and lag. A failed head read leaves them empty; the poll
// loop reports RPC trouble on its own.
func (m *Monitor) addLag(ctx context.Context, h *ConsumerHealth) {
	head, err := m.head.LatestBlock(ctx)
	if err != nil {
		return
	}
	// The loop has consumed past this head, so the cached value is stale.
	if head+1 < h.NextBlock {
		if c, ok := m.head.(*HeadCache); ok {
			c.Invalidate()
			if fresh, err := c.LatestBlock(ctx); err == nil {
				head = fresh
			}
		}
	}
	h.Head = head
	if h.NextBlock > 0 && head+1 > h.NextBlock {
		h.BlockLag = head + 1 - h.NextBlock
	}
}

func bigString(n *big.Int) string {
	if n == nil {
		return ""
	}
	return n.String()
}
