package health

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/mint-oracle/internal/core/cursor"
	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// =============================================================================
// Mocks
// =============================================================================

type stubCursor struct {
	cur domain.Cursor
}

func (s *stubCursor) Snapshot() domain.Cursor { return s.cur }

type stubLease struct {
	held bool
}

func (s *stubLease) Held() bool { return s.held }

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestMonitor(cur domain.Cursor, lease LeaseStatus) *Monitor {
	m := NewMonitor(&stubCursor{cur: cur}, lease, 5*time.Second)
	m.now = func() time.Time { return fixedNow }
	return m
}

func steadyCursor(pollAge time.Duration) domain.Cursor {
	return domain.Cursor{
		Phase:     domain.PhaseSteady,
		Activity:  domain.ActivitySleeping,
		Marker:    big.NewInt(5),
		HighWater: big.NewInt(7),
		NextBlock: 120,
		LastPoll:  fixedNow.Add(-pollAge),
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	report := newTestMonitor(steadyCursor(3*time.Second), nil).CheckHealth(context.Background())

	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if report.Consumer.HighWater != "7" || report.Consumer.Marker != "5" {
		t.Errorf("unexpected positions: %+v", report.Consumer)
	}
	if report.Lease != nil {
		t.Error("expected no lease section")
	}
}

func TestMonitor_Degraded(t *testing.T) {
	tests := []struct {
		name string
		cur  domain.Cursor
	}{
		{"catching up", domain.Cursor{Phase: domain.PhaseCatchingUp}},
		{"init", domain.Cursor{Phase: domain.PhaseInit}},
		{"last cycle failed", func() domain.Cursor {
			c := steadyCursor(time.Second)
			c.LastError = "fetch_logs failed after 5 attempt(s)"
			return c
		}()},
		{"steady without poll", domain.Cursor{Phase: domain.PhaseSteady}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := newTestMonitor(tt.cur, nil).CheckHealth(context.Background())
			if report.SystemStatus != StatusDegraded {
				t.Errorf("expected degraded, got %s", report.SystemStatus)
			}
		})
	}
}

func TestMonitor_Critical(t *testing.T) {
	tests := []struct {
		name string
		cur  domain.Cursor
	}{
		{"stale poll", steadyCursor(31 * time.Second)},
		{"stopped", domain.Cursor{Phase: domain.PhaseStopped}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := newTestMonitor(tt.cur, nil).CheckHealth(context.Background())
			if report.SystemStatus != StatusCritical {
				t.Errorf("expected critical, got %s", report.SystemStatus)
			}
		})
	}
}

func TestMonitor_StaleBoundary(t *testing.T) {
	report := newTestMonitor(steadyCursor(30*time.Second), nil).CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("exactly %dx interval should still be healthy, got %s", StaleFactor, report.SystemStatus)
	}
}

func TestMonitor_Lease(t *testing.T) {
	report := newTestMonitor(steadyCursor(time.Second), &stubLease{held: false}).CheckHealth(context.Background())
	if report.Lease == nil || report.Lease.Held {
		t.Fatalf("expected lease not held, got %+v", report.Lease)
	}
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}

	report = newTestMonitor(steadyCursor(time.Second), &stubLease{held: true}).CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
}

func TestMonitor_BlockLag(t *testing.T) {
	m := newTestMonitor(steadyCursor(time.Second), nil).WithHead(&mockHead{latestBlock: 130})
	report := m.CheckHealth(context.Background())
	if report.Consumer.Head != 130 {
		t.Errorf("expected head 130, got %d", report.Consumer.Head)
	}
	// next block 120 means 119 is done
	if report.Consumer.BlockLag != 11 {
		t.Errorf("expected lag 11, got %d", report.Consumer.BlockLag)
	}

	m = newTestMonitor(steadyCursor(time.Second), nil).WithHead(&mockHead{err: errors.New("down")})
	report = m.CheckHealth(context.Background())
	if report.Consumer.Head != 0 || report.SystemStatus != StatusHealthy {
		t.Errorf("head read failure must not change status: %+v", report)
	}
}

func TestMonitor_RefreshesHeadBehindConsumer(t *testing.T) {
	reader := &mockHead{latestBlock: 100}
	cache := NewHeadCache(reader, time.Hour)
	if _, err := cache.LatestBlock(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The loop is at block 120 while the cache still says 100.
	reader.latestBlock = 125
	report := newTestMonitor(steadyCursor(time.Second), nil).WithHead(cache).CheckHealth(context.Background())

	if report.Consumer.Head != 125 {
		t.Errorf("expected refreshed head 125, got %d", report.Consumer.Head)
	}
	if report.Consumer.BlockLag != 6 {
		t.Errorf("expected lag 6, got %d", report.Consumer.BlockLag)
	}
	if reader.callCount != 2 {
		t.Errorf("expected 2 reader calls, got %d", reader.callCount)
	}
}

func TestMonitor_PhaseHistory(t *testing.T) {
	tr := cursor.NewTracker()
	if err := tr.Begin(big.NewInt(4)); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tr.EnterSteady(50, "caught up"); err != nil {
		t.Fatalf("enter steady: %v", err)
	}

	report := NewMonitor(tr, nil, 5*time.Second).CheckHealth(context.Background())
	got := report.Consumer.Transitions
	if len(got) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(got))
	}
	if got[0].From != string(domain.PhaseInit) || got[0].To != string(domain.PhaseCatchingUp) {
		t.Errorf("unexpected first transition: %+v", got[0])
	}
	if got[1].To != string(domain.PhaseSteady) || got[1].Reason != "caught up" {
		t.Errorf("unexpected second transition: %+v", got[1])
	}

	// Snapshot-only sources report no history.
	report = newTestMonitor(steadyCursor(time.Second), nil).CheckHealth(context.Background())
	if report.Consumer.Transitions != nil {
		t.Errorf("expected no transitions, got %+v", report.Consumer.Transitions)
	}
}

func TestServer_Endpoints(t *testing.T) {
	tests := []struct {
		name       string
		cur        domain.Cursor
		wantCode   int
		wantStatus SystemStatus
	}{
		{"healthy", steadyCursor(time.Second), http.StatusOK, StatusHealthy},
		{"degraded", domain.Cursor{Phase: domain.PhaseCatchingUp}, http.StatusOK, StatusDegraded},
		{"critical", domain.Cursor{Phase: domain.PhaseStopped}, http.StatusServiceUnavailable, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(newTestMonitor(tt.cur, nil), 0)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body summary
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, body.Status)
			}
			if body.Phase != string(tt.cur.Phase) {
				t.Errorf("expected phase %s, got %s", tt.cur.Phase, body.Phase)
			}
		})
	}
}

func TestServer_Ready(t *testing.T) {
	tests := []struct {
		name     string
		cur      domain.Cursor
		wantCode int
	}{
		{"steady", steadyCursor(time.Second), http.StatusOK},
		{"catching up", domain.Cursor{Phase: domain.PhaseCatchingUp}, http.StatusServiceUnavailable},
		{"steady but stale", steadyCursor(time.Minute), http.StatusServiceUnavailable},
		{"stopped", domain.Cursor{Phase: domain.PhaseStopped}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(newTestMonitor(tt.cur, nil), 0)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestServer_Detailed(t *testing.T) {
	srv := NewServer(newTestMonitor(steadyCursor(time.Second), &stubLease{held: true}), 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Consumer.Phase != string(domain.PhaseSteady) {
		t.Errorf("expected steady phase, got %s", report.Consumer.Phase)
	}
	if report.Consumer.NextBlock != 120 {
		t.Errorf("expected next block 120, got %d", report.Consumer.NextBlock)
	}
	if report.Lease == nil || !report.Lease.Held {
		t.Error("expected held lease")
	}
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := NewServer(newTestMonitor(steadyCursor(time.Second), nil), 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("unexpected error: %v", err)
	}
}
