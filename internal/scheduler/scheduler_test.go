package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Runbooks/internal/catalog"
	"github.com/shaiso/Runbooks/internal/clock"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/memstore"
	"github.com/shaiso/Runbooks/internal/orchestrator"
	"github.com/shaiso/Runbooks/internal/policy"
	"github.com/shaiso/Runbooks/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) EscalationSweep(context.Context) (int, error) {
	f.calls.Add(1)
	return 1, f.err
}

type fakeLeader struct {
	leader   bool
	err      error
	released bool
}

func (f *fakeLeader) TryAcquire(context.Context) (bool, error) { return f.leader, f.err }
func (f *fakeLeader) Release(context.Context) error {
	f.released = true
	return nil
}

func TestValidateCronExpr(t *testing.T) {
	valid := []string{"*/2 * * * *", "0 9 * * 1-5", "@every 1m", "@hourly"}
	for _, expr := range valid {
		if err := ValidateCronExpr(expr); err != nil {
			t.Errorf("expected %q to be valid: %v", expr, err)
		}
	}

	invalid := []string{"", "* * *", "61 * * * *", "every minute"}
	for _, expr := range invalid {
		if err := ValidateCronExpr(expr); err == nil {
			t.Errorf("expected %q to be invalid", expr)
		}
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 4, 6, 10, 3, 30, 0, time.UTC)

	next, err := NextRun("*/2 * * * *", from)
	if err != nil {
		t.Fatalf("NextRun failed: %v", err)
	}
	want := time.Date(2026, 4, 6, 10, 4, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(Config{Sweeper: &fakeSweeper{}, Schedule: "bogus"})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestTick_Leadership(t *testing.T) {
	tests := []struct {
		name      string
		leader    Leader
		wantCalls int32
		wantErr   bool
	}{
		{name: "no election", leader: nil, wantCalls: 1},
		{name: "leader", leader: &fakeLeader{leader: true}, wantCalls: 1},
		{name: "follower", leader: &fakeLeader{leader: false}, wantCalls: 0},
		{name: "election error", leader: &fakeLeader{err: errors.New("db down")}, wantCalls: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw := &fakeSweeper{}
			s, err := New(Config{Sweeper: sw, Leader: tt.leader, Logger: discardLogger()})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			err = s.Tick(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("unexpected error state: %v", err)
			}
			if got := sw.calls.Load(); got != tt.wantCalls {
				t.Errorf("expected %d sweeps, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestTick_SweepError(t *testing.T) {
	sw := &fakeSweeper{err: errors.New("partial failure")}
	s, _ := New(Config{Sweeper: sw, Logger: discardLogger()})

	if err := s.Tick(context.Background()); err == nil {
		t.Error("expected sweep error to be returned")
	}
	if s.LastRun().IsZero() {
		t.Error("expected LastRun to be recorded")
	}
}

func TestStartStop(t *testing.T) {
	sw := &fakeSweeper{}
	leader := &fakeLeader{leader: true}
	s, err := New(Config{Sweeper: sw, Leader: leader, Schedule: "@every 1s", Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for sw.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	s.Stop(context.Background())

	if sw.calls.Load() == 0 {
		t.Error("expected at least one sweep from cron")
	}
	if !leader.released {
		t.Error("expected leadership to be released on Stop")
	}
}

func TestTick_EscalatesOverdueApprovals(t *testing.T) {
	cat, err := catalog.New([]domain.Runbook{{Name: "orphan_volume_cleanup", RiskLevel: domain.RiskHigh, Enabled: true}})
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	clk := clock.NewFake(time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC))

	policies := policy.New(policy.Config{Store: memstore.NewPolicyStore(), Runbooks: cat, Clock: clk})
	_, err = policies.Create(context.Background(), &domain.ApprovalPolicy{
		RunbookName: "orphan_volume_cleanup", TriggerRole: "operator", ApproverRole: "sre_lead",
		Mode: domain.ApprovalSingle, EscalationTimeoutMinutes: 60, Enabled: true,
	})
	if err != nil {
		t.Fatalf("seed policy: %v", err)
	}

	store := memstore.NewExecutionStore()
	orch := orchestrator.New(orchestrator.Config{
		Catalog:  cat,
		Policies: policies,
		Limiter:  ratelimit.NewMemory(clk),
		Store:    store,
		Clock:    clk,
		Logger:   discardLogger(),
	})

	res, err := orch.Trigger(context.Background(), domain.Caller{Principal: "olga", Role: "operator"},
		orchestrator.TriggerRequest{RunbookName: "orphan_volume_cleanup"})
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	s, _ := New(Config{Sweeper: orch, Logger: discardLogger()})

	clk.Advance(30 * time.Minute)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	exec, _ := store.Get(context.Background(), res.Execution.ID)
	if exec.EscalatedAt != nil {
		t.Fatal("expected no escalation before timeout")
	}

	clk.Advance(31 * time.Minute)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	exec, _ = store.Get(context.Background(), res.Execution.ID)
	if exec.EscalatedAt == nil {
		t.Fatal("expected escalation after timeout")
	}
	if exec.Status != domain.StatusPendingApproval {
		t.Errorf("escalation must not change status, got %s", exec.Status)
	}

	// повторный проход не добавляет событий
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	trs, _ := store.Transitions(context.Background(), exec.ID)
	escalations := 0
	for _, tr := range trs {
		if tr.Note == "escalated" {
			escalations++
		}
	}
	if escalations != 1 {
		t.Errorf("expected exactly 1 escalation event, got %d", escalations)
	}
}
