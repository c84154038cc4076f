package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/repo"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func createPending(t *testing.T, s *ExecutionStore, runbook, approverRole string, at time.Time) *domain.Execution {
	t.Helper()

	e := &domain.Execution{
		ID:           uuid.New(),
		RunbookName:  runbook,
		ApproverRole: approverRole,
		TriggeredBy:  "alice",
		TriggeredAt:  at,
	}
	tr, err := e.Open(domain.StatusPendingApproval, "alice", at, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Create(context.Background(), e, domain.ExecutionChange{Transitions: []domain.Transition{tr}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return e
}

func TestExecutionStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	e := createPending(t, s, "rb", "lead", t0)

	if e.Version != 1 {
		t.Errorf("Version = %d, want 1", e.Version)
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusPendingApproval {
		t.Errorf("Status = %s", got.Status)
	}

	got.Status = domain.StatusCancelled
	again, _ := s.Get(ctx, e.ID)
	if again.Status != domain.StatusPendingApproval {
		t.Error("Get must return a copy")
	}

	if err := s.Create(ctx, e, domain.ExecutionChange{}); !errors.Is(err, repo.ErrAlreadyExists) {
		t.Errorf("duplicate Create: expected ErrAlreadyExists, got %v", err)
	}
	if _, err := s.Get(ctx, uuid.New()); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("Get unknown: expected ErrNotFound, got %v", err)
	}
}

func TestExecutionStore_SaveVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	e := createPending(t, s, "rb", "lead", t0)

	a, _ := s.Get(ctx, e.ID)
	b, _ := s.Get(ctx, e.ID)

	trA, _ := a.MarkQueued("bob", "", t0)
	if err := s.Save(ctx, a, 1, domain.ExecutionChange{Transitions: []domain.Transition{trA}}); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("Version after Save = %d, want 2", a.Version)
	}

	trB, _ := b.MarkCancelled("alice", t0)
	if err := s.Save(ctx, b, 1, domain.ExecutionChange{Transitions: []domain.Transition{trB}}); !errors.Is(err, repo.ErrStaleVersion) {
		t.Errorf("second Save: expected ErrStaleVersion, got %v", err)
	}

	got, _ := s.Get(ctx, e.ID)
	if got.Status != domain.StatusQueued {
		t.Errorf("Status = %s, first writer must win", got.Status)
	}

	trs, _ := s.Transitions(ctx, e.ID)
	if len(trs) != 2 {
		t.Errorf("transitions = %d, want 2 (loser must not be journaled)", len(trs))
	}
}

func TestExecutionStore_ConcurrentSaveSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	e := createPending(t, s, "rb", "lead", t0)

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cur, err := s.Get(ctx, e.ID)
			if err != nil {
				t.Error(err)
				return
			}
			tr, err := cur.MarkQueued("bob", "", t0)
			if err != nil {
				return
			}
			if err := s.Save(ctx, cur, 1, domain.ExecutionChange{Transitions: []domain.Transition{tr}}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
}

func TestExecutionStore_DuplicateVote(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	e := createPending(t, s, "rb", "lead", t0)

	vote := func(version int) error {
		cur, _ := s.Get(ctx, e.ID)
		return s.Save(ctx, cur, version, domain.ExecutionChange{
			Transitions: []domain.Transition{cur.Event("bob", t0, "approved 1/2")},
			Decision: &domain.ApprovalDecision{
				ID:          uuid.New(),
				ExecutionID: e.ID,
				Approver:    "bob",
				Decision:    domain.DecisionApproved,
				At:          t0,
			},
		})
	}

	if err := vote(1); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := vote(2); !errors.Is(err, repo.ErrAlreadyExists) {
		t.Errorf("second vote: expected ErrAlreadyExists, got %v", err)
	}

	ds, _ := s.Decisions(ctx, e.ID)
	if len(ds) != 1 {
		t.Errorf("decisions = %d, want 1", len(ds))
	}
}

func TestExecutionStore_MarkEscalatedIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	e := createPending(t, s, "rb", "lead", t0)
	at := t0.Add(time.Hour)

	ok, err := s.MarkEscalated(ctx, e.ID, at, e.Event("escalation", at, "overdue"))
	if err != nil || !ok {
		t.Fatalf("first MarkEscalated = %v, %v", ok, err)
	}
	ok, err = s.MarkEscalated(ctx, e.ID, at, e.Event("escalation", at, "overdue"))
	if err != nil || ok {
		t.Errorf("second MarkEscalated = %v, %v, want false, nil", ok, err)
	}

	// Save со старой копией не снимает флаг.
	cur, _ := s.Get(ctx, e.ID)
	cur.EscalatedAt = nil
	cur.DecisionComment = "x"
	if err := s.Save(ctx, cur, cur.Version, domain.ExecutionChange{}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, e.ID)
	if got.EscalatedAt == nil || !got.EscalatedAt.Equal(at) {
		t.Errorf("EscalatedAt = %v, want %v", got.EscalatedAt, at)
	}

	trs, _ := s.Transitions(ctx, e.ID)
	if len(trs) != 2 {
		t.Errorf("transitions = %d, want 2", len(trs))
	}
}

func TestExecutionStore_ListPendingOrder(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()

	newer := createPending(t, s, "rb", "lead", t0.Add(time.Hour))
	older := createPending(t, s, "rb", "lead", t0)
	createPending(t, s, "rb", "other", t0.Add(-time.Hour))

	got, err := s.ListPending(ctx, "lead", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != older.ID || got[1].ID != newer.ID {
		t.Error("pending must be ordered oldest first")
	}

	all, _ := s.ListPending(ctx, "", 0)
	if len(all) != 3 {
		t.Errorf("unfiltered len = %d, want 3", len(all))
	}
	limited, _ := s.ListPending(ctx, "", 1)
	if len(limited) != 1 {
		t.Errorf("limited len = %d, want 1", len(limited))
	}
}

func TestExecutionStore_ListHistory(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()

	for i := 0; i < 5; i++ {
		createPending(t, s, "rb-a", "lead", t0.Add(time.Duration(i)*time.Minute))
	}
	createPending(t, s, "rb-b", "lead", t0)

	page, total, err := s.List(ctx, domain.ExecutionFilter{RunbookName: "rb-a", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page len = %d, want 2", len(page))
	}
	if !page[0].TriggeredAt.Equal(t0.Add(3 * time.Minute)) {
		t.Errorf("page[0] triggered at %v, want newest-first with offset 1", page[0].TriggeredAt)
	}

	empty, total, _ := s.List(ctx, domain.ExecutionFilter{Offset: 100})
	if len(empty) != 0 || total != 6 {
		t.Errorf("beyond offset: len=%d total=%d", len(empty), total)
	}
}

func TestExecutionStore_ListQueued(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()

	e := &domain.Execution{ID: uuid.New(), RunbookName: "rb", TriggeredAt: t0}
	tr, _ := e.Open(domain.StatusQueued, "alice", t0, "")
	s.Create(ctx, e, domain.ExecutionChange{Transitions: []domain.Transition{tr}})
	createPending(t, s, "rb", "lead", t0)

	got, _ := s.ListQueued(ctx, t0.Add(time.Second), 10)
	if len(got) != 1 || got[0].ID != e.ID {
		t.Errorf("ListQueued = %v", got)
	}
	if got, _ := s.ListQueued(ctx, t0.Add(-time.Second), 10); len(got) != 0 {
		t.Errorf("before filter ignored: %d", len(got))
	}
}

func TestExecutionStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()

	createPending(t, s, "rb-b", "lead", t0)
	createPending(t, s, "rb-a", "lead", t0)
	createPending(t, s, "rb-a", "lead", t0)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 || stats[0].RunbookName != "rb-a" {
		t.Fatalf("stats = %+v", stats)
	}
	if stats[0].Total != 2 || stats[0].Pending != 2 {
		t.Errorf("rb-a = %+v", stats[0])
	}
}

func TestPolicyStore(t *testing.T) {
	ctx := context.Background()
	s := NewPolicyStore()

	p := &domain.ApprovalPolicy{
		ID:           uuid.New(),
		RunbookName:  "rb",
		TriggerRole:  "operator",
		ApproverRole: "lead",
		Mode:         domain.ApprovalSingle,
		Enabled:      true,
	}
	if err := s.Insert(ctx, p); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, p); !errors.Is(err, repo.ErrAlreadyExists) {
		t.Errorf("duplicate Insert: expected ErrAlreadyExists, got %v", err)
	}

	p.Mode = domain.ApprovalAuto
	if err := s.Update(ctx, p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.GetByTrigger(ctx, "rb", "operator")
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != domain.ApprovalAuto {
		t.Errorf("Mode = %s", got.Mode)
	}

	missing := *p
	missing.TriggerRole = "nobody"
	if err := s.Update(ctx, &missing); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("Update missing: expected ErrNotFound, got %v", err)
	}

	s.Insert(ctx, &domain.ApprovalPolicy{RunbookName: "rb", TriggerRole: "admin"})
	s.Insert(ctx, &domain.ApprovalPolicy{RunbookName: "other", TriggerRole: "admin"})

	list, _ := s.ListByRunbook(ctx, "rb")
	if len(list) != 2 || list[0].TriggerRole != "admin" || list[1].TriggerRole != "operator" {
		t.Errorf("ListByRunbook = %+v", list)
	}
}

func TestExecutionStore_ListOverdue(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()

	withTimeout := func(at time.Time, minutes int) *domain.Execution {
		e := &domain.Execution{
			ID:                       uuid.New(),
			RunbookName:              "rb",
			EscalationTimeoutMinutes: minutes,
			TriggeredAt:              at,
		}
		tr, _ := e.Open(domain.StatusPendingApproval, "alice", at, "")
		if err := s.Create(ctx, e, domain.ExecutionChange{Transitions: []domain.Transition{tr}}); err != nil {
			t.Fatal(err)
		}
		return e
	}

	older := withTimeout(t0, 30)
	newer := withTimeout(t0.Add(10*time.Minute), 30)
	withTimeout(t0, 0)
	withTimeout(t0.Add(time.Hour), 30)
	escalated := withTimeout(t0.Add(-time.Hour), 30)
	s.MarkEscalated(ctx, escalated.ID, t0, escalated.Event("escalation", t0, "escalated"))

	now := t0.Add(45 * time.Minute)
	got, err := s.ListOverdue(ctx, now, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != older.ID || got[1].ID != newer.ID {
		t.Fatalf("ListOverdue = %+v, want older and newer only", got)
	}

	limited, _ := s.ListOverdue(ctx, now, 1)
	if len(limited) != 1 || limited[0].ID != older.ID {
		t.Errorf("limited ListOverdue = %+v", limited)
	}
}
