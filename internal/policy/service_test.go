package policy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Runbooks/internal/catalog"
	"github.com/shaiso/Runbooks/internal/clock"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/memstore"
)

func newTestService(t *testing.T) (*Service, *clock.Fake) {
	t.Helper()
	cat, err := catalog.New([]domain.Runbook{
		{Name: "stuck_vm_remediation", Enabled: true},
		{Name: "orphan_volume_cleanup", Enabled: true},
	})
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return New(Config{
		Store:    memstore.NewPolicyStore(),
		Runbooks: cat,
		Clock:    clk,
	}), clk
}

func policyFor(runbook, role string, mode domain.ApprovalMode) *domain.ApprovalPolicy {
	return &domain.ApprovalPolicy{
		RunbookName:             runbook,
		TriggerRole:             role,
		ApproverRole:            "sre_lead",
		Mode:                    mode,
		MaxAutoExecutionsPerDay: 10,
		Enabled:                 true,
	}
}

func TestService_CreateAndResolve(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, policyFor("stuck_vm_remediation", "operator", domain.ApprovalAuto))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected generated policy ID")
	}

	p, err := s.Resolve(ctx, "stuck_vm_remediation", "operator")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.ID != created.ID {
		t.Errorf("expected %s, got %s", created.ID, p.ID)
	}
}

func TestService_ResolveFailsClosed(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.Resolve(ctx, "stuck_vm_remediation", "operator"); !errors.Is(err, ErrNoMatchingPolicy) {
		t.Errorf("expected ErrNoMatchingPolicy, got %v", err)
	}

	disabled := policyFor("stuck_vm_remediation", "operator", domain.ApprovalSingle)
	disabled.Enabled = false
	if _, err := s.Create(ctx, disabled); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Resolve(ctx, "stuck_vm_remediation", "operator"); !errors.Is(err, ErrNoMatchingPolicy) {
		t.Errorf("expected ErrNoMatchingPolicy for disabled policy, got %v", err)
	}
}

func TestService_CreateConflict(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, policyFor("stuck_vm_remediation", "operator", domain.ApprovalAuto)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := s.Create(ctx, policyFor("stuck_vm_remediation", " operator ", domain.ApprovalSingle))
	if !errors.Is(err, ErrConflictingPolicy) {
		t.Errorf("expected ErrConflictingPolicy, got %v", err)
	}

	// Другая роль для того же runbook'а — не конфликт.
	if _, err := s.Create(ctx, policyFor("stuck_vm_remediation", "sre", domain.ApprovalSingle)); err != nil {
		t.Errorf("expected second role to be accepted, got %v", err)
	}
}

func TestService_ConcurrentCreateOnlyOneWins(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, policyFor("stuck_vm_remediation", "operator", domain.ApprovalAuto))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflictingPolicy):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || conflicts != 19 {
		t.Errorf("expected 1 created and 19 conflicts, got %d and %d", ok, conflicts)
	}
}

func TestService_PutUpserts(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	first, err := s.Put(ctx, policyFor("stuck_vm_remediation", "operator", domain.ApprovalAuto))
	if err != nil {
		t.Fatalf("Put (insert) failed: %v", err)
	}

	clk.Advance(time.Hour)
	update := policyFor("stuck_vm_remediation", "operator", domain.ApprovalMulti)
	update.RequiredApprovals = 3
	second, err := s.Put(ctx, update)
	if err != nil {
		t.Fatalf("Put (update) failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("upsert must keep policy ID: %s != %s", second.ID, first.ID)
	}
	if !second.UpdatedAt.After(second.CreatedAt) {
		t.Errorf("expected updated_at after created_at")
	}

	list, err := s.List(ctx, "stuck_vm_remediation")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(list))
	}
	if list[0].Mode != domain.ApprovalMulti || list[0].Quorum() != 3 {
		t.Errorf("expected multi_approval with quorum 3, got %s/%d", list[0].Mode, list[0].Quorum())
	}
}

func TestService_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *domain.ApprovalPolicy)
		wantErr error
	}{
		{"empty trigger role", func(p *domain.ApprovalPolicy) { p.TriggerRole = "" }, ErrInvalidPolicy},
		{"empty approver role", func(p *domain.ApprovalPolicy) { p.ApproverRole = "  " }, ErrInvalidPolicy},
		{"unknown mode", func(p *domain.ApprovalPolicy) { p.Mode = "yolo" }, ErrInvalidPolicy},
		{"negative cap", func(p *domain.ApprovalPolicy) { p.MaxAutoExecutionsPerDay = -1 }, ErrInvalidPolicy},
		{"negative escalation", func(p *domain.ApprovalPolicy) { p.EscalationTimeoutMinutes = -5 }, ErrInvalidPolicy},
		{"single with quorum", func(p *domain.ApprovalPolicy) {
			p.Mode = domain.ApprovalSingle
			p.RequiredApprovals = 2
		}, ErrInvalidPolicy},
		{"unknown runbook", func(p *domain.ApprovalPolicy) { p.RunbookName = "rm_rf" }, ErrUnknownRunbook},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(t)
			p := policyFor("stuck_vm_remediation", "operator", domain.ApprovalAuto)
			tt.mutate(p)
			if _, err := s.Create(context.Background(), p); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
