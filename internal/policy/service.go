package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/clock"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/repo"
)

// Store — хранилище политик.
//
// Реализации: repo.PolicyRepo (PostgreSQL) и memstore.PolicyStore.
// Insert возвращает repo.ErrAlreadyExists при нарушении уникальности
// (runbook_name, trigger_role), Get* — repo.ErrNotFound.
type Store interface {
	Insert(ctx context.Context, p *domain.ApprovalPolicy) error
	Update(ctx context.Context, p *domain.ApprovalPolicy) error
	GetByTrigger(ctx context.Context, runbookName, triggerRole string) (*domain.ApprovalPolicy, error)
	ListByRunbook(ctx context.Context, runbookName string) ([]domain.ApprovalPolicy, error)
}

// RunbookLookup — проверка существования runbook'а (catalog.Catalog).
type RunbookLookup interface {
	Get(name string) (*domain.Runbook, error)
}

// Config — конфигурация Service.
type Config struct {
	Store Store

	// Runbooks — каталог для проверки ссылок (опционально).
	Runbooks RunbookLookup

	Clock  clock.Clock
	Logger *slog.Logger
}

// Service — операции над политиками одобрения.
type Service struct {
	store    Store
	runbooks RunbookLookup
	clock    clock.Clock
	logger   *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:    cfg.Store,
		runbooks: cfg.Runbooks,
		clock:    clk,
		logger:   logger,
	}
}

// Resolve возвращает политику для роли вызывающего.
// Нет политики или она выключена — ErrNoMatchingPolicy.
func (s *Service) Resolve(ctx context.Context, runbookName, callerRole string) (*domain.ApprovalPolicy, error) {
	p, err := s.store.GetByTrigger(ctx, runbookName, normalizeRole(callerRole))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: runbook %s, role %s", ErrNoMatchingPolicy, runbookName, callerRole)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve policy: %w", err)
	}
	if !p.Enabled {
		return nil, fmt.Errorf("%w: policy for role %s is disabled", ErrNoMatchingPolicy, callerRole)
	}
	return p, nil
}

// List возвращает все политики runbook'а.
func (s *Service) List(ctx context.Context, runbookName string) ([]domain.ApprovalPolicy, error) {
	policies, err := s.store.ListByRunbook(ctx, runbookName)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return policies, nil
}

// Create добавляет новую политику.
// Политика для той же пары (runbook, trigger_role) — ErrConflictingPolicy.
func (s *Service) Create(ctx context.Context, p *domain.ApprovalPolicy) (*domain.ApprovalPolicy, error) {
	if err := s.validate(p); err != nil {
		return nil, err
	}

	_, err := s.store.GetByTrigger(ctx, p.RunbookName, p.TriggerRole)
	if err == nil {
		return nil, fmt.Errorf("%w: runbook %s already has a policy for role %s",
			ErrConflictingPolicy, p.RunbookName, p.TriggerRole)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("check policy: %w", err)
	}

	now := s.clock.Now()
	p.ID = uuid.New()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.Insert(ctx, p); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: runbook %s already has a policy for role %s",
				ErrConflictingPolicy, p.RunbookName, p.TriggerRole)
		}
		return nil, fmt.Errorf("insert policy: %w", err)
	}

	s.logger.Info("policy created",
		"runbook", p.RunbookName,
		"trigger_role", p.TriggerRole,
		"approval_mode", p.Mode,
	)
	return p, nil
}

// Put — upsert политики по ключу (runbook_name, trigger_role).
func (s *Service) Put(ctx context.Context, p *domain.ApprovalPolicy) (*domain.ApprovalPolicy, error) {
	if err := s.validate(p); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	existing, err := s.store.GetByTrigger(ctx, p.RunbookName, p.TriggerRole)
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = now
		if err := s.store.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("update policy: %w", err)
		}
		s.logger.Info("policy updated",
			"runbook", p.RunbookName,
			"trigger_role", p.TriggerRole,
			"approval_mode", p.Mode,
		)
		return p, nil

	case errors.Is(err, repo.ErrNotFound):
		created, err := s.Create(ctx, p)
		if errors.Is(err, ErrConflictingPolicy) {
			// Параллельный Put успел вставить ту же пару — обновляем её.
			return s.Put(ctx, p)
		}
		return created, err

	default:
		return nil, fmt.Errorf("get policy: %w", err)
	}
}

// validate нормализует и проверяет политику.
func (s *Service) validate(p *domain.ApprovalPolicy) error {
	p.RunbookName = strings.TrimSpace(p.RunbookName)
	p.TriggerRole = normalizeRole(p.TriggerRole)
	p.ApproverRole = normalizeRole(p.ApproverRole)

	if p.RunbookName == "" {
		return fmt.Errorf("%w: runbook_name is required", ErrInvalidPolicy)
	}
	if p.TriggerRole == "" {
		return fmt.Errorf("%w: trigger_role is required", ErrInvalidPolicy)
	}
	if p.ApproverRole == "" {
		return fmt.Errorf("%w: approver_role is required", ErrInvalidPolicy)
	}
	if !p.Mode.IsValid() {
		return fmt.Errorf("%w: unknown approval_mode %q", ErrInvalidPolicy, p.Mode)
	}
	if p.RequiredApprovals < 0 {
		return fmt.Errorf("%w: required_approvals must not be negative", ErrInvalidPolicy)
	}
	if p.Mode == domain.ApprovalSingle && p.RequiredApprovals > 1 {
		return fmt.Errorf("%w: single_approval cannot require %d approvals", ErrInvalidPolicy, p.RequiredApprovals)
	}
	if p.EscalationTimeoutMinutes < 0 {
		return fmt.Errorf("%w: escalation_timeout_minutes must not be negative", ErrInvalidPolicy)
	}
	if p.MaxAutoExecutionsPerDay < 0 {
		return fmt.Errorf("%w: max_auto_executions_per_day must not be negative", ErrInvalidPolicy)
	}

	if s.runbooks != nil {
		if _, err := s.runbooks.Get(p.RunbookName); err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownRunbook, p.RunbookName)
		}
	}
	return nil
}

func normalizeRole(role string) string {
	return strings.TrimSpace(role)
}
