package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/repo"
)

// ExecutionStore — executions, журнал переходов и голоса в памяти.
//
// Один мьютекс на всё хранилище: Save проверяет версию и пишет
// состояние, переходы и голос под одной блокировкой.
type ExecutionStore struct {
	mu          sync.RWMutex
	executions  map[uuid.UUID]*domain.Execution
	transitions map[uuid.UUID][]domain.Transition
	decisions   map[uuid.UUID][]domain.ApprovalDecision
}

// NewExecutionStore создаёт пустой ExecutionStore.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		executions:  make(map[uuid.UUID]*domain.Execution),
		transitions: make(map[uuid.UUID][]domain.Transition),
		decisions:   make(map[uuid.UUID][]domain.ApprovalDecision),
	}
}

// Create сохраняет новый execution с версией 1.
func (s *ExecutionStore) Create(_ context.Context, e *domain.Execution, ch domain.ExecutionChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[e.ID]; exists {
		return repo.ErrAlreadyExists
	}

	e.Version = 1
	s.executions[e.ID] = e.Clone()
	s.apply(e.ID, ch)
	return nil
}

// Get возвращает execution по ID.
func (s *ExecutionStore) Get(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return e.Clone(), nil
}

// Save записывает новое состояние, если версия в хранилище равна expectedVersion.
func (s *ExecutionStore) Save(_ context.Context, e *domain.Execution, expectedVersion int, ch domain.ExecutionChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.executions[e.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if current.Version != expectedVersion {
		return repo.ErrStaleVersion
	}
	if d := ch.Decision; d != nil {
		for _, existing := range s.decisions[e.ID] {
			if existing.Approver == d.Approver {
				return repo.ErrAlreadyExists
			}
		}
	}

	// escalated_at меняет только MarkEscalated.
	if current.EscalatedAt != nil && e.EscalatedAt == nil {
		t := *current.EscalatedAt
		e.EscalatedAt = &t
	}

	e.Version = expectedVersion + 1
	s.executions[e.ID] = e.Clone()
	s.apply(e.ID, ch)
	return nil
}

// MarkEscalated ставит escalated_at, если execution ещё ждёт одобрения
// и не был эскалирован. Возвращает false, если ничего не изменилось.
func (s *ExecutionStore) MarkEscalated(_ context.Context, id uuid.UUID, at time.Time, tr domain.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if e.Status != domain.StatusPendingApproval || e.EscalatedAt != nil {
		return false, nil
	}

	t := at
	e.EscalatedAt = &t
	s.transitions[id] = append(s.transitions[id], tr)
	return true, nil
}

// ListPending возвращает executions в pending_approval, старые первыми.
// approverRole == "" — без фильтра по роли. limit <= 0 — без ограничения.
func (s *ExecutionStore) ListPending(_ context.Context, approverRole string, limit int) ([]domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Execution
	for _, e := range s.executions {
		if e.Status != domain.StatusPendingApproval {
			continue
		}
		if approverRole != "" && e.ApproverRole != approverRole {
			continue
		}
		out = append(out, *e.Clone())
	}
	sortByTriggeredAsc(out)
	return truncate(out, limit), nil
}

// ListQueued возвращает executions в queued, поставленные не позже before.
func (s *ExecutionStore) ListQueued(_ context.Context, before time.Time, limit int) ([]domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Execution
	for _, e := range s.executions {
		if e.Status != domain.StatusQueued || e.TriggeredAt.After(before) {
			continue
		}
		out = append(out, *e.Clone())
	}
	sortByTriggeredAsc(out)
	return truncate(out, limit), nil
}

// ListOverdue возвращает неэскалированные executions в pending_approval,
// чей таймаут эскалации истёк к now. Старые первыми.
func (s *ExecutionStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Execution
	for _, e := range s.executions {
		if e.EscalatedAt != nil || !e.IsOverdue(now) {
			continue
		}
		out = append(out, *e.Clone())
	}
	sortByTriggeredAsc(out)
	return truncate(out, limit), nil
}

// List возвращает страницу истории (новые первыми) и общее количество.
func (s *ExecutionStore) List(_ context.Context, f domain.ExecutionFilter) ([]domain.Execution, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Execution
	for _, e := range s.executions {
		if f.RunbookName != "" && e.RunbookName != f.RunbookName {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.TriggeredBy != "" && e.TriggeredBy != f.TriggeredBy {
			continue
		}
		matched = append(matched, *e.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].TriggeredAt.Equal(matched[j].TriggeredAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].TriggeredAt.After(matched[j].TriggeredAt)
	})

	total := len(matched)
	if f.Offset >= total {
		return []domain.Execution{}, total, nil
	}
	matched = matched[f.Offset:]
	return truncate(matched, f.Limit), total, nil
}

// Transitions возвращает журнал переходов execution'а в порядке записи.
func (s *ExecutionStore) Transitions(_ context.Context, id uuid.UUID) ([]domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.executions[id]; !ok {
		return nil, repo.ErrNotFound
	}
	out := make([]domain.Transition, len(s.transitions[id]))
	copy(out, s.transitions[id])
	return out, nil
}

// Decisions возвращает голоса по execution'у.
func (s *ExecutionStore) Decisions(_ context.Context, id uuid.UUID) ([]domain.ApprovalDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.executions[id]; !ok {
		return nil, repo.ErrNotFound
	}
	out := make([]domain.ApprovalDecision, len(s.decisions[id]))
	copy(out, s.decisions[id])
	return out, nil
}

// Stats пересчитывает агрегаты по всем executions.
func (s *ExecutionStore) Stats(_ context.Context) ([]domain.ExecutionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byRunbook := make(map[string]*domain.ExecutionStats)
	for _, e := range s.executions {
		st, ok := byRunbook[e.RunbookName]
		if !ok {
			st = &domain.ExecutionStats{RunbookName: e.RunbookName}
			byRunbook[e.RunbookName] = st
		}
		st.Add(e)
	}

	out := make([]domain.ExecutionStats, 0, len(byRunbook))
	for _, st := range byRunbook {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RunbookName < out[j].RunbookName
	})
	return out, nil
}

// apply дописывает переходы и голос. Вызывается под s.mu.
func (s *ExecutionStore) apply(id uuid.UUID, ch domain.ExecutionChange) {
	s.transitions[id] = append(s.transitions[id], ch.Transitions...)
	if ch.Decision != nil {
		s.decisions[id] = append(s.decisions[id], *ch.Decision)
	}
}

func sortByTriggeredAsc(list []domain.Execution) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].TriggeredAt.Before(list[j].TriggeredAt)
	})
}

func truncate(list []domain.Execution, limit int) []domain.Execution {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}
