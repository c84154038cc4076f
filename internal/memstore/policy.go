package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/shaiso/Runbooks/internal/domain"
	"github.com/shaiso/Runbooks/internal/repo"
)

type policyKey struct {
	runbook string
	role    string
}

// PolicyStore — политики одобрения в памяти.
type PolicyStore struct {
	mu       sync.RWMutex
	policies map[policyKey]domain.ApprovalPolicy
}

// NewPolicyStore создаёт пустой PolicyStore.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{policies: make(map[policyKey]domain.ApprovalPolicy)}
}

// Insert добавляет политику.
func (s *PolicyStore) Insert(_ context.Context, p *domain.ApprovalPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := policyKey{p.RunbookName, p.TriggerRole}
	if _, exists := s.policies[key]; exists {
		return repo.ErrAlreadyExists
	}
	s.policies[key] = *p
	return nil
}

// Update обновляет политику с тем же ключом.
func (s *PolicyStore) Update(_ context.Context, p *domain.ApprovalPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := policyKey{p.RunbookName, p.TriggerRole}
	if _, exists := s.policies[key]; !exists {
		return repo.ErrNotFound
	}
	s.policies[key] = *p
	return nil
}

// GetByTrigger возвращает политику по (runbook, trigger_role).
func (s *PolicyStore) GetByTrigger(_ context.Context, runbookName, triggerRole string) (*domain.ApprovalPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[policyKey{runbookName, triggerRole}]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &p, nil
}

// ListByRunbook возвращает политики runbook'а, отсортированные по trigger_role.
func (s *PolicyStore) ListByRunbook(_ context.Context, runbookName string) ([]domain.ApprovalPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ApprovalPolicy
	for key, p := range s.policies {
		if key.runbook == runbookName {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggerRole < out[j].TriggerRole
	})
	return out, nil
}
