package runner

import (
	"context"

	"github.com/shaiso/Runbooks/internal/domain"
)

// StubRunbook — детерминированный скан без внешних вызовов.
//
// Находит Items, кладёт их в result[Key]. Если Mutating и не dry-run,
// все найденные элементы считаются обработанными. В dry-run
// items_actioned всегда 0.
type StubRunbook struct {
	Key      string
	Items    []map[string]any
	Mutating bool

	// Filter отбирает элементы по параметрам запуска (опционально).
	Filter func(item map[string]any, params map[string]any) bool
}

// Run возвращает найденные элементы.
func (s *StubRunbook) Run(ctx context.Context, req Request) (*domain.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found := make([]any, 0, len(s.Items))
	for _, item := range s.Items {
		if s.Filter != nil && !s.Filter(item, req.Parameters) {
			continue
		}
		found = append(found, item)
	}

	actioned := 0
	if s.Mutating && !req.DryRun {
		actioned = len(found)
	}

	return &domain.RunResult{
		ItemsFound:    len(found),
		ItemsActioned: actioned,
		Result: map[string]any{
			s.Key:     found,
			"dry_run": req.DryRun,
		},
	}, nil
}

// RegisterStubs регистрирует dev-реализации стандартных runbook'ов.
func RegisterStubs(r *Registry) {
	r.Register("stuck_vm_remediation", &StubRunbook{
		Key:      "stuck_vms",
		Mutating: true,
		Items: []map[string]any{
			{"vm_id": "vm-0a1b", "state": "stopping", "stuck_minutes": int64(95)},
			{"vm_id": "vm-7c2d", "state": "starting", "stuck_minutes": int64(42)},
			{"vm_id": "vm-93ef", "state": "migrating", "stuck_minutes": int64(12)},
		},
		Filter: func(item, params map[string]any) bool {
			maxAge, ok := params["max_age_minutes"].(int64)
			if !ok {
				return true
			}
			return item["stuck_minutes"].(int64) >= maxAge
		},
	})
	r.Register("orphan_volume_cleanup", &StubRunbook{
		Key:      "orphan_volumes",
		Mutating: true,
		Items: []map[string]any{
			{"volume_id": "vol-11aa", "size_gb": int64(100)},
			{"volume_id": "vol-22bb", "size_gb": int64(20)},
		},
	})
	r.Register("security_audit", &StubRunbook{
		Key: "findings",
		Items: []map[string]any{
			{"rule": "open_ssh_port", "resource": "sg-4411", "severity": "high"},
		},
	})
}
