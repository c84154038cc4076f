package catalog

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/shaiso/Runbooks/internal/domain"
	"gopkg.in/yaml.v3"
)

// Seed — содержимое seed-файла каталога.
//
// Пример:
//
//	runbooks:
//	  - name: stuck_vm_remediation
//	    risk_level: medium
//	    supports_dry_run: true
//	    enabled: true
//	    parameters:
//	      max_age_minutes: {type: integer, default: 30, min: 5, max: 1440}
//	policies:
//	  - runbook_name: stuck_vm_remediation
//	    trigger_role: operator
//	    approver_role: sre_lead
//	    approval_mode: auto_approve
//	    max_auto_executions_per_day: 10
//	    enabled: true
type Seed struct {
	Runbooks []domain.Runbook        `yaml:"runbooks"`
	Policies []domain.ApprovalPolicy `yaml:"policies"`
}

// LoadFile читает seed-файл каталога.
func LoadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML seed-файла.
func Parse(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalidCatalog, err)
	}
	return &seed, nil
}

// snapshot — неизменяемое состояние каталога.
type snapshot struct {
	byName map[string]domain.Runbook
	sorted []domain.Runbook
}

// Catalog — реестр runbook'ов.
//
// Во время обработки запросов каталог только читается. Replace подменяет
// снимок целиком, читатели видят либо старый, либо новый набор.
type Catalog struct {
	snap atomic.Pointer[snapshot]
}

// New создаёт каталог из списка runbook'ов.
func New(runbooks []domain.Runbook) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(runbooks); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace валидирует набор runbook'ов и атомарно подменяет каталог.
// При ошибке текущий каталог не меняется.
func (c *Catalog) Replace(runbooks []domain.Runbook) error {
	s := &snapshot{
		byName: make(map[string]domain.Runbook, len(runbooks)),
		sorted: make([]domain.Runbook, 0, len(runbooks)),
	}

	for i := range runbooks {
		rb := runbooks[i]
		if err := validateRunbook(&rb); err != nil {
			return err
		}
		if _, dup := s.byName[rb.Name]; dup {
			return fmt.Errorf("%w: duplicate runbook %q", ErrInvalidCatalog, rb.Name)
		}
		if rb.ID == "" {
			rb.ID = rb.Name
		}
		s.byName[rb.Name] = rb
		s.sorted = append(s.sorted, rb)
	}

	sort.Slice(s.sorted, func(i, j int) bool {
		return s.sorted[i].Name < s.sorted[j].Name
	})

	c.snap.Store(s)
	return nil
}

// List возвращает все runbook'и, отсортированные по имени.
func (c *Catalog) List() []domain.Runbook {
	s := c.snap.Load()
	out := make([]domain.Runbook, len(s.sorted))
	copy(out, s.sorted)
	return out
}

// Get возвращает runbook по имени.
func (c *Catalog) Get(name string) (*domain.Runbook, error) {
	rb, ok := c.snap.Load().byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &rb, nil
}

// Len возвращает количество runbook'ов.
func (c *Catalog) Len() int {
	return len(c.snap.Load().sorted)
}

// validateRunbook проверяет определение runbook'а из seed-файла.
func validateRunbook(rb *domain.Runbook) error {
	if rb.Name == "" {
		return fmt.Errorf("%w: runbook has empty name", ErrInvalidCatalog)
	}
	if rb.RiskLevel == "" {
		rb.RiskLevel = domain.RiskLow
	}
	if !rb.RiskLevel.IsValid() {
		return fmt.Errorf("%w: runbook %q: unknown risk_level %q", ErrInvalidCatalog, rb.Name, rb.RiskLevel)
	}
	if rb.TimeoutSec < 0 {
		return fmt.Errorf("%w: runbook %q: negative timeout_sec", ErrInvalidCatalog, rb.Name)
	}

	for name, def := range rb.ParametersSchema {
		if !validParamTypes[def.Type] {
			return fmt.Errorf("%w: runbook %q: parameter %q has unknown type %q",
				ErrInvalidCatalog, rb.Name, name, def.Type)
		}
		if def.Min != nil && def.Max != nil && *def.Min > *def.Max {
			return fmt.Errorf("%w: runbook %q: parameter %q has min > max",
				ErrInvalidCatalog, rb.Name, name)
		}
		if def.Default != nil {
			if _, err := checkValue(rb.Name, name, def, def.Default); err != nil {
				return fmt.Errorf("%w: runbook %q: default of %q: %v",
					ErrInvalidCatalog, rb.Name, name, err)
			}
		}
	}
	return nil
}
