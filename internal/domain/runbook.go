package domain

// RiskLevel — уровень риска runbook'а.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// IsValid проверяет, что уровень риска известен.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

// Типы параметров runbook'а.
const (
	ParamTypeString  = "string"
	ParamTypeInteger = "integer"
	ParamTypeNumber  = "number"
	ParamTypeBoolean = "boolean"
)

// Runbook — запись каталога: именованная параметризованная автоматизация.
//
// Runbook создаётся при деплое (seed-файл каталога) и никогда не изменяется
// оркестратором. Name — уникальный ключ, по нему ссылаются политики и executions.
type Runbook struct {
	// ID — идентификатор записи каталога.
	ID string `json:"id" yaml:"id"`

	// Name — уникальное имя (например, "stuck_vm_remediation").
	Name string `json:"name" yaml:"name"`

	// DisplayName — человекочитаемое название для UI.
	DisplayName string `json:"display_name" yaml:"display_name"`

	// Description — описание назначения runbook'а.
	Description string `json:"description,omitempty" yaml:"description"`

	// Category — категория ("remediation", "cleanup", "security", ...).
	Category string `json:"category" yaml:"category"`

	// RiskLevel — low, medium или high.
	RiskLevel RiskLevel `json:"risk_level" yaml:"risk_level"`

	// SupportsDryRun — умеет ли runbook работать без побочных эффектов.
	SupportsDryRun bool `json:"supports_dry_run" yaml:"supports_dry_run"`

	// Enabled — выключенный runbook нельзя запустить.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TimeoutSec — таймаут вызова Runner'а в секундах (0 — значение по умолчанию).
	TimeoutSec int `json:"timeout_sec,omitempty" yaml:"timeout_sec"`

	// ParametersSchema — схема параметров: имя → определение.
	ParametersSchema map[string]ParamDef `json:"parameters_schema" yaml:"parameters"`
}

// ParamDef — определение одного параметра runbook'а.
type ParamDef struct {
	// Type — "string", "integer", "number" или "boolean".
	Type string `json:"type" yaml:"type"`

	// Required — параметр обязателен, если у него нет Default.
	Required bool `json:"required,omitempty" yaml:"required"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty" yaml:"default"`

	// Enum — допустимые значения (для string).
	Enum []string `json:"enum,omitempty" yaml:"enum"`

	// Min, Max — границы для integer/number.
	Min *int64 `json:"min,omitempty" yaml:"min"`
	Max *int64 `json:"max,omitempty" yaml:"max"`

	// Description — подсказка для UI.
	Description string `json:"description,omitempty" yaml:"description"`
}
