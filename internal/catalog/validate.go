package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shaiso/Runbooks/internal/domain"
)

// Допустимые типы параметров.
var validParamTypes = map[string]bool{
	domain.ParamTypeString:  true,
	domain.ParamTypeInteger: true,
	domain.ParamTypeNumber:  true,
	domain.ParamTypeBoolean: true,
}

// ValidateParams проверяет параметры запуска по схеме runbook'а.
//
// Возвращает новый map: значения приведены к типам схемы
// (integer → int64, number → float64, boolean → bool), отсутствующие
// параметры с default'ом подставлены. Исходный map не меняется.
//
// Проверяет:
//   - отсутствие необъявленных параметров
//   - наличие обязательных параметров
//   - тип значения
//   - вхождение в enum
//   - границы min/max для integer/number
func ValidateParams(rb *domain.Runbook, params map[string]any) (map[string]any, error) {
	for _, name := range sortedKeys(params) {
		if _, ok := rb.ParametersSchema[name]; !ok {
			return nil, NewValidationError(rb.Name, name, "parameter is not declared", ErrUnknownParameter)
		}
	}

	out := make(map[string]any, len(rb.ParametersSchema))
	names := make([]string, 0, len(rb.ParametersSchema))
	for name := range rb.ParametersSchema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := rb.ParametersSchema[name]
		raw, ok := params[name]
		if !ok || raw == nil {
			if def.Default != nil {
				v, err := checkValue(rb.Name, name, def, def.Default)
				if err != nil {
					return nil, err
				}
				out[name] = v
				continue
			}
			if def.Required {
				return nil, NewValidationError(rb.Name, name, "parameter is required", ErrMissingParameter)
			}
			continue
		}

		v, err := checkValue(rb.Name, name, def, raw)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}

	return out, nil
}

// checkValue приводит значение к типу параметра и проверяет ограничения.
func checkValue(runbook, name string, def domain.ParamDef, raw any) (any, error) {
	switch def.Type {
	case domain.ParamTypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, NewValidationError(runbook, name,
				fmt.Sprintf("expected string, got %T", raw), ErrInvalidType)
		}
		if err := checkEnum(runbook, name, def, s); err != nil {
			return nil, err
		}
		return s, nil

	case domain.ParamTypeInteger:
		n, ok := toInt64(raw)
		if !ok {
			return nil, NewValidationError(runbook, name,
				fmt.Sprintf("expected integer, got %v", raw), ErrInvalidType)
		}
		if def.Min != nil && n < *def.Min {
			return nil, NewValidationError(runbook, name,
				fmt.Sprintf("value %d is less than min %d", n, *def.Min), ErrOutOfRange)
		}
		if def.Max != nil && n > *def.Max {
			return nil, NewValidationError(runbook, name,
				fmt.Sprintf("value %d is greater than max %d", n, *def.Max), ErrOutOfRange)
		}
		if err := checkEnum(runbook, name, def, strconv.FormatInt(n, 10)); err != nil {
			return nil, err
		}
		return n, nil

	case domain.ParamTypeNumber:
		f, ok := toFloat64(raw)
		if !ok {
			return nil, NewValidationError(runbook, name,
				fmt.Sprintf("expected number, got %v", raw), ErrInvalidType)
		}
		if def.Min != nil && f < float64(*def.Min) {
			return nil, NewValidationError(runbook, name,
				fmt.Sprintf("value %g is less than min %d", f, *def.Min), ErrOutOfRange)
		}
		if def.Max != nil && f > float64(*def.Max) {
			return nil, NewValidationError(runbook, name,
				fmt.Sprintf("value %g is greater than max %d", f, *def.Max), ErrOutOfRange)
		}
		return f, nil

	case domain.ParamTypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err == nil {
				return b, nil
			}
		}
		return nil, NewValidationError(runbook, name,
			fmt.Sprintf("expected boolean, got %v", raw), ErrInvalidType)

	default:
		return nil, NewValidationError(runbook, name,
			fmt.Sprintf("unknown parameter type %q", def.Type), ErrInvalidType)
	}
}

func checkEnum(runbook, name string, def domain.ParamDef, value string) error {
	if len(def.Enum) == 0 {
		return nil
	}
	for _, allowed := range def.Enum {
		if allowed == value {
			return nil
		}
	}
	return NewValidationError(runbook, name,
		fmt.Sprintf("value %q is not one of [%s]", value, strings.Join(def.Enum, ", ")), ErrNotInEnum)
}

// toInt64 принимает целые типы, float64 без дробной части (JSON), json.Number и строки.
func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.Abs(v) >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		if n, ok := toInt64(raw); ok {
			return float64(n), true
		}
		return 0, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
