package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseParams собирает параметры из KEY=VALUE пар и YAML-файла.
//
// Значения KEY=VALUE разбираются как YAML-скаляры: 40 — число,
// true — bool, остальное — строка. Пары из командной строки
// перекрывают значения из файла.
func parseParams(pairs []string, file string) (map[string]any, error) {
	params := make(map[string]any)

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read params file: %w", err)
		}
		if err := yaml.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("params file is not a valid YAML mapping: %w", err)
		}
	}

	for _, kv := range pairs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		if _, isMap := value.(map[string]any); isMap {
			value = raw
		}
		if _, isList := value.([]any); isList {
			value = raw
		}
		params[key] = value
	}

	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

// loadPolicyFile читает тело политики из YAML.
func loadPolicyFile(path string) (PolicyRequest, error) {
	var req PolicyRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read policy file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("invalid policy file: %w", err)
	}
	if req.TriggerRole == "" {
		return req, fmt.Errorf("invalid policy file: trigger_role is required")
	}
	return req, nil
}
