package qualifier

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Data is the admin-supplied parameter map of a rule instance.
type Data map[string]any

func (d Data) missing(key string) error {
	return fmt.Errorf("%w: %q", ErrInvalidData, key)
}

// Number reads a numeric field. Numeric strings are accepted; empty strings
// are treated as absent.
func (d Data) Number(key string) (float64, error) {
	switch v := d[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, d.missing(key)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, d.missing(key)
		}
		return f, nil
	}
	return 0, d.missing(key)
}

// String reads a non-empty text field.
func (d Data) String(key string) (string, error) {
	s, ok := d[key].(string)
	if !ok || s == "" {
		return "", d.missing(key)
	}
	return s, nil
}

// Option reads a select value: either a {value,label} object or a scalar.
func (d Data) Option(key string) (string, error) {
	v, ok := optionValue(d[key])
	if !ok {
		return "", d.missing(key)
	}
	return v, nil
}

// Options reads a multi-select value.
func (d Data) Options(key string) ([]string, error) {
	list, ok := d[key].([]any)
	if !ok {
		if v, ok := optionValue(d[key]); ok {
			return []string{v}, nil
		}
		return nil, d.missing(key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if v, ok := optionValue(item); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Operator reads the logic field and checks it against the allowed set.
func (d Data) Operator(allowed func(string) bool) (string, error) {
	op, err := d.String("logic")
	if err != nil {
		return "", err
	}
	if !allowed(op) {
		return "", fmt.Errorf("%w: unsupported logic %q", ErrInvalidData, op)
	}
	return op, nil
}

func optionValue(v any) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		return optionValue(t["value"])
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}
