package qualifier

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Vars are the values substitutable into a rule's error message.
type Vars map[string]any

// Set records a variable, replacing any value taken from rule data.
func (v Vars) Set(key string, value any) { v[key] = value }

// varsFromData seeds template variables from rule data. The logic operator
// is rendered as text.
func varsFromData(data map[string]any) Vars {
	vars := make(Vars, len(data))
	for k, v := range data {
		if k == "logic" {
			op, _ := v.(string)
			vars[k] = LogicText(op)
			continue
		}
		vars[k] = v
	}
	return vars
}

// Render substitutes {key} placeholders in message. Nested maps and lists
// are addressed with dot-joined keys, e.g. {category.label} or
// {user_roles.0.value}.
func Render(message string, vars Vars) string {
	if message == "" || !strings.Contains(message, "{") {
		return message
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		message = substitute(k, vars[k], message)
	}
	return message
}

func substitute(key string, value any, message string) string {
	switch v := value.(type) {
	case map[string]any:
		for k, inner := range v {
			message = substitute(key+"."+k, inner, message)
		}
		return message
	case []any:
		for i, inner := range v {
			message = substitute(key+"."+strconv.Itoa(i), inner, message)
		}
		return message
	}
	return strings.ReplaceAll(message, "{"+key+"}", scalarText(value))
}

func scalarText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		if v {
			return "1"
		}
		return ""
	case decimal.Decimal:
		return v.String()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(value)
}
