package parser

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Accessors below never fail: a missing or wrong-typed value yields the zero
// value and ok=false.

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func asFloat(v any) (float64, bool) {
	d, ok := asDecimal(v)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func asInt(v any) (int, bool) {
	d, ok := asDecimal(v)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		n, ok := asInt(v)
		return ok && n != 0
	}
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

// firstString returns the first non-empty string among keys.
func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := asString(raw[key]); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstPositiveInt returns the first key holding a positive number.
func firstPositiveInt(raw map[string]any, keys ...string) int {
	for _, key := range keys {
		if n, ok := asInt(raw[key]); ok && n > 0 {
			return n
		}
	}
	return 0
}

// IDString renders an upstream identifier, which may arrive as a JSON number
// or a string, in the canonical trimmed form used for comparisons.
func IDString(v any) string {
	s, ok := asString(v)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
