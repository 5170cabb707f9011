package calendar

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"focusline/internal/domain"
)

// normalizeTasks coerces a stored task list into Tasks. Older records
// hold plain strings; those become open tasks. Anything that is not an
// object or a string becomes an empty open task rather than an error.
func normalizeTasks(raw any) []domain.Task {
	items, ok := raw.([]any)
	if !ok {
		return []domain.Task{}
	}
	out := make([]domain.Task, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, domain.Task{Text: v})
		case map[string]any:
			out = append(out, domain.Task{Text: stringify(v["text"]), Done: truthy(v["done"])})
		default:
			out = append(out, domain.Task{})
		}
	}
	return out
}

// number reads a stored numeric field; missing or unparsable values are 0.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case float64:
		return b != 0 && !math.IsNaN(b)
	case string:
		return b != ""
	default:
		return true
	}
}
