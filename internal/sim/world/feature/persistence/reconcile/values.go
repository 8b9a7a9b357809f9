package reconcile

import (
	"encoding/json"
	"math"

	"heroranker.app/internal/sim/world/logic/mathx"
)

// number accepts any JSON-ish numeric value. NaN, infinities and non-numbers are rejected.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		p, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if !mathx.Finite(f) {
		return 0, false
	}
	return f, true
}

func whole(v any) (int, bool) {
	f, ok := number(v)
	if !ok || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(math.Floor(f)), true
}

// maxMillis bounds epoch-ms timestamps to the range a float64 holds exactly.
const maxMillis = 1 << 53

// millis accepts a positive epoch-ms timestamp, floored to whole milliseconds.
func millis(v any) (int64, bool) {
	f, ok := number(v)
	if !ok || f < 1 || f > maxMillis {
		return 0, false
	}
	return int64(f), true
}

func text(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}

func object(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		if d, isDoc := v.(Document); isDoc {
			return map[string]any(d), true
		}
	}
	return m, ok
}

func list(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// buildingMaps returns the canonical building entries produced by the buildings step.
func buildingMaps(doc Document) []map[string]any {
	raw, _ := list(doc["buildings"])
	out := make([]map[string]any, 0, len(raw))
	for _, e := range raw {
		if m, ok := object(e); ok {
			out = append(out, m)
		}
	}
	return out
}

func setBuildings(doc Document, bs []map[string]any) {
	l := make([]any, len(bs))
	for i := range bs {
		l[i] = bs[i]
	}
	doc["buildings"] = l
}
