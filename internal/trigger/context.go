package trigger

import (
	"fmt"
)

// ContextFromMap builds a Context from a loosely structured mapping, such as
// a JSON document supplied on the command line. Unknown keys, wrong types and
// arbitrarily nested or large values are tolerated. A nil map yields nil.
func ContextFromMap(m map[string]any) *Context {
	if m == nil {
		return nil
	}
	tc := &Context{}

	if v, ok := firstInt(m, "step", "position"); ok {
		tc.Step = v
	}
	if v, ok := firstInt(m, "tokens_since_retrieval", "tokens_generated"); ok {
		tc.TokensSinceRetrieval = v
	}
	if v, ok := firstInt(m, "last_retrieval_step"); ok {
		tc.LastRetrievalStep = &v
	}
	if r, ok := m["retrieval"].(map[string]any); ok && tc.LastRetrievalStep == nil {
		if v, ok := toInt(r["last_triggered"]); ok {
			tc.LastRetrievalStep = &v
		}
	}

	for _, key := range []string{"recent_tokens", "tokens"} {
		if list, ok := m[key].([]any); ok {
			tc.RecentTokens = stringList(list)
			break
		}
	}

	tc.Entropies = floatSeries(m, "entropies", "entropy")
	tc.Confidences = floatSeries(m, "confidences", "confidence")

	if v, ok := toFloat(m["cache_occupancy"]); ok {
		tc.CacheOccupancy = v
	} else if c, ok := m["cache"].(map[string]any); ok {
		if v, ok := toFloat(c["utilization"]); ok {
			tc.CacheOccupancy = v
		}
	}

	return tc
}

func firstInt(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := toInt(m[k]); ok {
			return v, true
		}
	}
	return 0, false
}

// floatSeries accepts either a list under listKey or a scalar under
// scalarKey (which may itself be a list).
func floatSeries(m map[string]any, listKey, scalarKey string) []float64 {
	for _, k := range []string{listKey, scalarKey} {
		switch v := m[k].(type) {
		case []any:
			var out []float64
			for _, e := range v {
				if f, ok := toFloat(e); ok {
					out = append(out, f)
				}
			}
			if len(out) > 0 {
				return out
			}
		case []float64:
			if len(v) > 0 {
				return append([]float64(nil), v...)
			}
		default:
			if f, ok := toFloat(v); ok {
				return []float64{f}
			}
		}
	}
	return nil
}

func stringList(list []any) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		switch t := e.(type) {
		case string:
			out = append(out, t)
		case nil:
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}
