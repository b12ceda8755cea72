// Package model defines the core evicted-segment data types.
package model

import (
	"bytes"
	"encoding/json"
	"time"
	"unicode/utf8"
)

// Meta is the open metadata mapping attached to a segment. Values are
// JSON-typed. Numbers read back as json.Number, so integers of any size
// keep their exact digits.
type Meta map[string]any

// UnmarshalJSON decodes a JSON object (or null) keeping numbers as
// json.Number.
func (m *Meta) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// Normalize returns m as it reads back from storage: a deep copy passed
// through JSON. A nil map stays nil.
func (m Meta) Normalize() (Meta, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, Validationf("encode meta: %v", err)
	}
	var out Meta
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, Validationf("decode meta: %v", err)
	}
	return out, nil
}

// Segment is a contiguous span of evicted generation context.
type Segment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Meta      Meta      `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RankedPassage is one query result: an index entry's denormalized fields
// plus its score. Higher scores are more relevant.
type RankedPassage struct {
	EntryID   string  `json:"entry_id"`
	SegmentID string  `json:"segment_id"`
	Text      string  `json:"text"`
	Meta      Meta    `json:"meta,omitempty"`
	Score     float64 `json:"score"`
}

// Well-known meta keys written by the window simulator and the eviction path.
const (
	MetaStartToken  = "start_token"
	MetaEndToken    = "end_token"
	MetaEvictedStep = "evicted_step"
	MetaSource      = "source"
)

// ValidateText rejects text that cannot be stored or scored.
func ValidateText(text string) error {
	if !utf8.ValidString(text) {
		return Validationf("text is not valid UTF-8")
	}
	return nil
}

// Clone returns a deep copy of m so callers cannot mutate stored state.
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Meta(t).Clone())
	case Meta:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
