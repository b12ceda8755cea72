// Package reintegrate folds retrieved passages back into generation input.
package reintegrate

import (
	"strings"
	"unicode/utf8"

	"github.com/rcliao/evicted-rag/internal/model"
)

// Separator sits between passages in converted text. It is a horizontal rule
// on its own line bounded by blank lines.
const Separator = "\n\n---\n\n"

// MissingTextPolicy says what conversion does with a passage whose text is
// empty.
type MissingTextPolicy int

const (
	SkipMissing   MissingTextPolicy = iota // drop the passage
	FailOnMissing                          // return ErrValidation
)

func (p MissingTextPolicy) String() string {
	switch p {
	case SkipMissing:
		return "skip"
	case FailOnMissing:
		return "fail"
	default:
		return "unknown"
	}
}

// Converter turns ranked passages into input text under a missing-text
// policy. The zero value skips.
type Converter struct {
	Policy MissingTextPolicy
}

// Convert joins passage texts in input order with Separator. Passages whose
// text is not valid UTF-8 are always rejected.
func (c Converter) Convert(passages []model.RankedPassage) (string, error) {
	texts, err := c.texts(passages)
	if err != nil {
		return "", err
	}
	return strings.Join(texts, Separator), nil
}

func (c Converter) texts(passages []model.RankedPassage) ([]string, error) {
	texts := make([]string, 0, len(passages))
	for i, p := range passages {
		if p.Text == "" {
			if c.Policy == FailOnMissing {
				return nil, model.Validationf("passage %d (%s) has no text", i, p.EntryID)
			}
			continue
		}
		if !utf8.ValidString(p.Text) {
			return nil, model.Validationf("passage %d (%s) is not valid UTF-8", i, p.EntryID)
		}
		texts = append(texts, p.Text)
	}
	return texts, nil
}

// ConvertPassagesToInputs joins passage texts in input order with Separator,
// skipping passages with empty or non-UTF-8 text. An empty list yields "".
func ConvertPassagesToInputs(passages []model.RankedPassage) string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		if p.Text == "" || !utf8.ValidString(p.Text) {
			continue
		}
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, Separator)
}
