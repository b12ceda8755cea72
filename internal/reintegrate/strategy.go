package reintegrate

import (
	"strings"

	"github.com/rcliao/evicted-rag/internal/chunker"
	"github.com/rcliao/evicted-rag/internal/model"
)

// GenerationState is the slice of generation-loop state that reintegration
// touches. Prompt is the live window text; Auxiliary holds side-channel
// context blocks the loop attends to alongside it.
type GenerationState struct {
	Prompt    string   `json:"prompt"`
	Auxiliary []string `json:"auxiliary,omitempty"`
	Step      int      `json:"step"`
}

// Clone returns a copy that shares no slices with s.
func (s GenerationState) Clone() GenerationState {
	out := s
	if s.Auxiliary != nil {
		out.Auxiliary = append([]string(nil), s.Auxiliary...)
	}
	return out
}

// Input is the text the loop re-encodes: auxiliary blocks first, then the
// prompt.
func (s GenerationState) Input() string {
	parts := make([]string, 0, len(s.Auxiliary)+1)
	parts = append(parts, s.Auxiliary...)
	if s.Prompt != "" {
		parts = append(parts, s.Prompt)
	}
	return strings.Join(parts, Separator)
}

// Strategy splices retrieved passages into a generation state. It returns a
// new state and never modifies the one it was given.
type Strategy interface {
	Name() string
	Reintegrate(state GenerationState, passages []model.RankedPassage) (GenerationState, error)
}

const (
	StrategyPrepend   = "prepend"
	StrategyAuxiliary = "auxiliary"
)

// ByName returns the strategy for a configuration value.
func ByName(name string, budgetTokens int, policy MissingTextPolicy) (Strategy, error) {
	conv := Converter{Policy: policy}
	switch name {
	case "", StrategyPrepend:
		return Prepend{BudgetTokens: budgetTokens, Converter: conv}, nil
	case StrategyAuxiliary:
		return Auxiliary{Converter: conv}, nil
	default:
		return nil, model.Configurationf("unknown reintegration strategy %q", name)
	}
}

const (
	DefaultBudgetTokens = 1000
	charsPerToken       = 4 // rough token proxy
	minExcerpt          = 100
	excerptMark         = "..."
)

// Prepend places retrieved text ahead of the prompt, packed greedily in rank
// order into a token budget.
type Prepend struct {
	BudgetTokens int // <= 0 means DefaultBudgetTokens
	Converter    Converter
}

// Packed is the outcome of fitting passages into a budget.
type Packed struct {
	Texts      []string `json:"texts"`
	UsedTokens int      `json:"used_tokens"`
	Excerpted  bool     `json:"excerpted,omitempty"`
}

func (Prepend) Name() string { return StrategyPrepend }

// Pack keeps whole passages while they fit. The first passage that does not
// fit is cut at a chunk boundary if at least minExcerpt bytes remain, and
// packing stops there.
func (p Prepend) Pack(passages []model.RankedPassage) (Packed, error) {
	budget := p.BudgetTokens
	if budget <= 0 {
		budget = DefaultBudgetTokens
	}
	charBudget := budget * charsPerToken

	texts, err := p.Converter.texts(passages)
	if err != nil {
		return Packed{}, err
	}

	out := Packed{Texts: []string{}}
	used := 0
	for _, text := range texts {
		sep := 0
		if len(out.Texts) > 0 {
			sep = len(Separator)
		}
		if used+sep+len(text) <= charBudget {
			out.Texts = append(out.Texts, text)
			used += sep + len(text)
			continue
		}
		if remaining := charBudget - used - sep - len(excerptMark); remaining >= minExcerpt {
			if excerpt, _ := chunker.Prefix(text, remaining); excerpt != "" {
				out.Texts = append(out.Texts, excerpt+excerptMark)
				used += sep + len(excerpt) + len(excerptMark)
				out.Excerpted = true
			}
		}
		break
	}

	out.UsedTokens = (used + charsPerToken - 1) / charsPerToken
	return out, nil
}

func (p Prepend) Reintegrate(state GenerationState, passages []model.RankedPassage) (GenerationState, error) {
	packed, err := p.Pack(passages)
	if err != nil {
		return GenerationState{}, err
	}
	out := state.Clone()
	if len(packed.Texts) == 0 {
		return out, nil
	}
	block := strings.Join(packed.Texts, Separator)
	if out.Prompt == "" {
		out.Prompt = block
	} else {
		out.Prompt = block + Separator + out.Prompt
	}
	return out, nil
}

// Auxiliary appends the converted passages as one auxiliary context block
// and leaves the prompt untouched.
type Auxiliary struct {
	Converter Converter
}

func (Auxiliary) Name() string { return StrategyAuxiliary }

func (a Auxiliary) Reintegrate(state GenerationState, passages []model.RankedPassage) (GenerationState, error) {
	text, err := a.Converter.Convert(passages)
	if err != nil {
		return GenerationState{}, err
	}
	out := state.Clone()
	if text != "" {
		out.Auxiliary = append(out.Auxiliary, text)
	}
	return out, nil
}
