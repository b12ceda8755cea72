package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/evicted-rag/internal/embedding"
	"github.com/rcliao/evicted-rag/internal/model"
)

// Dense scores entries by cosine similarity of embeddings.
type Dense struct {
	embedder embedding.Embedder
}

// NewDense returns a dense scorer backed by e.
func NewDense(e embedding.Embedder) *Dense {
	return &Dense{embedder: e}
}

func (s *Dense) Name() string { return "dense" }

// Analyze embeds text. Blank text is not sent to the embedder and yields
// empty features, which score 0 against everything.
func (s *Dense) Analyze(ctx context.Context, text string) (Features, error) {
	if s.embedder == nil {
		return Features{}, model.Configurationf("dense scorer has no embedder")
	}
	if strings.TrimSpace(text) == "" {
		return Features{}, nil
	}
	v, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return Features{}, fmt.Errorf("embed: %w", err)
	}
	return Features{Vector: v}, nil
}

func (s *Dense) Score(query, entry Features, _ *Corpus) float64 {
	return embedding.CosineSimilarity(query.Vector, entry.Vector)
}

// Hybrid blends BM25 and dense similarity. Alpha weights the lexical part;
// the BM25 score is squashed into [0,1) first so the two are comparable.
type Hybrid struct {
	Alpha   float64
	lexical *BM25
	dense   *Dense
}

// NewHybrid returns a hybrid scorer.
func NewHybrid(e embedding.Embedder, alpha float64) *Hybrid {
	return &Hybrid{Alpha: alpha, lexical: NewBM25(), dense: NewDense(e)}
}

func (s *Hybrid) Name() string { return "hybrid" }

func (s *Hybrid) Analyze(ctx context.Context, text string) (Features, error) {
	f, err := s.dense.Analyze(ctx, text)
	if err != nil {
		return Features{}, err
	}
	lex := termFeatures(text)
	f.Terms, f.Length, f.order = lex.Terms, lex.Length, lex.order
	return f, nil
}

func (s *Hybrid) Score(query, entry Features, corpus *Corpus) float64 {
	bm := s.lexical.Score(query, entry, corpus)
	return s.Alpha*(bm/(bm+1)) + (1-s.Alpha)*s.dense.Score(query, entry, corpus)
}
