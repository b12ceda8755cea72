// Package retrieval exposes the public query surface over an index.
package retrieval

import (
	"context"

	"github.com/rcliao/evicted-rag/internal/model"
)

// DefaultTopK is the number of passages RetrieveDefault asks for.
const DefaultTopK = 5

// Querier ranks indexed passages against free text. *index.Indexer
// implements it.
type Querier interface {
	Query(ctx context.Context, text string, topK int) ([]model.RankedPassage, error)
}

// Retriever is a stateless façade over a Querier. It passes arguments
// through unchanged and returns the Querier's result as-is; it does not
// cache, filter or reorder.
type Retriever struct {
	querier Querier
}

// NewRetriever creates a Retriever over q.
func NewRetriever(q Querier) *Retriever {
	return &Retriever{querier: q}
}

// Retrieve returns the topK passages for query.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]model.RankedPassage, error) {
	return r.querier.Query(ctx, query, topK)
}

// RetrieveDefault is Retrieve with DefaultTopK.
func (r *Retriever) RetrieveDefault(ctx context.Context, query string) ([]model.RankedPassage, error) {
	return r.Retrieve(ctx, query, DefaultTopK)
}
