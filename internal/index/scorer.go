// Package index maintains a searchable structure over evicted segments.
package index

import (
	"context"
	"maps"
	"math"
	"slices"
)

// Features is the derived representation of a text. Which fields are set
// depends on the scorer that produced it.
type Features struct {
	Terms  map[string]int `json:"terms,omitempty"`
	Length int            `json:"length,omitempty"`
	Vector []float32      `json:"vector,omitempty"`

	order []string // sorted keys of Terms
}

// termList returns the distinct terms in sorted order. Summing scores in a
// fixed order keeps equal entries at bit-identical scores.
func (f Features) termList() []string {
	if len(f.order) == len(f.Terms) {
		return f.order
	}
	return slices.Sorted(maps.Keys(f.Terms))
}

// Scorer ranks indexed entries against a query. Implementations must be
// safe for concurrent use.
type Scorer interface {
	// Name identifies the scorer in persisted snapshots.
	Name() string
	// Analyze derives the features for text. It is called for both indexed
	// segments and queries.
	Analyze(ctx context.Context, text string) (Features, error)
	// Score returns the relevance of entry to query; higher is better.
	Score(query, entry Features, corpus *Corpus) float64
}

// Corpus holds collection statistics maintained incrementally by the Indexer.
type Corpus struct {
	Docs        int
	TotalLength int
	DocFreq     map[string]int
}

func newCorpus() Corpus {
	return Corpus{DocFreq: make(map[string]int)}
}

// AvgLength returns the mean entry length in terms.
func (c *Corpus) AvgLength() float64 {
	if c.Docs == 0 {
		return 0
	}
	return float64(c.TotalLength) / float64(c.Docs)
}

// IDF returns the BM25 inverse document frequency of term. It is always
// positive so common terms never subtract from a score.
func (c *Corpus) IDF(term string) float64 {
	n := float64(c.Docs)
	df := float64(c.DocFreq[term])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

func (c *Corpus) add(f Features) {
	c.Docs++
	c.TotalLength += f.Length
	for t := range f.Terms {
		c.DocFreq[t]++
	}
}

func (c *Corpus) remove(f Features) {
	c.Docs--
	c.TotalLength -= f.Length
	for t := range f.Terms {
		if c.DocFreq[t] <= 1 {
			delete(c.DocFreq, t)
			continue
		}
		c.DocFreq[t]--
	}
}
