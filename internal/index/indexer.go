package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rcliao/evicted-rag/internal/model"
)

// Entry is the searchable projection of a stored segment. It carries the
// segment's text and meta so queries never need a store round trip.
type Entry struct {
	ID        string     `json:"id"`
	SegmentID string     `json:"segment_id"`
	Seq       int64      `json:"seq"`
	Text      string     `json:"text"`
	Meta      model.Meta `json:"meta,omitempty"`
	Features  Features   `json:"features"`
}

// Options configures an Indexer.
type Options struct {
	// Path is where Save and Load persist the index. Optional.
	Path string
	// Scorer ranks entries. Defaults to BM25.
	Scorer Scorer
}

// Indexer is an in-memory, incrementally built index over evicted segments.
// Writers are serialized; queries run concurrently with writers and see each
// entry either fully added or not at all.
type Indexer struct {
	path   string
	scorer Scorer

	mu      sync.RWMutex
	entries []*Entry
	corpus  Corpus
	nextSeq int64
}

// New creates an empty Indexer.
func New(opts Options) *Indexer {
	if opts.Scorer == nil {
		opts.Scorer = NewBM25()
	}
	return &Indexer{
		path:   opts.Path,
		scorer: opts.Scorer,
		corpus: newCorpus(),
	}
}

// Open creates an Indexer and loads the snapshot at opts.Path when one exists.
func Open(opts Options) (*Indexer, error) {
	ix := New(opts)
	if ix.path == "" {
		return ix, nil
	}
	if _, err := os.Stat(ix.path); errors.Is(err, os.ErrNotExist) {
		return ix, nil
	}
	if err := ix.Load(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Path returns the configured snapshot location.
func (ix *Indexer) Path() string { return ix.path }

// ScorerName returns the name of the configured scorer.
func (ix *Indexer) ScorerName() string { return ix.scorer.Name() }

// Len returns the number of entries.
func (ix *Indexer) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// AddSegment indexes seg and returns a new entry id. seg.ID must be the id
// the store assigned. Adding the same segment twice creates two entries.
func (ix *Indexer) AddSegment(ctx context.Context, seg model.Segment) (string, error) {
	if seg.ID == "" {
		return "", model.Validationf("segment id is required")
	}
	if err := model.ValidateText(seg.Text); err != nil {
		return "", err
	}

	// Normalized meta reads the same before and after a snapshot reload.
	meta, err := seg.Meta.Normalize()
	if err != nil {
		return "", err
	}

	features, err := ix.scorer.Analyze(ctx, seg.Text)
	if err != nil {
		return "", fmt.Errorf("analyze segment %s: %w", seg.ID, err)
	}

	e := &Entry{
		ID:        uuid.NewString(),
		SegmentID: seg.ID,
		Text:      seg.Text,
		Meta:      meta,
		Features:  features,
	}

	ix.mu.Lock()
	e.Seq = ix.nextSeq
	ix.nextSeq++
	ix.entries = append(ix.entries, e)
	ix.corpus.add(features)
	ix.mu.Unlock()

	return e.ID, nil
}

// RemoveSegments drops every entry referencing one of the given segment ids
// and returns how many entries were removed.
func (ix *Indexer) RemoveSegments(segmentIDs ...string) int {
	if len(segmentIDs) == 0 {
		return 0
	}
	drop := make(map[string]bool, len(segmentIDs))
	for _, id := range segmentIDs {
		drop[id] = true
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	kept := make([]*Entry, 0, len(ix.entries))
	removed := 0
	for _, e := range ix.entries {
		if drop[e.SegmentID] {
			ix.corpus.remove(e.Features)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	ix.entries = kept
	return removed
}

// Query scores every entry against text and returns the topK best in
// descending score order. Ties keep insertion order.
func (ix *Indexer) Query(ctx context.Context, text string, topK int) ([]model.RankedPassage, error) {
	if topK < 0 {
		return nil, model.Validationf("top_k must be >= 0, got %d", topK)
	}
	if err := model.ValidateText(text); err != nil {
		return nil, err
	}
	if topK == 0 || ix.Len() == 0 {
		return []model.RankedPassage{}, nil
	}

	q, err := ix.scorer.Analyze(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("analyze query: %w", err)
	}

	type scored struct {
		entry *Entry
		score float64
	}

	ix.mu.RLock()
	candidates := make([]scored, len(ix.entries))
	for i, e := range ix.entries {
		candidates[i] = scored{entry: e, score: ix.scorer.Score(q, e.Features, &ix.corpus)}
	}
	ix.mu.RUnlock()

	// entries are kept in seq order, so a stable sort preserves insertion
	// order among equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]model.RankedPassage, topK)
	for i, c := range candidates[:topK] {
		out[i] = model.RankedPassage{
			EntryID:   c.entry.ID,
			SegmentID: c.entry.SegmentID,
			Text:      c.entry.Text,
			Meta:      c.entry.Meta.Clone(),
			Score:     c.score,
		}
	}
	return out, nil
}
