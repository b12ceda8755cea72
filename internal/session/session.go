// Package session wires eviction, retrieval triggering and reintegration
// into the hooks a streaming generation loop calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rcliao/evicted-rag/internal/model"
	"github.com/rcliao/evicted-rag/internal/reintegrate"
	"github.com/rcliao/evicted-rag/internal/retrieval"
	"github.com/rcliao/evicted-rag/internal/trigger"
)

// StoreSink durably records an evicted segment and returns its id.
type StoreSink interface {
	AddSegment(ctx context.Context, seg model.Segment) (string, error)
}

// IndexSink makes a stored segment queryable and returns the entry id.
type IndexSink interface {
	AddSegment(ctx context.Context, seg model.Segment) (string, error)
}

// Optional capabilities. A store that can prune and an index that can drop
// entries together enable retention; an index that can save enables
// autosave.
type (
	pruner interface {
		Prune(ctx context.Context, keep int) ([]string, error)
	}
	remover interface {
		RemoveSegments(segmentIDs ...string) int
	}
	saver interface {
		Save() error
	}
)

// ErrClosed is returned by OnEvictAsync after Close.
var ErrClosed = errors.New("session closed")

const (
	DefaultQueryWords = 32
	DefaultQueueSize  = 64
)

// Options tunes a Session. Zero values pick defaults.
type Options struct {
	TopK        int  // passages per retrieval; retrieval.DefaultTopK when <= 0
	QueryWords  int  // trailing words used as the retrieval query
	QueueSize   int  // async eviction buffer
	Autosave    bool // save the index after every eviction
	MaxSegments int  // retention bound; 0 keeps everything
	Tolerant    bool // EvictAll logs failures and keeps going
	Logger      *zap.Logger
}

// Deps are the collaborators a Session drives.
type Deps struct {
	Store     StoreSink
	Index     IndexSink
	Retriever *retrieval.Retriever
	Trigger   *trigger.Trigger
	Strategy  reintegrate.Strategy
}

// Evicted reports where an evicted segment ended up.
type Evicted struct {
	SegmentID string   `json:"segment_id"`
	EntryID   string   `json:"entry_id"`
	Pruned    []string `json:"pruned,omitempty"`
}

// StepResult is the outcome of one generation step.
type StepResult struct {
	State     reintegrate.GenerationState `json:"state"`
	Retrieved bool                        `json:"retrieved"`
	Query     string                      `json:"query,omitempty"`
	Passages  []model.RankedPassage       `json:"passages,omitempty"`
}

type job struct {
	ctx context.Context
	seg model.Segment
}

// Session is one generation session: exactly one store and one index.
type Session struct {
	deps Deps
	opts Options
	log  *zap.Logger

	evictMu sync.Mutex // serializes store-then-index

	qmu     sync.RWMutex
	queue   chan job
	closed  bool
	started bool
	done    chan struct{}

	pmu     sync.Mutex
	pending int
	idle    *sync.Cond
	errs    []error

	stepMu        sync.Mutex
	lastRetrieval *int
}

// New creates a Session.
func New(deps Deps, opts Options) (*Session, error) {
	if deps.Store == nil || deps.Index == nil {
		return nil, model.Configurationf("session needs a store and an index")
	}
	if deps.Strategy == nil {
		deps.Strategy = reintegrate.Prepend{}
	}
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.QueryWords <= 0 {
		opts.QueryWords = DefaultQueryWords
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{deps: deps, opts: opts, log: log}
	s.idle = sync.NewCond(&s.pmu)
	return s, nil
}

// OnEvict records seg in the store, then the index, then applies retention
// and autosave. A segment is never indexed unless the store accepted it.
func (s *Session) OnEvict(ctx context.Context, seg model.Segment) (Evicted, error) {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	id, err := s.deps.Store.AddSegment(ctx, seg)
	if err != nil {
		return Evicted{}, fmt.Errorf("store segment: %w", err)
	}
	seg.ID = id

	entryID, err := s.deps.Index.AddSegment(ctx, seg)
	if err != nil {
		return Evicted{SegmentID: id}, fmt.Errorf("index segment %s: %w", id, err)
	}
	out := Evicted{SegmentID: id, EntryID: entryID}

	if s.opts.MaxSegments > 0 {
		if p, ok := s.deps.Store.(pruner); ok {
			removed, err := p.Prune(ctx, s.opts.MaxSegments)
			if err != nil {
				return out, fmt.Errorf("prune store: %w", err)
			}
			if r, ok := s.deps.Index.(remover); ok && len(removed) > 0 {
				r.RemoveSegments(removed...)
			}
			out.Pruned = removed
		}
	}

	if s.opts.Autosave {
		if sv, ok := s.deps.Index.(saver); ok {
			if err := sv.Save(); err != nil {
				return out, fmt.Errorf("save index: %w", err)
			}
		}
	}

	s.log.Debug("segment evicted",
		zap.String("segment_id", id),
		zap.String("entry_id", entryID),
		zap.Int("bytes", len(seg.Text)),
		zap.Int("pruned", len(out.Pruned)))
	return out, nil
}

// EvictAll runs OnEvict for each segment in order. With Options.Tolerant a
// failure is logged and the rest still run; otherwise the first failure
// stops the loop.
func (s *Session) EvictAll(ctx context.Context, segs []model.Segment) ([]Evicted, error) {
	out := make([]Evicted, 0, len(segs))
	var errs []error
	for _, seg := range segs {
		ev, err := s.OnEvict(ctx, seg)
		if err != nil {
			if !s.opts.Tolerant {
				return out, err
			}
			s.log.Warn("eviction failed, continuing", zap.Error(err))
			errs = append(errs, err)
			continue
		}
		out = append(out, ev)
	}
	return out, errors.Join(errs...)
}

// OnEvictAsync queues seg for a single background worker that runs OnEvict
// in submission order. It blocks only while the queue is full.
func (s *Session) OnEvictAsync(ctx context.Context, seg model.Segment) error {
	s.qmu.RLock()
	defer s.qmu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	s.startWorker()

	s.pmu.Lock()
	s.pending++
	s.pmu.Unlock()

	select {
	case s.queue <- job{ctx: context.WithoutCancel(ctx), seg: seg}:
		return nil
	case <-ctx.Done():
		s.finish(nil)
		return ctx.Err()
	}
}

// startWorker is called with qmu read-held.
func (s *Session) startWorker() {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.queue = make(chan job, s.opts.QueueSize)
	s.done = make(chan struct{})
	go s.worker(s.queue, s.done)
	s.log.Debug("eviction worker started", zap.Int("queue_size", s.opts.QueueSize))
}

func (s *Session) worker(queue <-chan job, done chan<- struct{}) {
	defer close(done)
	for j := range queue {
		_, err := s.OnEvict(j.ctx, j.seg)
		if err != nil {
			s.log.Error("background eviction failed", zap.Error(err))
		}
		s.finish(err)
	}
}

func (s *Session) finish(err error) {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if err != nil {
		s.errs = append(s.errs, err)
	}
	s.pending--
	if s.pending == 0 {
		s.idle.Broadcast()
	}
}

// Flush waits until every queued eviction has run and returns the failures
// collected since the last Flush.
func (s *Session) Flush() error {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
	errs := s.errs
	s.errs = nil
	return errors.Join(errs...)
}

// Close stops accepting async evictions, drains the queue and returns any
// failures not yet reported by Flush.
func (s *Session) Close() error {
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		return nil
	}
	s.closed = true
	s.pmu.Lock()
	started := s.started
	s.pmu.Unlock()
	if started {
		close(s.queue)
	}
	s.qmu.Unlock()

	if started {
		<-s.done
	}
	return s.Flush()
}

// Step runs the retrieval trigger for one generation step and, when it
// fires, retrieves passages for the recent text and reintegrates them.
// A nil tc is treated as an empty context for state.Step.
func (s *Session) Step(ctx context.Context, state reintegrate.GenerationState, tc *trigger.Context) (StepResult, error) {
	res := StepResult{State: state.Clone()}
	if s.deps.Trigger == nil || s.deps.Retriever == nil {
		return res, nil
	}

	snap := trigger.Context{Step: state.Step}
	if tc != nil {
		snap = *tc
	}
	s.stepMu.Lock()
	if snap.LastRetrievalStep == nil && s.lastRetrieval != nil {
		last := *s.lastRetrieval
		snap.LastRetrievalStep = &last
	}
	s.stepMu.Unlock()

	if !s.deps.Trigger.ShouldTrigger(&snap) {
		return res, nil
	}

	query := s.queryText(state, &snap)
	if query == "" {
		return res, nil
	}
	passages, err := s.deps.Retriever.Retrieve(ctx, query, s.opts.TopK)
	if err != nil {
		return res, fmt.Errorf("retrieve: %w", err)
	}
	next, err := s.deps.Strategy.Reintegrate(state, passages)
	if err != nil {
		return res, fmt.Errorf("reintegrate: %w", err)
	}

	s.stepMu.Lock()
	step := snap.Step
	s.lastRetrieval = &step
	s.stepMu.Unlock()

	s.log.Info("retrieval ran",
		zap.Int("step", snap.Step),
		zap.String("strategy", s.deps.Strategy.Name()),
		zap.Int("passages", len(passages)),
		zap.String("trigger", s.deps.Trigger.Explain(&snap)))

	return StepResult{State: next, Retrieved: true, Query: query, Passages: passages}, nil
}

// queryText prefers the trigger context's recent tokens and falls back to
// the tail of the prompt.
func (s *Session) queryText(state reintegrate.GenerationState, tc *trigger.Context) string {
	words := tc.RecentTokens
	if len(words) == 0 {
		words = strings.Fields(state.Prompt)
	}
	if len(words) > s.opts.QueryWords {
		words = words[len(words)-s.opts.QueryWords:]
	}
	return strings.TrimSpace(strings.Join(words, " "))
}
