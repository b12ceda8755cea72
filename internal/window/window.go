// Package window simulates a streaming attention window: a few leading sink
// tokens that are never evicted, followed by recent tokens that are evicted
// oldest-first in batches once the window is over capacity.
package window

import (
	"strings"

	"github.com/rcliao/evicted-rag/internal/model"
)

// Source is the MetaSource value on segments evicted by a Window.
const Source = "window"

// Window holds the live token window. It is not safe for concurrent use;
// the generation loop drives it from one goroutine.
type Window struct {
	Capacity   int // total tokens kept, sinks included
	Sink       int // leading tokens pinned in the window
	EvictBatch int // minimum tokens per evicted segment; <= 0 evicts only the overflow

	tokens  []string
	dropped int
	pushed  int
}

// New creates a window.
func New(capacity, sink, evictBatch int) *Window {
	return &Window{Capacity: capacity, Sink: sink, EvictBatch: evictBatch}
}

// Push appends tokens and returns the segments evicted to make room, oldest
// first. With Capacity <= 0 nothing is ever evicted.
func (w *Window) Push(tokens ...string) []model.Segment {
	var evicted []model.Segment
	for _, tok := range tokens {
		w.tokens = append(w.tokens, tok)
		w.pushed++
		if seg, ok := w.evict(); ok {
			evicted = append(evicted, seg)
		}
	}
	return evicted
}

func (w *Window) evict() (model.Segment, bool) {
	sink := w.sinkLen()
	if w.Capacity <= 0 || len(w.tokens) <= w.Capacity || len(w.tokens) <= sink {
		return model.Segment{}, false
	}
	n := len(w.tokens) - w.Capacity
	if w.EvictBatch > n {
		n = w.EvictBatch
	}
	if avail := len(w.tokens) - sink; n > avail {
		n = avail
	}

	start := sink + w.dropped
	out := w.tokens[sink : sink+n]
	seg := model.Segment{
		Text: strings.Join(out, " "),
		Meta: model.Meta{
			model.MetaStartToken:  start,
			model.MetaEndToken:    start + n,
			model.MetaEvictedStep: w.pushed,
			model.MetaSource:      Source,
		},
	}

	w.tokens = append(w.tokens[:sink], w.tokens[sink+n:]...)
	w.dropped += n
	return seg, true
}

func (w *Window) sinkLen() int {
	if w.Sink <= 0 {
		return 0
	}
	if w.Capacity > 0 && w.Sink >= w.Capacity {
		return w.Capacity - 1
	}
	return w.Sink
}

// Tokens returns a copy of the live window.
func (w *Window) Tokens() []string {
	return append([]string(nil), w.tokens...)
}

// Text is the live window joined with spaces.
func (w *Window) Text() string {
	return strings.Join(w.tokens, " ")
}

// Len is the number of live tokens.
func (w *Window) Len() int { return len(w.tokens) }

// Pushed is the number of tokens pushed so far.
func (w *Window) Pushed() int { return w.pushed }

// Occupancy is the fraction of capacity in use, 0 when unbounded.
func (w *Window) Occupancy() float64 {
	if w.Capacity <= 0 {
		return 0
	}
	return float64(len(w.tokens)) / float64(w.Capacity)
}
