// Package trigger decides, per generation step, whether retrieval should run.
package trigger

import "fmt"

// Context is a read-only snapshot of generation state. Every field is
// optional; missing signals make the trigger decline rather than fail.
type Context struct {
	Step                 int
	RecentTokens         []string
	Entropies            []float64 // per-token entropy, oldest first
	Confidences          []float64 // per-token confidence, oldest first
	CacheOccupancy       float64   // fraction of the attention window in use
	TokensSinceRetrieval int
	LastRetrievalStep    *int
}

// Trigger is a pure predicate over (Config, Context).
type Trigger struct {
	cfg Config
}

// New creates a Trigger.
func New(cfg Config) *Trigger {
	return &Trigger{cfg: cfg}
}

// NewFromOptions creates a Trigger from an open option mapping.
func NewFromOptions(opts map[string]any) *Trigger {
	return New(ParseConfig(opts))
}

// Config returns the trigger's configuration.
func (t *Trigger) Config() Config { return t.cfg }

// ShouldTrigger reports whether retrieval should run for tc. It never
// panics on missing data and is deterministic for a given tc.
func (t *Trigger) ShouldTrigger(tc *Context) bool {
	if tc == nil || !t.cfg.Enabled {
		return false
	}
	if t.cfg.CheckInterval > 0 && tc.LastRetrievalStep != nil &&
		tc.Step-*tc.LastRetrievalStep < t.cfg.CheckInterval {
		return false
	}

	switch t.cfg.Mode {
	case ModeEntropy:
		mean, ok := windowMean(tc.Entropies, t.cfg.WindowSize)
		return ok && mean >= t.cfg.Threshold
	case ModeConfidence:
		mean, ok := windowMean(tc.Confidences, t.cfg.WindowSize)
		return ok && mean < t.cfg.Threshold
	case ModeTokenCount:
		return tc.TokensSinceRetrieval > 0 && float64(tc.TokensSinceRetrieval) >= t.cfg.Threshold
	case ModeOccupancy, ModeMemory:
		return tc.CacheOccupancy > 0 && tc.CacheOccupancy >= t.cfg.Threshold
	case ModeAlways:
		return true
	default:
		return false
	}
}

// Explain describes the decision for logging.
func (t *Trigger) Explain(tc *Context) string {
	fired := t.ShouldTrigger(tc)
	if tc == nil {
		return "no context"
	}
	switch t.cfg.Mode {
	case ModeEntropy:
		mean, _ := windowMean(tc.Entropies, t.cfg.WindowSize)
		return fmt.Sprintf("entropy %.4f vs threshold %.4f: %v", mean, t.cfg.Threshold, fired)
	case ModeConfidence:
		mean, _ := windowMean(tc.Confidences, t.cfg.WindowSize)
		return fmt.Sprintf("confidence %.4f vs threshold %.4f: %v", mean, t.cfg.Threshold, fired)
	case ModeTokenCount:
		return fmt.Sprintf("%d tokens since retrieval vs threshold %.0f: %v", tc.TokensSinceRetrieval, t.cfg.Threshold, fired)
	case ModeOccupancy, ModeMemory:
		return fmt.Sprintf("occupancy %.2f vs threshold %.2f: %v", tc.CacheOccupancy, t.cfg.Threshold, fired)
	default:
		return fmt.Sprintf("mode %q: %v", t.cfg.Mode, fired)
	}
}

// windowMean averages the last size values (all when size <= 0).
func windowMean(vals []float64, size int) (float64, bool) {
	if size > 0 && len(vals) > size {
		vals = vals[len(vals)-size:]
	}
	if len(vals) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals)), true
}
