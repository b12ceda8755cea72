package trigger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/evicted-rag/internal/model"
)

func intPtr(v int) *int { return &v }

func TestShouldTrigger_Totality(t *testing.T) {
	big := map[string]any{}
	data := make([]any, 10000)
	for i := range data {
		data[i] = i
	}
	big["data"] = data
	meta := map[string]any{}
	for i := 0; i < 100; i++ {
		meta[string(rune('a'+i%26))+string(rune('0'+i/26))] = i
	}
	big["metadata"] = meta

	contexts := []map[string]any{
		nil,
		{},
		{"tokens": []any{}},
		{"model_state": "active"},
		{"tokens": []any{1, 2, 3}, "position": 5},
		{"entropy": 0.8, "threshold": 0.5},
		{"entropy": "high", "tokens": "not-a-list", "cache": 7},
		{
			"model":     map[string]any{"state": "generating", "tokens": []any{1, 2, 3, 4, 5}, "position": 100},
			"cache":     map[string]any{"size": 2048, "utilization": 0.75},
			"retrieval": map[string]any{"last_triggered": 50, "count": 3},
		},
		big,
	}
	configs := []map[string]any{
		nil,
		{},
		{"mode": "entropy", "threshold": 0.5},
		{"mode": "token_count", "threshold": 0.7, "window_size": 100, "check_interval": 10, "enabled": true},
		{"mode": "confidence"},
		{"mode": "memory"},
		{"mode": "custom"},
		{"threshold": 0.0, "max_retries": 0, "timeout": nil},
	}

	for _, cfg := range configs {
		tr := NewFromOptions(cfg)
		for _, c := range contexts {
			assert.NotPanics(t, func() {
				first := tr.ShouldTrigger(ContextFromMap(c))
				second := tr.ShouldTrigger(ContextFromMap(c))
				assert.Equal(t, first, second)
			})
		}
		assert.False(t, tr.ShouldTrigger(nil))
	}
}

func TestShouldTrigger_EmptyConfigNeverFires(t *testing.T) {
	tr := NewFromOptions(nil)
	assert.False(t, tr.ShouldTrigger(&Context{}))
	assert.False(t, tr.ShouldTrigger(&Context{Entropies: []float64{5}, CacheOccupancy: 1, TokensSinceRetrieval: 1000}))
}

func TestShouldTrigger_Entropy(t *testing.T) {
	tr := New(ParseConfig(map[string]any{"mode": "entropy", "threshold": 0.5, "window_size": 2}))

	assert.True(t, tr.ShouldTrigger(&Context{Entropies: []float64{0.1, 0.6, 0.8}}))
	assert.False(t, tr.ShouldTrigger(&Context{Entropies: []float64{0.9, 0.2, 0.3}}), "only the last window counts")
	assert.False(t, tr.ShouldTrigger(&Context{}), "no signal, no retrieval")
}

func TestShouldTrigger_Confidence(t *testing.T) {
	tr := NewFromOptions(map[string]any{"mode": "confidence", "threshold": 0.4})
	assert.True(t, tr.ShouldTrigger(&Context{Confidences: []float64{0.2, 0.3}}))
	assert.False(t, tr.ShouldTrigger(&Context{Confidences: []float64{0.9}}))
}

func TestShouldTrigger_TokenCount(t *testing.T) {
	tr := NewFromOptions(map[string]any{"mode": "token_count", "threshold": 10})
	assert.True(t, tr.ShouldTrigger(&Context{TokensSinceRetrieval: 10}))
	assert.False(t, tr.ShouldTrigger(&Context{TokensSinceRetrieval: 9}))
}

func TestShouldTrigger_Occupancy(t *testing.T) {
	tr := NewFromOptions(map[string]any{"mode": "memory"})
	assert.Equal(t, 0.9, tr.Config().Threshold)
	assert.True(t, tr.ShouldTrigger(&Context{CacheOccupancy: 0.95}))
	assert.False(t, tr.ShouldTrigger(&Context{CacheOccupancy: 0.5}))
}

func TestShouldTrigger_CheckInterval(t *testing.T) {
	tr := NewFromOptions(map[string]any{"mode": "always", "check_interval": 5})

	assert.False(t, tr.ShouldTrigger(&Context{Step: 12, LastRetrievalStep: intPtr(10)}))
	assert.True(t, tr.ShouldTrigger(&Context{Step: 15, LastRetrievalStep: intPtr(10)}))
	assert.True(t, tr.ShouldTrigger(&Context{Step: 1}))
}

func TestShouldTrigger_Disabled(t *testing.T) {
	tr := NewFromOptions(map[string]any{"mode": "always", "enabled": false})
	assert.False(t, tr.ShouldTrigger(&Context{}))
}

func TestDistinctConfigsDiverge(t *testing.T) {
	tc := ContextFromMap(map[string]any{"tokens": []any{1, 2, 3}, "entropy": 0.7})

	low := NewFromOptions(map[string]any{"mode": "entropy", "threshold": 0.3})
	high := NewFromOptions(map[string]any{"mode": "entropy", "threshold": 0.9})
	assert.True(t, low.ShouldTrigger(tc))
	assert.False(t, high.ShouldTrigger(tc))
}

func TestParseConfig_IgnoresUnknownAndMistyped(t *testing.T) {
	cfg := ParseConfig(map[string]any{
		"mode":        "entropy",
		"threshold":   "0.9",
		"window_size": -4,
		"max_retries": 3,
	})
	assert.Equal(t, ModeEntropy, cfg.Mode)
	assert.Equal(t, DefaultThreshold(ModeEntropy), cfg.Threshold)
	assert.Equal(t, 0, cfg.WindowSize)
	assert.True(t, cfg.Enabled)
}

func TestParseConfig_CallerMutationDoesNotLeak(t *testing.T) {
	opts := map[string]any{"mode": "entropy", "threshold": 0.5}
	tr := NewFromOptions(opts)
	opts["threshold"] = 0.99
	assert.Equal(t, 0.5, tr.Config().Threshold)
}

func TestContextFromMap(t *testing.T) {
	tc := ContextFromMap(map[string]any{
		"position":  float64(42),
		"tokens":    []any{"the", 7, nil},
		"entropies": []any{0.1, "bad", 0.3},
		"cache":     map[string]any{"utilization": 0.75},
		"retrieval": map[string]any{"last_triggered": 40},
	})
	require.NotNil(t, tc)
	assert.Equal(t, 42, tc.Step)
	assert.Equal(t, []string{"the", "7"}, tc.RecentTokens)
	assert.Equal(t, []float64{0.1, 0.3}, tc.Entropies)
	assert.Equal(t, 0.75, tc.CacheOccupancy)
	require.NotNil(t, tc.LastRetrievalStep)
	assert.Equal(t, 40, *tc.LastRetrievalStep)

	assert.Nil(t, ContextFromMap(nil))
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trigger.json")
	raw, _ := json.Marshal(map[string]any{"mode": "token_count", "threshold": 32, "custom_knob": true})
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, ModeTokenCount, cfg.Mode)
	assert.Equal(t, 32.0, cfg.Threshold)
}

func TestLoadConfigJSON_TypeErrors(t *testing.T) {
	_, err := LoadConfigJSON([]byte(`{"threshold": "high"}`))
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = LoadConfigJSON([]byte(`[1,2]`))
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestExplain(t *testing.T) {
	tr := NewFromOptions(map[string]any{"mode": "entropy", "threshold": 0.5})
	assert.Contains(t, tr.Explain(&Context{Entropies: []float64{0.8}}), "true")
	assert.Equal(t, "no context", tr.Explain(nil))
}
