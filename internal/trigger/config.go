package trigger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/rcliao/evicted-rag/internal/model"
)

// Mode selects which generation signal the trigger evaluates.
type Mode string

const (
	ModeEntropy    Mode = "entropy"     // mean recent entropy >= threshold
	ModeConfidence Mode = "confidence"  // mean recent confidence < threshold
	ModeTokenCount Mode = "token_count" // tokens since last retrieval >= threshold
	ModeOccupancy  Mode = "occupancy"   // cache occupancy >= threshold
	ModeMemory     Mode = "memory"      // alias of occupancy
	ModeAlways     Mode = "always"      // fires whenever check_interval allows
)

// Config is the parsed trigger configuration.
type Config struct {
	Mode          Mode    `json:"mode,omitempty"`
	Threshold     float64 `json:"threshold"`
	WindowSize    int     `json:"window_size,omitempty"`
	CheckInterval int     `json:"check_interval,omitempty"`
	Enabled       bool    `json:"enabled"`
}

// DefaultThreshold returns the threshold used when the options set none.
func DefaultThreshold(m Mode) float64 {
	switch m {
	case ModeEntropy:
		return 0.5
	case ModeConfidence:
		return 0.5
	case ModeTokenCount:
		return 64
	case ModeOccupancy, ModeMemory:
		return 0.9
	default:
		return 0
	}
}

// ParseConfig reads recognized options from an open mapping. Unknown keys
// and values of the wrong type are ignored. A nil or empty mapping yields a
// config with no mode, which never fires.
func ParseConfig(opts map[string]any) Config {
	cfg := Config{Enabled: true}

	if s, ok := opts["mode"].(string); ok {
		cfg.Mode = Mode(s)
	}
	cfg.Threshold = DefaultThreshold(cfg.Mode)
	if v, ok := toFloat(opts["threshold"]); ok {
		cfg.Threshold = v
	}
	if v, ok := toInt(opts["window_size"]); ok && v > 0 {
		cfg.WindowSize = v
	}
	if v, ok := toInt(opts["check_interval"]); ok && v > 0 {
		cfg.CheckInterval = v
	}
	if v, ok := opts["enabled"].(bool); ok {
		cfg.Enabled = v
	}
	return cfg
}

const configSchema = `{
	"type": "object",
	"properties": {
		"mode": {"type": "string"},
		"threshold": {"type": "number"},
		"window_size": {"type": "integer", "minimum": 0},
		"check_interval": {"type": "integer", "minimum": 0},
		"enabled": {"type": "boolean"}
	}
}`

var compileConfigSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(configSchema))
})

// LoadConfigFile reads a JSON options file, checks the recognized options
// have the right types, and parses it.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, model.Configurationf("read trigger config: %v", err)
	}
	return LoadConfigJSON(data)
}

// LoadConfigJSON is LoadConfigFile for in-memory JSON.
func LoadConfigJSON(data []byte) (Config, error) {
	schema, err := compileConfigSchema()
	if err != nil {
		return Config{}, fmt.Errorf("compile trigger config schema: %w", err)
	}
	if result := schema.ValidateJSON(data); !result.IsValid() {
		return Config{}, model.Configurationf("trigger config: %v", result.Errors)
	}
	var opts map[string]any
	if err := json.Unmarshal(data, &opts); err != nil {
		return Config{}, model.Configurationf("trigger config: %v", err)
	}
	return ParseConfig(opts), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
