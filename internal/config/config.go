// Package config loads evicted-rag settings from an optional .env file and
// EVICTED_RAG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rcliao/evicted-rag/internal/embedding"
	"github.com/rcliao/evicted-rag/internal/model"
	"github.com/rcliao/evicted-rag/internal/reintegrate"
)

// Config is the resolved runtime configuration.
type Config struct {
	StoreRoot   string  `validate:"required"`
	IndexPath   string  `validate:"required"`
	Scorer      string  `validate:"oneof=bm25 dense hybrid"`
	HybridAlpha float64 `validate:"gte=0,lte=1"`
	TopK        int     `validate:"gte=1"`
	MaxSegments int     `validate:"gte=0"`
	Autosave    bool

	Strategy     string `validate:"oneof=prepend auxiliary"`
	BudgetTokens int    `validate:"gte=0"`
	MissingText  string `validate:"oneof=skip fail"`
	TriggerFile  string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	EmbedProvider string `validate:"omitempty,oneof=ollama openai"`
	EmbedModel    string
	EmbedURL      string
	EmbedAPIKey   string
	EmbedTimeout  time.Duration `validate:"gte=0"`
}

// DefaultDir is the base directory for default store and index paths.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".evicted-rag"
	}
	return filepath.Join(home, ".evicted-rag")
}

// Load reads envFiles (or ./.env when none are given and it exists), then
// the environment, and validates the result. Variables already set in the
// environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, model.Configurationf("load env file: %v", err)
		}
	}

	base := DefaultDir()
	env := &envReader{}
	cfg := &Config{
		StoreRoot:    env.getString("EVICTED_RAG_STORE", filepath.Join(base, "store")),
		IndexPath:    env.getString("EVICTED_RAG_INDEX", filepath.Join(base, "index.json")),
		Scorer:       env.getString("EVICTED_RAG_SCORER", "bm25"),
		HybridAlpha:  env.getFloat("EVICTED_RAG_HYBRID_ALPHA", 0.5),
		TopK:         env.getInt("EVICTED_RAG_TOP_K", 5),
		MaxSegments:  env.getInt("EVICTED_RAG_MAX_SEGMENTS", 0),
		Autosave:     env.getBool("EVICTED_RAG_AUTOSAVE", true),
		Strategy:     env.getString("EVICTED_RAG_STRATEGY", reintegrate.StrategyPrepend),
		BudgetTokens: env.getInt("EVICTED_RAG_BUDGET_TOKENS", reintegrate.DefaultBudgetTokens),
		MissingText:  env.getString("EVICTED_RAG_MISSING_TEXT", "skip"),
		TriggerFile:  env.getString("EVICTED_RAG_TRIGGER_CONFIG", ""),
		LogLevel:     strings.ToLower(env.getString("EVICTED_RAG_LOG_LEVEL", "info")),
		LogFormat:    strings.ToLower(env.getString("EVICTED_RAG_LOG_FORMAT", "json")),

		EmbedProvider: env.getString("EVICTED_RAG_EMBED_PROVIDER", ""),
		EmbedModel:    env.getString("EVICTED_RAG_EMBED_MODEL", ""),
		EmbedAPIKey:   env.getString("OPENAI_API_KEY", ""),
		EmbedTimeout:  env.getDuration("EVICTED_RAG_EMBED_TIMEOUT", 30*time.Second),
	}
	cfg.EmbedURL = env.getString("EVICTED_RAG_EMBED_URL", "")
	if cfg.EmbedURL == "" && cfg.EmbedProvider == "ollama" {
		cfg.EmbedURL = env.getString("OLLAMA_HOST", "")
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, model.Configurationf("%v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return model.Configurationf("%s", strings.Join(msgs, "; "))
		}
		return model.Configurationf("%v", err)
	}
	if c.Scorer != "bm25" && c.EmbedProvider == "" {
		return model.Configurationf("scorer %q needs EVICTED_RAG_EMBED_PROVIDER", c.Scorer)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
}

// Embedding returns the embedder settings.
func (c *Config) Embedding() embedding.Config {
	return embedding.Config{
		Provider: c.EmbedProvider,
		Model:    c.EmbedModel,
		BaseURL:  c.EmbedURL,
		APIKey:   c.EmbedAPIKey,
		Timeout:  c.EmbedTimeout,
	}
}

// MissingTextPolicy maps MissingText onto the conversion policy.
func (c *Config) MissingTextPolicy() reintegrate.MissingTextPolicy {
	if c.MissingText == "fail" {
		return reintegrate.FailOnMissing
	}
	return reintegrate.SkipMissing
}

// NewLogger builds the process logger: JSON production encoding, or a
// console encoder when LogFormat is "console".
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, model.Configurationf("log level: %v", err)
	}
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// envReader reads typed variables and collects parse failures.
type envReader struct {
	errs []error
}

func (r *envReader) getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) getInt(key string, def int) int {
	v := r.getString(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *envReader) getFloat(key string, def float64) float64 {
	v := r.getString(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (r *envReader) getBool(key string, def bool) bool {
	v := r.getString(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *envReader) getDuration(key string, def time.Duration) time.Duration {
	v := r.getString(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
