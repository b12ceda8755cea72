// Package cli implements the evicted-rag CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/evicted-rag/internal/config"
	"github.com/rcliao/evicted-rag/internal/embedding"
	"github.com/rcliao/evicted-rag/internal/index"
	"github.com/rcliao/evicted-rag/internal/store"
)

var (
	storeFlag  string
	indexFlag  string
	envFile    string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "evicted-rag",
	Short: "Retrieval over context evicted from a streaming window",
	Long: "Persist text evicted from a streaming model's attention window, index it, " +
		"and retrieve it back into the prompt when a trigger fires.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&storeFlag, "store", "s", "", "Store directory (default: $EVICTED_RAG_STORE or ~/.evicted-rag/store)")
	RootCmd.PersistentFlags().StringVarP(&indexFlag, "index", "i", "", "Index snapshot path (default: $EVICTED_RAG_INDEX or ~/.evicted-rag/index.json)")
	RootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Env file to load before the environment (default: ./.env if present)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func loadConfig() *config.Config {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		exitErr("config", err)
	}
	if storeFlag != "" {
		cfg.StoreRoot = storeFlag
	}
	if indexFlag != "" {
		cfg.IndexPath = indexFlag
	}
	return cfg
}

func newLogger(cfg *config.Config) *zap.Logger {
	log, err := cfg.NewLogger()
	if err != nil {
		exitErr("logger", err)
	}
	return log
}

func openStore(cfg *config.Config) *store.SQLiteStore {
	s, err := store.Open(cfg.StoreRoot)
	if err != nil {
		exitErr("open store", err)
	}
	return s
}

func newScorer(cfg *config.Config) (index.Scorer, error) {
	if cfg.Scorer == "bm25" {
		return index.NewBM25(), nil
	}
	emb, err := embedding.New(cfg.Embedding())
	if err != nil {
		return nil, err
	}
	if cfg.Scorer == "dense" {
		return index.NewDense(emb), nil
	}
	return index.NewHybrid(emb, cfg.HybridAlpha), nil
}

func openIndex(cfg *config.Config) *index.Indexer {
	scorer, err := newScorer(cfg)
	if err != nil {
		exitErr("scorer", err)
	}
	ix, err := index.Open(index.Options{Path: cfg.IndexPath, Scorer: scorer})
	if err != nil {
		exitErr("open index", err)
	}
	return ix
}

// readInput returns the joined positional args, or stdin when it is piped.
func readInput(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func textOutput() bool {
	return formatFlag == "text"
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
