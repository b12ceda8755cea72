package cli

import (
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/evicted-rag/internal/index"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the index snapshot from every stored segment",
		Long:  "Rebuild the index from the store, oldest segment first. Use after changing the scorer.",
		Run:   runReindex,
	}

	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	s := openStore(cfg)
	defer s.Close()

	scorer, err := newScorer(cfg)
	if err != nil {
		exitErr("scorer", err)
	}
	ix := index.New(index.Options{Path: cfg.IndexPath, Scorer: scorer})

	n, err := s.Count(ctx)
	if err != nil {
		exitErr("count", err)
	}
	if n == 0 {
		n = 1
	}
	segs, err := s.ListSegments(ctx, n)
	if err != nil {
		exitErr("list", err)
	}
	slices.Reverse(segs)

	for _, seg := range segs {
		if _, err := ix.AddSegment(ctx, seg); err != nil {
			exitErr("index "+seg.ID, err)
		}
	}
	if err := ix.Save(); err != nil {
		exitErr("save index", err)
	}

	log.Info("index rebuilt",
		zap.String("path", ix.Path()),
		zap.String("scorer", ix.ScorerName()),
		zap.Int("entries", ix.Len()))
	printJSON(map[string]any{"indexed": ix.Len(), "scorer": ix.ScorerName(), "path": ix.Path()})
}
