package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/evicted-rag/internal/store"
)

type statsOutput struct {
	Store *store.Stats `json:"store"`
	Index indexStats   `json:"index"`
}

type indexStats struct {
	Path    string `json:"path"`
	Scorer  string `json:"scorer"`
	Entries int    `json:"entries"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store and index statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()
	ix := openIndex(cfg)

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	printJSON(statsOutput{
		Store: stats,
		Index: indexStats{Path: ix.Path(), Scorer: ix.ScorerName(), Entries: ix.Len()},
	})
}
