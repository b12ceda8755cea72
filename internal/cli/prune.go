package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop all but the newest segments from the store and index",
		Run:   runPrune,
	}

	cmd.Flags().Int("keep", 0, "Segments to keep (required)")
	cmd.MarkFlagRequired("keep")

	RootCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	keep, _ := cmd.Flags().GetInt("keep")
	if keep < 0 {
		exitErr("prune", fmt.Errorf("--keep must be >= 0"))
	}

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()
	ix := openIndex(cfg)

	removed, err := s.Prune(cmd.Context(), keep)
	if err != nil {
		exitErr("prune", err)
	}
	entries := ix.RemoveSegments(removed...)
	if err := ix.Save(); err != nil {
		exitErr("save index", err)
	}

	printJSON(map[string]any{
		"removed_segments": len(removed),
		"removed_entries":  entries,
		"kept":             keep,
	})
}
