package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/evicted-rag/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored segments, newest first",
		Run:   runList,
	}

	cmd.Flags().IntP("limit", "l", store.DefaultListLimit, "Max results")
	cmd.Flags().Bool("ids-only", false, "Only output segment ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	segs, err := s.ListSegments(cmd.Context(), limit)
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, seg := range segs {
			fmt.Println(seg.ID)
		}
		return
	}
	printJSON(segs)
}
