package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/evicted-rag/internal/reintegrate"
	"github.com/rcliao/evicted-rag/internal/retrieval"
)

func init() {
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Retrieve the top-k evicted passages for a query",
		Args:  cobra.MinimumNArgs(1),
		Run:   runQuery,
	}

	cmd.Flags().IntP("top-k", "k", 0, "Passages to return (default: $EVICTED_RAG_TOP_K or 5)")

	RootCmd.AddCommand(cmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	topK, _ := cmd.Flags().GetInt("top-k")
	query := strings.Join(args, " ")

	cfg := loadConfig()
	if !cmd.Flags().Changed("top-k") {
		topK = cfg.TopK
	}
	ix := openIndex(cfg)

	passages, err := retrieval.NewRetriever(ix).Retrieve(cmd.Context(), query, topK)
	if err != nil {
		exitErr("query", err)
	}

	if textOutput() {
		fmt.Println(reintegrate.ConvertPassagesToInputs(passages))
		return
	}
	printJSON(passages)
}
