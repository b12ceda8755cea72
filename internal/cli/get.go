package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/evicted-rag/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a stored segment by id",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	s := openStore(cfg)
	defer s.Close()

	seg, ok, err := s.GetSegment(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if !ok {
		exitErr("get", fmt.Errorf("%w: segment %q", model.ErrNotFound, args[0]))
	}

	if textOutput() {
		fmt.Println(seg.Text)
		return
	}
	printJSON(seg)
}
