package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/evicted-rag/internal/model"
	"github.com/rcliao/evicted-rag/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "evict [text]",
		Short: "Store and index an evicted segment",
		Long:  "Store an evicted segment, then index it. Text can be a positional arg or piped via stdin.",
		Run:   runEvict,
	}

	cmd.Flags().String("meta", "", "JSON object metadata")

	RootCmd.AddCommand(cmd)
}

func runEvict(cmd *cobra.Command, args []string) {
	metaStr, _ := cmd.Flags().GetString("meta")

	text := readInput(args)
	if strings.TrimSpace(text) == "" {
		exitErr("evict", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	var meta model.Meta
	if metaStr != "" {
		if err := json.Unmarshal([]byte(metaStr), &meta); err != nil {
			exitErr("evict", fmt.Errorf("%w: --meta must be a JSON object: %v", model.ErrValidation, err))
		}
	}

	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	st := openStore(cfg)
	defer st.Close()
	ix := openIndex(cfg)

	sess, err := session.New(session.Deps{Store: st, Index: ix}, session.Options{
		Autosave:    true,
		MaxSegments: cfg.MaxSegments,
		Logger:      log,
	})
	if err != nil {
		exitErr("session", err)
	}
	defer sess.Close()

	ev, err := sess.OnEvict(cmd.Context(), model.Segment{Text: text, Meta: meta})
	if err != nil {
		exitErr("evict", err)
	}
	printJSON(ev)
}
