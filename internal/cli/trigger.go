package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/evicted-rag/internal/trigger"
)

func init() {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Evaluate the retrieval trigger against a context",
		Long:  "Evaluate the retrieval trigger. The context is a JSON object given with --context or piped via stdin.",
		Run:   runTrigger,
	}

	cmd.Flags().String("config", "", "Trigger options JSON file (default: $EVICTED_RAG_TRIGGER_CONFIG)")
	cmd.Flags().String("options", "", "Inline trigger options JSON, used instead of --config")
	cmd.Flags().String("context", "", "Context JSON object")

	RootCmd.AddCommand(cmd)
}

func runTrigger(cmd *cobra.Command, args []string) {
	configPath, _ := cmd.Flags().GetString("config")
	inline, _ := cmd.Flags().GetString("options")
	ctxStr, _ := cmd.Flags().GetString("context")

	cfg := loadConfig()
	if configPath == "" {
		configPath = cfg.TriggerFile
	}
	tcfg := loadTriggerConfig(configPath, inline)

	if ctxStr == "" {
		ctxStr = readInput(nil)
	}
	var raw map[string]any
	if strings.TrimSpace(ctxStr) != "" {
		if err := json.Unmarshal([]byte(ctxStr), &raw); err != nil {
			exitErr("context", fmt.Errorf("must be a JSON object: %w", err))
		}
	}

	tr := trigger.New(tcfg)
	tc := trigger.ContextFromMap(raw)
	printJSON(map[string]any{
		"fire":    tr.ShouldTrigger(tc),
		"explain": tr.Explain(tc),
		"config":  tr.Config(),
	})
}

// loadTriggerConfig prefers inline options over a file. With neither the
// empty option set applies.
func loadTriggerConfig(path, inline string) trigger.Config {
	var (
		cfg trigger.Config
		err error
	)
	switch {
	case inline != "":
		cfg, err = trigger.LoadConfigJSON([]byte(inline))
	case path != "":
		cfg, err = trigger.LoadConfigFile(path)
	default:
		cfg = trigger.ParseConfig(nil)
	}
	if err != nil {
		exitErr("trigger config", err)
	}
	return cfg
}
