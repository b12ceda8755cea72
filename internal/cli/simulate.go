package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/evicted-rag/internal/reintegrate"
	"github.com/rcliao/evicted-rag/internal/retrieval"
	"github.com/rcliao/evicted-rag/internal/session"
	"github.com/rcliao/evicted-rag/internal/trigger"
	"github.com/rcliao/evicted-rag/internal/window"
)

type retrievalEvent struct {
	Step       int      `json:"step"`
	Query      string   `json:"query"`
	SegmentIDs []string `json:"segment_ids"`
	InputBytes int      `json:"input_bytes"`
}

type simulateOutput struct {
	Tokens     int              `json:"tokens"`
	Evicted    int              `json:"evicted_segments"`
	Failed     int              `json:"failed_evictions,omitempty"`
	Retrievals []retrievalEvent `json:"retrievals"`
	Final      string           `json:"final_input,omitempty"`
}

func init() {
	cmd := &cobra.Command{
		Use:   "simulate [text]",
		Short: "Stream text through a sliding window with eviction and retrieval",
		Long: "Push whitespace-separated tokens through a simulated attention window. Evicted spans " +
			"are stored and indexed; the trigger runs every step and retrieved passages are reintegrated.",
		Run: runSimulate,
	}

	cmd.Flags().Int("capacity", 256, "Window capacity in tokens")
	cmd.Flags().Int("sink", 4, "Leading tokens never evicted")
	cmd.Flags().Int("evict-batch", 32, "Minimum tokens per evicted segment")
	cmd.Flags().String("trigger-config", "", "Trigger options JSON file (default: $EVICTED_RAG_TRIGGER_CONFIG)")
	cmd.Flags().String("trigger", `{"mode":"token_count","threshold":64}`, "Inline trigger options JSON, used when no file is given")
	cmd.Flags().Bool("async", false, "Store and index evictions on a background worker")
	cmd.Flags().Bool("tolerant", false, "Log failed evictions and keep going")
	cmd.Flags().Bool("show-input", false, "Include the final reintegrated input in the output")

	RootCmd.AddCommand(cmd)
}

func runSimulate(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	capacity, _ := cmd.Flags().GetInt("capacity")
	sink, _ := cmd.Flags().GetInt("sink")
	batch, _ := cmd.Flags().GetInt("evict-batch")
	triggerPath, _ := cmd.Flags().GetString("trigger-config")
	triggerInline, _ := cmd.Flags().GetString("trigger")
	async, _ := cmd.Flags().GetBool("async")
	tolerant, _ := cmd.Flags().GetBool("tolerant")
	showInput, _ := cmd.Flags().GetBool("show-input")

	tokens := strings.Fields(readInput(args))
	if len(tokens) == 0 {
		exitErr("simulate", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	cfg := loadConfig()
	log := newLogger(cfg)
	defer log.Sync()

	if triggerPath == "" {
		triggerPath = cfg.TriggerFile
	}
	if triggerPath != "" {
		triggerInline = ""
	}
	tr := trigger.New(loadTriggerConfig(triggerPath, triggerInline))

	strategy, err := reintegrate.ByName(cfg.Strategy, cfg.BudgetTokens, cfg.MissingTextPolicy())
	if err != nil {
		exitErr("strategy", err)
	}

	st := openStore(cfg)
	defer st.Close()
	ix := openIndex(cfg)

	sess, err := session.New(session.Deps{
		Store:     st,
		Index:     ix,
		Retriever: retrieval.NewRetriever(ix),
		Trigger:   tr,
		Strategy:  strategy,
	}, session.Options{
		TopK:        cfg.TopK,
		MaxSegments: cfg.MaxSegments,
		Autosave:    cfg.Autosave && !async,
		Tolerant:    tolerant,
		Logger:      log,
	})
	if err != nil {
		exitErr("session", err)
	}

	w := window.New(capacity, sink, batch)
	out := simulateOutput{Tokens: len(tokens), Retrievals: []retrievalEvent{}}
	lastRetrieval := 0
	var state reintegrate.GenerationState

	for i, tok := range tokens {
		step := i + 1
		evicted := w.Push(tok)
		out.Evicted += len(evicted)

		if async {
			for _, seg := range evicted {
				if err := sess.OnEvictAsync(ctx, seg); err != nil {
					exitErr("evict", err)
				}
			}
		} else if _, err := sess.EvictAll(ctx, evicted); err != nil {
			if !tolerant {
				exitErr("evict", err)
			}
			out.Failed++
		}

		live := w.Tokens()
		recent := live
		if len(recent) > session.DefaultQueryWords {
			recent = recent[len(recent)-session.DefaultQueryWords:]
		}
		state = reintegrate.GenerationState{Prompt: w.Text(), Step: step}
		res, err := sess.Step(ctx, state, &trigger.Context{
			Step:                 step,
			RecentTokens:         recent,
			CacheOccupancy:       w.Occupancy(),
			TokensSinceRetrieval: step - lastRetrieval,
		})
		if err != nil {
			exitErr("step", err)
		}
		if !res.Retrieved {
			continue
		}
		lastRetrieval = step
		state = res.State

		ids := make([]string, 0, len(res.Passages))
		for _, p := range res.Passages {
			ids = append(ids, p.SegmentID)
		}
		out.Retrievals = append(out.Retrievals, retrievalEvent{
			Step:       step,
			Query:      res.Query,
			SegmentIDs: ids,
			InputBytes: len(res.State.Input()),
		})
	}

	if err := sess.Close(); err != nil {
		if !tolerant {
			exitErr("evict", err)
		}
		log.Warn("background evictions failed", zap.Error(err))
	}
	if async || !cfg.Autosave {
		if err := ix.Save(); err != nil {
			exitErr("save index", err)
		}
	}

	log.Info("simulation finished",
		zap.Int("tokens", out.Tokens),
		zap.Int("evicted", out.Evicted),
		zap.Int("retrievals", len(out.Retrievals)))

	if showInput {
		out.Final = state.Input()
	}
	printJSON(out)
}
