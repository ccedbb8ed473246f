package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tradewell/execution/audit"
	"github.com/tradewell/execution/broker"
	"github.com/tradewell/execution/broker/schwab"
	"github.com/tradewell/execution/config"
	"github.com/tradewell/execution/dispatch"
	"github.com/tradewell/execution/order"
	"github.com/tradewell/execution/risk"
	"github.com/tradewell/execution/schedule"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an order intent (paper unless configured live)",
	Long: `Submit reads a normalized order intent from a JSON file and runs it
through the full execution path: risk gate, composer, and paper fill or
live placement. MOC/LOC intents are scheduled for the next market close.

Example:
  execctl submit -f intent.json -c exec.yaml`,
	RunE: runSubmit,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the broker order an intent composes to, without submitting",
	RunE:  runPreview,
}

var (
	submitIntentPath string
	submitConfigPath string
	submitIdemKey    string
)

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(previewCmd)

	for _, c := range []*cobra.Command{submitCmd, previewCmd} {
		c.Flags().StringVarP(&submitIntentPath, "file", "f", "", "path to intent JSON file (required)")
		c.Flags().StringVarP(&submitConfigPath, "config", "c", "", "path to config file (defaults apply if omitted)")
		_ = c.MarkFlagRequired("file")
	}
	submitCmd.Flags().StringVar(&submitIdemKey, "idempotency-key", "", "idempotency key (random UUID if omitted)")
}

func loadIntent(path string) (order.Intent, error) {
	var in order.Intent
	data, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("read intent file: %w", err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("parse intent file: %w", err)
	}
	return in, nil
}

func loadConfig() (*config.Config, error) {
	if submitConfigPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(submitConfigPath)
}

func buildDispatcher(cfg *config.Config) (*dispatch.Dispatcher, func(), error) {
	loc, err := cfg.Timezone()
	if err != nil {
		return nil, nil, err
	}
	backoff, err := cfg.Retry.ParseBackoff()
	if err != nil {
		return nil, nil, err
	}

	var caps risk.CapsSource = risk.StaticCaps(cfg.Risk.Caps())
	if cfg.Risk.CapsFile != "" {
		caps = risk.NewCapsStore(cfg.Risk.CapsFile)
	}
	gate := risk.NewGate(caps)

	var sinks audit.MultiSink
	if cfg.Audit.Path != "" {
		jsonl, err := audit.NewJSONLSink(cfg.Audit.Path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, jsonl)
	}
	if cfg.Audit.DBPath != "" {
		db, err := audit.NewSQLiteSink(cfg.Audit.DBPath)
		if err != nil {
			sinks.Close()
			return nil, nil, err
		}
		sinks = append(sinks, db)
	}
	var sink audit.Sink = sinks
	if len(sinks) == 0 {
		sink = audit.NewMemorySink()
	}

	var client broker.Client
	if cfg.Mode == "live" {
		client = schwab.New(cfg.Broker.BaseURL, func() (string, error) {
			tok := os.Getenv("SCHWAB_ACCESS_TOKEN")
			if tok == "" {
				return "", fmt.Errorf("SCHWAB_ACCESS_TOKEN not set")
			}
			return tok, nil
		})
	}

	log := newLogger(cfg.LogLevel)
	d := dispatch.New(dispatch.Config{
		Mode:        dispatch.Mode(cfg.Mode),
		Enabled:     cfg.Enabled,
		MaxOrderQty: cfg.MaxOrderQty,
		Retry:       dispatch.RetryPolicy{Attempts: cfg.Retry.Attempts, Backoff: backoff},
		CloseTime:   cfg.Close.Time,
		Timezone:    loc,
	}, gate, schedule.New(log), client, sink, log)

	return d, func() { _ = sink.Close() }, nil
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	in, err := loadIntent(submitIntentPath)
	if err != nil {
		return err
	}
	if in.IdempotencyKey == "" {
		key := submitIdemKey
		if key == "" {
			key = uuid.NewString()
		}
		in.IdempotencyKey = key
	}

	d, cleanup, err := buildDispatcher(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := d.Submit(context.Background(), in)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func runPreview(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	in, err := loadIntent(submitIntentPath)
	if err != nil {
		return err
	}

	d, cleanup, err := buildDispatcher(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	composed, err := d.Preview(in)
	if err != nil {
		return err
	}
	if composed.Deferred {
		resolved, err := order.ResolveClose(composed.Intent)
		if err != nil {
			return err
		}
		fired, err := order.Compose(resolved)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"deferred":     true,
			"deferredKind": composed.DeferredKind,
			"atClose":      fired.Spec,
		})
	}
	return printJSON(cmd, composed.Spec)
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
