// Command trichter drives coupling-tick runs, replays and ledger checks.
package main

import (
	"encoding/json"
	"io"
	"log"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trichter/internal/config"
	"github.com/danielpatrickdp/trichter/internal/logging"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("trichter: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trichter",
		Short: "Coupling-tick pipeline with gated hash-chain commits",
		Long: `trichter feeds batches of states through the funnel graph and the
hyperbolic field, evaluates the proof gate on every tick and commits
FIRE decisions to a SHA-256 hash chain.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "path to config.yaml (default ~/.trichter/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level")
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(
		newRunCmd(),
		newReplayCmd(),
		newInspectCmd(),
		newVerifyCmd(),
		newServeCmd(),
	)

	return rootCmd
}

// #endregion main

// #region helpers

// loadConfig resolves --config and --log-level and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.NewLogger(level, cmd.ErrOrStderr()), nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
