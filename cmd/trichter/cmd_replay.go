package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trichter/internal/config"
	"github.com/danielpatrickdp/trichter/internal/hyperbion"
	"github.com/danielpatrickdp/trichter/internal/replay"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a seeded run and check or record its commit hashes",
		Long: `replay drives a fresh pipeline with seeded batches contracting toward
an attractor. With --fixture the emitted hashes are checked against the
fixture; with --record a fixture is written for the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fixturePath, _ := cmd.Flags().GetString("fixture")
			recordPath, _ := cmd.Flags().GetString("record")
			if fixturePath != "" && recordPath != "" {
				return errors.New("--fixture and --record are mutually exclusive")
			}
			if recordPath != "" && !fixtureExpressible(cfg) {
				return errors.New("--record needs a plain gate preset and the default hyperbion")
			}

			var (
				rcfg    replay.Config
				fixture *replay.Fixture
			)
			if fixturePath != "" {
				fixture, err = replay.LoadFixture(fixturePath)
				if err != nil {
					return err
				}
				if rcfg, err = fixture.Config(); err != nil {
					return err
				}
			} else {
				seed, _ := cmd.Flags().GetString("seed")
				rcfg = replay.DefaultConfig(seed)
				rcfg.Ticks, _ = cmd.Flags().GetInt("ticks")
				rcfg.Particles, _ = cmd.Flags().GetInt("particles")
				if rcfg.Tick, err = cfg.TickConfig(); err != nil {
					return err
				}
			}

			results, err := replay.Replay(ctx, rcfg)
			if err != nil {
				return err
			}
			summary := replay.Summarize(results)
			logger.Info("replay complete",
				"seed", rcfg.Seed,
				"ticks", summary.TotalTicks,
				"fires", summary.Fires,
				"head", summary.Head,
			)

			if err := printReplay(cmd, results, summary); err != nil {
				return err
			}

			switch {
			case fixture != nil:
				if err := fixture.Check(results); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "fixture %s: %d commits match\n", fixturePath, len(fixture.ExpectedHashes))
			case recordPath != "":
				desc, _ := cmd.Flags().GetString("description")
				f := replay.Record(desc, cfg.Gate.Preset, rcfg, results)
				if err := replay.SaveFixture(recordPath, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %d commits to %s\n", len(f.ExpectedHashes), recordPath)
			}
			return nil
		},
	}
	cmd.Flags().String("seed", "trichter", "replay seed")
	cmd.Flags().Int("ticks", 40, "number of ticks")
	cmd.Flags().Int("particles", 5, "states per tick")
	cmd.Flags().String("fixture", "", "check against a JSON or YAML fixture")
	cmd.Flags().String("record", "", "write a fixture for this run")
	cmd.Flags().String("description", "", "fixture description for --record")
	return cmd
}

// fixtureExpressible reports whether a fixture can reproduce cfg. Fixtures
// carry only the policy and the gate preset name.
func fixtureExpressible(cfg *config.Config) bool {
	g := cfg.Gate
	h := hyperbion.Default()
	return g.Epsilon == nil && g.PhiThreshold == nil && g.ResonanceStrength == nil &&
		cfg.Hyperbion.Alpha == h.Alpha && cfg.Hyperbion.Beta == h.Beta
}

func printReplay(cmd *cobra.Command, results []replay.Result, s replay.Summary) error {
	w := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(w, map[string]any{"results": results, "summary": s})
	}
	fmt.Fprintf(w, "%-5s  %-6s  %-5s  %-5s  %-10s  %-10s  %s\n", "TICK", "ACTION", "NODES", "EDGES", "DELTA_PI", "DELTA_V", "COMMIT")
	for _, r := range results {
		commit := ""
		if r.Commit != nil {
			commit = fmt.Sprintf("#%d %s", r.Commit.Seq, r.Commit.Hash.String()[:16])
		}
		fmt.Fprintf(w, "%-5d  %-6s  %-5d  %-5d  %-10.4g  %-10.4g  %s\n",
			r.Tick, r.Action, r.Nodes, r.Edges, r.Proof.DeltaPi, r.Proof.DeltaV, commit)
	}
	fmt.Fprintf(w, "\n%d ticks, %d fires, %d holds, head %s\n", s.TotalTicks, s.Fires, s.Holds, s.Head)
	return nil
}
