package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trichter/internal/cognitive"
	"github.com/danielpatrickdp/trichter/internal/gate"
	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/logging"
	"github.com/danielpatrickdp/trichter/internal/runner"
	"github.com/danielpatrickdp/trichter/internal/state"
)

// #region command

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a batch of inputs on the worker pool",
		Long: `run integrates each input, drives its trajectory through a fresh
coupling pipeline and stores outputs that FIRE. Inputs come from --input
(a JSON list) or are generated from --seed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			inputPath, _ := cmd.Flags().GetString("input")
			count, _ := cmd.Flags().GetInt("count")
			seed, _ := cmd.Flags().GetString("seed")
			var inputs []cognitive.Input
			if inputPath != "" {
				inputs, err = readInputs(inputPath)
				if err != nil {
					return err
				}
			} else {
				inputs = generateInputs(seed, count)
			}

			rcfg, err := cfg.RunnerConfig()
			if err != nil {
				return err
			}
			backend, closeBackend, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBackend()

			ledgers, err := openLedgers(ctx, cfg)
			if err != nil {
				return err
			}
			if ledgers != nil {
				defer ledgers.close()
				rcfg.Sinks = func(runID string, _ cognitive.Input) ledger.Sink {
					return ledgers.open(runID)
				}
			}

			r, err := runner.New(rcfg, backend, logger)
			if err != nil {
				return err
			}
			res, err := r.RunBatch(ctx, inputs)
			if err != nil {
				return err
			}

			if ledgers != nil && ledgers.db != nil {
				for _, s := range res.Successes {
					if err := logging.LogDecision(ctx, ledgers.db, provenanceFor(s, rcfg)); err != nil {
						logger.Warn("provenance write failed", "run_id", s.RunID, "error", err)
					}
				}
			}
			return printBatch(cmd, res)
		},
	}
	cmd.Flags().String("input", "", "path to a JSON list of inputs")
	cmd.Flags().Int("count", 8, "number of generated inputs when --input is empty")
	cmd.Flags().String("seed", "trichter", "seed for generated inputs")
	return cmd
}

// #endregion command

// #region inputs

func readInputs(path string) ([]cognitive.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	var inputs []cognitive.Input
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse inputs %s: %w", path, err)
	}
	return inputs, nil
}

// generateInputs draws n damped inputs around a seeded centre, so nearby
// runs share most of their trajectory.
func generateInputs(seed string, n int) []cognitive.Input {
	rng := cognitive.NewSeededRand(seed)
	centre := state.State5D{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64(), Psi: 0.5}
	out := make([]cognitive.Input, n)
	for i := range out {
		out[i] = cognitive.Input{
			InitialState: state.State5D{
				X:   centre.X + rng.NormFloat64()*0.05,
				Y:   centre.Y + rng.NormFloat64()*0.05,
				Z:   centre.Z + rng.NormFloat64()*0.05,
				Psi: centre.Psi,
			},
			Params:   cognitive.DampedParams(0.5),
			TFinal:   1,
			TicID:    fmt.Sprintf("TIC-%04d", i),
			Seed:     fmt.Sprintf("%s-%d", seed, i),
			SeedPath: fmt.Sprintf("MEF/%s/%04d", seed, i),
		}
	}
	return out
}

// #endregion inputs

// #region output

// provenanceFor re-evaluates the final proof so the logged record carries
// the failed checks.
func provenanceFor(s runner.Success, rcfg runner.Config) logging.ProvenanceEntry {
	gcfg := rcfg.Engine.Tick.Gate
	d := gate.NewGate(gcfg).Evaluate(s.Output.Proof)
	e := logging.ProvenanceEntry{
		RunID:    s.RunID,
		Tick:     s.Output.Ticks,
		Decision: s.Output.Decision,
		Reason:   d.Reason,
		Record:   logging.NewGateRecord(string(rcfg.Engine.Tick.Policy.Variant), s.Output.Proof, gcfg, d),
	}
	if n := len(s.Output.Commits); n > 0 {
		e.CommitHash = s.Output.Commits[n-1].Hash.String()
		e.TickTime = s.Output.Commits[n-1].Payload.Timestamp
	}
	return e
}

type runRow struct {
	Index     int     `json:"index"`
	RunID     string  `json:"run_id"`
	Decision  string  `json:"decision"`
	Route     string  `json:"route,omitempty"`
	StorageID string  `json:"storage_id,omitempty"`
	Error     string  `json:"error,omitempty"`
	Millis    float64 `json:"duration_ms,omitempty"`
}

func printBatch(cmd *cobra.Command, res runner.BatchResult) error {
	var rows []runRow
	for _, s := range res.Successes {
		r := runRow{
			Index:     s.Index,
			RunID:     s.RunID,
			Decision:  string(s.Output.Decision),
			Route:     s.Output.Route.ID,
			StorageID: s.StorageID,
			Millis:    float64(s.Duration.Microseconds()) / 1000,
		}
		if s.StoreErr != nil {
			r.Error = s.StoreErr.Error()
		}
		rows = append(rows, r)
	}
	for _, f := range res.Failures {
		rows = append(rows, runRow{Index: f.Index, RunID: f.RunID, Decision: "ERROR", Error: f.Err.Error()})
	}

	w := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return writeJSON(w, map[string]any{
			"runs":         rows,
			"successes":    res.SuccessCount(),
			"failures":     res.FailureCount(),
			"fired":        res.FiredCount(),
			"success_rate": res.SuccessRate(),
			"total_ms":     res.TotalTime.Milliseconds(),
		})
	}
	fmt.Fprintf(w, "%-5s  %-36s  %-8s  %-12s  %s\n", "INDEX", "RUN", "DECISION", "ROUTE", "STORED")
	for _, r := range rows {
		stored := r.StorageID
		if r.Error != "" {
			stored = "error: " + r.Error
		}
		fmt.Fprintf(w, "%-5d  %-36s  %-8s  %-12s  %s\n", r.Index, r.RunID, r.Decision, r.Route, stored)
	}
	fmt.Fprintf(w, "\n%d/%d succeeded (%.1f%%), %d fired, %s total\n",
		res.SuccessCount(), res.TotalCount(), res.SuccessRate(), res.FiredCount(), res.TotalTime)
	return nil
}

// #endregion output
