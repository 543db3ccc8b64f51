package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trichter/internal/ledger"
	"github.com/danielpatrickdp/trichter/internal/logging"
)

// #region inspect

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [run-id]",
		Short: "List persisted chains or show one run's commits and decisions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ledgers, err := openLedgers(ctx, cfg)
			if err != nil {
				return err
			}
			if ledgers == nil {
				return errors.New("ledger.backend is none: nothing persisted to inspect")
			}
			defer ledgers.close()

			w := cmd.OutOrStdout()
			if len(args) == 0 {
				if ledgers.list == nil {
					return fmt.Errorf("%s ledgers cannot be listed; pass a run id", cfg.Ledger.Backend)
				}
				heads, err := ledgers.list(ctx)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(w, heads)
				}
				fmt.Fprintf(w, "%-36s  %-5s  %s\n", "RUN", "SEQ", "HEAD")
				for _, h := range heads {
					fmt.Fprintf(w, "%-36s  %-5d  %s\n", h.Name, h.Seq, h.Hash)
				}
				return nil
			}

			runID := args[0]
			commits, err := ledgers.open(runID).Load(ctx)
			if err != nil {
				return err
			}
			var decisions []logging.ProvenanceEntry
			if ledgers.db != nil {
				if decisions, err = logging.Decisions(ctx, ledgers.db, runID); err != nil {
					return err
				}
			}
			if jsonOutput(cmd) {
				return writeJSON(w, map[string]any{"run_id": runID, "commits": commits, "decisions": decisions})
			}
			printCommits(cmd, commits)
			for _, d := range decisions {
				fmt.Fprintf(w, "decision tick=%d t=%g %s %s\n", d.Tick, d.TickTime, d.Decision, d.Reason)
			}
			return nil
		},
	}
	return cmd
}

func printCommits(cmd *cobra.Command, commits []ledger.CommitData) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-5s  %-10s  %-6s  %-6s  %-10s  %-10s  %s\n", "SEQ", "T", "NODES", "EDGES", "DELTA_PI", "PHI", "HASH")
	for _, c := range commits {
		p := c.Payload
		fmt.Fprintf(w, "%-5d  %-10.4g  %-6d  %-6d  %-10.4g  %-10.4g  %s\n",
			c.Seq, p.Timestamp, p.Nodes, p.Edges, p.Proof.DeltaPi, p.Proof.Phi, c.Hash)
	}
}

// #endregion inspect

// #region verify

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [run-id...]",
		Short: "Walk persisted chains from genesis and check every link",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ledgers, err := openLedgers(ctx, cfg)
			if err != nil {
				return err
			}
			if ledgers == nil {
				return errors.New("ledger.backend is none: nothing persisted to verify")
			}
			defer ledgers.close()

			names := args
			if len(names) == 0 {
				if ledgers.list == nil {
					return fmt.Errorf("%s ledgers cannot be listed; pass run ids", cfg.Ledger.Backend)
				}
				heads, err := ledgers.list(ctx)
				if err != nil {
					return err
				}
				for _, h := range heads {
					names = append(names, h.Name)
				}
			}

			w := cmd.OutOrStdout()
			var failed int
			for _, name := range names {
				commits, err := ledgers.open(name).Load(ctx)
				if err == nil {
					err = ledger.Verify(commits)
				}
				if err != nil {
					failed++
					logger.Error("chain invalid", "run_id", name, "error", err)
					fmt.Fprintf(w, "FAIL  %s  %v\n", name, err)
					continue
				}
				fmt.Fprintf(w, "OK    %s  %d commits\n", name, len(commits))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d chains failed verification", failed, len(names))
			}
			return nil
		},
	}
}

// #endregion verify
