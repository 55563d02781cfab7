// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/client"
	"github.com/envitrace/envitrace/services/pathway/predict"
	"github.com/envitrace/envitrace/services/pathway/server"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		settingID string
		parallel  int
		output    string
	)
	cmd := &cobra.Command{
		Use:   "predict SMILES...",
		Short: "Predict biotransformation pathways for one or more structures",
		Long: `Submits a prediction job per structure, polls until every job is
terminal and prints the resulting pathways as JSON. A failed job keeps
the partial pathway produced before the failure.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			transport, err := a.remote(ctx)
			if err != nil {
				return err
			}
			orchestrator := predict.NewOrchestrator(client.NewJobChannel(transport, a.log), a.log)
			backoff := predict.Backoff{
				Initial:     a.cfg.Poll.InitialDelay.Std(),
				Max:         a.cfg.Poll.MaxDelay.Std(),
				Multiplier:  a.cfg.Poll.Multiplier,
				MaxAttempts: a.cfg.Poll.MaxAttempts,
			}

			jobs := make([]*predict.Job, len(args))
			g, gctx := errgroup.WithContext(ctx)
			if parallel > 0 {
				g.SetLimit(parallel)
			}
			for i, smiles := range args {
				g.Go(func() error {
					root, err := chem.NewStructure(smiles)
					if err != nil {
						return fmt.Errorf("structure %q: %w", smiles, err)
					}
					job, err := orchestrator.Submit(gctx, smiles, root, settingID)
					if err != nil {
						return err
					}
					jobs[i] = job
					_, err = predict.Await(gctx, orchestrator, job, backoff, client.IsRetryable)
					if errors.Is(err, predict.ErrPredictionFailed) {
						// Partial results are still worth printing.
						a.log.Warn("prediction failed", "root", smiles, "job_id", job.ID)
						return nil
					}
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := make([]predictionReport, 0, len(jobs))
			for _, job := range jobs {
				if job == nil {
					continue
				}
				out = append(out, predictionReport{
					Status:  job.Status().String(),
					Pathway: server.ExportPathway(job.Pathway()),
				})
			}
			return writeJSONOutput(cmd, output, out)
		},
	}
	cmd.Flags().StringVarP(&settingID, "setting", "s", "", "prediction setting identifier")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "maximum concurrent predictions")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON to a file instead of stdout")
	return cmd
}

type predictionReport struct {
	Status  string             `json:"status"`
	Pathway server.PathwayJSON `json:"pathway"`
}

func writeJSONOutput(cmd *cobra.Command, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
