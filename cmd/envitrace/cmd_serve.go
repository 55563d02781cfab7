// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/envitrace/envitrace/services/pathway/client"
	"github.com/envitrace/envitrace/services/pathway/predict"
	"github.com/envitrace/envitrace/services/pathway/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local pathway API",
		Long: `Starts the HTTP API for building pathways and running predictions.
Prediction endpoints need remote credentials in the config; without a
reachable remote the API still serves manual pathway building.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var orchestrator *predict.Orchestrator
			if transport, err := a.remote(ctx); err == nil {
				orchestrator = predict.NewOrchestrator(client.NewJobChannel(transport, a.log), a.log)
			} else {
				a.log.Warn("remote unavailable, prediction disabled", "error", err.Error())
			}

			srv := server.New(server.Options{
				Registry:     server.NewRegistry(),
				Orchestrator: orchestrator,
				Logger:       a.log,
				Metrics:      prometheus.DefaultRegisterer,
			})
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			return srv.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
