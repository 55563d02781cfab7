// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/envitrace/envitrace/pkg/logging"
	"github.com/envitrace/envitrace/services/pathway/client"
	"github.com/envitrace/envitrace/services/pathway/config"
)

// app carries the state shared by all subcommands: configuration,
// logger and the lazily-built remote session.
type app struct {
	configPath string
	quiet      bool

	cfg *config.Config
	log *logging.Logger

	transport *client.Transport
	cache     *client.Cache
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "envitrace",
		Short:         "Biotransformation pathways: build, predict, classify",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.teardown()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the YAML config file")
	cmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "suppress stderr logging")

	cmd.AddCommand(
		newPathwayCmd(a),
		newPredictCmd(a),
		newClassifyCmd(a),
		newServeCmd(a),
	)
	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		LogDir:  cfg.Log.Dir,
		Service: "envitrace",
		JSON:    cfg.Log.JSON,
		Quiet:   a.quiet,
	})
	return nil
}

func (a *app) teardown() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close failed", "error", err.Error())
		}
	}
	if a.log != nil {
		_ = a.log.Close()
	}
}

// remote builds (once) the transport session to the configured server,
// logging in when credentials are present.
func (a *app) remote(ctx context.Context) (*client.Transport, error) {
	if a.transport != nil {
		return a.transport, nil
	}
	transport, err := client.NewTransport(client.TransportConfig{
		BaseURL:   a.cfg.Remote.BaseURL,
		Timeout:   a.cfg.Remote.Timeout.Std(),
		RateLimit: a.cfg.Remote.RateLimit,
		Logger:    a.log,
	})
	if err != nil {
		return nil, err
	}
	if a.cfg.Remote.Username != "" {
		if err := transport.Login(ctx, a.cfg.Remote.Username, a.cfg.Remote.Password); err != nil {
			return nil, fmt.Errorf("login to %s: %w", a.cfg.Remote.BaseURL, err)
		}
	}
	a.transport = transport
	return transport, nil
}

// resolver builds a resolver session backed by the on-disk response
// cache.
func (a *app) resolver(ctx context.Context) (*client.Resolver, error) {
	transport, err := a.remote(ctx)
	if err != nil {
		return nil, err
	}
	if a.cache == nil {
		cache, err := client.OpenCache(client.CacheConfig{
			Dir:      a.cfg.Cache.Dir,
			InMemory: a.cfg.Cache.InMemory,
			TTL:      a.cfg.Cache.TTL.Std(),
		}, a.log)
		if err != nil {
			return nil, err
		}
		a.cache = cache
	}
	return client.NewResolver(transport, a.cache, a.log), nil
}
