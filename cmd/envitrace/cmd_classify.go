// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/client"
	"github.com/envitrace/envitrace/services/pathway/reasoning"
)

func newClassifyCmd(a *app) *cobra.Command {
	var modelID string
	cmd := &cobra.Command{
		Use:   "classify SMILES",
		Short: "Rank transformation rules for a structure",
		Long: `Asks the configured relative reasoning model which rules apply to
the structure and prints them best-first. A structure no rule applies
to prints an empty result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			structure, err := chem.NewStructure(args[0])
			if err != nil {
				return err
			}
			resolver, err := a.resolver(ctx)
			if err != nil {
				return err
			}
			transport, err := a.remote(ctx)
			if err != nil {
				return err
			}
			proxy := reasoning.NewProxy(client.NewModelSource(transport, resolver, a.log), a.log)

			scored, err := proxy.Classify(ctx, modelID, structure)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(scored) == 0 {
				fmt.Fprintf(out, "no applicable rules for %s\n", structure.SMILES)
				return nil
			}
			for _, sr := range scored {
				fmt.Fprintf(out, "%.4f  %-16s %-30s %s\n",
					sr.Score, sr.Rule.Kind, sr.Rule.Name, sr.Rule.Pattern())
				for _, p := range sr.Products {
					fmt.Fprintf(out, "        -> %s\n", p.SMILES)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "relative reasoning model identifier")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
