// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/graph"
	"github.com/envitrace/envitrace/services/pathway/server"
)

func newPathwayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pathway",
		Short: "Build and inspect pathways locally",
	}
	cmd.AddCommand(newPathwayBuildCmd(a), newPathwayValidateCmd(a), newPathwayShowCmd(a))
	return cmd
}

func newPathwayBuildCmd(a *app) *cobra.Command {
	var (
		name     string
		edges    []string
		rootOnly bool
		output   string
	)
	cmd := &cobra.Command{
		Use:   "build ROOT_SMILES",
		Short: "Build a pathway from a root structure and reaction SMIRKS",
		Long: `Creates a pathway rooted at the given structure and applies each
--edge reaction in order. Unknown structures on an edge become new
nodes unless --root-only is set. The result is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := chem.NewStructure(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = root.SMILES
			}
			var opts []graph.PathwayOption
			if rootOnly {
				opts = append(opts, graph.WithRootNodeOnly())
			}
			p := graph.NewPathwayWithRoot(name, root, opts...)
			for _, smirks := range edges {
				if _, err := p.AddEdge(graph.EdgeRequest{SMIRKS: smirks}); err != nil {
					return fmt.Errorf("edge %q: %w", smirks, err)
				}
			}
			if err := p.Validate(); err != nil {
				return err
			}
			a.log.Info("pathway built",
				"pathway_id", p.ID(), "nodes", p.NodeCount(), "edges", p.EdgeCount())
			return writeJSONOutput(cmd, output, server.ExportPathway(p))
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "pathway display name")
	cmd.Flags().StringArrayVarP(&edges, "edge", "e", nil, "reaction SMIRKS, repeatable")
	cmd.Flags().BoolVar(&rootOnly, "root-only", false, "reject edges that would create nodes")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON to a file instead of stdout")
	return cmd
}

func newPathwayValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate an exported pathway file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readPathwayFile(args[0])
			if err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d nodes, %d edges\n", p.NodeCount(), p.EdgeCount())
			return nil
		},
	}
}

func newPathwayShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Print an exported pathway as a depth-ordered table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := readPathwayFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s, %d nodes, %d edges)\n",
				p.Name(), p.Mode(), p.NodeCount(), p.EdgeCount())
			for _, n := range p.Nodes() {
				fmt.Fprintf(out, "  depth %d  %-40s %s %.3f\n",
					n.Depth, n.Structure.SMILES, n.Structure.Formula, n.Structure.AverageMass)
			}
			return nil
		},
	}
}

func readPathwayFile(path string) (*graph.Pathway, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var in server.PathwayJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return server.ImportPathway(in)
}
