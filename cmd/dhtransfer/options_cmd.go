// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/engine"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

func newOptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List the transfer options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "# option table version %d\n", engine.OptionTableVersion)
			fmt.Fprintln(tw, "NAME\tTYPE\tFEATURE\tDESCRIPTION")
			for _, row := range engine.Options() {
				feature := "-"
				if row.Feature != 0 {
					feature = row.Feature.String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Name, row.Kind, feature, row.Doc)
			}
			return tw.Flush()
		},
	}
}

func newConfigCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the dhtransfer configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Save the current environment variables into the ini file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := g.loadConfig(); err != nil {
				return err
			}
			env, err := utils.SaveEnvironment()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved environment %q to %s\n", env, utils.IniPath())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "environment: %s\n", viper.GetString(utils.CurrentEnvironment))
			e := cfg.Engine
			fmt.Fprintf(cmd.OutOrStdout(), "core endpoint: %s\n", cfg.Core.BaseURL)
			fmt.Fprintf(cmd.OutOrStdout(), "s3 endpoint: %s\n", cfg.S3.EndpointURL)
			fmt.Fprintf(cmd.OutOrStdout(), "workers: %d\n", e.Workers)
			fmt.Fprintf(cmd.OutOrStdout(), "max total connections: %d\n", e.MaxTotalConnections)
			fmt.Fprintf(cmd.OutOrStdout(), "max host connections: %d\n", e.MaxHostConnections)
			fmt.Fprintf(cmd.OutOrStdout(), "share: %v\n", e.ShareData)
			fmt.Fprintf(cmd.OutOrStdout(), "disabled features: %v\n", e.DisabledFeatures)
			return nil
		},
	})
	return cmd
}
