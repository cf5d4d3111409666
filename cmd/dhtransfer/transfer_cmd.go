// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/services/transfer"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

func newRunCommand(g *globals) *cobra.Command {
	var file, format string
	var workers int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the transfers of a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := transfer.LoadManifest(file)
			if err != nil {
				return err
			}
			if workers > 0 {
				m.Workers = workers
			}
			svc, _, err := g.newService(cmd)
			if err != nil {
				return err
			}
			results, err := svc.Run(cmd.Context(), m)
			if err != nil {
				return err
			}
			if err := printResults(cmd.OutOrStdout(), format, results); err != nil {
				return err
			}
			return failures(results)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "manifest file (yaml or json)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel coordinators, overrides the manifest")
	cmd.Flags().StringVarP(&format, "output", "o", "short", "output format: short, json, yaml")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newGetCommand(g *globals) *cobra.Command {
	var dst, format string
	cmd := &cobra.Command{
		Use:   "get URL...",
		Short: "Download files or s3 prefixes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := g.newService(cmd)
			if err != nil {
				return err
			}
			infos, err := svc.Download(cmd.Context(), transfer.DownloadRequest{URLs: args, Destination: dst})
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				return fmt.Errorf("no files downloaded")
			}
			logger.Debug("download completed", "files", len(infos))
			if utils.TranslateFormat(format) != "short" {
				return printValue(cmd.OutOrStdout(), format, infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tSIZE\tPATH")
			for _, i := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", i.Filename, i.Size, i.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&dst, "destination", "d", "", "local file or directory")
	cmd.Flags().StringVarP(&format, "output", "o", "short", "output format: short, json, yaml")
	return cmd
}

func newPutCommand(g *globals) *cobra.Command {
	var input, format string
	cmd := &cobra.Command{
		Use:   "put TARGET",
		Short: "Upload a local file or directory to an s3 prefix or http(s) URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := g.newService(cmd)
			if err != nil {
				return err
			}
			res, err := svc.Upload(cmd.Context(), transfer.UploadRequest{Input: input, Target: args[0]})
			if err != nil {
				return err
			}
			if utils.TranslateFormat(format) != "short" {
				if err := printValue(cmd.OutOrStdout(), format, res.Files); err != nil {
					return err
				}
			} else if err := printResults(cmd.OutOrStdout(), format, res.Results); err != nil {
				return err
			}
			return failures(res.Results)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "local file or directory")
	cmd.Flags().StringVarP(&format, "output", "o", "short", "output format: short, json, yaml")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
