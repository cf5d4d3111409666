// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

// Command dhtransfer runs batches of HTTP and S3 transfers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/config"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/services/transfer"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

// globals are the persistent flags of the root command.
type globals struct {
	env      string
	logLevel string
	quiet    bool
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "dhtransfer",
		Short:         "Run concurrent HTTP and S3 transfers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.env, "env", "", "configuration environment (ini section)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "do not render progress")

	cmd.AddCommand(
		newRunCommand(g),
		newGetCommand(g),
		newPutCommand(g),
		newOptionsCommand(),
		newConfigCommand(g),
	)
	return cmd
}

// loadConfig reads the ini file and the environment into a Config.
func (g *globals) loadConfig() (config.Config, error) {
	viper.Reset()
	var envs []string
	if g.env != "" {
		envs = append(envs, g.env)
	}
	if err := utils.RegisterIniCfgWithViper(envs...); err != nil {
		return config.Config{}, err
	}
	if g.logLevel != "" {
		viper.Set(utils.LogLevel, g.logLevel)
	}
	return utils.LoadConfig(), nil
}

// newService builds the transfer service for a command.
func (g *globals) newService(cmd *cobra.Command) (*transfer.TransferService, *slog.Logger, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := utils.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	opts := []transfer.Option{transfer.WithLogger(logger)}
	if !g.quiet {
		opts = append(opts, transfer.WithProgress(cmd.ErrOrStderr()))
	}
	svc, err := transfer.NewTransferService(cmd.Context(), cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, logger, nil
}
