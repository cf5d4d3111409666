// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/config"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/driver"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/engine"
)

type TransferService struct {
	rt       *engine.Runtime
	http     config.CoreHTTP
	core     config.CoreConfig
	s3       *config.S3Client
	engine   config.EngineConfig
	logger   *slog.Logger
	progress io.Writer
}

type Option func(*serviceOptions)

type serviceOptions struct {
	logger   *slog.Logger
	progress io.Writer
	runtime  []engine.RuntimeOption
}

func WithLogger(l *slog.Logger) Option { return func(o *serviceOptions) { o.logger = l } }

// WithProgress renders a progress line on w while batches run.
func WithProgress(w io.Writer) Option { return func(o *serviceOptions) { o.progress = w } }

func WithRuntimeOptions(opts ...engine.RuntimeOption) Option {
	return func(o *serviceOptions) { o.runtime = append(o.runtime, opts...) }
}

func NewTransferService(ctx context.Context, conf config.Config, opts ...Option) (*TransferService, error) {
	o := serviceOptions{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	var s3c *config.S3Client
	rtOpts := []engine.RuntimeOption{engine.WithLogger(o.logger)}
	if conf.S3.Enabled() {
		var err error
		s3c, err = config.NewS3Client(ctx, conf.S3)
		if err != nil {
			return nil, fmt.Errorf("S3 init failed: %w", err)
		}
		rtOpts = append(rtOpts, engine.WithDriver(driver.NewS3(s3c)))
	}

	// the service owns the S3 client so that it can list prefixes too
	rtConf := conf
	rtConf.S3 = config.S3Config{}
	rt, err := engine.NewRuntimeFromConfig(ctx, rtConf, append(rtOpts, o.runtime...)...)
	if err != nil {
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	return &TransferService{
		rt:       rt,
		http:     config.NewHTTPCore(conf.Core),
		core:     conf.Core,
		s3:       s3c,
		engine:   conf.Engine,
		logger:   o.logger,
		progress: o.progress,
	}, nil
}

// Runtime exposes the engine runtime used by the service.
func (s *TransferService) Runtime() *engine.Runtime { return s.rt }
