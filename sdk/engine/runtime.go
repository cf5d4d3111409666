// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

// Package engine implements transfer handles and the multi transfer
// coordinator that drives many of them on the caller's goroutine.
//
// A Handle owns the configuration, execution state and result of a single
// transfer. It can run synchronously with Perform or be registered with a
// Multi, which advances all its handles with the non-blocking Multi.Perform
// step and lets the caller sleep in Multi.Wait until some transfer can make
// progress:
//
//	for {
//		running, err := m.Perform()
//		if err != nil {
//			return err
//		}
//		for msg := range m.Messages() {
//			// inspect m.Handle(msg.HandleID)
//		}
//		if running == 0 {
//			break
//		}
//		if _, err := m.Wait(ctx, time.Second); err != nil {
//			return err
//		}
//	}
//
// The protocol work itself is done by the drivers in package driver.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/config"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/driver"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

// Feature is a runtime capability that callers can query with Supports.
type Feature uint32

const (
	FeaturePause Feature = 1 << iota
	FeatureReset
	FeatureShare
	FeatureUpload
	FeatureHTTP2
	FeatureMultiOptions

	allFeatures = FeaturePause | FeatureReset | FeatureShare | FeatureUpload | FeatureHTTP2 | FeatureMultiOptions
)

var featureNames = map[Feature]string{
	FeaturePause:        "pause",
	FeatureReset:        "reset",
	FeatureShare:        "share",
	FeatureUpload:       "upload",
	FeatureHTTP2:        "http2",
	FeatureMultiOptions: "multi_options",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	var parts []string
	for bit, name := range featureNames {
		if f&bit != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// ParseFeature maps a feature name as used in configuration files.
func ParseFeature(name string) (Feature, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range featureNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

// Runtime carries what handles and coordinators need from their environment:
// the drivers by URL scheme, the enabled features, logging, metrics and
// the engine defaults. A Runtime is immutable once built and may be shared.
type Runtime struct {
	drivers  map[string]driver.Driver
	features Feature
	logger   *slog.Logger
	metrics  *Metrics
	defaults config.EngineConfig
}

type RuntimeOption func(*Runtime)

// WithDriver registers d for each of its schemes, replacing earlier ones.
func WithDriver(d driver.Driver) RuntimeOption {
	return func(rt *Runtime) {
		for _, s := range d.Schemes() {
			rt.drivers[strings.ToLower(s)] = d
		}
	}
}

// WithoutFeatures disables f. Operations depending on it report
// errs.ErrUnsupported.
func WithoutFeatures(f Feature) RuntimeOption {
	return func(rt *Runtime) { rt.features &^= f }
}

func WithLogger(l *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		if l != nil {
			rt.logger = l
		}
	}
}

func WithMetrics(m *Metrics) RuntimeOption {
	return func(rt *Runtime) { rt.metrics = m }
}

// WithEngineConfig sets the defaults applied to new handles and coordinators.
func WithEngineConfig(cfg config.EngineConfig) RuntimeOption {
	return func(rt *Runtime) { rt.defaults = cfg }
}

// NewRuntime returns a runtime with every feature enabled and the HTTP
// driver registered.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		drivers:  map[string]driver.Driver{},
		features: allFeatures,
		logger:   slog.New(slog.DiscardHandler),
		defaults: config.DefaultEngineConfig(),
	}
	WithDriver(driver.NewHTTP())(rt)
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// NewRuntimeFromConfig builds a runtime from cfg. The S3 driver is added
// when S3 credentials or an endpoint are configured.
func NewRuntimeFromConfig(ctx context.Context, cfg config.Config, opts ...RuntimeOption) (*Runtime, error) {
	const op = "engine.NewRuntimeFromConfig"

	base := []RuntimeOption{WithEngineConfig(cfg.Engine)}
	for _, name := range cfg.Engine.DisabledFeatures {
		f, ok := ParseFeature(name)
		if !ok {
			return nil, errs.New(errs.KindConfig, op, "unknown feature %q", name)
		}
		base = append(base, WithoutFeatures(f))
	}
	if cfg.S3.Enabled() {
		client, err := config.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfig, op, err)
		}
		base = append(base, WithDriver(driver.NewS3(client)))
	}
	return NewRuntime(append(base, opts...)...), nil
}

// Supports reports whether every feature in f is available.
func (rt *Runtime) Supports(f Feature) bool { return rt.features&f == f }

// Schemes lists the URL schemes with a registered driver.
func (rt *Runtime) Schemes() []string {
	out := make([]string, 0, len(rt.drivers))
	for s := range rt.drivers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

func (rt *Runtime) driverFor(scheme string) (driver.Driver, bool) {
	d, ok := rt.drivers[strings.ToLower(scheme)]
	return d, ok
}

func runtimeOrDefault(rt *Runtime) *Runtime {
	if rt == nil {
		return NewRuntime()
	}
	return rt
}
