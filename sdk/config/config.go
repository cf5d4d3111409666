// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package config

import "time"

// Config complessiva passata all’SDK (niente viper/INI qui)
type Config struct {
	Core   CoreConfig
	Engine EngineConfig
	S3     S3Config
	Log    LogConfig
}

// CoreConfig describes the endpoint relative manifest URLs are resolved
// against and the credentials sent with every transfer.
type CoreConfig struct {
	BaseURL           string
	AccessToken       string
	BasicAuthUsername string
	BasicAuthPassword string
}

type EngineConfig struct {
	MaxTotalConnections int
	MaxHostConnections  int
	Pipelining          bool
	Timeout             time.Duration
	ConnectTimeout      time.Duration
	UserAgent           string
	VerifyPeer          bool
	DisabledFeatures    []string
	ShareData           []string // cookie, dns, ssl_session
	DNSCacheTTL         time.Duration
	Workers             int
}

type S3Config struct {
	AccessKey   string
	SecretKey   string
	AccessToken string
	Region      string
	EndpointURL string
}

// Enabled reports whether enough is configured to build an S3 client.
func (c S3Config) Enabled() bool {
	return c.EndpointURL != "" || (c.AccessKey != "" && c.SecretKey != "")
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

// DefaultEngineConfig returns the settings used when nothing is configured.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Pipelining:     true,
		ConnectTimeout: 30 * time.Second,
		VerifyPeer:     true,
		DNSCacheTTL:    60 * time.Second,
		Workers:        1,
	}
}
