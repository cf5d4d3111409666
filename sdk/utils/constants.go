// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

const (
	IniName            = ".dhtransfer.ini"
	IniSource          = "ini_source"
	CurrentEnvironment = "current_environment"
	UpdatedEnvKey      = "updated_environment"

	DhCoreEndpoint    = "dhcore_endpoint"
	DhCoreAccessToken = "dhcore_access_token"
	DhCoreUser        = "dhcore_user"
	DhCorePassword    = "dhcore_password"

	AwsAccessKeyID     = "aws_access_key_id"
	AwsSecretAccessKey = "aws_secret_access_key"
	AwsSessionToken    = "aws_session_token"
	AwsRegion          = "aws_region"
	AwsEndpointURL     = "aws_endpoint_url"

	TransferMaxTotalConnections = "transfer_max_total_connections"
	TransferMaxHostConnections  = "transfer_max_host_connections"
	TransferPipelining          = "transfer_pipelining"
	TransferTimeout             = "transfer_timeout"
	TransferConnectTimeout      = "transfer_connect_timeout"
	TransferUserAgent           = "transfer_user_agent"
	TransferVerifyPeer          = "transfer_verify_peer"
	TransferDisabledFeatures    = "transfer_disabled_features"
	TransferShare               = "transfer_share"
	TransferDNSCacheTTL         = "transfer_dns_cache_ttl"
	TransferWorkers             = "transfer_workers"

	LogLevel  = "log_level"
	LogFormat = "log_format"
)
