// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/config"
)

// EnvDumpPrefix: optional prefix for env lookup (e.g., "DHTRANSFER")
const EnvDumpPrefix = ""

// Config holds all logical keys. Tags:
// - vkey: Viper key
// - env: canonical env name (UPPER_SNAKE). If empty, derived from vkey
// - persist: "true" to write the key into the INI
// - default: optional default to set if key is unset
// - secret: "true" if sensitive (not used here, but handy for logging)
// - bind: "false" to NOT bind from env (we still can set defaults)
type Config struct {
	DhcoreEndpoint    string `vkey:"dhcore_endpoint"     env:"DHCORE_ENDPOINT"     persist:"true"`
	DhcoreAccessToken string `vkey:"dhcore_access_token" env:"DHCORE_ACCESS_TOKEN" persist:"true"  secret:"true"`
	DhcoreUser        string `vkey:"dhcore_user"         env:"DHCORE_USER"         persist:"true"`
	DhcorePassword    string `vkey:"dhcore_password"     env:"DHCORE_PASSWORD"     persist:"true"  secret:"true"`

	AwsAccessKeyID     string `vkey:"aws_access_key_id"     env:"AWS_ACCESS_KEY_ID"     persist:"true"  secret:"true"`
	AwsSecretAccessKey string `vkey:"aws_secret_access_key" env:"AWS_SECRET_ACCESS_KEY" persist:"true"  secret:"true"`
	AwsSessionToken    string `vkey:"aws_session_token"     env:"AWS_SESSION_TOKEN"     persist:"true"  secret:"true"`
	AwsRegion          string `vkey:"aws_region"            env:"AWS_REGION"            persist:"true"`
	AwsEndpointURL     string `vkey:"aws_endpoint_url"      env:"AWS_ENDPOINT_URL"      persist:"true"`

	// Transfer engine
	TransferMaxTotalConnections string `vkey:"transfer_max_total_connections" env:"TRANSFER_MAX_TOTAL_CONNECTIONS" persist:"true" default:"0"`
	TransferMaxHostConnections  string `vkey:"transfer_max_host_connections"  env:"TRANSFER_MAX_HOST_CONNECTIONS"  persist:"true" default:"0"`
	TransferPipelining          string `vkey:"transfer_pipelining"            env:"TRANSFER_PIPELINING"            persist:"true" default:"true"`
	TransferTimeout             string `vkey:"transfer_timeout"               env:"TRANSFER_TIMEOUT"               persist:"true" default:"0s"`
	TransferConnectTimeout      string `vkey:"transfer_connect_timeout"       env:"TRANSFER_CONNECT_TIMEOUT"       persist:"true" default:"30s"`
	TransferUserAgent           string `vkey:"transfer_user_agent"            env:"TRANSFER_USER_AGENT"            persist:"true"`
	TransferVerifyPeer          string `vkey:"transfer_verify_peer"           env:"TRANSFER_VERIFY_PEER"           persist:"true" default:"true"`
	TransferDisabledFeatures    string `vkey:"transfer_disabled_features"     env:"TRANSFER_DISABLED_FEATURES"     persist:"true"`
	TransferShare               string `vkey:"transfer_share"                 env:"TRANSFER_SHARE"                 persist:"true" default:"dns,ssl_session"`
	TransferDNSCacheTTL         string `vkey:"transfer_dns_cache_ttl"         env:"TRANSFER_DNS_CACHE_TTL"         persist:"true" default:"60s"`
	TransferWorkers             string `vkey:"transfer_workers"               env:"TRANSFER_WORKERS"               persist:"true" default:"1"`

	LogLevel  string `vkey:"log_level"  env:"LOG_LEVEL"  persist:"true" default:"info"`
	LogFormat string `vkey:"log_format" env:"LOG_FORMAT" persist:"true" default:"text"`

	IniSource          string `vkey:"ini_source"          env:"INI_SOURCE"          persist:"true"`
	UpdatedEnvironment string `vkey:"updated_environment" env:"UPDATED_ENVIRONMENT" persist:"true" bind:"false"`
	CurrentEnvironment string `vkey:"current_environment" env:"CURRENT_ENVIRONMENT" persist:"false"`
}

// resolveEnvName: --env > "default"
func resolveEnvName(optionalEnv ...string) string {
	if len(optionalEnv) > 0 && optionalEnv[0] != "" && strings.ToLower(optionalEnv[0]) != "null" {
		return optionalEnv[0]
	}
	return "default"
}

// configKey is one tagged field of Config.
type configKey struct {
	vkey    string
	env     string
	def     string
	persist bool
	bind    bool
}

// configKeys yields the tagged fields of Config in declaration order.
func configKeys() iter.Seq[configKey] {
	return func(yield func(configKey) bool) {
		rt := reflect.TypeOf(Config{})
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			k := configKey{
				vkey:    f.Tag.Get("vkey"),
				env:     f.Tag.Get("env"),
				def:     f.Tag.Get("default"),
				persist: f.Tag.Get("persist") == "true",
				bind:    !strings.EqualFold(f.Tag.Get("bind"), "false"),
			}
			if k.vkey == "" {
				continue
			}
			if k.env == "" {
				k.env = strings.ToUpper(strings.ReplaceAll(k.vkey, ".", "_"))
			}
			if !yield(k) {
				return
			}
		}
	}
}

// mirror PREFIX_FOO -> FOO (optional)
func mirrorPrefix(prefix string) {
	if prefix == "" {
		return
	}
	upPrefix := strings.ToUpper(prefix) + "_"
	for _, e := range os.Environ() {
		name, val, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(name, upPrefix) {
			continue
		}
		if unpref := strings.TrimPrefix(name, upPrefix); os.Getenv(unpref) == "" {
			_ = os.Setenv(unpref, val)
		}
	}
}

// BindEnvFromStruct binds every Config key to its env variable and sets
// the tag defaults.
func BindEnvFromStruct(prefix string) {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	mirrorPrefix(prefix)

	for k := range configKeys() {
		if k.bind {
			_ = viper.BindEnv(k.vkey, k.env)
		}
		if k.def != "" && !viper.IsSet(k.vkey) {
			viper.SetDefault(k.vkey, k.def)
		}
	}
}

// fillSection copies the persisted, non empty viper values into sec.
func fillSection(sec *ini.Section) {
	for k := range configKeys() {
		if !k.persist {
			continue
		}
		if val := viper.GetString(k.vkey); val != "" {
			sec.Key(k.vkey).SetValue(val)
		}
	}
}

// saveIni writes cfg readable by the owner only, since sections hold
// credentials.
func saveIni(cfg *ini.File, iniPath string) error {
	f, err := os.OpenFile(iniPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := cfg.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteIniFromStruct writes a new INI holding only the envName section.
func WriteIniFromStruct(iniPath, envName string) error {
	cfg := ini.Empty()
	cfg.Section("DEFAULT").Key(CurrentEnvironment).SetValue(envName)
	fillSection(cfg.Section(envName))
	return saveIni(cfg, iniPath)
}

// UpdateIniFromStruct rewrites the envName section of an existing INI,
// creating the file when missing.
func UpdateIniFromStruct(iniPath, envName string) error {
	cfg, err := ini.Load(iniPath)
	if err != nil {
		return WriteIniFromStruct(iniPath, envName)
	}
	sec := cfg.Section(envName)
	fillSection(sec)

	if !cfg.Section("DEFAULT").HasKey(CurrentEnvironment) {
		cfg.Section("DEFAULT").Key(CurrentEnvironment).SetValue(envName)
	}
	sec.Key(UpdatedEnvKey).SetValue(time.Now().UTC().Format(time.RFC3339))
	return saveIni(cfg, iniPath)
}

// Load [DEFAULT] + [env] into Viper (TOML in-memory). ENV can still override on Get().
func loadIniSectionIntoViper(cfg *ini.File, env string) error {
	def := cfg.Section("DEFAULT")
	selected := def
	if env != "" && cfg.HasSection(env) {
		selected = cfg.Section(env)
		slog.Debug("using ini environment", "env", env)
	} else if env == "" || strings.EqualFold(env, "DEFAULT") {
		slog.Debug("using ini environment", "env", "DEFAULT")
	} else {
		slog.Warn("ini environment not found, falling back to DEFAULT", "env", env)
	}

	merged := make(map[string]string)
	for _, k := range def.Keys() {
		merged[k.Name()] = k.Value()
	}
	if selected != nil && selected != def {
		for _, k := range selected.Keys() {
			merged[k.Name()] = k.Value()
		}
	}

	var buf bytes.Buffer
	for k, v := range merged {
		vSafe := strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), `"`, `\"`)
		_, _ = fmt.Fprintf(&buf, "%s = \"%s\"\n", k, vSafe)
	}
	viper.SetConfigType("toml")
	return viper.ReadConfig(&buf)
}

// RegisterIniCfgWithViper binds the environment, loads the INI (writing
// one from the environment when missing) and selects the active section.
func RegisterIniCfgWithViper(optionalEnv ...string) error {
	iniPath := IniPath()

	BindEnvFromStruct(EnvDumpPrefix)

	cfg, err := ini.Load(iniPath)
	if err != nil {
		slog.Debug("ini not found, reading configuration from env", "path", iniPath)
		envName, bootErr := bootstrapFromEnv(iniPath, optionalEnv...)
		if bootErr != nil {
			slog.Debug("ini bootstrap skipped", "error", bootErr)
			if envName == "" {
				envName = resolveEnvName(optionalEnv...)
			}
			viper.Set(CurrentEnvironment, envName)
			return nil
		}
		if cfg, err = ini.Load(iniPath); err != nil {
			slog.Warn("ini written but cannot reload, using env only", "error", err)
			return nil
		}
	}

	// active env: --env > DEFAULT.current_environment > default
	env := resolveEnvName(optionalEnv...)
	if env == "default" {
		if v := cfg.Section("DEFAULT").Key(CurrentEnvironment).String(); v != "" {
			env = v
		}
	}

	if err := loadIniSectionIntoViper(cfg, env); err != nil {
		return fmt.Errorf("failed to load INI into viper: %w", err)
	}
	viper.Set(CurrentEnvironment, env)
	return nil
}

// bootstrapFromEnv writes a first INI from the environment when none
// exists. Keys tagged bind:"false" only receive their default.
func bootstrapFromEnv(iniPath string, optionalEnv ...string) (string, error) {
	for k := range configKeys() {
		if k.bind {
			if val, ok := os.LookupEnv(k.env); ok {
				viper.Set(k.vkey, val)
				continue
			}
		}
		if k.def != "" && !viper.IsSet(k.vkey) {
			viper.SetDefault(k.vkey, k.def)
		}
	}

	if viper.GetString(DhCoreEndpoint) == "" && viper.GetString(AwsEndpointURL) == "" && viper.GetString(AwsAccessKeyID) == "" {
		return "", fmt.Errorf("no endpoint in env: set %s or %s, or run 'dhtransfer config save'",
			strings.ToUpper(DhCoreEndpoint), strings.ToUpper(AwsEndpointURL))
	}

	envName := resolveEnvName(optionalEnv...)
	viper.Set(CurrentEnvironment, envName)

	viper.Set(IniSource, "env")

	if err := WriteIniFromStruct(iniPath, envName); err != nil {
		return "", fmt.Errorf("write ini failed: %w", err)
	}
	return envName, nil
}

// SaveEnvironment persists the current viper values into the active INI
// section and returns the section name.
func SaveEnvironment() (string, error) {
	env := viper.GetString(CurrentEnvironment)
	if env == "" {
		env = resolveEnvName()
	}
	if err := UpdateIniFromStruct(IniPath(), env); err != nil {
		return "", fmt.Errorf("failed to save ini: %w", err)
	}
	return env, nil
}

// LoadConfig maps the viper keys into the SDK configuration.
func LoadConfig() config.Config {
	engine := config.DefaultEngineConfig()
	engine.MaxTotalConnections = viper.GetInt(TransferMaxTotalConnections)
	engine.MaxHostConnections = viper.GetInt(TransferMaxHostConnections)
	if viper.IsSet(TransferPipelining) {
		engine.Pipelining = viper.GetBool(TransferPipelining)
	}
	engine.Timeout = viper.GetDuration(TransferTimeout)
	if d := viper.GetDuration(TransferConnectTimeout); d > 0 {
		engine.ConnectTimeout = d
	}
	engine.UserAgent = viper.GetString(TransferUserAgent)
	if viper.IsSet(TransferVerifyPeer) {
		engine.VerifyPeer = viper.GetBool(TransferVerifyPeer)
	}
	engine.DisabledFeatures = splitList(viper.GetString(TransferDisabledFeatures))
	engine.ShareData = splitList(viper.GetString(TransferShare))
	if d := viper.GetDuration(TransferDNSCacheTTL); d > 0 {
		engine.DNSCacheTTL = d
	}
	if n := viper.GetInt(TransferWorkers); n > 0 {
		engine.Workers = n
	}

	return config.Config{
		Core: config.CoreConfig{
			BaseURL:           viper.GetString(DhCoreEndpoint),
			AccessToken:       viper.GetString(DhCoreAccessToken),
			BasicAuthUsername: viper.GetString(DhCoreUser),
			BasicAuthPassword: viper.GetString(DhCorePassword),
		},
		Engine: engine,
		S3: config.S3Config{
			AccessKey:   viper.GetString(AwsAccessKeyID),
			SecretKey:   viper.GetString(AwsSecretAccessKey),
			AccessToken: viper.GetString(AwsSessionToken),
			Region:      viper.GetString(AwsRegion),
			EndpointURL: viper.GetString(AwsEndpointURL),
		},
		Log: config.LogConfig{
			Level:  viper.GetString(LogLevel),
			Format: viper.GetString(LogFormat),
		},
	}
}

// splitList splits a comma separated value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
