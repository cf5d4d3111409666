// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/config"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		raw, scheme, host, path, filename string
		dir                               bool
	}{
		{"s3://bucket/a/b.csv", "s3", "bucket", "a/b.csv", "b.csv", false},
		{"s3://bucket/a/", "s3", "bucket", "a/", "", true},
		{"https://example.com/x/y.txt", "https", "example.com", "/x/y.txt", "y.txt", false},
		{"http://example.com", "http", "example.com", "", "index.html", false},
	}
	for _, tc := range cases {
		p, err := ParsePath(tc.raw)
		if err != nil {
			t.Fatalf("ParsePath(%q): %v", tc.raw, err)
		}
		if p.Scheme != tc.scheme || p.Host != tc.host || p.Path != tc.path || p.Filename != tc.filename || p.IsDir() != tc.dir {
			t.Errorf("ParsePath(%q) = %+v", tc.raw, p)
		}
	}
	if _, err := ParsePath("relative/path"); err == nil {
		t.Error("expected error for a path without scheme")
	}
}

func TestLoadConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set(TransferMaxTotalConnections, "8")
	viper.Set(TransferMaxHostConnections, 2)
	viper.Set(TransferPipelining, "false")
	viper.Set(TransferTimeout, "90s")
	viper.Set(TransferDisabledFeatures, "pause, reset,")
	viper.Set(TransferShare, "dns")
	viper.Set(TransferWorkers, "4")
	viper.Set(AwsEndpointURL, "http://minio:9000")
	viper.Set(DhCoreAccessToken, "tok")
	viper.Set(LogLevel, "debug")

	cfg := LoadConfig()
	if cfg.Engine.MaxTotalConnections != 8 || cfg.Engine.MaxHostConnections != 2 {
		t.Fatalf("connection limits: %+v", cfg.Engine)
	}
	if cfg.Engine.Pipelining {
		t.Fatal("pipelining should be off")
	}
	if cfg.Engine.Timeout != 90*time.Second {
		t.Fatalf("timeout = %v", cfg.Engine.Timeout)
	}
	if cfg.Engine.ConnectTimeout != 30*time.Second || !cfg.Engine.VerifyPeer {
		t.Fatalf("defaults not kept: %+v", cfg.Engine)
	}
	if strings.Join(cfg.Engine.DisabledFeatures, "|") != "pause|reset" {
		t.Fatalf("disabled features = %q", cfg.Engine.DisabledFeatures)
	}
	if cfg.Engine.Workers != 4 || strings.Join(cfg.Engine.ShareData, ",") != "dns" {
		t.Fatalf("workers/share: %+v", cfg.Engine)
	}
	if !cfg.S3.Enabled() || cfg.Core.AccessToken != "tok" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestWriteAndUpdateIni(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), IniName)
	viper.Set(AwsEndpointURL, "http://minio:9000")
	viper.Set(TransferWorkers, "3")
	viper.Set(CurrentEnvironment, "local")

	if err := WriteIniFromStruct(path, "local"); err != nil {
		t.Fatalf("write: %v", err)
	}
	viper.Set(TransferWorkers, "5")
	if err := UpdateIniFromStruct(path, "local"); err != nil {
		t.Fatalf("update: %v", err)
	}

	f, err := ini.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := f.Section("DEFAULT").Key(CurrentEnvironment).String(); got != "local" {
		t.Fatalf("current env = %q", got)
	}
	sec := f.Section("local")
	if sec.Key(TransferWorkers).String() != "5" || sec.Key(AwsEndpointURL).String() != "http://minio:9000" {
		t.Fatalf("unexpected section: %v", sec.KeysHash())
	}
	if sec.Key(CurrentEnvironment).String() != "" {
		t.Fatal("current_environment must not be persisted in the section")
	}

	viper.Reset()
	if err := loadIniSectionIntoViper(f, "local"); err != nil {
		t.Fatalf("load into viper: %v", err)
	}
	if viper.GetInt(TransferWorkers) != 5 {
		t.Fatalf("workers from ini = %d", viper.GetInt(TransferWorkers))
	}
}

func TestIniPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(IniPathEnv, "")
	if got := IniPath(); got != filepath.Join(home, IniName) {
		t.Fatalf("IniPath() = %q", got)
	}
	t.Setenv(IniPathEnv, "/etc/dhtransfer.ini")
	if got := IniPath(); got != "/etc/dhtransfer.ini" {
		t.Fatalf("IniPath() with override = %q", got)
	}
}

func TestRegisterBootstrapsFromEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "transfer.ini")
	t.Setenv(IniPathEnv, path)
	t.Setenv("AWS_ENDPOINT_URL", "http://minio:9000")
	t.Setenv("TRANSFER_WORKERS", "6")

	if err := RegisterIniCfgWithViper(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if viper.GetString(CurrentEnvironment) != "default" || viper.GetString(IniSource) != "env" {
		t.Fatalf("env = %q source = %q", viper.GetString(CurrentEnvironment), viper.GetString(IniSource))
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("ini not written: %v", err)
	}
	if st.Mode().Perm()&0o077 != 0 {
		t.Fatalf("ini is readable by others: %v", st.Mode().Perm())
	}
	f, err := ini.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sec := f.Section("default")
	if sec.Key(AwsEndpointURL).String() != "http://minio:9000" || sec.Key(TransferWorkers).String() != "6" {
		t.Fatalf("unexpected section: %v", sec.KeysHash())
	}
}

func TestTranslateFormat(t *testing.T) {
	for in, want := range map[string]string{"JSON": "json", " yml": "yaml", "yaml": "yaml", "": "short", "table": "short"} {
		if got := TranslateFormat(in); got != want {
			t.Errorf("TranslateFormat(%q) = %q, want %q", in, got, want)
		}
	}
	if got := PrettyJSON([]byte(`{"a":1}`)); got != "{\n  \"a\": 1\n}" {
		t.Errorf("PrettyJSON = %q", got)
	}
	if got := PrettyJSON([]byte("not json")); got != "not json" {
		t.Errorf("PrettyJSON kept invalid input as %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected output: %s", out)
	}
	if !l.Enabled(t.Context(), slog.LevelError) {
		t.Fatal("error level should be enabled")
	}
	if _, err := NewLogger(config.LogConfig{Level: "loud"}, &buf); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestMergeMaps(t *testing.T) {
	defaults := map[string]interface{}{
		"timeout": "30s",
		"headers": []interface{}{"Accept: */*"},
		"nested":  map[string]interface{}{"a": 1, "b": 2},
		"files": []interface{}{
			map[string]interface{}{"name": "a", "size": 1},
			map[string]interface{}{"name": "b", "size": 2},
		},
		"tags": []interface{}{"x"},
	}
	entry := map[string]interface{}{
		"timeout": "5s",
		"headers": []interface{}{"X-Id: 1"},
		"nested":  map[string]interface{}{"b": 3},
		"files": []interface{}{
			map[string]interface{}{"name": "b", "size": 20},
			map[string]interface{}{"name": "c", "size": 3},
		},
		"tags": []interface{}{"y"},
	}
	got := MergeMaps(defaults, entry, MergeConfig{"headers": MergeAppend, "files": "key:name"})
	if got["timeout"] != "5s" {
		t.Fatalf("timeout = %v", got["timeout"])
	}
	nested := got["nested"].(map[string]interface{})
	if nested["a"] != 1 || nested["b"] != 3 {
		t.Fatalf("nested = %v", nested)
	}
	headers := got["headers"].([]interface{})
	if len(headers) != 2 || headers[0] != "Accept: */*" || headers[1] != "X-Id: 1" {
		t.Fatalf("headers = %v", headers)
	}
	files := got["files"].([]interface{})
	if len(files) != 3 {
		t.Fatalf("files = %v", files)
	}
	if f := files[1].(map[string]interface{}); f["name"] != "b" || f["size"] != 20 {
		t.Fatalf("files[1] = %v", f)
	}
	if f := files[2].(map[string]interface{}); f["name"] != "c" {
		t.Fatalf("files[2] = %v", f)
	}
	if tags := got["tags"].([]interface{}); len(tags) != 1 || tags[0] != "y" {
		t.Fatalf("tags = %v", tags)
	}
	if len(defaults["headers"].([]interface{})) != 1 || defaults["nested"].(map[string]interface{})["b"] != 2 {
		t.Fatal("inputs must not be modified")
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	gp := NewProgress(&buf, 2048)
	gp.Write(make([]byte, 1024))
	gp.FileDone()
	gp.Done()
	if !strings.Contains(buf.String(), "50.00%") || !strings.Contains(buf.String(), "1 files") {
		t.Fatalf("unexpected progress output: %q", buf.String())
	}

	var nilProgress *Progress
	nilProgress.Add(10)
	nilProgress.Done()
}
