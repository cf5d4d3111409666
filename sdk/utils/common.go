// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// IniPathEnv overrides the location of the configuration file.
const IniPathEnv = "DHTRANSFER_INI"

// IniPath is the location of the configuration file: $DHTRANSFER_INI, else
// IniName in the home directory, else in the working directory.
func IniPath() string {
	if p := strings.TrimSpace(os.Getenv(IniPathEnv)); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, IniName)
}

// TranslateFormat normalizes an output format name to json, yaml or short.
func TranslateFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	}
	return "short"
}

// PrettyJSON indents b, returning it unchanged when it is not valid JSON.
func PrettyJSON(b []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return string(b)
	}
	return out.String()
}
