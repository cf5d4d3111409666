// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

// LoadManifest reads a YAML (or JSON) manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest: %w", err)
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if len(m.Transfers) == 0 {
		return nil, errors.New("manifest has no transfers")
	}
	if m.Workers < 0 || m.MaxTotalConnections < 0 || m.MaxHostConnections < 0 {
		return nil, errors.New("manifest limits must not be negative")
	}
	return &m, nil
}

// manifest headers add to the default ones
var entryMerge = utils.MergeConfig{"headers": utils.MergeAppend}

// Entries merges the defaults into every transfer and decodes the result.
// Entries without an id are numbered from 1.
func (m *Manifest) Entries() ([]Entry, error) {
	out := make([]Entry, 0, len(m.Transfers))
	for i, raw := range m.Transfers {
		merged := utils.MergeMaps(m.Defaults, raw, entryMerge)
		b, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("transfer %d: %w", i+1, err)
		}
		var e Entry
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("transfer %d: %w", i+1, err)
		}
		if e.URL == "" {
			return nil, fmt.Errorf("transfer %d: url is required", i+1)
		}
		if e.Timeout != "" {
			if _, err := time.ParseDuration(e.Timeout); err != nil {
				return nil, fmt.Errorf("transfer %d: invalid timeout: %w", i+1, err)
			}
		}
		if e.ID == "" {
			e.ID = strconv.Itoa(i + 1)
		}
		out = append(out, e)
	}
	return out, nil
}
