// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ParsedPath is a remote location split into its parts. Path keeps the
// leading slash for http(s) and drops it for s3, where it is the key.
type ParsedPath struct {
	Scheme   string
	Host     string
	Path     string
	Filename string
	Raw      string
}

// IsDir reports whether the path names a prefix rather than one object.
func (p *ParsedPath) IsDir() bool { return strings.HasSuffix(p.Path, "/") }

func ParsePath(raw string) (*ParsedPath, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid path %q: scheme and host are required", raw)
	}
	p := &ParsedPath{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Host,
		Path:   u.Path,
		Raw:    raw,
	}
	if p.Scheme == "s3" {
		p.Path = strings.TrimPrefix(u.Path, "/")
	}
	if !p.IsDir() {
		p.Filename = path.Base(u.Path)
		if p.Filename == "/" || p.Filename == "." {
			p.Filename = "index.html"
		}
	}
	return p, nil
}
