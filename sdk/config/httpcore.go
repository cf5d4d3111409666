// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// CoreHTTP resolves transfer targets against the configured core endpoint
// and supplies the authentication headers for them.
type CoreHTTP interface {
	BuildURL(target string, params map[string]string) (string, error)
	AuthHeaders() []string
}

type httpCore struct {
	coreConfig CoreConfig
}

func NewHTTPCore(coreConfig CoreConfig) CoreHTTP {
	return &httpCore{coreConfig: coreConfig}
}

// BuildURL returns target unchanged when it is absolute, otherwise joins it
// to BaseURL. Empty params are skipped.
func (httpCore *httpCore) BuildURL(target string, params map[string]string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() && httpCore.coreConfig.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(httpCore.coreConfig.BaseURL, "/") + "/")
		if err != nil {
			return "", err
		}
		u = base.ResolveReference(&url.URL{Path: strings.TrimPrefix(u.Path, "/"), RawQuery: u.RawQuery})
	}
	if len(params) > 0 {
		q := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := params[k]; v != "" {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (httpCore *httpCore) AuthHeaders() []string {
	var headers []string
	// If access token is set, add Authorization header
	if tok := httpCore.coreConfig.AccessToken; tok != "" {
		headers = append(headers, "Authorization: Bearer "+tok)
	} else if user := httpCore.coreConfig.BasicAuthUsername; user != "" {
		// If basic auth is set, add Basic Auth header
		cred := base64.StdEncoding.EncodeToString([]byte(user + ":" + httpCore.coreConfig.BasicAuthPassword))
		headers = append(headers, "Authorization: Basic "+cred)
	}
	return headers
}
