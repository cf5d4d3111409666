// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/engine"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

// Upload sends a local file or directory to req.Target, an s3 prefix or an
// http(s) URL. Directories are walked and every regular file is sent below
// the target, keeping its relative path. A single file goes to the target
// itself, or below it when the target ends with "/".
func (s *TransferService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Input == "" {
		return nil, errors.New("missing required input file or directory")
	}
	if !s.rt.Supports(engine.FeatureUpload) {
		return nil, errs.Unsupported("transfer.Upload", engine.FeatureUpload.String())
	}
	target, err := utils.ParsePath(req.Target)
	if err != nil {
		return nil, err
	}
	switch target.Scheme {
	case "s3", "http", "https":
	default:
		return nil, fmt.Errorf("unsupported upload target scheme %q", target.Scheme)
	}

	st, err := os.Stat(req.Input)
	if err != nil {
		return nil, fmt.Errorf("cannot access input: %w", err)
	}

	type source struct{ local, rel string }
	var sources []source
	if st.IsDir() {
		err = filepath.Walk(req.Input, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(req.Input, p)
			if err != nil {
				return err
			}
			sources = append(sources, source{local: p, rel: filepath.ToSlash(rel)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("cannot walk input: %w", err)
		}
	} else if target.IsDir() {
		sources = append(sources, source{local: req.Input, rel: st.Name()})
	} else {
		sources = append(sources, source{local: req.Input})
	}

	entries := make([]Entry, 0, len(sources))
	files := make([]map[string]interface{}, 0, len(sources))
	for i, src := range sources {
		dest, err := joinTarget(req.Target, src.rel, st.IsDir())
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(src.local)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", src.local, err)
		}
		ctype := detectContentType(src.local)
		name := src.rel
		if name == "" {
			name = info.Name()
		}
		entries = append(entries, Entry{
			ID:      strconv.Itoa(i + 1),
			URL:     dest,
			Source:  src.local,
			Headers: []string{"Content-Type: " + ctype},
		})
		files = append(files, map[string]interface{}{
			"path":          name,
			"name":          path.Base(name),
			"content_type":  ctype,
			"last_modified": info.ModTime().UTC().Format(http.TimeFormat),
			"size":          info.Size(),
		})
	}

	results, err := s.run(ctx, entries, s.defaultBatch())
	if err != nil {
		return nil, err
	}
	return &UploadResult{Files: files, Results: results}, nil
}

// joinTarget appends rel to the path of target. With an empty rel the
// target is used as is.
func joinTarget(target, rel string, dir bool) (string, error) {
	if rel == "" {
		return target, nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if dir && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.Path = path.Join(u.Path, rel)
	return u.String(), nil
}

// detectContentType sniffs the first 512 bytes of the file.
func detectContentType(p string) string {
	f, err := os.Open(p)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}
