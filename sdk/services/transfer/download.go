// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

// Download fetches every URL in req into req.Destination. An s3 URL ending
// with "/" is a prefix and is downloaded object by object, keeping the
// layout below the prefix. URLs that cannot be fetched are logged and
// skipped; the returned list holds the files actually written.
func (s *TransferService) Download(ctx context.Context, req DownloadRequest) ([]DownloadInfo, error) {
	if len(req.URLs) == 0 {
		return nil, errors.New("at least one url is required")
	}

	var entries []Entry
	add := func(url, dst string) {
		entries = append(entries, Entry{ID: strconv.Itoa(len(entries) + 1), URL: url, Destination: dst})
	}

	for _, raw := range req.URLs {
		pp, err := utils.ParsePath(raw)
		if err != nil {
			s.logger.Warn("skipping url", "url", raw, "error", err)
			continue
		}

		switch pp.Scheme {
		case "s3":
			if !pp.IsDir() {
				target, err := chooseLocalTarget(req.Destination, pp.Filename)
				if err != nil {
					s.logger.Warn("skipping url", "url", raw, "error", err)
					continue
				}
				add(raw, target)
				continue
			}
			if s.s3 == nil {
				s.logger.Warn("skipping url", "url", raw, "error", "s3 is not configured")
				continue
			}
			files, err := s.s3.ListFilesAll(ctx, pp.Host, pp.Path)
			if err != nil {
				s.logger.Warn("cannot list prefix", "url", raw, "error", err)
				continue
			}
			base := req.Destination
			if base == "" {
				base = "."
			}
			for _, f := range files {
				rel := strings.TrimPrefix(f.Path, pp.Path)
				if rel == "" || strings.HasSuffix(rel, "/") {
					continue
				}
				target, ok := withinDir(base, rel)
				if !ok {
					s.logger.Warn("skipping object outside destination", "key", f.Path, "destination", base)
					continue
				}
				add("s3://"+pp.Host+"/"+f.Path, target)
			}

		case "http", "https":
			target, err := chooseLocalTarget(req.Destination, pp.Filename)
			if err != nil {
				s.logger.Warn("skipping url", "url", raw, "error", err)
				continue
			}
			add(raw, target)

		default:
			s.logger.Warn("skipping url", "url", raw, "error", "unsupported scheme "+pp.Scheme)
		}
	}

	results, err := s.run(ctx, entries, s.defaultBatch())
	if err != nil {
		return nil, err
	}

	var out []DownloadInfo
	for i, r := range results {
		if !r.OK() {
			continue
		}
		target := entries[i].Destination
		if st, err := os.Stat(target); err == nil && !st.IsDir() {
			out = append(out, DownloadInfo{
				Filename: filepath.Base(target),
				Size:     st.Size(),
				Path:     target,
			})
		}
	}
	return out, nil
}

// chooseLocalTarget picks the local file for a download:
// - empty dst: filename in the working directory
// - existing directory: dst/filename
// - existing file: dst
// - missing dst: dst is created as a directory and dst/filename is used
func chooseLocalTarget(dst, filename string) (string, error) {
	if dst == "" {
		return filename, nil
	}
	info, statErr := os.Stat(dst)
	if statErr == nil {
		if info.IsDir() {
			return filepath.Join(dst, filename), nil
		}
		return dst, nil
	}
	if os.IsNotExist(statErr) {
		if mkErr := os.MkdirAll(dst, 0o755); mkErr != nil {
			return "", mkErr
		}
		return filepath.Join(dst, filename), nil
	}
	return "", statErr
}

// withinDir joins the slash separated rel onto base, reporting false when
// the result escapes base.
func withinDir(base, rel string) (string, bool) {
	target := filepath.Join(base, filepath.FromSlash(rel))
	r, err := filepath.Rel(base, target)
	if err != nil || filepath.IsAbs(r) || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}
