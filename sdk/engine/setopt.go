// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"net/url"
	"strings"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

// apply validates v for opt and stores it. o is untouched on error.
func (o *handleOptions) apply(rt *Runtime, opt Option, v Value) error {
	const op = "handle.SetOpt"

	row, ok := opt.info()
	if !ok {
		return errs.New(errs.KindConfig, op, "unknown option %d", int(opt))
	}
	if row.Feature != 0 && !rt.Supports(row.Feature) {
		return errs.Unsupported(op, row.Name)
	}
	if v.kind != row.Kind {
		return errs.New(errs.KindConfig, op, "%s expects a %s value, got %s", row.Name, row.Kind, v.kind)
	}

	switch opt {
	case OptURL:
		if v.s != "" {
			if _, err := url.Parse(v.s); err != nil {
				return errs.Wrap(errs.KindConfig, op, err)
			}
		}
		o.url = v.s
	case OptMethod:
		if strings.ContainsAny(v.s, " \t\r\n") {
			return errs.New(errs.KindConfig, op, "invalid method %q", v.s)
		}
		o.method = strings.ToUpper(v.s)
	case OptHeaders:
		for _, h := range v.ss {
			name, _, found := strings.Cut(h, ":")
			if !found || strings.TrimSpace(name) == "" {
				return errs.New(errs.KindConfig, op, "malformed header %q", h)
			}
		}
		o.headers = append([]string(nil), v.ss...)
	case OptPostFields:
		o.postFields = []byte(v.s)
	case OptUpload:
		o.upload = v.b
	case OptReadFrom:
		o.readFrom = v.r
	case OptInFileSize:
		if v.i < -1 {
			return errs.New(errs.KindConfig, op, "in_file_size must be >= -1")
		}
		o.inFileSize = v.i
	case OptTimeout:
		if v.d < 0 {
			return errs.New(errs.KindConfig, op, "timeout must not be negative")
		}
		o.timeout = v.d
	case OptConnectTimeout:
		if v.d < 0 {
			return errs.New(errs.KindConfig, op, "connect_timeout must not be negative")
		}
		o.connectTimeout = v.d
	case OptFollowLocation:
		o.followLocation = v.b
	case OptMaxRedirs:
		if v.i < -1 {
			return errs.New(errs.KindConfig, op, "max_redirs must be >= -1")
		}
		o.maxRedirs = int(v.i)
	case OptUserAgent:
		o.userAgent = v.s
	case OptSSLVerifyPeer:
		o.verifyPeer = v.b
	case OptReturnTransfer:
		o.returnTransfer = v.b
	case OptFailOnError:
		o.failOnError = v.b
	case OptWriteTo:
		o.writeTo = v.w
	case OptShare:
		if v.sh != nil && v.sh.Closed() {
			return errs.New(errs.KindConfig, op, "share is closed")
		}
		o.share = v.sh
	case OptHTTPVersion:
		switch v.i {
		case HTTPVersionNone, HTTPVersion1_1:
		case HTTPVersion2:
			if !rt.Supports(FeatureHTTP2) {
				return errs.Unsupported(op, "http2")
			}
		default:
			return errs.New(errs.KindConfig, op, "unknown http version %d", v.i)
		}
		o.httpVersion = v.i
	case OptBufferSize:
		if v.i < 0 || v.i > maxBufferSize {
			return errs.New(errs.KindConfig, op, "buffer_size out of range")
		}
		o.bufferSize = int(v.i)
	case OptNoBody:
		o.noBody = v.b
	case OptPrivate:
		o.private = v.s
	}
	return nil
}
