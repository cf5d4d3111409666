// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/smithy-go"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/config"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

type s3Driver struct {
	client *config.S3Client
}

// NewS3 returns a driver for s3://bucket/key URLs backed by client.
// GET streams the object, HEAD (no body) reads its metadata and an upload
// source stores it.
func NewS3(client *config.S3Client) Driver { return &s3Driver{client: client} }

func (d *s3Driver) Schemes() []string { return []string{"s3"} }

func (d *s3Driver) NewSession() Session { return &s3Session{client: d.client} }

type s3Session struct {
	mu     sync.Mutex
	closed bool
	client *config.S3Client
}

func (s *s3Session) Open(ctx context.Context, req *Request, notify func()) (Conn, error) {
	const op = "s3.Open"

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errs.Transport(errs.CodeUnknown, op, errors.New("session closed"))
	}
	if req.URL == nil || req.URL.Scheme != "s3" {
		return nil, errs.Transport(errs.CodeUnsupportedProtocol, op, nil)
	}
	bucket := req.URL.Host
	key := strings.TrimPrefix(req.URL.Path, "/")
	if bucket == "" || key == "" {
		return nil, errs.Transport(errs.CodeURLMalformed, op, nil)
	}

	st := newStream(ctx, notify)
	st.run(func(sctx context.Context) {
		tctx := sctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			tctx, cancel = context.WithTimeout(sctx, req.Timeout)
			defer cancel()
		}

		effective := req.URL.String()
		switch {
		case req.Upload != nil:
			err := s.client.PutStream(tctx, bucket, key, uploadReader(tctx, req), req.UploadSize, req.Header.Get("Content-Type"))
			if err != nil {
				s3Fail(st, op, effective, err)
				return
			}
			if st.emit(Event{Kind: EventHeader, Response: &Response{
				StatusCode:    http.StatusOK,
				Proto:         "S3",
				Header:        http.Header{},
				ContentLength: 0,
				EffectiveURL:  effective,
			}}) {
				st.finish(nil)
			}

		case req.NoBody:
			obj, err := s.client.HeadObject(tctx, bucket, key)
			if err != nil {
				s3Fail(st, op, effective, err)
				return
			}
			if st.emit(Event{Kind: EventHeader, Response: objectResponse(obj, effective)}) {
				st.finish(nil)
			}

		default:
			obj, err := s.client.OpenObject(tctx, bucket, key)
			if err != nil {
				s3Fail(st, op, effective, err)
				return
			}
			defer obj.Body.Close()
			if !st.emit(Event{Kind: EventHeader, Response: objectResponse(obj, effective)}) {
				return
			}
			if err := st.pump(obj.Body, bufferSize(req)); err != nil {
				st.finish(transportError(op, err))
				return
			}
			st.finish(nil)
		}
	})
	return st, nil
}

func (s *s3Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func objectResponse(obj *config.S3Object, effective string) *Response {
	h := http.Header{}
	if obj.ContentType != "" {
		h.Set("Content-Type", obj.ContentType)
	}
	if obj.ETag != "" {
		h.Set("ETag", obj.ETag)
	}
	h.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	return &Response{
		StatusCode:    http.StatusOK,
		Proto:         "S3",
		Header:        h,
		ContentLength: obj.Size,
		ContentType:   obj.ContentType,
		EffectiveURL:  effective,
	}
}

// s3Fail reports err. A service answer carrying an HTTP status becomes a
// response with that status so that the caller sees it like any other
// protocol error response.
func s3Fail(st *stream, op, effective string, err error) {
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) && status.HTTPStatusCode() > 0 {
		if st.emit(Event{Kind: EventHeader, Response: &Response{
			StatusCode:   status.HTTPStatusCode(),
			Proto:        "S3",
			Header:       http.Header{},
			EffectiveURL: effective,
		}}) {
			st.finish(nil)
		}
		return
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied" {
		st.finish(errs.Transport(errs.CodeRemoteAccessDenied, op, err))
		return
	}
	st.finish(transportError(op, err))
}
