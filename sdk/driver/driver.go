// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

// Package driver is the boundary between the transfer engine and the
// libraries that perform protocol I/O.
//
// A Driver hands out Sessions, one per transfer handle. A Session opens a
// Conn for each transfer. A Conn never blocks its caller: Ready reports
// whether events are pending, Next pops one if so, and the notify callback
// passed to Open fires whenever a new event is queued. The last event of
// every transfer is EventDone, carrying nil or an *errs.Error of kind
// KindTransport.
package driver

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/share"
)

type Driver interface {
	// Schemes lists the URL schemes served by the driver.
	Schemes() []string
	// NewSession creates the per-handle transport resource.
	NewSession() Session
}

type Session interface {
	// Open starts a transfer. Background work stops when ctx is cancelled
	// or the returned Conn is closed.
	Open(ctx context.Context, req *Request, notify func()) (Conn, error)
	// Close releases idle connections and caches. Idempotent.
	Close() error
}

type Conn interface {
	Ready() bool
	Next() (Event, bool)
	// Close aborts the transfer and waits for background work to exit.
	Close() error
}

// Request is a fully resolved transfer description.
type Request struct {
	URL    *url.URL
	Method string
	Header http.Header

	// Body is sent as-is (post fields). Upload, when set, takes precedence.
	Body       []byte
	Upload     io.Reader
	UploadSize int64 // negative when unknown
	SendGate   *SendGate

	NoBody          bool
	Timeout         time.Duration
	ConnectTimeout  time.Duration
	FollowRedirects bool
	MaxRedirects    int // negative means unlimited
	VerifyPeer      bool
	UserAgent       string
	HTTP2           bool
	BufferSize      int

	Share *share.Share
}

// Response is the metadata of a transfer response.
type Response struct {
	StatusCode    int
	Proto         string
	Header        http.Header
	ContentLength int64
	ContentType   string
	EffectiveURL  string
	RedirectCount int
}

type EventKind int

const (
	EventHeader EventKind = iota + 1
	EventData
	EventDone
)

type Event struct {
	Kind     EventKind
	Response *Response
	Data     []byte
	Err      error
}

const (
	defaultBufferSize     = 16 * 1024
	defaultConnectTimeout = 30 * time.Second
	eventBacklog          = 8
)

func bufferSize(req *Request) int {
	if req.BufferSize > 0 {
		return req.BufferSize
	}
	return defaultBufferSize
}
