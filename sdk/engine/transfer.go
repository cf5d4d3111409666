// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/driver"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

// upper bound of events consumed per transfer in one step
const maxEventsPerStep = 64

// transfer is the in-flight state of one execution of a handle.
type transfer struct {
	h       *Handle
	opts    handleOptions
	scheme  string
	host    string
	conn    driver.Conn
	gate    *driver.SendGate
	cancel  context.CancelFunc
	begin   time.Time
	elapsed time.Duration
	counted bool

	resp    *driver.Response
	capture bytes.Buffer
	down    int64
	err     error
	done    bool
}

// startTransfer opens a connection for h. Failures to start come back as a
// transfer that is already done.
func startTransfer(ctx context.Context, h *Handle, opts handleOptions, pipelining bool, notify func()) *transfer {
	const op = "transfer.start"

	t := &transfer{h: h, opts: opts, begin: time.Now()}

	req, err := buildRequest(h.rt, opts, pipelining)
	if err != nil {
		t.fail(err)
		return t
	}
	t.scheme = req.URL.Scheme
	t.host = req.URL.Host
	t.gate = req.SendGate

	drv, ok := h.rt.driverFor(req.URL.Scheme)
	if !ok {
		t.fail(errs.Transport(errs.CodeUnsupportedProtocol, op, errors.New("no driver for scheme "+req.URL.Scheme)))
		return t
	}
	sess := h.session(req.URL.Scheme, drv)

	tctx, cancel := context.WithCancel(ctx)
	conn, err := sess.Open(tctx, req, notify)
	if err != nil {
		cancel()
		if errs.KindOf(err) != errs.KindTransport {
			err = errs.Transport(driver.Classify(err), op, err)
		}
		t.fail(err)
		return t
	}
	t.conn = conn
	t.cancel = cancel
	t.counted = true
	h.rt.metrics.transferStarted(t.scheme)
	return t
}

func buildRequest(rt *Runtime, opts handleOptions, pipelining bool) (*driver.Request, error) {
	const op = "transfer.request"

	raw := strings.TrimSpace(opts.url)
	if raw == "" {
		return nil, errs.Transport(errs.CodeURLMalformed, op, errors.New("no URL set"))
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errs.Transport(errs.CodeURLMalformed, op, err)
	}

	header := http.Header{}
	for _, line := range opts.headers {
		name, value, _ := strings.Cut(line, ":")
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	req := &driver.Request{
		URL:             u,
		Method:          opts.method,
		Header:          header,
		Body:            opts.postFields,
		NoBody:          opts.noBody,
		Timeout:         opts.timeout,
		ConnectTimeout:  opts.connectTimeout,
		FollowRedirects: opts.followLocation,
		MaxRedirects:    opts.maxRedirs,
		VerifyPeer:      opts.verifyPeer,
		UserAgent:       opts.userAgent,
		HTTP2:           rt.Supports(FeatureHTTP2) && opts.httpVersion != HTTPVersion1_1 && pipelining,
		BufferSize:      opts.bufferSize,
		Share:           opts.share,
	}
	if opts.share != nil && opts.share.Closed() {
		// closed after SetOpt; the cause stays a config error
		return nil, errs.Transport(errs.CodeBadShare, op, errs.New(errs.KindConfig, op, "share is closed"))
	}
	if opts.upload {
		if opts.readFrom == nil {
			return nil, errs.Transport(errs.CodeReadError, op, errors.New("upload enabled without a source"))
		}
		req.Upload = opts.readFrom
		req.UploadSize = opts.inFileSize
		req.SendGate = driver.NewSendGate()
	}
	return req, nil
}

// hostOf returns the host part of a configured URL, used for the per-host
// connection limit.
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// advance consumes the events queued so far without blocking.
func (t *transfer) advance() {
	for i := 0; i < maxEventsPerStep && !t.done; i++ {
		if t.h.paused()&PauseRecv != 0 {
			return
		}
		ev, ok := t.conn.Next()
		if !ok {
			return
		}
		t.handle(ev)
	}
}

// ready reports whether a step would make progress on t.
func (t *transfer) ready() bool {
	if t.done {
		return true
	}
	if t.h.paused()&PauseRecv != 0 {
		return false
	}
	return t.conn.Ready()
}

func (t *transfer) handle(ev driver.Event) {
	const op = "transfer"

	switch ev.Kind {
	case driver.EventHeader:
		t.resp = ev.Response
		if t.opts.failOnError && ev.Response.StatusCode >= 400 {
			t.fail(errs.Transport(errs.CodeHTTPReturnedError, op,
				errors.New("the requested URL returned error: "+http.StatusText(ev.Response.StatusCode))))
		}
	case driver.EventData:
		t.down += int64(len(ev.Data))
		if t.opts.returnTransfer {
			t.capture.Write(ev.Data)
		}
		if w := t.opts.writeTo; w != nil {
			if _, err := w.Write(ev.Data); err != nil {
				t.fail(errs.Transport(errs.CodeWriteError, op, err))
			}
		}
	case driver.EventDone:
		t.fail(ev.Err)
	}
}

// fail completes t with err, nil meaning success, and closes the connection.
func (t *transfer) fail(err error) {
	if t.done {
		return
	}
	t.done = true
	t.err = err
	t.elapsed = time.Since(t.begin)
	t.release()
}

// release stops background work. Safe to call more than once.
func (t *transfer) release() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.gate != nil {
		t.gate.Resume()
	}
}

// abort stops t without producing a result.
func (t *transfer) abort() {
	if !t.done {
		t.done = true
		t.err = errs.Transport(errs.CodeAbortedByCallback, "transfer", context.Canceled)
		t.elapsed = time.Since(t.begin)
	}
	t.release()
}

func (t *transfer) code() errs.Code { return errs.CodeOf(t.err) }

func (t *transfer) info() Info {
	info := Info{
		ContentLength:   -1,
		BytesDownloaded: t.down,
		TotalTime:       t.elapsed,
		Private:         t.opts.private,
	}
	if t.gate != nil {
		info.BytesUploaded = t.gate.Sent()
	}
	if r := t.resp; r != nil {
		info.EffectiveURL = r.EffectiveURL
		info.ResponseCode = r.StatusCode
		info.Proto = r.Proto
		info.ContentType = r.ContentType
		info.ContentLength = r.ContentLength
		info.RedirectCount = r.RedirectCount
	}
	return info
}
