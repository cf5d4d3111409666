// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/driver"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

// interval used by Perform to re-check a receive-paused transfer
const pausePoll = 10 * time.Millisecond

// Handle is one configurable transfer. A handle is used from one goroutine
// at a time; Pause and Close may also be called while Perform runs on
// another goroutine.
type Handle struct {
	mu    sync.Mutex
	id    string
	rt    *Runtime
	state State
	opts  handleOptions

	owner       *Multi
	xfer        *transfer
	syncRunning bool
	syncCancel  context.CancelFunc
	pause       atomic.Uint32

	sessions map[string]driver.Session

	executed bool
	err      error
	content  []byte
	header   http.Header
	info     Info
}

// NewHandle creates a handle with the defaults of rt. A nil rt means a
// runtime from NewRuntime.
func NewHandle(rt *Runtime) *Handle {
	rt = runtimeOrDefault(rt)
	return &Handle{
		id:       utils.UUIDv4NoDash(),
		rt:       rt,
		state:    StateCreated,
		opts:     defaultOptions(rt),
		sessions: map[string]driver.Session{},
	}
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Supports(f Feature) bool { return h.rt.Supports(f) }

// configurable reports whether options may change. Caller holds h.mu.
func (h *Handle) configurable(op string) error {
	switch {
	case h.state == StateRemoved:
		return errs.New(errs.KindHandleState, op, "handle is closed")
	case h.syncRunning || h.xfer != nil:
		return errs.New(errs.KindHandleState, op, "transfer in progress")
	case h.owner != nil:
		return errs.New(errs.KindHandleState, op, "handle is registered with a coordinator")
	}
	return nil
}

// SetOpt sets one option. Unknown options and invalid values fail with a
// config error, options needing a disabled feature with an unsupported
// error.
func (h *Handle) SetOpt(opt Option, v Value) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.configurable("handle.SetOpt"); err != nil {
		return err
	}
	return h.opts.apply(h.rt, opt, v)
}

// SetOpts applies settings in order and stops at the first failure.
// Settings applied before the failing one stay in effect.
func (h *Handle) SetOpts(settings ...Setting) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.configurable("handle.SetOpts"); err != nil {
		return err
	}
	for _, s := range settings {
		if err := h.opts.apply(h.rt, s.Option, s.Value); err != nil {
			return err
		}
	}
	return nil
}

// Perform runs the transfer on the calling goroutine. It returns the
// response body when OptReturnTransfer is set. A nil error means the
// transfer succeeded; an HTTP error status is a success unless
// OptFailOnError is set.
func (h *Handle) Perform(ctx context.Context) ([]byte, error) {
	const op = "handle.Perform"

	if ctx == nil {
		ctx = context.Background()
	}
	h.mu.Lock()
	switch {
	case h.state == StateRemoved:
		h.mu.Unlock()
		return nil, errs.New(errs.KindHandleState, op, "handle is closed")
	case h.owner != nil:
		h.mu.Unlock()
		return nil, errs.New(errs.KindHandleState, op, "handle is registered with a coordinator")
	case h.syncRunning:
		h.mu.Unlock()
		return nil, errs.New(errs.KindHandleState, op, "transfer in progress")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.syncRunning = true
	h.syncCancel = cancel
	h.state = StateRunning
	opts := h.opts.clone()
	h.mu.Unlock()

	wake := make(chan struct{}, 1)
	notify := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	h.rt.logger.Debug("transfer started", "handle", h.id, "url", opts.url)
	t := startTransfer(ctx, h, opts, true, notify)
	h.mu.Lock()
	h.xfer = t
	h.mu.Unlock()

	var poll *time.Ticker
	for !t.done {
		t.advance()
		if t.done {
			break
		}
		var tick <-chan time.Time
		if h.paused()&PauseRecv != 0 {
			if poll == nil {
				poll = time.NewTicker(pausePoll)
				defer poll.Stop()
			}
			tick = poll.C
		}
		select {
		case <-wake:
		case <-tick:
		case <-ctx.Done():
			t.fail(errs.Transport(driver.Classify(ctx.Err()), op, ctx.Err()))
		}
	}

	h.mu.Lock()
	h.syncRunning = false
	h.syncCancel = nil
	h.complete(t)
	if h.state == StateRunning {
		h.state = StateCompleted
	}
	closed := h.state == StateRemoved
	content, err := h.content, h.err
	h.mu.Unlock()
	if closed {
		h.closeSessions()
	}
	return content, err
}

// complete stores the outcome of t. Caller holds h.mu.
func (h *Handle) complete(t *transfer) {
	h.xfer = nil
	h.pause.Store(0)
	h.executed = true
	h.err = t.err
	h.info = t.info()
	h.header = nil
	if t.resp != nil && t.resp.Header != nil {
		h.header = t.resp.Header.Clone()
	}
	h.content = nil
	if t.opts.returnTransfer {
		h.content = append([]byte{}, t.capture.Bytes()...)
	}
	if t.counted {
		h.rt.metrics.transferFinished(t.scheme, t.code(), t.elapsed)
	}
	h.rt.logger.Debug("transfer completed", "handle", h.id, "code", t.code().String(),
		"status", h.info.ResponseCode, "bytes", t.down)
}

// session returns the driver session for scheme, creating it on first use.
func (h *Handle) session(scheme string, d driver.Driver) driver.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[scheme]
	if !ok {
		s = d.NewSession()
		h.sessions[scheme] = s
	}
	return s
}

func (h *Handle) closeSessions() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = map[string]driver.Session{}
	h.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (h *Handle) paused() PauseMask { return PauseMask(h.pause.Load()) }

// Executed reports whether a transfer has completed on h since it was
// created. Before that ErrorCode reads CodeOK.
func (h *Handle) Executed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.executed
}

// ErrorCode is the result code of the last transfer.
func (h *Handle) ErrorCode() errs.Code {
	h.mu.Lock()
	defer h.mu.Unlock()
	return errs.CodeOf(h.err)
}

// ErrorMessage describes the last failure, or is empty.
func (h *Handle) ErrorMessage() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err == nil {
		return ""
	}
	return h.err.Error()
}

// Err is the error of the last transfer.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Content returns the captured body of the last transfer.
func (h *Handle) Content() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content
}

func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

func (h *Handle) ResponseHeader() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.header.Clone()
}

// Private returns the value of OptPrivate.
func (h *Handle) Private() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts.private
}

// Reset restores the default options. Connections and the last result are
// kept.
func (h *Handle) Reset() error {
	const op = "handle.Reset"
	if !h.rt.Supports(FeatureReset) {
		return errs.Unsupported(op, FeatureReset.String())
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.configurable(op); err != nil {
		return err
	}
	h.opts = defaultOptions(h.rt)
	return nil
}

// Pause sets the paused directions of the running transfer; PauseCont
// resumes both.
func (h *Handle) Pause(mask PauseMask) error {
	const op = "handle.Pause"
	if !h.rt.Supports(FeaturePause) {
		return errs.Unsupported(op, FeaturePause.String())
	}
	if mask&^PauseAll != 0 {
		return errs.New(errs.KindConfig, op, "invalid pause mask %#x", uint32(mask))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.xfer
	if t == nil {
		return errs.New(errs.KindHandleState, op, "no transfer in progress")
	}
	h.pause.Store(uint32(mask))
	if t.gate != nil {
		if mask&PauseSend != 0 {
			t.gate.Pause()
		} else {
			t.gate.Resume()
		}
	}
	if h.owner != nil {
		h.owner.signal()
	}
	return nil
}

// Clone returns a new handle in StateCreated with a copy of the options.
// Transfer state, results and connections are not copied. Upload sources
// and writers are shared with the original.
func (h *Handle) Clone() (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateRemoved {
		return nil, errs.New(errs.KindHandleState, "handle.Clone", "handle is closed")
	}
	return &Handle{
		id:       utils.UUIDv4NoDash(),
		rt:       h.rt,
		state:    StateCreated,
		opts:     h.opts.clone(),
		sessions: map[string]driver.Session{},
	}, nil
}

// Close releases the transport resources of h. A registered handle is
// removed from its coordinator first, a synchronous transfer is aborted.
// Close is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.state == StateRemoved {
		h.mu.Unlock()
		return nil
	}
	owner := h.owner
	h.mu.Unlock()

	if owner != nil {
		if err := owner.RemoveHandle(h); err != nil {
			return err
		}
	}

	h.mu.Lock()
	h.state = StateRemoved
	if h.syncRunning {
		// Perform closes the sessions on its way out
		h.syncCancel()
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()
	h.closeSessions()
	return nil
}
