// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

// MultiOption identifies a coordinator-wide setting.
type MultiOption int

const (
	// MultiMaxTotalConnections limits open transfers, 0 for no limit.
	MultiMaxTotalConnections MultiOption = iota + 1
	// MultiMaxHostConnections limits open transfers per host, 0 for no limit.
	MultiMaxHostConnections
	// MultiPipelining allows multiplexing (HTTP/2) for new transfers.
	MultiPipelining
)

func (o MultiOption) String() string {
	switch o {
	case MultiMaxTotalConnections:
		return "max_total_connections"
	case MultiMaxHostConnections:
		return "max_host_connections"
	case MultiPipelining:
		return "pipelining"
	}
	return fmt.Sprintf("multi_option(%d)", int(o))
}

// Multi drives registered handles on the caller's goroutine. Apart from
// Wakeup its methods must not be called concurrently.
type Multi struct {
	id     string
	rt     *Runtime
	ctx    context.Context
	cancel context.CancelFunc

	members  []*Handle
	index    map[string]*Handle
	messages []Message

	wake      chan struct{}
	interrupt chan struct{}

	maxTotal   int
	maxHost    int
	pipelining bool

	inStep bool
	closed bool
}

// NewMulti creates a coordinator. A nil rt means a runtime from
// NewRuntime.
func NewMulti(rt *Runtime) *Multi {
	rt = runtimeOrDefault(rt)
	ctx, cancel := context.WithCancel(context.Background())
	return &Multi{
		id:         utils.UUIDv4NoDash(),
		rt:         rt,
		ctx:        ctx,
		cancel:     cancel,
		index:      map[string]*Handle{},
		wake:       make(chan struct{}, 1),
		interrupt:  make(chan struct{}, 1),
		maxTotal:   rt.defaults.MaxTotalConnections,
		maxHost:    rt.defaults.MaxHostConnections,
		pipelining: rt.defaults.Pipelining,
	}
}

func (m *Multi) ID() string { return m.id }

func (m *Multi) Supports(f Feature) bool { return m.rt.Supports(f) }

// signal marks the coordinator as having work. Safe from any goroutine.
func (m *Multi) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Wakeup makes a blocked or the next Wait return. Safe from any goroutine.
func (m *Multi) Wakeup() {
	select {
	case m.interrupt <- struct{}{}:
	default:
	}
}

func (m *Multi) usable(op string) error {
	if m.closed {
		return errs.New(errs.KindCoordinator, op, "coordinator is closed")
	}
	if m.inStep {
		return errs.New(errs.KindCoordinator, op, "called from inside a transfer callback")
	}
	return nil
}

// AddHandle registers h. Handles that are registered with any coordinator,
// closed or running synchronously are rejected with errs.ErrBadHandle.
func (m *Multi) AddHandle(h *Handle) error {
	const op = "multi.AddHandle"
	if err := m.usable(op); err != nil {
		return err
	}
	if h == nil {
		return errs.New(errs.KindBadHandle, op, "nil handle")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.state == StateRemoved:
		return errs.New(errs.KindBadHandle, op, "handle is closed")
	case h.owner == m:
		return errs.New(errs.KindBadHandle, op, "handle already registered with this coordinator")
	case h.owner != nil:
		return errs.New(errs.KindBadHandle, op, "handle registered with another coordinator")
	case h.syncRunning:
		return errs.New(errs.KindBadHandle, op, "handle is running synchronously")
	}
	h.owner = m
	h.state = StateRegistered
	m.members = append(m.members, h)
	m.index[h.id] = h
	m.signal()
	m.rt.logger.Debug("handle added", "multi", m.id, "handle", h.id)
	return nil
}

// RemoveHandle detaches h. A running transfer is aborted before RemoveHandle
// returns and h goes back to StateCreated; a completed handle keeps its
// result. Removing a handle that is not registered is a no-op; removing one
// that belongs to another coordinator is errs.ErrBadHandle.
func (m *Multi) RemoveHandle(h *Handle) error {
	const op = "multi.RemoveHandle"
	if m.inStep {
		return errs.New(errs.KindCoordinator, op, "called from inside a transfer callback")
	}
	if h == nil {
		return errs.New(errs.KindBadHandle, op, "nil handle")
	}

	h.mu.Lock()
	if h.owner == nil {
		h.mu.Unlock()
		return nil
	}
	if h.owner != m {
		h.mu.Unlock()
		return errs.New(errs.KindBadHandle, op, "handle registered with another coordinator")
	}
	t := h.xfer
	h.xfer = nil
	h.owner = nil
	if h.state != StateCompleted {
		h.state = StateCreated
	}
	h.pause.Store(0)
	h.mu.Unlock()

	if t != nil {
		t.abort()
		if t.counted {
			m.rt.metrics.transferFinished(t.scheme, errs.CodeAbortedByCallback, t.elapsed)
		}
	}

	m.members = slices.DeleteFunc(m.members, func(x *Handle) bool { return x == h })
	delete(m.index, h.id)
	m.messages = slices.DeleteFunc(m.messages, func(msg Message) bool { return msg.HandleID == h.id })
	m.rt.logger.Debug("handle removed", "multi", m.id, "handle", h.id)
	return nil
}

// Perform advances every registered transfer without blocking and returns
// the number of handles still running. Transfer failures are reported only
// through Messages; an error here concerns the coordinator itself.
func (m *Multi) Perform() (int, error) {
	const op = "multi.Perform"
	if err := m.usable(op); err != nil {
		m.rt.logger.Warn("perform failed", "multi", m.id, "error", err)
		return m.Running(), err
	}
	m.inStep = true
	defer func() { m.inStep = false }()

	// drain connections
	for _, h := range m.members {
		if t := h.xfer; t != nil && !t.done {
			t.advance()
		}
	}

	// collect completions
	for _, h := range m.members {
		if t := h.xfer; t != nil && t.done {
			m.finish(h, t)
		}
	}

	// start queued handles inside the connection limits
	active, perHost := m.load()
	for _, h := range m.members {
		h.mu.Lock()
		if h.state == StateRegistered {
			h.state = StateRunning
		}
		queued := h.state == StateRunning && h.xfer == nil
		opts := h.opts
		h.mu.Unlock()
		if !queued {
			continue
		}
		host := hostOf(opts.url)
		if !m.slotFree(active, perHost, host) {
			continue
		}
		m.rt.logger.Debug("transfer started", "multi", m.id, "handle", h.id, "url", opts.url)
		t := startTransfer(m.ctx, h, opts.clone(), m.pipelining, m.signal)
		h.mu.Lock()
		h.xfer = t
		h.mu.Unlock()
		if t.done {
			m.finish(h, t)
			continue
		}
		active++
		perHost[host]++
	}

	return m.Running(), nil
}

// finish moves h to StateCompleted and queues its message.
func (m *Multi) finish(h *Handle, t *transfer) {
	h.mu.Lock()
	h.complete(t)
	h.state = StateCompleted
	h.mu.Unlock()
	m.messages = append(m.messages, Message{HandleID: h.id, Code: t.code()})
}

// load counts open transfers in total and per host.
func (m *Multi) load() (int, map[string]int) {
	active := 0
	perHost := map[string]int{}
	for _, h := range m.members {
		if t := h.xfer; t != nil && !t.done {
			active++
			perHost[t.host]++
		}
	}
	return active, perHost
}

func (m *Multi) slotFree(active int, perHost map[string]int, host string) bool {
	if m.maxTotal > 0 && active >= m.maxTotal {
		return false
	}
	if m.maxHost > 0 && perHost[host] >= m.maxHost {
		return false
	}
	return true
}

// readyCount is the number of handles on which Perform would make progress.
func (m *Multi) readyCount() int {
	n := 0
	active, perHost := m.load()
	for _, h := range m.members {
		h.mu.Lock()
		t, state, target := h.xfer, h.state, h.opts.url
		h.mu.Unlock()
		switch {
		case t != nil:
			if t.ready() {
				n++
			}
		case state == StateRegistered:
			n++
		case state == StateRunning:
			host := hostOf(target)
			if m.slotFree(active, perHost, host) {
				n++
				active++
				perHost[host]++
			}
		}
	}
	return n
}

// Wait blocks until at least one registered transfer can make progress and
// returns how many can. It returns 0 when timeout elapses first or Wakeup
// is called. A non-positive timeout waits without limit, except that a
// coordinator without handles returns 0 at once. Cancellation of ctx or a
// closed coordinator yields -1 and a coordinator error.
func (m *Multi) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	const op = "multi.Wait"
	if err := m.usable(op); err != nil {
		m.rt.logger.Warn("wait failed", "multi", m.id, "error", err)
		return -1, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if n := m.readyCount(); n > 0 {
		return n, nil
	}
	if len(m.members) == 0 && timeout <= 0 {
		return 0, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		select {
		case <-m.wake:
			if n := m.readyCount(); n > 0 {
				return n, nil
			}
		case <-m.interrupt:
			return 0, nil
		case <-expired:
			return m.readyCount(), nil
		case <-ctx.Done():
			err := errs.Wrap(errs.KindCoordinator, op, ctx.Err())
			m.rt.logger.Warn("wait failed", "multi", m.id, "error", err)
			return -1, err
		case <-m.ctx.Done():
			return -1, errs.New(errs.KindCoordinator, op, "coordinator is closed")
		}
	}
}

// Messages returns the queued completion messages. Each message is removed
// from the queue as it is yielded, so every completion is seen once.
func (m *Multi) Messages() iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for len(m.messages) > 0 {
			msg := m.messages[0]
			m.messages = m.messages[1:]
			if !yield(msg) {
				return
			}
		}
	}
}

// InfoRead pops one message and reports how many remain queued.
func (m *Multi) InfoRead() (Message, int, bool) {
	if len(m.messages) == 0 {
		return Message{}, 0, false
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, len(m.messages), true
}

// Handle returns the registered handle with the given id, or nil.
func (m *Multi) Handle(id string) *Handle { return m.index[id] }

// Running counts registered handles that have not completed.
func (m *Multi) Running() int {
	n := 0
	for _, h := range m.members {
		h.mu.Lock()
		if h.state == StateRegistered || h.state == StateRunning {
			n++
		}
		h.mu.Unlock()
	}
	return n
}

// Len is the number of registered handles.
func (m *Multi) Len() int { return len(m.members) }

// SetOpt changes a coordinator setting. Transfers already started keep
// their settings.
func (m *Multi) SetOpt(opt MultiOption, v Value) error {
	const op = "multi.SetOpt"
	if err := m.usable(op); err != nil {
		return err
	}
	if !m.rt.Supports(FeatureMultiOptions) {
		return errs.Unsupported(op, FeatureMultiOptions.String())
	}
	switch opt {
	case MultiMaxTotalConnections, MultiMaxHostConnections:
		if v.kind != KindInt {
			return errs.New(errs.KindConfig, op, "%s expects an int value, got %s", opt, v.kind)
		}
		if v.i < 0 {
			return errs.New(errs.KindConfig, op, "%s must not be negative", opt)
		}
		if opt == MultiMaxTotalConnections {
			m.maxTotal = int(v.i)
		} else {
			m.maxHost = int(v.i)
		}
	case MultiPipelining:
		if v.kind != KindBool {
			return errs.New(errs.KindConfig, op, "%s expects a bool value, got %s", opt, v.kind)
		}
		m.pipelining = v.b
	default:
		return errs.New(errs.KindConfig, op, "unknown option %d", int(opt))
	}
	m.signal()
	return nil
}

// Close removes every handle, aborting running transfers. Idempotent.
func (m *Multi) Close() error {
	if m.closed {
		return nil
	}
	if m.inStep {
		return errs.New(errs.KindCoordinator, "multi.Close", "called from inside a transfer callback")
	}
	for _, h := range slices.Clone(m.members) {
		m.RemoveHandle(h)
	}
	m.messages = nil
	m.closed = true
	m.cancel()
	return nil
}
