// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/config"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/engine"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/share"
)

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, "hello")
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			w.Write(body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newBlockingServer answers only once release is closed.
func newBlockingServer(t *testing.T) (*httptest.Server, chan struct{}) {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
			io.WriteString(w, "late")
		case <-r.Context().Done():
		}
	}))
	var once sync.Once
	t.Cleanup(func() {
		once.Do(func() { close(release) })
		srv.Close()
	})
	return srv, release
}

func closedPortURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr + "/"
}

func newHandle(t *testing.T, rt *engine.Runtime, url string, settings ...engine.Setting) *engine.Handle {
	t.Helper()
	h := engine.NewHandle(rt)
	t.Cleanup(func() { h.Close() })
	require.NoError(t, h.SetOpt(engine.OptURL, engine.String(url)))
	require.NoError(t, h.SetOpts(settings...))
	return h
}

// drive runs m until no handle is running and returns the messages seen.
func drive(t *testing.T, m *engine.Multi) []engine.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var msgs []engine.Message
	for {
		running, err := m.Perform()
		require.NoError(t, err)
		for msg := range m.Messages() {
			msgs = append(msgs, msg)
		}
		if running == 0 {
			return msgs
		}
		_, err = m.Wait(ctx, time.Second)
		require.NoError(t, err)
	}
}

func TestOptionTable(t *testing.T) {
	opts := engine.Options()
	require.NotEmpty(t, opts)
	seen := map[string]bool{}
	for _, row := range opts {
		require.False(t, seen[row.Name], "duplicate option %s", row.Name)
		seen[row.Name] = true
		require.Equal(t, row.Name, row.Option.String())
		require.LessOrEqual(t, row.Since, engine.OptionTableVersion)

		found, ok := engine.LookupOption(strings.ToUpper(row.Name))
		require.True(t, ok)
		require.Equal(t, row.Option, found.Option)
	}
	_, ok := engine.LookupOption("no_such_option")
	require.False(t, ok)

	// the returned table is a copy
	opts[0].Name = "changed"
	require.Equal(t, "url", engine.Options()[0].Name)
}

func TestSetOptValidation(t *testing.T) {
	h := engine.NewHandle(nil)
	defer h.Close()

	require.ErrorIs(t, h.SetOpt(engine.Option(9999), engine.String("x")), errs.ErrConfig)
	require.ErrorIs(t, h.SetOpt(engine.OptURL, engine.Int(1)), errs.ErrConfig)
	require.ErrorIs(t, h.SetOpt(engine.OptTimeout, engine.Duration(-time.Second)), errs.ErrConfig)
	require.ErrorIs(t, h.SetOpt(engine.OptHeaders, engine.Strings("no colon")), errs.ErrConfig)
	require.ErrorIs(t, h.SetOpt(engine.OptHTTPVersion, engine.Int(7)), errs.ErrConfig)
	require.ErrorIs(t, h.SetOpt(engine.OptBufferSize, engine.Int(-1)), errs.ErrConfig)
	require.ErrorIs(t, h.SetOpt(engine.OptMethod, engine.String("GE T")), errs.ErrConfig)

	// settings before the failing one stay applied
	err := h.SetOpts(
		engine.Set(engine.OptPrivate, engine.String("first")),
		engine.Set(engine.OptMaxRedirs, engine.Int(-5)),
		engine.Set(engine.OptPrivate, engine.String("never")),
	)
	require.ErrorIs(t, err, errs.ErrConfig)
	require.Equal(t, "first", h.Private())
	require.Equal(t, engine.StateCreated, h.State())
}

func TestUnsupportedFeatures(t *testing.T) {
	rt := engine.NewRuntime(engine.WithoutFeatures(
		engine.FeaturePause | engine.FeatureReset | engine.FeatureUpload | engine.FeatureShare | engine.FeatureMultiOptions))
	require.False(t, rt.Supports(engine.FeaturePause))
	require.True(t, rt.Supports(engine.FeatureHTTP2))

	h := engine.NewHandle(rt)
	defer h.Close()
	require.False(t, h.Supports(engine.FeatureReset))

	require.ErrorIs(t, h.Reset(), errs.ErrUnsupported)
	require.ErrorIs(t, h.Pause(engine.PauseRecv), errors.ErrUnsupported)
	require.ErrorIs(t, h.SetOpt(engine.OptUpload, engine.Bool(true)), errs.ErrUnsupported)

	sh := share.New()
	defer sh.Close()
	require.ErrorIs(t, h.SetOpt(engine.OptShare, engine.ShareRef(sh)), errs.ErrUnsupported)

	m := engine.NewMulti(rt)
	defer m.Close()
	require.ErrorIs(t, m.SetOpt(engine.MultiMaxTotalConnections, engine.Int(1)), errs.ErrUnsupported)
}

func TestNewRuntimeFromConfig(t *testing.T) {
	cfg := config.Config{Engine: config.DefaultEngineConfig()}
	cfg.Engine.DisabledFeatures = []string{"pause", " Reset "}
	rt, err := engine.NewRuntimeFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.False(t, rt.Supports(engine.FeaturePause))
	require.False(t, rt.Supports(engine.FeatureReset))
	require.True(t, rt.Supports(engine.FeatureShare))
	require.Equal(t, []string{"http", "https"}, rt.Schemes())

	cfg.Engine.DisabledFeatures = []string{"teleport"}
	_, err = engine.NewRuntimeFromConfig(context.Background(), cfg)
	require.ErrorIs(t, err, errs.ErrConfig)
}

func TestPerformSync(t *testing.T) {
	srv := newServer(t)

	h := newHandle(t, nil, srv.URL+"/ok",
		engine.Set(engine.OptReturnTransfer, engine.Bool(true)),
		engine.Set(engine.OptPrivate, engine.String("job-1")),
	)
	require.False(t, h.Executed())
	body, err := h.Perform(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
	require.True(t, h.Executed())
	require.Equal(t, engine.StateCompleted, h.State())
	require.Equal(t, errs.CodeOK, h.ErrorCode())
	require.Empty(t, h.ErrorMessage())

	info := h.Info()
	require.Equal(t, 200, info.ResponseCode)
	require.EqualValues(t, 5, info.BytesDownloaded)
	require.Equal(t, "job-1", info.Private)
	require.Equal(t, srv.URL+"/ok", info.EffectiveURL)
	require.NotEmpty(t, h.ResponseHeader().Get("Content-Type"))

	// a completed handle can run again
	_, err = h.Perform(context.Background())
	require.NoError(t, err)
}

func TestPerformHTTPErrorStatus(t *testing.T) {
	srv := newServer(t)

	lenient := newHandle(t, nil, srv.URL+"/missing")
	_, err := lenient.Perform(context.Background())
	require.NoError(t, err)
	require.Equal(t, 404, lenient.Info().ResponseCode)
	require.Equal(t, errs.CodeOK, lenient.ErrorCode())

	strict := newHandle(t, nil, srv.URL+"/missing", engine.Set(engine.OptFailOnError, engine.Bool(true)))
	_, err = strict.Perform(context.Background())
	require.ErrorIs(t, err, errs.ErrTransport)
	require.Equal(t, errs.CodeHTTPReturnedError, strict.ErrorCode())
	require.Contains(t, strict.ErrorMessage(), "Not Found")
}

func TestPerformUnsupportedProtocol(t *testing.T) {
	h := newHandle(t, nil, "gopher://example.com/")
	_, err := h.Perform(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.CodeUnsupportedProtocol, h.ErrorCode())
	require.NotEmpty(t, engine.StrError(h.ErrorCode()))

	noURL := engine.NewHandle(nil)
	defer noURL.Close()
	_, err = noURL.Perform(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.CodeURLMalformed, noURL.ErrorCode())
}

func TestPerformUpload(t *testing.T) {
	srv := newServer(t)
	h := newHandle(t, nil, srv.URL+"/echo",
		engine.Set(engine.OptUpload, engine.Bool(true)),
		engine.Set(engine.OptReadFrom, engine.Reader(strings.NewReader("payload"))),
		engine.Set(engine.OptInFileSize, engine.Int(7)),
		engine.Set(engine.OptReturnTransfer, engine.Bool(true)),
	)
	body, err := h.Perform(context.Background())
	require.NoError(t, err)
	require.Equal(t, "payload", string(body))
	require.EqualValues(t, 7, h.Info().BytesUploaded)

	missing := newHandle(t, nil, srv.URL+"/echo", engine.Set(engine.OptUpload, engine.Bool(true)))
	_, err = missing.Perform(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.CodeReadError, missing.ErrorCode())
}

func TestPerformWithShare(t *testing.T) {
	srv := newServer(t)
	sh := share.New()
	require.NoError(t, sh.SetPolicy(share.DataDNS, true))

	for range 2 {
		h := newHandle(t, nil, srv.URL+"/ok", engine.Set(engine.OptShare, engine.ShareRef(sh)))
		_, err := h.Perform(context.Background())
		require.NoError(t, err)
	}

	require.NoError(t, sh.Close())
	h := engine.NewHandle(nil)
	defer h.Close()
	require.ErrorIs(t, h.SetOpt(engine.OptShare, engine.ShareRef(sh)), errs.ErrConfig)
}

func TestMultiMixedOutcomes(t *testing.T) {
	srv := newServer(t)
	m := engine.NewMulti(nil)
	defer m.Close()

	handles := []*engine.Handle{
		newHandle(t, nil, srv.URL+"/ok"),
		newHandle(t, nil, srv.URL+"/missing"),
		newHandle(t, nil, closedPortURL(t)),
	}
	for _, h := range handles {
		require.NoError(t, m.AddHandle(h))
		require.Equal(t, engine.StateRegistered, h.State())
	}
	require.Equal(t, 3, m.Running())

	msgs := drive(t, m)
	require.Len(t, msgs, 3)
	ids := map[string]errs.Code{}
	for _, msg := range msgs {
		ids[msg.HandleID] = msg.Code
	}
	require.Len(t, ids, 3)
	require.Equal(t, errs.CodeOK, ids[handles[0].ID()])
	require.Equal(t, errs.CodeOK, ids[handles[1].ID()])
	require.Equal(t, errs.CodeCouldntConnect, ids[handles[2].ID()])

	require.Equal(t, 404, handles[1].Info().ResponseCode)
	require.Equal(t, 0, m.Running())
	require.Equal(t, 3, m.Len())
	for _, h := range handles {
		require.Equal(t, engine.StateCompleted, h.State())
		require.Same(t, h, m.Handle(h.ID()))
	}

	// every completion is reported once
	_, err := m.Perform()
	require.NoError(t, err)
	for range m.Messages() {
		t.Fatal("messages must not be repeated")
	}
	_, _, ok := m.InfoRead()
	require.False(t, ok)
}

func TestMultiRegistration(t *testing.T) {
	srv := newServer(t)
	m1 := engine.NewMulti(nil)
	defer m1.Close()
	m2 := engine.NewMulti(nil)
	defer m2.Close()

	h := newHandle(t, nil, srv.URL+"/ok")
	require.NoError(t, m1.AddHandle(h))
	require.ErrorIs(t, m1.AddHandle(h), errs.ErrBadHandle)
	require.ErrorIs(t, m2.AddHandle(h), errs.ErrBadHandle)
	require.ErrorIs(t, m1.AddHandle(nil), errs.ErrBadHandle)
	require.ErrorIs(t, m2.RemoveHandle(h), errs.ErrBadHandle)

	_, err := h.Perform(context.Background())
	require.ErrorIs(t, err, errs.ErrHandleState)
	require.ErrorIs(t, h.SetOpt(engine.OptPrivate, engine.String("x")), errs.ErrHandleState)

	other := newHandle(t, nil, srv.URL+"/ok")
	require.NoError(t, m1.RemoveHandle(other), "removing an unregistered handle is a no-op")

	require.NoError(t, m1.RemoveHandle(h))
	require.Equal(t, engine.StateCreated, h.State())
	require.NoError(t, m2.AddHandle(h))
	msgs := drive(t, m2)
	require.Len(t, msgs, 1)
	require.Equal(t, h.ID(), msgs[0].HandleID)
}

func TestRemoveRunningHandle(t *testing.T) {
	srv, _ := newBlockingServer(t)
	m := engine.NewMulti(nil)
	defer m.Close()

	h := newHandle(t, nil, srv.URL+"/slow", engine.Set(engine.OptReturnTransfer, engine.Bool(true)))
	require.NoError(t, m.AddHandle(h))
	running, err := m.Perform()
	require.NoError(t, err)
	require.Equal(t, 1, running)
	require.Equal(t, engine.StateRunning, h.State())

	require.NoError(t, m.RemoveHandle(h))
	require.Equal(t, engine.StateCreated, h.State())
	require.Equal(t, 0, m.Len())
	require.False(t, h.Executed())

	// the handle is usable again
	ok := newServer(t)
	require.NoError(t, h.SetOpt(engine.OptURL, engine.String(ok.URL+"/ok")))
	body, err := h.Perform(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
}

func TestRemoveCompletedHandleKeepsResult(t *testing.T) {
	srv := newServer(t)
	m := engine.NewMulti(nil)
	defer m.Close()

	h := newHandle(t, nil, srv.URL+"/missing", engine.Set(engine.OptFailOnError, engine.Bool(true)))
	require.NoError(t, m.AddHandle(h))
	drive(t, m)
	require.NoError(t, m.RemoveHandle(h))
	require.Equal(t, engine.StateCompleted, h.State())
	require.Equal(t, errs.CodeHTTPReturnedError, h.ErrorCode())

	require.NoError(t, m.AddHandle(h))
	msgs := drive(t, m)
	require.Len(t, msgs, 1)
	require.Equal(t, errs.CodeHTTPReturnedError, msgs[0].Code)
}

func TestWaitWithoutHandles(t *testing.T) {
	m := engine.NewMulti(nil)
	defer m.Close()

	start := time.Now()
	n, err := m.Wait(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	require.Less(t, time.Since(start), 2*time.Second)

	n, err = m.Wait(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	running, err := m.Perform()
	require.NoError(t, err)
	require.Equal(t, 0, running)
}

func TestWaitWakeupAndCancel(t *testing.T) {
	srv, _ := newBlockingServer(t)
	m := engine.NewMulti(nil)
	defer m.Close()

	h := newHandle(t, nil, srv.URL+"/slow")
	require.NoError(t, m.AddHandle(h))
	_, err := m.Perform()
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		m.Wakeup()
	}()
	start := time.Now()
	n, err := m.Wait(context.Background(), 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Less(t, time.Since(start), 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err = m.Wait(ctx, 10*time.Second)
	require.ErrorIs(t, err, errs.ErrCoordinator)
	require.Equal(t, -1, n)
}

func TestReentrantPerformIsRejected(t *testing.T) {
	srv := newServer(t)
	m := engine.NewMulti(nil)
	defer m.Close()

	var inner error
	w := writerFunc(func(p []byte) (int, error) {
		_, inner = m.Perform()
		return len(p), nil
	})
	h := newHandle(t, nil, srv.URL+"/ok", engine.Set(engine.OptWriteTo, engine.Writer(w)))
	require.NoError(t, m.AddHandle(h))
	msgs := drive(t, m)
	require.Len(t, msgs, 1)
	require.Equal(t, errs.CodeOK, msgs[0].Code)
	require.ErrorIs(t, inner, errs.ErrCoordinator)
}

func TestWriteErrorFailsTransfer(t *testing.T) {
	srv := newServer(t)
	w := writerFunc(func(p []byte) (int, error) { return 0, errors.New("disk full") })
	h := newHandle(t, nil, srv.URL+"/ok", engine.Set(engine.OptWriteTo, engine.Writer(w)))
	_, err := h.Perform(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.CodeWriteError, h.ErrorCode())
	require.Contains(t, h.ErrorMessage(), "disk full")
}

func TestMaxTotalConnections(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	m := engine.NewMulti(nil)
	defer m.Close()
	require.ErrorIs(t, m.SetOpt(engine.MultiMaxTotalConnections, engine.Int(-1)), errs.ErrConfig)
	require.ErrorIs(t, m.SetOpt(engine.MultiPipelining, engine.Int(1)), errs.ErrConfig)
	require.NoError(t, m.SetOpt(engine.MultiMaxTotalConnections, engine.Int(1)))

	for range 4 {
		require.NoError(t, m.AddHandle(newHandle(t, nil, srv.URL)))
	}
	msgs := drive(t, m)
	require.Len(t, msgs, 4)
	for _, msg := range msgs {
		require.Equal(t, errs.CodeOK, msg.Code)
	}
	require.EqualValues(t, 1, peak.Load())
}

func TestPauseReceive(t *testing.T) {
	srv := newServer(t)
	m := engine.NewMulti(nil)
	defer m.Close()

	h := newHandle(t, nil, srv.URL+"/ok", engine.Set(engine.OptReturnTransfer, engine.Bool(true)))
	require.ErrorIs(t, h.Pause(engine.PauseRecv), errs.ErrHandleState)

	require.NoError(t, m.AddHandle(h))
	_, err := m.Perform()
	require.NoError(t, err)
	require.NoError(t, h.Pause(engine.PauseRecv))
	require.ErrorIs(t, h.Pause(engine.PauseMask(0x80)), errs.ErrConfig)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		running, err := m.Perform()
		require.NoError(t, err)
		require.Equal(t, 1, running)
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, engine.StateRunning, h.State())

	require.NoError(t, h.Pause(engine.PauseCont))
	msgs := drive(t, m)
	require.Len(t, msgs, 1)
}

func TestCloneAndReset(t *testing.T) {
	srv := newServer(t)
	h := newHandle(t, nil, srv.URL+"/ok",
		engine.Set(engine.OptPrivate, engine.String("original")),
		engine.Set(engine.OptHeaders, engine.Strings("X-A: 1")),
	)
	_, err := h.Perform(context.Background())
	require.NoError(t, err)

	c, err := h.Clone()
	require.NoError(t, err)
	defer c.Close()
	require.NotEqual(t, h.ID(), c.ID())
	require.Equal(t, engine.StateCreated, c.State())
	require.False(t, c.Executed())
	require.Equal(t, "original", c.Private())

	require.NoError(t, c.SetOpt(engine.OptPrivate, engine.String("clone")))
	require.Equal(t, "original", h.Private())

	// running the clone leaves the original's result alone
	before := h.State()
	require.NoError(t, c.SetOpt(engine.OptURL, engine.String(srv.URL+"/missing")))
	m := engine.NewMulti(nil)
	defer m.Close()
	require.NoError(t, m.AddHandle(c))
	msgs := drive(t, m)
	require.Len(t, msgs, 1)
	require.Equal(t, c.ID(), msgs[0].HandleID)
	require.Equal(t, 404, c.Info().ResponseCode)
	require.Equal(t, 200, h.Info().ResponseCode)
	require.Equal(t, before, h.State())
	require.Equal(t, "original", h.Private())

	require.NoError(t, h.Reset())
	require.Empty(t, h.Private())
	require.True(t, h.Executed(), "reset keeps the last result")
	require.Equal(t, 200, h.Info().ResponseCode)
}

func TestClose(t *testing.T) {
	srv := newServer(t)
	m := engine.NewMulti(nil)

	h := newHandle(t, nil, srv.URL+"/ok")
	require.NoError(t, m.AddHandle(h))
	require.NoError(t, h.Close())
	require.Equal(t, engine.StateRemoved, h.State())
	require.Equal(t, 0, m.Len())
	require.NoError(t, h.Close())
	require.ErrorIs(t, m.AddHandle(h), errs.ErrBadHandle)
	require.ErrorIs(t, h.SetOpt(engine.OptPrivate, engine.String("x")), errs.ErrHandleState)
	_, err := h.Clone()
	require.ErrorIs(t, err, errs.ErrHandleState)

	other := newHandle(t, nil, srv.URL+"/ok")
	require.NoError(t, m.AddHandle(other))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.Equal(t, engine.StateCreated, other.State())

	_, err = m.Perform()
	require.ErrorIs(t, err, errs.ErrCoordinator)
	require.ErrorIs(t, m.AddHandle(other), errs.ErrCoordinator)
	n, err := m.Wait(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, errs.ErrCoordinator)
	require.Equal(t, -1, n)
}

func TestCloseAbortsSyncPerform(t *testing.T) {
	arrived := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-r.Context().Done()
	}))
	defer srv.Close()

	h := newHandle(t, nil, srv.URL+"/slow")
	done := make(chan error, 1)
	go func() {
		_, err := h.Perform(context.Background())
		done <- err
	}()

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}
	require.NoError(t, h.Close())

	select {
	case err := <-done:
		require.Error(t, err)
		require.Equal(t, errs.CodeAbortedByCallback, errs.CodeOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("Perform did not return after Close")
	}
	require.Equal(t, engine.StateRemoved, h.State())
}

func TestShareClosedBeforePerform(t *testing.T) {
	srv := newServer(t)
	sh := share.New()
	h := newHandle(t, nil, srv.URL+"/ok", engine.Set(engine.OptShare, engine.ShareRef(sh)))

	m := engine.NewMulti(nil)
	defer m.Close()
	require.NoError(t, m.AddHandle(h))
	require.NoError(t, sh.Close())

	msgs := drive(t, m)
	require.Len(t, msgs, 1)
	require.Equal(t, errs.CodeBadShare, msgs[0].Code)
	require.Equal(t, errs.CodeBadShare, h.ErrorCode())
	require.ErrorIs(t, h.Err(), errs.ErrConfig)
	require.NotEqual(t, errs.CodeUnknown, h.ErrorCode())
}
