// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/engine"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/share"
	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/utils"
)

// wait bound of one loop iteration
const pollInterval = time.Second

// batch is what Run needs beyond the entries.
type batch struct {
	workers  int
	maxTotal int
	maxHost  int
	share    []string
}

// Run executes every transfer of m and returns one result per entry, in
// manifest order. Failed transfers are reported in their Result; the error
// is for problems with the batch as a whole.
func (s *TransferService) Run(ctx context.Context, m *Manifest) ([]Result, error) {
	entries, err := m.Entries()
	if err != nil {
		return nil, err
	}
	b := s.defaultBatch()
	if m.Workers > 0 {
		b.workers = m.Workers
	}
	if m.MaxTotalConnections > 0 {
		b.maxTotal = m.MaxTotalConnections
	}
	if m.MaxHostConnections > 0 {
		b.maxHost = m.MaxHostConnections
	}
	if m.Share != nil {
		b.share = m.Share
	}
	return s.run(ctx, entries, b)
}

func (s *TransferService) defaultBatch() batch {
	return batch{
		workers:  s.engine.Workers,
		maxTotal: s.engine.MaxTotalConnections,
		maxHost:  s.engine.MaxHostConnections,
		share:    s.engine.ShareData,
	}
}

func (s *TransferService) newShare(kinds []string) (*share.Share, error) {
	var opts []share.Option
	if s.engine.DNSCacheTTL > 0 {
		opts = append(opts, share.WithDNSTTL(s.engine.DNSCacheTTL))
	}
	sh := share.New(opts...)
	for _, name := range kinds {
		kind, ok := share.ParseDataKind(name)
		if !ok {
			sh.Close()
			return nil, fmt.Errorf("unknown share data %q", name)
		}
		if err := sh.SetPolicy(kind, true); err != nil {
			sh.Close()
			return nil, err
		}
	}
	return sh, nil
}

func (s *TransferService) run(ctx context.Context, entries []Entry, b batch) ([]Result, error) {
	results := make([]Result, len(entries))
	if len(entries) == 0 {
		return results, nil
	}

	var sh *share.Share
	if len(b.share) > 0 && s.rt.Supports(engine.FeatureShare) {
		var err error
		if sh, err = s.newShare(b.share); err != nil {
			return nil, err
		}
		defer sh.Close()
	}

	workers := b.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(entries) {
		workers = len(entries)
	}

	var progress *utils.Progress
	if s.progress != nil {
		progress = utils.NewProgress(s.progress, 0)
		defer progress.Done()
	}

	s.logger.Info("batch started", "transfers", len(entries), "workers", workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		var idx []int
		for i := w; i < len(entries); i += workers {
			idx = append(idx, i)
		}
		g.Go(func() error {
			return s.drive(gctx, entries, idx, results, b, sh, progress)
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	s.logger.Info("batch completed", "transfers", len(entries), "failed", failed)
	return results, nil
}

// job ties a registered handle to its entry and local files.
type job struct {
	index   int
	entry   Entry
	handle  *engine.Handle
	out     *os.File
	in      *os.File
	created bool
}

func (j *job) closeFiles() {
	if j.out != nil {
		_ = j.out.Close()
	}
	if j.in != nil {
		_ = j.in.Close()
	}
}

// discard closes the job files and removes a destination the job created.
func (j *job) discard() {
	j.closeFiles()
	if j.out != nil && j.created {
		_ = os.Remove(j.entry.Destination)
	}
}

// drive runs the entries listed in idx on one coordinator.
func (s *TransferService) drive(ctx context.Context, entries []Entry, idx []int, results []Result,
	b batch, sh *share.Share, progress *utils.Progress) error {

	m := engine.NewMulti(s.rt)
	defer m.Close()
	if m.Supports(engine.FeatureMultiOptions) {
		if err := m.SetOpt(engine.MultiMaxTotalConnections, engine.Int(int64(b.maxTotal))); err != nil {
			return err
		}
		if err := m.SetOpt(engine.MultiMaxHostConnections, engine.Int(int64(b.maxHost))); err != nil {
			return err
		}
	}

	jobs := map[string]*job{}
	defer func() {
		for _, j := range jobs {
			j.discard()
			_ = j.handle.Close()
		}
	}()
	for _, i := range idx {
		j, err := s.prepare(entries[i], i, sh, progress)
		if err != nil {
			results[i] = failedResult(entries[i], err)
			continue
		}
		if err := m.AddHandle(j.handle); err != nil {
			j.discard()
			_ = j.handle.Close()
			return err
		}
		jobs[j.handle.ID()] = j
	}

	for {
		running, err := m.Perform()
		if err != nil {
			return err
		}
		for msg := range m.Messages() {
			j, ok := jobs[msg.HandleID]
			if !ok {
				continue
			}
			results[j.index] = s.finish(j)
			_ = m.RemoveHandle(j.handle)
			_ = j.handle.Close()
			delete(jobs, msg.HandleID)
			progress.FileDone()
		}
		if running == 0 {
			break
		}
		if _, err := m.Wait(ctx, pollInterval); err != nil {
			return err
		}
	}
	return nil
}

// prepare builds the job of e. On error nothing it opened or created is
// left behind.
func (s *TransferService) prepare(e Entry, index int, sh *share.Share, progress *utils.Progress) (*job, error) {
	target, err := s.http.BuildURL(e.URL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "transfer.prepare", err)
	}
	j := &job{index: index, entry: e, handle: engine.NewHandle(s.rt)}
	if err := s.configure(j, target, sh, progress); err != nil {
		j.discard()
		_ = j.handle.Close()
		return nil, err
	}
	return j, nil
}

// configure opens the local files of j and applies its settings.
func (s *TransferService) configure(j *job, target string, sh *share.Share, progress *utils.Progress) error {
	e := j.entry

	settings := []engine.Setting{
		engine.Set(engine.OptURL, engine.String(target)),
		engine.Set(engine.OptPrivate, engine.String(e.ID)),
		engine.Set(engine.OptFollowLocation, engine.Bool(boolOr(e.FollowRedirects, true))),
		engine.Set(engine.OptFailOnError, engine.Bool(boolOr(e.FailOnError, true))),
	}
	if e.Method != "" {
		settings = append(settings, engine.Set(engine.OptMethod, engine.String(e.Method)))
	}
	headers := append(append([]string(nil), e.Headers...), s.authHeaders(e.URL, target)...)
	if len(headers) > 0 {
		settings = append(settings, engine.Set(engine.OptHeaders, engine.Strings(headers...)))
	}
	if e.Body != "" {
		settings = append(settings, engine.Set(engine.OptPostFields, engine.String(e.Body)))
	}
	if e.Timeout != "" {
		d, err := time.ParseDuration(e.Timeout)
		if err != nil {
			return errs.Wrap(errs.KindConfig, "transfer.prepare", err)
		}
		settings = append(settings, engine.Set(engine.OptTimeout, engine.Duration(d)))
	}
	if e.MaxRedirects != nil {
		settings = append(settings, engine.Set(engine.OptMaxRedirs, engine.Int(int64(*e.MaxRedirects))))
	}
	if e.VerifyPeer != nil {
		settings = append(settings, engine.Set(engine.OptSSLVerifyPeer, engine.Bool(*e.VerifyPeer)))
	}
	if e.HTTPVersion != 0 {
		settings = append(settings, engine.Set(engine.OptHTTPVersion, engine.Int(int64(e.HTTPVersion))))
	}
	if sh != nil {
		settings = append(settings, engine.Set(engine.OptShare, engine.ShareRef(sh)))
	}

	if e.Source != "" {
		in, err := os.Open(e.Source)
		if err != nil {
			return fmt.Errorf("cannot open source: %w", err)
		}
		st, err := in.Stat()
		if err != nil {
			_ = in.Close()
			return fmt.Errorf("cannot stat source: %w", err)
		}
		j.in = in
		settings = append(settings,
			engine.Set(engine.OptUpload, engine.Bool(true)),
			engine.Set(engine.OptReadFrom, engine.Reader(in)),
			engine.Set(engine.OptInFileSize, engine.Int(st.Size())),
		)
	}

	var sink io.Writer
	if e.Destination != "" {
		if dir := filepath.Dir(e.Destination); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("cannot create destination directory: %w", err)
			}
		}
		_, statErr := os.Stat(e.Destination)
		out, err := os.Create(e.Destination)
		if err != nil {
			return fmt.Errorf("cannot create destination: %w", err)
		}
		j.out = out
		j.created = os.IsNotExist(statErr)
		sink = out
	}
	if progress != nil {
		if sink != nil {
			sink = io.MultiWriter(sink, progress)
		} else {
			sink = progress
		}
	}
	if sink != nil {
		settings = append(settings, engine.Set(engine.OptWriteTo, engine.Writer(sink)))
	}

	return j.handle.SetOpts(settings...)
}

// finish builds the result of a completed job and drops the partial
// output of a failed download.
func (s *TransferService) finish(j *job) Result {
	h := j.handle
	info := h.Info()
	code := h.ErrorCode()
	r := Result{
		ID:          j.entry.ID,
		URL:         j.entry.URL,
		Code:        code.String(),
		Message:     h.ErrorMessage(),
		Status:      info.ResponseCode,
		Downloaded:  info.BytesDownloaded,
		Uploaded:    info.BytesUploaded,
		Destination: j.entry.Destination,
		Duration:    info.TotalTime.Round(time.Millisecond).String(),
	}
	if code != errs.CodeOK {
		s.logger.Warn("transfer failed", "id", r.ID, "url", r.URL, "code", r.Code, "error", r.Message)
		j.discard()
	} else {
		j.closeFiles()
		s.logger.Debug("transfer done", "id", r.ID, "url", r.URL, "status", r.Status, "bytes", r.Downloaded)
	}
	return r
}

// authHeaders returns the core credentials for targets served by the core
// endpoint; other hosts never see them.
func (s *TransferService) authHeaders(raw, target string) []string {
	if !strings.HasPrefix(target, "http") {
		return nil
	}
	if u, err := url.Parse(raw); err == nil && !u.IsAbs() {
		return s.http.AuthHeaders()
	}
	base, err := url.Parse(s.core.BaseURL)
	if err != nil || base.Host == "" {
		return nil
	}
	t, err := url.Parse(target)
	if err != nil || !strings.EqualFold(t.Host, base.Host) {
		return nil
	}
	return s.http.AuthHeaders()
}

func failedResult(e Entry, err error) Result {
	code := errs.CodeOf(err)
	return Result{
		ID:          e.ID,
		URL:         e.URL,
		Code:        code.String(),
		Message:     err.Error(),
		Destination: e.Destination,
		Duration:    "0s",
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
