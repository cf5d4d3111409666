// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

/* ------------ tiny UI helpers for single-line progress ------------ */

// Progress renders a single, throttled progress line. It is safe for use
// by several workers at once. A nil *Progress is a no-op.
type Progress struct {
	mu         sync.Mutex
	w          io.Writer
	totalKnown bool
	totalBytes int64
	doneBytes  int64
	files      int
	spinIdx    int
	lastTick   time.Time
}

var spinner = []rune{'|', '/', '-', '\\'}

// NewProgress writes to w; total <= 0 means the size is unknown.
func NewProgress(w io.Writer, total int64) *Progress {
	return &Progress{w: w, totalKnown: total > 0, totalBytes: total}
}

// Write counts p as transferred, so a Progress can sit behind an
// io.MultiWriter.
func (gp *Progress) Write(p []byte) (int, error) {
	gp.Add(int64(len(p)))
	return len(p), nil
}

func (gp *Progress) Add(delta int64) {
	if gp == nil {
		return
	}
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.doneBytes += delta
	gp.render(false)
}

// FileDone counts one finished transfer.
func (gp *Progress) FileDone() {
	if gp == nil {
		return
	}
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.files++
	gp.render(false)
}

// render: caller holds gp.mu
func (gp *Progress) render(force bool) {
	// at most ten updates per second
	if !force && time.Since(gp.lastTick) < 100*time.Millisecond {
		return
	}
	gp.lastTick = time.Now()

	if gp.totalKnown && gp.totalBytes > 0 {
		pct := float64(gp.doneBytes) / float64(gp.totalBytes) * 100
		done := gp.doneBytes
		if done > gp.totalBytes {
			done = gp.totalBytes
			pct = 100
		}
		fmt.Fprintf(gp.w, "\rProgress: %6.2f%% (%s / %s, %d files)   ",
			pct, humanize.IBytes(uint64(done)), humanize.IBytes(uint64(gp.totalBytes)), gp.files)
	} else {
		ch := spinner[gp.spinIdx%len(spinner)]
		gp.spinIdx++
		fmt.Fprintf(gp.w, "\rProgress: [%c] %s transferred, %d files   ", ch, humanize.IBytes(uint64(gp.doneBytes)), gp.files)
	}
}

// Done prints the final state and ends the line.
func (gp *Progress) Done() {
	if gp == nil {
		return
	}
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.render(true)
	fmt.Fprintln(gp.w)
}
