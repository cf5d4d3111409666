// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

type State int

const (
	StateCreated State = iota
	StateRegistered
	StateRunning
	StateCompleted
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRegistered:
		return "registered"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// PauseMask selects the directions paused by Handle.Pause.
type PauseMask uint32

const (
	PauseRecv PauseMask = 1 << iota
	PauseSend

	PauseAll  = PauseRecv | PauseSend
	PauseCont PauseMask = 0
)

// Info describes the last executed transfer of a handle.
type Info struct {
	EffectiveURL    string
	ResponseCode    int
	Proto           string
	ContentType     string
	ContentLength   int64 // -1 when unknown
	BytesDownloaded int64
	BytesUploaded   int64
	RedirectCount   int
	TotalTime       time.Duration
	Private         string
}

// Message reports that a registered handle completed.
type Message struct {
	HandleID string
	Code     errs.Code
}

// StrError returns the human readable text of a result code.
func StrError(code errs.Code) string { return code.Text() }
