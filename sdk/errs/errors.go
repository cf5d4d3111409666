// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

// Package errs holds the error taxonomy shared by the engine, the drivers and
// the share cache: an error Kind for the layer that failed and, for transfer
// failures, a result Code.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Error is the concrete error type returned by the SDK.
type Error struct {
	Kind Kind
	Op   string
	Code Code // only meaningful for KindTransport
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	switch {
	case e.Msg != "":
		sb.WriteString(e.Msg)
	case e.Kind == KindTransport:
		sb.WriteString(e.Code.Text())
	default:
		sb.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels of the same kind. Unsupported errors also match
// errors.ErrUnsupported.
func (e *Error) Is(target error) bool {
	if target == errors.ErrUnsupported {
		return e.Kind == KindUnsupported
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	// sentinels carry no op/msg
	return t.Op == "" && t.Msg == "" && t.Err == nil
}

var (
	ErrConfig      = &Error{Kind: KindConfig}
	ErrHandleState = &Error{Kind: KindHandleState}
	ErrBadHandle   = &Error{Kind: KindBadHandle}
	ErrTransport   = &Error{Kind: KindTransport}
	ErrCoordinator = &Error{Kind: KindCoordinator}
	ErrUnsupported = &Error{Kind: KindUnsupported}
)

// New builds an error of the given kind.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around err.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transport builds a per-transfer failure carrying code.
func Transport(code Code, op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Code: code, Err: err}
}

// Unsupported reports that feature is not available in this runtime.
func Unsupported(op, feature string) error {
	return &Error{Kind: KindUnsupported, Op: op, Msg: feature + " is unsupported in this runtime"}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the transfer result code carried by err. A nil error is
// CodeOK; errors without a code map to CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindTransport {
		return e.Code
	}
	return CodeUnknown
}
