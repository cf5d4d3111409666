// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errs.Code
	}{
		{"nil", nil, errs.CodeOK},
		{"already classified", errs.Transport(errs.CodeSendError, "x", nil), errs.CodeSendError},
		{"redirects", fmt.Errorf("get: %w", errTooManyRedirects), errs.CodeTooManyRedirects},
		{"deadline", context.DeadlineExceeded, errs.CodeOperationTimedOut},
		{"canceled", context.Canceled, errs.CodeAbortedByCallback},
		{"dns", &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}, errs.CodeCouldntResolveHost},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, errs.CodeCouldntConnect},
		{"write", &net.OpError{Op: "write", Net: "tcp", Err: errors.New("broken pipe")}, errs.CodeSendError},
		{"read", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}, errs.CodeRecvError},
		{"eof", io.ErrUnexpectedEOF, errs.CodeGotNothing},
		{"other", errors.New("boom"), errs.CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestTransportErrorKeepsClassified(t *testing.T) {
	orig := errs.Transport(errs.CodeReadError, "inner", nil)
	if got := transportError("outer", orig); got != orig {
		t.Fatalf("classified error was rewrapped: %v", got)
	}
	if transportError("outer", nil) != nil {
		t.Fatal("nil must stay nil")
	}
	wrapped := transportError("outer", &net.OpError{Op: "dial", Err: errors.New("refused")})
	if !errors.Is(wrapped, errs.ErrTransport) || errs.CodeOf(wrapped) != errs.CodeCouldntConnect {
		t.Fatalf("unexpected wrap: %v", wrapped)
	}
}
