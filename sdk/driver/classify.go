// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"

	"github.com/scc-digitalhub/digitalhub-transfer-sdk/sdk/errs"
)

var errTooManyRedirects = errors.New("stopped after maximum redirects")

// Classify maps a transport error to a transfer result code.
func Classify(err error) errs.Code {
	if err == nil {
		return errs.CodeOK
	}

	var (
		e          *errs.Error
		dnsErr     *net.DNSError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		verifyErr  *tls.CertificateVerificationError
		recordErr  tls.RecordHeaderError
		alertErr   tls.AlertError
		opErr      *net.OpError
		netErr     net.Error
	)

	switch {
	case errors.As(err, &e) && e.Kind == errs.KindTransport:
		return e.Code
	case errors.Is(err, errTooManyRedirects):
		return errs.CodeTooManyRedirects
	case errors.Is(err, context.DeadlineExceeded):
		return errs.CodeOperationTimedOut
	case errors.Is(err, context.Canceled):
		return errs.CodeAbortedByCallback
	case errors.As(err, &dnsErr):
		return errs.CodeCouldntResolveHost
	case errors.As(err, &verifyErr), errors.As(err, &unknownCA),
		errors.As(err, &hostErr), errors.As(err, &invalidErr):
		return errs.CodePeerFailedVerification
	case errors.As(err, &recordErr), errors.As(err, &alertErr):
		return errs.CodeSSLConnectError
	case errors.As(err, &netErr) && netErr.Timeout():
		return errs.CodeOperationTimedOut
	case errors.As(err, &opErr):
		switch opErr.Op {
		case "dial":
			return errs.CodeCouldntConnect
		case "write":
			return errs.CodeSendError
		default:
			return errs.CodeRecvError
		}
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return errs.CodeGotNothing
	}
	return errs.CodeUnknown
}

// transportError wraps err with its classified code.
func transportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.KindTransport {
		return err
	}
	return errs.Transport(Classify(err), op, err)
}
