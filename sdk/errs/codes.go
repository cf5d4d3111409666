// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package errs

import "fmt"

// Kind classifies an error by the layer that raised it.
// Kinds are string-based so they read well in logs and JSON output.
type Kind string

const (
	// KindConfig is an invalid or unknown option or value, raised by the call that set it.
	KindConfig Kind = "CONFIG_ERROR"

	// KindHandleState is an operation that is not valid in the handle's current state.
	KindHandleState Kind = "HANDLE_STATE_ERROR"

	// KindBadHandle is an add or remove that violates the one-coordinator-per-handle rule.
	KindBadHandle Kind = "BAD_HANDLE"

	// KindTransport is a failure of a single transfer. It is only ever reported
	// through completion messages or a synchronous Perform.
	KindTransport Kind = "TRANSPORT_ERROR"

	// KindCoordinator is a failure affecting the whole registration set.
	KindCoordinator Kind = "COORDINATOR_ERROR"

	// KindUnsupported is a feature the current runtime does not provide.
	KindUnsupported Kind = "UNSUPPORTED"
)

// Code is the result code of a single transfer.
type Code int

const (
	CodeOK Code = iota
	CodeUnsupportedProtocol
	CodeURLMalformed
	CodeCouldntResolveHost
	CodeCouldntConnect
	CodeHTTPReturnedError
	CodeWriteError
	CodeReadError
	CodeOperationTimedOut
	CodeSSLConnectError
	CodePeerFailedVerification
	CodeTooManyRedirects
	CodeRecvError
	CodeSendError
	CodeAbortedByCallback
	CodeGotNothing
	CodeRemoteAccessDenied
	CodeBadShare
	CodeUnknown
)

var codeNames = map[Code]string{
	CodeOK:                     "OK",
	CodeUnsupportedProtocol:    "UNSUPPORTED_PROTOCOL",
	CodeURLMalformed:           "URL_MALFORMAT",
	CodeCouldntResolveHost:     "COULDNT_RESOLVE_HOST",
	CodeCouldntConnect:         "COULDNT_CONNECT",
	CodeHTTPReturnedError:      "HTTP_RETURNED_ERROR",
	CodeWriteError:             "WRITE_ERROR",
	CodeReadError:              "READ_ERROR",
	CodeOperationTimedOut:      "OPERATION_TIMEDOUT",
	CodeSSLConnectError:        "SSL_CONNECT_ERROR",
	CodePeerFailedVerification: "PEER_FAILED_VERIFICATION",
	CodeTooManyRedirects:       "TOO_MANY_REDIRECTS",
	CodeRecvError:              "RECV_ERROR",
	CodeSendError:              "SEND_ERROR",
	CodeAbortedByCallback:      "ABORTED_BY_CALLBACK",
	CodeGotNothing:             "GOT_NOTHING",
	CodeRemoteAccessDenied:     "REMOTE_ACCESS_DENIED",
	CodeBadShare:               "BAD_SHARE",
	CodeUnknown:                "UNKNOWN",
}

var codeText = map[Code]string{
	CodeOK:                     "No error",
	CodeUnsupportedProtocol:    "Unsupported protocol",
	CodeURLMalformed:           "URL using bad/illegal format or missing URL",
	CodeCouldntResolveHost:     "Could not resolve host name",
	CodeCouldntConnect:         "Could not connect to server",
	CodeHTTPReturnedError:      "HTTP response code said error",
	CodeWriteError:             "Failed writing received data to disk/application",
	CodeReadError:              "Failed to open/read local data from file/application",
	CodeOperationTimedOut:      "Timeout was reached",
	CodeSSLConnectError:        "SSL connect error",
	CodePeerFailedVerification: "SSL peer certificate or SSH remote key was not OK",
	CodeTooManyRedirects:       "Number of redirects hit maximum amount",
	CodeRecvError:              "Failure when receiving data from the peer",
	CodeSendError:              "Failed sending data to the peer",
	CodeAbortedByCallback:      "Operation was aborted by an application callback",
	CodeGotNothing:             "Server returned nothing (no headers, no data)",
	CodeRemoteAccessDenied:     "Access denied to remote resource",
	CodeBadShare:               "Share object is closed or invalid",
	CodeUnknown:                "Unknown error",
}

// String returns the symbolic name of the code.
func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CODE_%d", int(c))
}

// Text returns a human-readable description of the code.
func (c Code) Text() string {
	if t, ok := codeText[c]; ok {
		return t
	}
	return "Unknown error"
}

// Known reports whether c belongs to the enumeration.
func (c Code) Known() bool {
	_, ok := codeNames[c]
	return ok
}

// MarshalText renders the symbolic name, so codes serialize as strings.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
