package unifiedmcp

import (
	"fmt"

	xerrors "UnifiedMCP-Client/internal/errors"
	"UnifiedMCP-Client/internal/realtime"
)

// Sentinels for errors.Is. Matching is by error class, so a timeout for any
// event matches ErrTimeout.
var (
	// ErrNotConnected is returned by realtime requests issued without a live
	// connection, or when the connection drops while waiting.
	ErrNotConnected error = realtime.ErrClosed
	// ErrTimeout is returned when no reply arrives within the client timeout.
	ErrTimeout error = xerrors.New(xerrors.CodeTimeout, "")
	// ErrRemote is returned when the server answers a realtime request with
	// success=false. The error message is the server's message.
	ErrRemote error = xerrors.New(xerrors.CodeRemoteFailure, "")
	// ErrMalformedReply is returned when a successful reply lacks the field the
	// operation extracts.
	ErrMalformedReply error = xerrors.New(xerrors.CodeMalformedReply, "")
)

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	// Body is the compact JSON error body, or the raw text when the body is not
	// JSON.
	Body string
	// Detail holds the decoded JSON body when there was one.
	Detail any
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("api error: %d - %s", e.StatusCode, e.Body)
}

// ErrorCode classifies err: one of "NOT_CONNECTED", "TIMEOUT",
// "REMOTE_FAILURE", "MALFORMED_REPLY", "TRANSPORT_FAILURE", "ENCODE_FAILURE",
// or "UNKNOWN" for errors this package did not produce (including *APIError).
func ErrorCode(err error) string {
	return string(xerrors.CodeOf(err))
}
