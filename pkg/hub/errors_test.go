package hub

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"

	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"auth_rejected", ErrAuthRejected, ErrorAuth, true},
		{"wrapped_auth", fmt.Errorf("read login ack: %w", ErrAuthRejected), ErrorAuth, true},
		{"peer_closed", ErrPeerClosed, ErrorConnection, true},
		{"idle_expired", ErrIdleExpired, ErrorConnection, true},
		{"plain_net_error", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ErrorConnection, true},
		{"decompression", protocol.ErrDecompression, ErrorDecompression, true},
		{"bad_magic", protocol.ErrBadMagic, ErrorCorruption, true},
		{"corrupt_frame", protocol.ErrCorruptFrame, ErrorCorruption, true},
		{"unknown_tag", protocol.ErrUnknownTag, ErrorCorruption, true},
		{"depth_exceeded", protocol.ErrMaxDepthExceeded, ErrorCorruption, true},
		{"int_out_of_range", protocol.ErrIntegerOutOfRange, ErrorCommand, false},
		{"composite_too_large", protocol.ErrCompositeTooLarge, ErrorCommand, false},
		{"frame_too_large", protocol.ErrFrameTooLarge, ErrorCommand, false},
		{"shape_error", NewProtocolShapeError("login", "ack missing node identifier"), ErrorProtocol, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			he := classifyError("H1", "op", tc.err)
			if he.Type != tc.wantType {
				t.Errorf("Type = %v, want %v", he.Type, tc.wantType)
			}
			if he.Retryable() != tc.retryable {
				t.Errorf("Retryable = %v, want %v", he.Retryable(), tc.retryable)
			}
			if !errors.Is(he, tc.err) {
				t.Errorf("classified error does not unwrap to the original")
			}
		})
	}
}

func TestClassifyErrorPassesHubErrorThrough(t *testing.T) {
	orig := NewHubError(ErrorAuth, "H1", "login", ErrAuthRejected)
	wrapped := fmt.Errorf("attempt: %w", orig)

	got := classifyError("H2", "other", wrapped)
	if got != orig {
		t.Errorf("classifyError re-wrapped an existing HubError")
	}
}

func TestHubErrorFormat(t *testing.T) {
	withHub := NewHubError(ErrorConnection, "H1", "dial", syscall.ECONNREFUSED)
	if got := withHub.Error(); !strings.Contains(got, "H1") || !strings.Contains(got, "dial") {
		t.Errorf("Error() = %q, want hub id and op present", got)
	}

	withoutHub := NewHubError(ErrorConnection, "", "dial", syscall.ECONNREFUSED)
	if got := withoutHub.Error(); strings.Contains(got, "hub :") {
		t.Errorf("Error() = %q, want no dangling hub id", got)
	}
}

func TestHubErrorUnwrap(t *testing.T) {
	he := NewHubError(ErrorConnection, "H1", "read", ErrPeerClosed)
	if !errors.Is(he, ErrPeerClosed) {
		t.Error("errors.Is through HubError failed")
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(ErrAuthRejected) {
		t.Error("IsAuthError(ErrAuthRejected) = false")
	}
	if !IsAuthError(NewHubError(ErrorAuth, "H1", "login", ErrAuthRejected)) {
		t.Error("IsAuthError on HubError = false")
	}
	if IsAuthError(ErrPeerClosed) {
		t.Error("IsAuthError(ErrPeerClosed) = true")
	}
}

func TestIsConnectionError(t *testing.T) {
	if !IsConnectionError(NewHubError(ErrorConnection, "H1", "read", io.EOF)) {
		t.Error("IsConnectionError on connection HubError = false")
	}
	if IsConnectionError(NewHubError(ErrorAuth, "H1", "login", ErrAuthRejected)) {
		t.Error("IsConnectionError on auth HubError = true")
	}
	if !IsConnectionError(io.EOF) {
		t.Error("IsConnectionError(io.EOF) = false")
	}
	if !IsConnectionError(&net.OpError{Op: "read", Err: syscall.ECONNRESET}) {
		t.Error("IsConnectionError on net.OpError = false")
	}
}

func TestIsConnReset(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"econnreset", syscall.ECONNRESET, true},
		{"epipe", syscall.EPIPE, true},
		{"wrapped_reset", &net.OpError{Op: "close", Err: syscall.ECONNRESET}, true},
		{"net_closed", net.ErrClosed, true},
		{"eof", io.EOF, true},
		{"refused", syscall.ECONNREFUSED, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isConnReset(tc.err); got != tc.want {
				t.Errorf("isConnReset = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestErrorTypeString(t *testing.T) {
	tests := []struct {
		t    ErrorType
		want string
	}{
		{ErrorConnection, "connection"},
		{ErrorAuth, "auth"},
		{ErrorProtocol, "protocol"},
		{ErrorCorruption, "corruption"},
		{ErrorDecompression, "decompression"},
		{ErrorCommand, "command"},
		{ErrorType(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.t.String(); got != tc.want {
			t.Errorf("ErrorType(%d).String() = %q, want %q", int(tc.t), got, tc.want)
		}
	}
}
