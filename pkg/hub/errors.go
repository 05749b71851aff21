package hub

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/gatelink-dev/gatelink/pkg/protocol"
)

// Sentinel errors for common session error conditions.
var (
	// ErrSessionStopped is returned when an operation is attempted on a stopped session.
	ErrSessionStopped = errors.New("hub: session stopped")

	// ErrAlreadyRunning is returned when Run is called on a session whose
	// run loop is still alive.
	ErrAlreadyRunning = errors.New("hub: session already running")

	// ErrNotConnected is returned when a command is sent with no live connection.
	ErrNotConnected = errors.New("hub: not connected")

	// ErrNotReady is returned when a command requires the device tree before it is loaded.
	ErrNotReady = errors.New("hub: device tree not loaded")

	// ErrAuthRejected is returned when the hub's login response carries no success indicator.
	ErrAuthRejected = errors.New("hub: login rejected")

	// ErrPeerClosed is returned when the hub closes the socket mid-session.
	ErrPeerClosed = errors.New("hub: connection closed by hub")

	// ErrIdleExpired is returned when two consecutive idle periods pass with no data.
	ErrIdleExpired = errors.New("hub: idle timeout with no hub traffic")
)

// ErrorType classifies a session failure for retry and logging decisions.
type ErrorType int

const (
	// ErrorConnection covers dial, read, and write failures on the socket.
	ErrorConnection ErrorType = iota

	// ErrorAuth covers login responses without a success indicator.
	ErrorAuth

	// ErrorProtocol covers frames that decode but have an unexpected shape.
	ErrorProtocol

	// ErrorCorruption covers undecodable payloads abandoned mid-stream.
	ErrorCorruption

	// ErrorDecompression covers compressed frames that fail to inflate.
	ErrorDecompression

	// ErrorCommand covers outbound packets that fail to build, usually an
	// out-of-range integer from the caller.
	ErrorCommand
)

// String returns the classification name.
func (t ErrorType) String() string {
	switch t {
	case ErrorConnection:
		return "connection"
	case ErrorAuth:
		return "auth"
	case ErrorProtocol:
		return "protocol"
	case ErrorCorruption:
		return "corruption"
	case ErrorDecompression:
		return "decompression"
	case ErrorCommand:
		return "command"
	default:
		return "unknown"
	}
}

// HubError wraps a session failure with its classification and hub context.
type HubError struct {
	Type ErrorType
	Hub  string // Hub identifier, empty before login completes
	Op   string // Operation that failed
	Err  error  // Underlying error
}

// Error returns the error message with hub context.
func (e *HubError) Error() string {
	if e.Hub == "" {
		return fmt.Sprintf("hub: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("hub %s: %s: %v", e.Hub, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *HubError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another connection attempt may succeed. Only
// command-build failures are caller bugs that retrying cannot fix; every
// network, auth, and stream condition is retried on the backoff schedule.
func (e *HubError) Retryable() bool {
	return e.Type != ErrorCommand
}

// NewHubError creates a HubError with an explicit classification.
func NewHubError(t ErrorType, hubID, op string, err error) *HubError {
	return &HubError{Type: t, Hub: hubID, Op: op, Err: err}
}

// classifyError wraps err as a HubError, deriving the ErrorType from the
// error chain. Codec errors map to the corruption/decompression classes,
// packet-build errors to the command class, and everything reachable from
// the network stack to the connection class.
func classifyError(hubID, op string, err error) *HubError {
	var he *HubError
	if errors.As(err, &he) {
		return he
	}

	t := ErrorConnection
	switch {
	case errors.Is(err, ErrAuthRejected):
		t = ErrorAuth
	case errors.Is(err, protocol.ErrIntegerOutOfRange),
		errors.Is(err, protocol.ErrCompositeTooLarge),
		errors.Is(err, protocol.ErrInvalidTopLevelValue),
		errors.Is(err, protocol.ErrFrameTooLarge):
		t = ErrorCommand
	case errors.Is(err, protocol.ErrDecompression):
		t = ErrorDecompression
	case errors.Is(err, protocol.ErrBadMagic),
		errors.Is(err, protocol.ErrCorruptFrame),
		errors.Is(err, protocol.ErrUnknownTag),
		errors.Is(err, protocol.ErrMaxDepthExceeded),
		errors.Is(err, protocol.ErrAllocationTooLarge),
		errors.Is(err, protocol.ErrVarintOverflow):
		t = ErrorCorruption
	case errors.Is(err, ErrPeerClosed), errors.Is(err, ErrIdleExpired):
		t = ErrorConnection
	default:
		var pe *ProtocolShapeError
		if errors.As(err, &pe) {
			t = ErrorProtocol
		}
	}
	return NewHubError(t, hubID, op, err)
}

// IsAuthError reports whether err is a login rejection.
func IsAuthError(err error) bool {
	var he *HubError
	if errors.As(err, &he) && he.Type == ErrorAuth {
		return true
	}
	return errors.Is(err, ErrAuthRejected)
}

// IsConnectionError reports whether err is a network-level failure.
func IsConnectionError(err error) bool {
	var he *HubError
	if errors.As(err, &he) {
		return he.Type == ErrorConnection
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, io.EOF)
}

// isTimeout reports whether err is a read or write deadline expiry.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isConnReset reports whether err is the peer tearing the socket down,
// which close and read paths tolerate as an ordinary disconnect.
func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// ProtocolShapeError reports a frame that decoded cleanly but did not have
// the structure the session phase expected.
type ProtocolShapeError struct {
	Op      string
	Message string
}

// Error returns the error message.
func (e *ProtocolShapeError) Error() string {
	return fmt.Sprintf("hub: %s: %s", e.Op, e.Message)
}

// NewProtocolShapeError creates a new ProtocolShapeError.
func NewProtocolShapeError(op, message string) *ProtocolShapeError {
	return &ProtocolShapeError{Op: op, Message: message}
}
