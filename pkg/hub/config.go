package hub

import (
	"errors"
	"log/slog"
	"time"
)

// FrameTap observes raw frames as they cross the session's socket, after
// encode and before decode. Taps run on the session's goroutines and must
// not retain the frame slice past the call.
type FrameTap interface {
	Frame(outbound bool, frame []byte)
}

// SessionConfig configures a hub connection session.
type SessionConfig struct {
	// Address is the hub's TCP endpoint as host:port.
	Address string

	// UserID and Password are the login credentials.
	UserID   string
	Password string

	// ConnectTimeout bounds the TCP dial.
	// Default: 10 seconds
	ConnectTimeout time.Duration

	// ReadTimeout bounds a single read while logging in and loading the
	// device tree. Expiry in those phases fails the attempt.
	// Default: 15 seconds
	ReadTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// IdleTimeout bounds a streaming read. One expiry sends a get-config
	// probe instead of reconnecting; a second consecutive expiry, or a
	// probe that fails to send, tears the connection down.
	// Default: 60 seconds
	IdleTimeout time.Duration

	// ReconnectDelay is the wait after a failed attempt before dialing
	// again. Default: 30 seconds
	ReconnectDelay time.Duration

	// ReconnectMaxDelay caps the delay when ReconnectMultiplier grows it.
	// Default: 5 minutes
	ReconnectMaxDelay time.Duration

	// ReconnectMultiplier scales the delay after each consecutive
	// failure. 1.0 keeps the hub's fixed-delay schedule.
	// Default: 1.0
	ReconnectMultiplier float64

	// ReadBufferSize is the size of a single socket read. Frames larger
	// than this are reassembled across reads.
	// Default: 4096
	ReadBufferSize int

	// Logger receives session diagnostics. The session derives a child
	// logger with the hub address attached.
	// Default: slog.Default()
	Logger *slog.Logger

	// Taps observe every raw frame the session sends or receives.
	Taps []FrameTap
}

// DefaultSessionConfig returns a SessionConfig with production defaults.
// Address and credentials must still be filled in.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ConnectTimeout:      10 * time.Second,
		ReadTimeout:         15 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         60 * time.Second,
		ReconnectDelay:      30 * time.Second,
		ReconnectMaxDelay:   5 * time.Minute,
		ReconnectMultiplier: 1.0,
		ReadBufferSize:      4096,
		Logger:              slog.Default(),
	}
}

// Clone returns a copy of the config. A nil Logger is filled with
// slog.Default() so hand-built configs get the documented default.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return DefaultSessionConfig()
	}
	clone := *c
	if clone.Logger == nil {
		clone.Logger = slog.Default()
	}
	if c.Taps != nil {
		clone.Taps = make([]FrameTap, len(c.Taps))
		copy(clone.Taps, c.Taps)
	}
	return &clone
}

// Validate reports the first problem that would make the session unusable.
func (c *SessionConfig) Validate() error {
	if c.Address == "" {
		return errors.New("hub: config missing hub address")
	}
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return errors.New("hub: config timeouts must be positive")
	}
	if c.ReadBufferSize <= 0 {
		return errors.New("hub: config read buffer size must be positive")
	}
	if c.ReconnectDelay <= 0 {
		return errors.New("hub: config reconnect delay must be positive")
	}
	if c.ReconnectMultiplier < 1.0 {
		return errors.New("hub: config reconnect multiplier must be at least 1.0")
	}
	return nil
}

// WithAddress sets the hub endpoint.
func (c *SessionConfig) WithAddress(addr string) *SessionConfig {
	c.Address = addr
	return c
}

// WithCredentials sets the login credentials.
func (c *SessionConfig) WithCredentials(userID, password string) *SessionConfig {
	c.UserID = userID
	c.Password = password
	return c
}

// WithIdleTimeout sets the streaming idle timeout.
func (c *SessionConfig) WithIdleTimeout(d time.Duration) *SessionConfig {
	c.IdleTimeout = d
	return c
}

// WithReconnectDelay sets the delay between connection attempts.
func (c *SessionConfig) WithReconnectDelay(d time.Duration) *SessionConfig {
	c.ReconnectDelay = d
	return c
}

// WithLogger sets the session logger.
func (c *SessionConfig) WithLogger(logger *slog.Logger) *SessionConfig {
	c.Logger = logger
	return c
}

// WithTap adds a frame tap.
func (c *SessionConfig) WithTap(tap FrameTap) *SessionConfig {
	c.Taps = append(c.Taps, tap)
	return c
}
