// Package client is the participant side of the collaboration protocol: a
// reconnecting dialer and a Participant that keeps a local buffer in sync
// with the rest of its session.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnect is returned when Dial gives up.
var ErrConnect = errors.New("client: could not connect")

// DialOptions configures Dial.
type DialOptions struct {
	// AttemptTimeout bounds each handshake.
	AttemptTimeout time.Duration
	// MinBackoff and MaxBackoff bound the wait between attempts, which
	// doubles after every failure.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// MaxAttempts stops retrying after this many failures. Zero retries
	// until ctx is done.
	MaxAttempts int
	Header      http.Header
	Logger      *slog.Logger
}

// DefaultDialOptions retries forever with a 10s handshake timeout.
func DefaultDialOptions() DialOptions {
	return DialOptions{
		AttemptTimeout: 10 * time.Second,
		MinBackoff:     250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Dial connects to the relay at url, retrying until it succeeds, ctx is
// done, or MaxAttempts is reached. Every successful Dial is a new
// connection with a new identity.
func Dial(ctx context.Context, url string, opts DialOptions) (*websocket.Conn, error) {
	def := DefaultDialOptions()
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = def.AttemptTimeout
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = def.MinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(def.MaxBackoff, opts.MinBackoff)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.AttemptTimeout,
	}

	backoff := opts.MinBackoff
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, opts.AttemptTimeout)
		ws, resp, err := dialer.DialContext(attemptCtx, url, opts.Header)
		cancel()
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil {
			logger.Debug("connected", slog.String("url", url), slog.Int("attempt", attempt))
			return ws, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w (last error: %v)", ErrConnect, ctx.Err(), err)
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnect, attempt, err)
		}

		logger.Warn("connect failed, retrying",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w (last error: %v)", ErrConnect, ctx.Err(), err)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, opts.MaxBackoff)
	}
}
