package deviceauth

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Flow
type Option func(*Flow)

// WithLogger sets the logger used for flow diagnostics.
// Tokens are never logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithObserver registers fn to receive every state transition of
// Authenticate. fn runs synchronously on the calling goroutine.
func WithObserver(fn func(State)) Option {
	return func(f *Flow) {
		f.observer = fn
	}
}

// WithClock sets the time source used by TokenSource to judge expiry
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// WithStreamDialer replaces the push channel used to wait for approval.
// Only honored by New; NewFlow takes the stream dialer directly.
func WithStreamDialer(sd StreamDialer) Option {
	return func(f *Flow) {
		f.streamDialer = sd
	}
}

// WithHTTPClient sets the HTTP client used for request/response calls.
// Only honored by New.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = c
	}
}
