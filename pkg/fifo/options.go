package fifo

import "time"

const (
	// DefaultMaxSize and DefaultTTL are the settings used by NewDefault.
	// They are arbitrary; most callers should pick their own.
	DefaultMaxSize = 1000
	DefaultTTL     = 5 * time.Minute
)

type options struct {
	ttl   time.Duration
	clock Clock
}

// Option configures a Cache at construction time.
type Option func(*options)

// WithTTL enables expiration: every insert or update stamps the entry with
// now+ttl. A ttl <= 0 leaves expiration disabled.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithClock replaces the system clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}
