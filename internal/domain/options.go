package domain

import "time"

const (
	defaultParallelism = 4
	defaultMaxAttempts = 5
)

type options struct {
	now         func() time.Time
	parallelism int
	maxAttempts int
}

// Option customises a service.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithParallelism bounds how many challenges are evaluated at once for one activity.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithMaxAttempts bounds the read-modify-write loop on version conflicts.
// Only ErrConflict from a repository write is retried; every other error
// is returned to the caller on the first attempt.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:         func() time.Time { return time.Now().UTC() },
		parallelism: defaultParallelism,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
