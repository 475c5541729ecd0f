package h402

import (
	"context"
	"time"
)

// PollOptions bounds a polling loop
type PollOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultPollOptions waits up to 30s, checking every second
var DefaultPollOptions = PollOptions{Timeout: 30 * time.Second, Interval: time.Second}

// PollFunc fetches the current state. done reports whether polling can stop.
type PollFunc[T any] func(ctx context.Context) (result T, done bool, err error)

// Poll calls fetch until it reports done, returns an error, or the timeout
// elapses. When the timeout elapses, fetch runs one final time and its result
// is returned as is. Cancelling ctx stops polling immediately.
func Poll[T any](ctx context.Context, opts PollOptions, fetch PollFunc[T]) (T, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPollOptions.Timeout
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollOptions.Interval
	}

	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		result, done, err := fetch(ctx)
		if err != nil || done {
			return result, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-deadline.C:
			result, _, err := fetch(ctx)
			return result, err
		case <-ticker.C:
		}
	}
}
