package core

import "time"

// ClientOption configures a Client at construction time, layered on top of
// whatever Config supplied. Following the teacher's functional-options
// idiom, these are for the handful of knobs callers plausibly want to
// override without editing Config: a clock (see WithClock for its reach)
// and the composer's worker-pool width (spec §5).
type ClientOption func(*clientOptions)

type clientOptions struct {
	now            func() time.Time
	workerPoolSize int
}

func defaultClientOptions() *clientOptions {
	return &clientOptions{
		now:            func() time.Time { return time.Now().UTC() },
		workerPoolSize: 4,
	}
}

// WithClock overrides the clock held in the client's construction options.
// NewClient does not hand it to the composer, and BuildMemoryPacket does not
// read it: a zero-valued BuildRequest.Now is resolved by
// BuildRequest.ResolvedNow, which reads the wall clock.
func WithClock(now func() time.Time) ClientOption {
	return func(o *clientOptions) {
		o.now = now
	}
}

// WithWorkerPoolSize sets the number of candidate loaders the composer runs
// concurrently per build (spec §5). Defaults to 4.
func WithWorkerPoolSize(n int) ClientOption {
	return func(o *clientOptions) {
		if n > 0 {
			o.workerPoolSize = n
		}
	}
}

func applyClientOptions(opts []ClientOption) *clientOptions {
	options := defaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}
