package remote

import (
	"context"
	"time"
)

// Result is the uniform outcome of an Execute call. Transport failures,
// non-zero exit status and timeouts all surface as OK == false with the
// captured output as diagnostic text.
type Result struct {
	Output   string        `json:"output,omitempty"`
	OK       bool          `json:"ok"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"-"`
}

// Executor runs single operations against single devices. Execute blocks until
// the operation completes, fails or times out. A zero timeout means no bound.
type Executor interface {
	Execute(ctx context.Context, target Endpoint, op Operation, timeout time.Duration) Result
}

// Prober checks whether a host answers a reachability probe.
type Prober interface {
	Probe(ctx context.Context, host string, timeout time.Duration) (bool, string)
}

// Resolver resolves a host to an address. It never fails; unresolvable hosts
// yield UnknownAddress.
type Resolver interface {
	Resolve(ctx context.Context, host string) string
}

// UnknownAddress is recorded when a host could not be resolved.
const UnknownAddress = "Unknown"
