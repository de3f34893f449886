// Package remotetest provides scripted stand-ins for the remote interfaces.
package remotetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bgricker/fleetctl/internal/remote"
)

// Call records a single Execute invocation.
type Call struct {
	Target  remote.Endpoint
	Op      remote.Operation
	Timeout time.Duration
}

// Executor is a fake remote.Executor. Handler decides the result of each call;
// a nil Handler makes every call succeed.
type Executor struct {
	Handler func(target remote.Endpoint, op remote.Operation) remote.Result
	Delay   time.Duration

	mu     sync.Mutex
	calls  []Call
	active int
	peak   int
}

// Execute implements remote.Executor.
func (e *Executor) Execute(ctx context.Context, target remote.Endpoint, op remote.Operation, timeout time.Duration) remote.Result {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Target: target, Op: op, Timeout: timeout})
	e.active++
	if e.active > e.peak {
		e.peak = e.active
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return Fail(ctx.Err().Error())
		}
	}
	if e.Handler == nil {
		return OK("")
	}
	return e.Handler(target, op)
}

// Calls returns a copy of all recorded calls.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call{}, e.calls...)
}

// CallsFor returns the calls made against host, in order.
func (e *Executor) CallsFor(host string) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Target.Host == host {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of calls of the given kind.
func (e *Executor) Count(kind remote.Kind) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Op.Kind == kind {
			n++
		}
	}
	return n
}

// Peak returns the highest number of simultaneous Execute calls observed.
func (e *Executor) Peak() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peak
}

// Reset forgets recorded calls.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
	e.peak = 0
}

// OK builds a successful result.
func OK(output string) remote.Result {
	return remote.Result{OK: true, Output: output}
}

// Fail builds a failed result.
func Fail(output string) remote.Result {
	return remote.Result{OK: false, Output: output, ExitCode: 1}
}

// Contains reports whether the rendered operation contains substr.
func Contains(op remote.Operation, substr string) bool {
	return strings.Contains(op.String(), substr)
}

// Prober is a fake remote.Prober; hosts listed in Offline fail the probe.
type Prober struct {
	Offline map[string]bool

	mu     sync.Mutex
	probed []string
}

// Probe implements remote.Prober.
func (p *Prober) Probe(ctx context.Context, host string, timeout time.Duration) (bool, string) {
	p.mu.Lock()
	p.probed = append(p.probed, host)
	p.mu.Unlock()
	if p.Offline[host] {
		return false, "1 packets transmitted, 0 received, 100% packet loss"
	}
	return true, "1 packets transmitted, 1 received, 0% packet loss"
}

// Probed returns the hosts probed so far.
func (p *Prober) Probed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.probed...)
}

// Resolver is a fake remote.Resolver backed by a static table.
type Resolver struct {
	Addresses map[string]string
}

// Resolve implements remote.Resolver.
func (r Resolver) Resolve(ctx context.Context, host string) string {
	if addr, ok := r.Addresses[host]; ok {
		return addr
	}
	return remote.UnknownAddress
}
