package remote

import (
	"bytes"
	"context"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Default client binaries looked up on PATH.
const (
	DefaultPingBinary = "ping"
	DefaultDigBinary  = "dig"
)

// Ping probes hosts with a single ICMP echo via the system ping binary.
type Ping struct {
	Binary string
}

var receivedRegex = regexp.MustCompile(`(\d+)\s+(?:packets\s+)?received`)

// Probe sends one echo request and succeeds only when exactly one reply
// was received.
func (p Ping) Probe(ctx context.Context, host string, timeout time.Duration) (bool, string) {
	binary := p.Binary
	if binary == "" {
		binary = DefaultPingBinary
	}
	args := []string{"-c", "1"}
	if timeout > 0 {
		secs := int(timeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		args = append(args, "-W", strconv.Itoa(secs))
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout+time.Second)
		defer cancel()
	}
	args = append(args, host)

	out, err := runLocal(ctx, binary, args...)
	if err != nil {
		return false, out
	}
	return RepliesReceived(out) == 1, out
}

// RepliesReceived extracts the received count from ping summary output, or -1.
func RepliesReceived(output string) int {
	match := receivedRegex.FindStringSubmatch(output)
	if len(match) < 2 {
		return -1
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return -1
	}
	return n
}

// DNS resolves hosts with dig first and the Go resolver as fallback.
type DNS struct {
	DigBinary string
	Fallback  *net.Resolver
	Timeout   time.Duration
}

// Resolve returns the first address found for host, or UnknownAddress.
func (d DNS) Resolve(ctx context.Context, host string) string {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	binary := d.DigBinary
	if binary == "" {
		binary = DefaultDigBinary
	}
	if out, err := runLocal(ctx, binary, "+short", host); err == nil {
		if addr := firstAddress(out); addr != "" {
			return addr
		}
	}

	resolver := d.Fallback
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		return UnknownAddress
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a
		}
	}
	return addrs[0]
}

// dig +short may print CNAME targets before the address records.
func firstAddress(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if net.ParseIP(line) != nil {
			return line
		}
	}
	return ""
}

func runLocal(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return strings.TrimSpace(buf.String()), err
}
