package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Options configure the SSH executor.
type Options struct {
	SSHBinary  string
	SCPBinary  string
	SSHOptions []string
	Stdout     io.Writer
	Verbose    bool
	TailLines  int
	Now        func() time.Time
}

// SSH executes operations with the system ssh and scp clients, relying on
// whatever key or agent trust the controller host already has.
type SSH struct {
	opts Options
}

// NewSSH creates an SSH executor with the supplied options.
func NewSSH(opts Options) *SSH {
	if opts.SSHBinary == "" {
		opts.SSHBinary = "ssh"
	}
	if opts.SCPBinary == "" {
		opts.SCPBinary = "scp"
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.TailLines <= 0 {
		opts.TailLines = 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.SSHOptions = append([]string{}, opts.SSHOptions...)
	return &SSH{opts: opts}
}

// Execute runs op against target.
func (s *SSH) Execute(ctx context.Context, target Endpoint, op Operation, timeout time.Duration) Result {
	argv, err := s.command(target, op)
	if err != nil {
		return Result{Output: err.Error(), ExitCode: 127}
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.WaitDelay = 5 * time.Second

	var buf strings.Builder
	if s.opts.Verbose {
		w := io.MultiWriter(s.opts.Stdout, &buf)
		cmd.Stdout = w
		cmd.Stderr = w
	} else {
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	}

	start := s.opts.Now()
	err = cmd.Run()
	res := Result{
		Output:   tailLines(buf.String(), s.opts.TailLines),
		OK:       err == nil,
		ExitCode: exitCode(err),
		Duration: s.opts.Now().Sub(start),
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.Output = appendLine(res.Output, fmt.Sprintf("timed out after %s", timeout))
	} else if err != nil && res.Output == "" {
		res.Output = err.Error()
	}
	return res
}

func (s *SSH) command(target Endpoint, op Operation) ([]string, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if target.Host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidOperation)
	}

	switch op.Kind {
	case KindShell:
		args := append([]string{s.opts.SSHBinary}, s.opts.SSHOptions...)
		return append(args, "--", target.Target(), op.CommandLine()), nil
	case KindPush:
		args := append([]string{s.opts.SCPBinary}, s.opts.SSHOptions...)
		return append(args, op.Local, target.Target()+":"+op.Remote), nil
	case KindPull:
		args := append([]string{s.opts.SCPBinary}, s.opts.SSHOptions...)
		return append(args, target.Target()+":"+op.Remote, op.Local), nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidOperation, op.Kind)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(interface{ ExitStatus() int }); ok {
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	if errors.Is(err, exec.ErrNotFound) {
		return 127
	}
	return 1
}

func tailLines(input string, maxLines int) string {
	if input == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(input, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n")
}

func appendLine(text, line string) string {
	if text == "" {
		return line
	}
	return text + "\n" + line
}
