package remote

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind distinguishes the transport used by an Operation.
type Kind int

const (
	// KindShell runs a command through the remote shell.
	KindShell Kind = iota
	// KindPush copies a local file to the device.
	KindPush
	// KindPull copies files matching a remote pattern into a local directory.
	KindPull
)

func (k Kind) String() string {
	switch k {
	case KindShell:
		return "shell"
	case KindPush:
		return "push"
	case KindPull:
		return "pull"
	default:
		return "unknown"
	}
}

// Operation is a single atomic unit of remote work. Compound sequences such as
// copy-then-run are expressed as separate operations.
type Operation struct {
	Kind Kind
	// Args is the argument vector for shell operations. Each argument is
	// quoted before it reaches the remote shell.
	Args []string
	// Script is a pre-composed remote command line. Callers build it from
	// Quote'd pieces; it is used verbatim when Args is empty.
	Script string
	Local  string
	Remote string
}

// Shell returns an operation running argv on the device.
func Shell(argv ...string) Operation {
	return Operation{Kind: KindShell, Args: append([]string{}, argv...)}
}

// Script returns an operation running a composed command line on the device.
func Script(line string) Operation {
	return Operation{Kind: KindShell, Script: line}
}

// Push returns an operation copying local to remote on the device.
func Push(local, remotePath string) Operation {
	return Operation{Kind: KindPush, Local: local, Remote: remotePath}
}

// Pull returns an operation copying files matching remotePattern into localDir.
func Pull(remotePattern, localDir string) Operation {
	return Operation{Kind: KindPull, Remote: remotePattern, Local: localDir}
}

// ErrInvalidOperation is returned when an operation cannot be turned into a command.
var ErrInvalidOperation = errors.New("invalid remote operation")

// CommandLine renders the remote command string for shell operations.
func (o Operation) CommandLine() string {
	if len(o.Args) == 0 {
		return o.Script
	}
	quoted := make([]string, 0, len(o.Args))
	for _, arg := range o.Args {
		quoted = append(quoted, Quote(arg))
	}
	return strings.Join(quoted, " ")
}

func (o Operation) String() string {
	switch o.Kind {
	case KindShell:
		return o.CommandLine()
	case KindPush:
		return fmt.Sprintf("push %s -> %s", o.Local, o.Remote)
	case KindPull:
		return fmt.Sprintf("pull %s -> %s", o.Remote, o.Local)
	default:
		return "unknown operation"
	}
}

// Validate reports whether the operation is well formed.
func (o Operation) Validate() error {
	switch o.Kind {
	case KindShell:
		if strings.TrimSpace(o.CommandLine()) == "" {
			return fmt.Errorf("%w: empty command", ErrInvalidOperation)
		}
		return nil
	case KindPush, KindPull:
		for _, p := range []string{o.Local, o.Remote} {
			if err := checkPath(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidOperation, o.Kind)
	}
}

func checkPath(p string) error {
	switch {
	case strings.TrimSpace(p) == "":
		return fmt.Errorf("%w: empty path", ErrInvalidOperation)
	case strings.HasPrefix(p, "-"):
		return fmt.Errorf("%w: path %q looks like a flag", ErrInvalidOperation, p)
	case strings.ContainsAny(p, "\n\r;|&`$"):
		return fmt.Errorf("%w: path %q contains shell metacharacters", ErrInvalidOperation, p)
	}
	return nil
}

var safeWord = regexp.MustCompile(`^[A-Za-z0-9@%+=:,./_-]+$`)

// Quote makes s safe to pass as a single word to a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if safeWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
