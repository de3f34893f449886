// Package toolcheck verifies that the controller host has the client
// binaries the transports shell out to.
package toolcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// ErrMissing reports that a required binary is not installed.
var ErrMissing = errors.New("required tool missing")

// Tool describes a binary and how to ask it for its version.
type Tool struct {
	Name        string
	Binary      string
	VersionArgs []string
	Required    bool
}

// Info captures what was found for a Tool.
type Info struct {
	Name    string
	Path    string
	Version string
	Found   bool
}

var versionRegex = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:p\d+)?`)

// Check looks every tool up on PATH. It returns ErrMissing listing each
// required tool that could not be found; optional tools are reported in the
// returned infos only.
func Check(ctx context.Context, tools []Tool) ([]Info, error) {
	infos := make([]Info, 0, len(tools))
	var missing []string
	for _, tool := range tools {
		binary := tool.Binary
		if binary == "" {
			binary = tool.Name
		}
		info := Info{Name: tool.Name}
		path, err := exec.LookPath(binary)
		if err != nil {
			if tool.Required {
				missing = append(missing, binary)
			}
			infos = append(infos, info)
			continue
		}
		info.Path = path
		info.Found = true
		if len(tool.VersionArgs) > 0 {
			if out, err := runCommand(ctx, path, tool.VersionArgs...); err == nil {
				info.Version = versionRegex.FindString(out)
			}
		}
		infos = append(infos, info)
	}
	if len(missing) > 0 {
		return infos, fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return infos, nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
