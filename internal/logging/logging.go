// Package logging builds the per-run logger that writes to the console and to
// a timestamped file under the log directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Run is an open run log.
type Run struct {
	Logger zerolog.Logger
	Path   string
	file   *os.File
}

// Options configure Open.
type Options struct {
	Dir     string
	Name    string
	Now     time.Time
	Console io.Writer
	Verbose bool
	Fields  map[string]string
}

// FileName returns the log file name for a run started at now.
func FileName(name string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s.log", now.Format("2006-01-02"), now.Format("150405"), name)
}

// Open creates the log directory if needed and returns a logger writing the
// same events to the console and to the run's log file.
func Open(opts Options) (*Run, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Name == "" {
		opts.Name = "fleetctl"
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(opts.Dir, FileName(opts.Name, opts.Now))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	console := zerolog.ConsoleWriter{
		Out:        opts.Console,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(opts.Console),
	}
	fileWriter := zerolog.ConsoleWriter{
		Out:        file,
		TimeFormat: time.DateTime,
		NoColor:    true,
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(console, fileWriter)).Level(level).With().Timestamp()
	for k, v := range opts.Fields {
		ctx = ctx.Str(k, v)
	}

	return &Run{Logger: ctx.Logger(), Path: path, file: file}, nil
}

// Close flushes and closes the log file.
func (r *Run) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
