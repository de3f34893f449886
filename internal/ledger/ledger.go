// Package ledger appends roll-call outcomes to a cumulative CSV file.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Header is written once, when the ledger file is created.
var Header = []string{"Date", "Time", "Hostname", "Status", "IPAddress"}

// Entry is one roll-call observation.
type Entry struct {
	At       time.Time
	Hostname string
	Status   string
	Address  string
}

func (e Entry) record() []string {
	return []string{
		e.At.Format("2006-01-02"),
		e.At.Format("15:04:05"),
		e.Hostname,
		e.Status,
		e.Address,
	}
}

// Append writes entries to the ledger at path, creating it with a header if
// it does not exist or is empty. Existing rows are never rewritten.
func Append(path string, entries []Entry) error {
	if path == "" {
		return errors.New("ledger path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger %q: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger %q: %w", path, err)
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write ledger header: %w", err)
		}
	}
	for _, e := range entries {
		if err := w.Write(e.record()); err != nil {
			return fmt.Errorf("write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return file.Close()
}
