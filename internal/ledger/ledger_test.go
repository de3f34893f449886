package ledger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendCreatesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "RpiConnectionData.csv")
	at := time.Date(2026, 10, 19, 8, 30, 5, 0, time.UTC)

	runs := [][]Entry{
		{{At: at, Hostname: "pi1.wifi.etsu.edu", Status: "Online", Address: "10.0.0.1"}},
		{{At: at, Hostname: "pi1.wifi.etsu.edu", Status: "Offline"}},
		{{At: at.Add(time.Hour), Hostname: "pi1.wifi.etsu.edu", Status: "Online", Address: "Unknown"}},
	}
	for _, entries := range runs {
		if err := Append(path, entries); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rows := readRows(t, path)
	if len(rows) != 1+len(runs) {
		t.Fatalf("expected header plus %d rows, got %d", len(runs), len(rows))
	}
	if rows[0][4] != "IPAddress" || rows[0][0] != "Date" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "2026-10-19" || rows[1][1] != "08:30:05" || rows[1][3] != "Online" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[3][1] != "09:30:05" {
		t.Fatalf("unexpected third row %v", rows[3])
	}
}

func TestAppendKeepsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	existing := "Date,Time,Hostname,Status,IPAddress\n2024-01-01,00:00:00,pi9,Online,10.9.9.9\n"
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	if err := Append(path, []Entry{{At: time.Now(), Hostname: "pi1", Status: "Offline"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	rows := readRows(t, path)
	if len(rows) != 3 || rows[1][2] != "pi9" || rows[2][2] != "pi1" {
		t.Fatalf("expected original rows preserved, got %v", rows)
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	return rows
}
