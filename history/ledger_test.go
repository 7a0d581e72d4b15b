package history

import (
	"context"
	"path/filepath"
	"testing"
)

func TestLedger_RecordAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	id, err := l.RecordStart(ctx, "default", 3, "default-3-ab12")
	if err != nil {
		t.Fatalf("RecordStart: %v", err)
	}

	if err := l.RecordEnd(ctx, id, "exited"); err != nil {
		t.Fatalf("RecordEnd: %v", err)
	}

	runs, err := l.Recent(ctx, "default", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].RunnerName != "default-3-ab12" {
		t.Fatalf("RunnerName = %q", runs[0].RunnerName)
	}
	if runs[0].ExitStatus != "exited" {
		t.Fatalf("ExitStatus = %q, want exited", runs[0].ExitStatus)
	}
	if !runs[0].EndedAt.Valid {
		t.Fatal("expected EndedAt to be set")
	}
}

func TestLedger_Recent_FiltersByRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	if _, err := l.RecordStart(ctx, "default", 1, "default-1-aaaa"); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	if _, err := l.RecordStart(ctx, "builder", 2, "builder-2-bbbb"); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}

	runs, err := l.Recent(ctx, "builder", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 || runs[0].Role != "builder" {
		t.Fatalf("runs = %+v, want exactly one builder run", runs)
	}
}
