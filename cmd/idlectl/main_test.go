package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"idlegame/engine/internal/bignum"
	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/commands"
	"idlegame/engine/internal/domain"
	"idlegame/engine/internal/journal"
	"idlegame/engine/internal/persistence"
)

func TestRunSavesPrintsDecodedGame(t *testing.T) {
	dir := t.TempDir()
	store, err := persistence.NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	st := domain.New(time.Now())
	st.Counter = bignum.MustParse("1234567")
	if _, err := persistence.NewAdapter(store, clock.Real{}).Save(st); err != nil {
		t.Fatalf("save: %v", err)
	}

	var out bytes.Buffer
	if err := runSaves([]string{"-dir", dir}, &out); err != nil {
		t.Fatalf("runSaves: %v", err)
	}
	if !strings.Contains(out.String(), "counter: 1.23M") || !strings.Contains(out.String(), "(identity,") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestRunJournalReportsMismatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl.sz")
	writer, err := journal.Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, entry := range []journal.Entry{
		{Action: commands.NameTick, Counter: "1", Production: "1"},
		{Action: commands.NameTick, Counter: "9", Production: "1"},
	} {
		if err := writer.Append(entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out bytes.Buffer
	err = runJournal([]string{"-path", path, "-verify"}, &out)
	if err == nil || !strings.Contains(err.Error(), "1 transition mismatches") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if !strings.Contains(out.String(), `"mismatches"`) {
		t.Fatalf("expected summary output, got %s", out.String())
	}
	if err := runJournal(nil, &out); err == nil {
		t.Fatalf("expected missing path to fail")
	}
}
