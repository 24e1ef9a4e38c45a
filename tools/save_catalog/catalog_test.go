package savecatalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"idlegame/engine/internal/bignum"
	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/domain"
	"idlegame/engine/internal/persistence"
)

func TestListDecodesSaves(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	codec, err := persistence.CodecByName("gzip")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	store, err := persistence.NewFileStore(filepath.Join(dir, "nested"), codec)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	st := domain.New(base)
	st.Counter = bignum.FromUint64(1500)
	st.Production = bignum.FromUint64(3)
	if _, err := persistence.NewAdapter(store, clock.NewManual(base)).Save(st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.save"), []byte(`{"counter":"abc"}`), 0o644); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	entries, err := List(dir, base.Add(10*time.Second))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two save entries, got %d", len(entries))
	}

	broken, good := entries[0], entries[1]
	if broken.Key != "broken" || broken.Codec != "plain" || broken.Error == "" || broken.View != nil {
		t.Fatalf("unexpected broken entry %+v", broken)
	}
	if good.Key != persistence.DefaultKey || good.Codec != "gzip" || good.Error != "" {
		t.Fatalf("unexpected entry %+v", good)
	}
	if good.OfflineSeconds != 10 || good.View == nil || good.View.Counter != "1530" {
		t.Fatalf("expected 10s of catch-up preview, got %+v", good.View)
	}

	payload, err := MarshalEntries(entries)
	if err != nil {
		t.Fatalf("MarshalEntries: %v", err)
	}
	if !strings.Contains(string(payload), `"codec": "gzip"`) {
		t.Fatalf("expected codec in JSON output, got %s", payload)
	}
}

func TestListRejectsBadRoots(t *testing.T) {
	if _, err := List("", time.Now()); err == nil {
		t.Fatalf("expected error for empty root")
	}
	file := filepath.Join(t.TempDir(), "file.save")
	if err := os.WriteFile(file, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := List(file, time.Now()); err == nil {
		t.Fatalf("expected error for file root")
	}
}
