package persistence

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"idlegame/engine/internal/bignum"
	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/domain"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type failingStore struct {
	getErr error
	setErr error
}

func (f failingStore) Get(string) ([]byte, error) { return nil, f.getErr }
func (f failingStore) Set(string, []byte) error   { return f.setErr }

func pow2(n int) bignum.Int {
	v := bignum.One()
	for i := 0; i < n; i++ {
		v = v.Scale(2)
	}
	return v
}

func TestSaveLoadRoundTripPreservesHugeValues(t *testing.T) {
	clk := clock.NewManual(epoch)
	store := NewMemoryStore()
	adapter := NewAdapter(store, clk)

	st := domain.New(epoch)
	st.Counter = pow2(200)
	st.Production = pow2(130)

	saved, err := adapter.Save(st)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !saved.LastSavedAt.Equal(epoch) || !saved.LastSave.Equal(epoch) {
		t.Fatalf("expected save stamps at %v got %v / %v", epoch, saved.LastSave, saved.LastSavedAt)
	}

	loaded, ok := adapter.Load()
	if !ok {
		t.Fatalf("expected saved state to load")
	}
	if !loaded.Counter.Equal(st.Counter) || !loaded.Production.Equal(st.Production) {
		t.Fatalf("round trip mismatch: counter %s production %s", loaded.Counter, loaded.Production)
	}
	if !loaded.LastSavedAt.Equal(epoch) {
		t.Fatalf("expected LastSavedAt %v got %v", epoch, loaded.LastSavedAt)
	}
}

func TestBlobUsesDecimalStrings(t *testing.T) {
	store := NewMemoryStore()
	adapter := NewAdapter(store, clock.NewManual(epoch))
	st := domain.New(epoch)
	st.Counter = pow2(200)
	if _, err := adapter.Save(st); err != nil {
		t.Fatalf("save: %v", err)
	}
	blob, err := store.Get(DefaultKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		t.Fatalf("decode blob: %v", err)
	}
	if raw["counter"] != pow2(200).String() {
		t.Fatalf("expected decimal string counter, got %#v", raw["counter"])
	}
	if raw["production"] != "1" {
		t.Fatalf("expected production \"1\", got %#v", raw["production"])
	}
	if raw["lastSave"] != float64(epoch.UnixMilli()) || raw["lastSavedAt"] != float64(epoch.UnixMilli()) {
		t.Fatalf("unexpected timestamps %#v", raw)
	}
}

func TestLoadCreditsOfflineProgress(t *testing.T) {
	clk := clock.NewManual(epoch)
	store := NewMemoryStore()
	adapter := NewAdapter(store, clk)

	st := domain.New(epoch)
	st.Counter = bignum.FromUint64(7)
	st.Production = bignum.FromUint64(5)
	if _, err := adapter.Save(st); err != nil {
		t.Fatalf("save: %v", err)
	}

	clk.Set(epoch.Add(12500 * time.Millisecond))
	restored, err := adapter.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.OfflineSeconds != 12 {
		t.Fatalf("expected 12 offline seconds got %d", restored.OfflineSeconds)
	}
	if restored.State.Counter.String() != "67" {
		t.Fatalf("expected 7 + 5*12 = 67 got %s", restored.State.Counter)
	}
	if !restored.State.LastSave.Equal(clk.Now()) {
		t.Fatalf("expected LastSave moved to load time got %v", restored.State.LastSave)
	}
	if !restored.State.LastSavedAt.Equal(epoch) {
		t.Fatalf("expected LastSavedAt kept at save time got %v", restored.State.LastSavedAt)
	}
}

func TestLoadMissingKey(t *testing.T) {
	adapter := NewAdapter(NewMemoryStore(), clock.NewManual(epoch))
	if _, ok := adapter.Load(); ok {
		t.Fatalf("expected no state for empty store")
	}
	if _, err := adapter.Restore(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestLoadMalformedBlob(t *testing.T) {
	blobs := map[string]string{
		"not json":         `{"counter":`,
		"bad digits":       `{"counter":"12x","production":"1","lastSave":0}`,
		"numeric counter":  `{"counter":12,"production":"1","lastSave":0}`,
		"zero production":  `{"counter":"1","production":"0","lastSave":0}`,
		"missing lastSave": `{"counter":"1","production":"1"}`,
		"negative time":    `{"counter":"1","production":"1","lastSave":-5}`,
	}
	for name, blob := range blobs {
		store := NewMemoryStore()
		_ = store.Set(DefaultKey, []byte(blob))
		adapter := NewAdapter(store, clock.NewManual(epoch))
		if _, ok := adapter.Load(); ok {
			t.Fatalf("%s: expected load to report no data", name)
		}
		_, err := adapter.Restore()
		var storageErr *StorageError
		if !errors.As(err, &storageErr) || storageErr.Op != "decode" {
			t.Fatalf("%s: expected decode StorageError got %v", name, err)
		}
	}
}

func TestDecodeParseErrorIsWrapped(t *testing.T) {
	_, err := DecodeState([]byte(`{"counter":"9z","production":"1","lastSave":0}`))
	var parseErr *bignum.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected wrapped ParseError got %v", err)
	}
}

func TestDecodeLegacyFloatBlob(t *testing.T) {
	blob := `{"counter":"1000","production":"4","last_save":1735689600000.0,"last_saved_at":1735689599123.7}`
	st, err := DecodeState([]byte(blob))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.LastSave.Equal(epoch) {
		t.Fatalf("expected LastSave %v got %v", epoch, st.LastSave)
	}
	if st.LastSavedAt.UnixMilli() != 1735689599123 {
		t.Fatalf("expected truncated LastSavedAt, got %d", st.LastSavedAt.UnixMilli())
	}
	if st.Counter.String() != "1000" || st.Production.String() != "4" {
		t.Fatalf("unexpected values %s / %s", st.Counter, st.Production)
	}
}

func TestSaveFailureKeepsInputState(t *testing.T) {
	adapter := NewAdapter(failingStore{setErr: errors.New("disk full")}, clock.NewManual(epoch.Add(time.Hour)))
	st := domain.New(epoch)
	got, err := adapter.Save(st)
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "write" {
		t.Fatalf("expected write StorageError got %v", err)
	}
	if !got.Equal(st) {
		t.Fatalf("expected unchanged state on failure")
	}
}

func TestRestoreReadFailure(t *testing.T) {
	adapter := NewAdapter(failingStore{getErr: errors.New("io")}, clock.NewManual(epoch))
	_, err := adapter.Restore()
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "read" {
		t.Fatalf("expected read StorageError got %v", err)
	}
}

func TestSaveTwiceOnlyMovesTimestamps(t *testing.T) {
	clk := clock.NewManual(epoch)
	adapter := NewAdapter(NewMemoryStore(), clk)
	st := domain.New(epoch)
	st.Counter = bignum.FromUint64(42)

	first, err := adapter.Save(st)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	clk.Set(epoch.Add(time.Millisecond))
	second, err := adapter.Save(first)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if !second.Counter.Equal(st.Counter) || !second.Production.Equal(st.Production) {
		t.Fatalf("expected counter and production unchanged")
	}
	if !second.LastSavedAt.After(first.LastSavedAt) {
		t.Fatalf("expected LastSavedAt to advance")
	}
}

func TestWithKey(t *testing.T) {
	store := NewMemoryStore()
	adapter := NewAdapter(store, clock.NewManual(epoch), WithKey("slot-2"))
	if _, err := adapter.Save(domain.New(epoch)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Get("slot-2"); err != nil {
		t.Fatalf("expected blob under custom key: %v", err)
	}
	if _, err := store.Get(DefaultKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected default key untouched")
	}
}

func TestMissingStoreReportsConfiguredKey(t *testing.T) {
	adapter := NewAdapter(nil, clock.NewManual(epoch), WithKey("slot"))
	_, err := adapter.Save(domain.New(epoch))
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Key != "slot" || storageErr.Op != "save" {
		t.Fatalf("expected save error naming slot, got %v", err)
	}
	_, err = adapter.Restore()
	if !errors.As(err, &storageErr) || storageErr.Key != "slot" || storageErr.Op != "load" {
		t.Fatalf("expected load error naming slot, got %v", err)
	}

	var unset *Adapter
	if _, err := unset.Restore(); !errors.As(err, &storageErr) || storageErr.Key != DefaultKey {
		t.Fatalf("expected nil adapter to report the default key, got %v", err)
	}
}
