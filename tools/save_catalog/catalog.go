package savecatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"idlegame/engine/internal/persistence"
	"idlegame/engine/internal/session"
)

// Entry describes one save file found on disk.
type Entry struct {
	Path      string `json:"path"`
	Key       string `json:"key"`
	Codec     string `json:"codec"`
	SizeBytes int64  `json:"size_bytes"`
	// View is the saved game and OfflineSeconds the catch-up a load at the
	// listing time would credit. Both are empty when Error is set.
	View           *session.View `json:"view,omitempty"`
	OfflineSeconds uint64        `json:"offline_seconds"`
	Error          string        `json:"error,omitempty"`
}

// List walks root and decodes every save file, as seen at now.
func List(root string, now time.Time) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Walk the directory tree collecting files written by the file store.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".save") {
			return nil
		}
		entry, err := Describe(path, now)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Describe decodes a single save file. Undecodable content is reported on the
// entry rather than as an error so one bad file does not hide the rest.
func Describe(path string, now time.Time) (Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		Path:      path,
		Key:       strings.TrimSuffix(filepath.Base(path), ".save"),
		Codec:     persistence.FrameCodec(raw),
		SizeBytes: int64(len(raw)),
	}

	//2.- Mirror the adapter's load path: unframe, decode, then preview catch-up.
	payload, err := persistence.Unframe(raw)
	if err != nil {
		entry.Error = err.Error()
		return entry, nil
	}
	st, err := persistence.DecodeState(payload)
	if err != nil {
		entry.Error = err.Error()
		return entry, nil
	}
	caught, offline := st.CatchUp(now)
	view := session.NewView(caught, now)
	entry.View = &view
	entry.OfflineSeconds = offline
	return entry, nil
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
