package persistence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// ErrNotFound reports an empty durable-store slot.
var ErrNotFound = errors.New("persistence: no saved data")

// StorageError wraps a durable-store or blob failure with the operation and key involved.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("persistence: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is a durable key-value slot holding serialized blobs.
type Store interface {
	// Get returns ErrNotFound when the key has never been written.
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Get returns a copy of the stored blob.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}

// Set stores a copy of value.
func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	m.blobs[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

var keyCleaner = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// FileStore keeps one file per key inside a directory and replaces files
// atomically, so a crash mid-write never leaves a truncated save behind.
type FileStore struct {
	dir   string
	codec Codec
}

// NewFileStore prepares dir and returns a store compressing with codec.
func NewFileStore(dir string, codec Codec) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store directory must be provided")
	}
	if codec == nil {
		codec = identityCodec{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

// Path returns the file backing key.
func (f *FileStore) Path(key string) string {
	name := keyCleaner.ReplaceAllString(key, "_")
	if name == "" {
		name = "default"
	}
	return filepath.Join(f.dir, name+".save")
}

// Get reads and decompresses the blob stored under key.
func (f *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return Unframe(data)
}

// Set compresses value and atomically replaces the file for key.
func (f *FileStore) Set(key string, value []byte) error {
	framed, err := Frame(f.codec, value)
	if err != nil {
		return err
	}
	target := f.Path(key)
	//1.- Write beside the target so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(f.dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(framed); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	//2.- Swap the new blob in; readers see either the old or the new file.
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return err
	}
	return nil
}
