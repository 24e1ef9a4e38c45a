// Package journal records every applied action to a snappy-compressed JSON
// lines file so a session's history can be inspected after the fact.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// Entry is one applied action and the snapshot values it produced.
type Entry struct {
	Sequence   uint64    `json:"seq"`
	Session    string    `json:"session"`
	CommandID  string    `json:"command_id,omitempty"`
	Action     string    `json:"action"`
	At         time.Time `json:"at"`
	Counter    string    `json:"counter"`
	Production string    `json:"production"`
	LastSaved  int64     `json:"last_saved_at_ms,omitempty"`
}

// Writer appends entries to a journal file. Each Writer adds its own snappy
// stream to the file; readers handle concatenated streams.
type Writer struct {
	mu      sync.Mutex
	now     func() time.Time
	session string
	seq     uint64
	file    *os.File
	stream  *snappy.Writer
}

// Open prepares path for appending. The clock stamps entries; nil means time.Now.
func Open(path string, clock func() time.Time) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{
		now:     clock,
		session: uuid.NewString(),
		file:    file,
		stream:  snappy.NewBufferedWriter(file),
	}, nil
}

// Session identifies the writer's run inside a shared journal file.
func (w *Writer) Session() string {
	if w == nil {
		return ""
	}
	return w.session
}

// Append writes one entry, assigning its sequence, session and timestamp.
func (w *Writer) Append(entry Entry) error {
	if w == nil {
		return fmt.Errorf("journal writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream == nil {
		return fmt.Errorf("journal writer closed")
	}

	//1.- Stamp ordering metadata so entries from several runs stay distinguishable.
	w.seq++
	entry.Sequence = w.seq
	entry.Session = w.session
	if entry.At.IsZero() {
		entry.At = w.now().UTC()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	//2.- Flush per entry so a crash loses at most the entry being written.
	if _, err := w.stream.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.stream.Flush()
}

// Close flushes the stream and releases the file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stream == nil {
		return nil
	}
	var firstErr error
	if err := w.stream.Close(); err != nil {
		firstErr = err
	}
	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	w.stream = nil
	return firstErr
}

// Read decodes every entry of the journal at path, in file order.
func Read(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Decode(file)
}

// Decode reads entries from a snappy-framed JSON lines stream.
func Decode(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(snappy.NewReader(r))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var entries []Entry
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return entries, fmt.Errorf("journal entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return entries, err
	}
	return entries, nil
}
