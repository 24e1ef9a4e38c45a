package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"idlegame/engine/internal/config"
)

// backupStamp is embedded in every backup name so retention can be decided
// from the name alone.
const backupStamp = "20060102T150405.000000000"

// rotatingWriter is the file sink behind IDLE_LOG_PATH. Once the active file
// would pass limit bytes it becomes <path>.<stamp>[.gz] and a new file starts.
type rotatingWriter struct {
	mu      sync.Mutex
	path    string
	limit   int64
	keep    int
	maxAge  time.Duration
	gzip    bool
	now     func() time.Time
	out     *os.File
	written int64
}

type backup struct {
	path string
	at   time.Time
}

func newRotatingWriter(cfg config.LoggingConfig) (*rotatingWriter, error) {
	switch {
	case cfg.MaxSizeMB <= 0:
		return nil, errors.New("IDLE_LOG_MAX_SIZE_MB must be positive")
	case cfg.MaxBackups < 0:
		return nil, errors.New("IDLE_LOG_MAX_BACKUPS must be non-negative")
	case cfg.MaxAgeDays < 0:
		return nil, errors.New("IDLE_LOG_MAX_AGE_DAYS must be non-negative")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	w := &rotatingWriter{
		path:   cfg.Path,
		limit:  int64(cfg.MaxSizeMB) << 20,
		keep:   cfg.MaxBackups,
		maxAge: time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		gzip:   cfg.Compress,
		now:    time.Now,
	}
	if err := w.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) open(mode int) error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	w.out, w.written = file, info.Size()
	return nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return 0, os.ErrClosed
	}
	//1.- A record is never split across files, so an oversized one still lands whole.
	if w.written > 0 && w.written+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotate %s: %w", w.path, err)
		}
	}
	n, err := w.out.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *rotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	return w.out.Sync()
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}
	err := w.out.Close()
	w.out = nil
	return err
}

func (w *rotatingWriter) rotate() error {
	if err := w.out.Close(); err != nil {
		return err
	}
	w.out = nil
	target := w.path + "." + w.now().UTC().Format(backupStamp)
	if err := os.Rename(w.path, target); err != nil {
		return errors.Join(err, w.open(os.O_APPEND))
	}
	if w.gzip {
		//2.- A failed compression keeps the plain backup rather than losing it.
		if err := gzipInto(target, target+".gz"); err == nil {
			_ = os.Remove(target)
		} else {
			_ = os.Remove(target + ".gz")
		}
	}
	w.prune()
	return w.open(os.O_TRUNC)
}

// prune applies MaxBackups and MaxAgeDays. Files whose names carry no stamp
// are left alone.
func (w *rotatingWriter) prune() {
	backups := w.backups()
	sort.Slice(backups, func(i, j int) bool { return backups[i].at.After(backups[j].at) })
	var cutoff time.Time
	if w.maxAge > 0 {
		cutoff = w.now().UTC().Add(-w.maxAge)
	}
	for i, b := range backups {
		overCount := w.keep > 0 && i >= w.keep
		overAge := !cutoff.IsZero() && b.at.Before(cutoff)
		if overCount || overAge {
			_ = os.Remove(b.path)
		}
	}
}

func (w *rotatingWriter) backups() []backup {
	dir := filepath.Dir(w.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	prefix := filepath.Base(w.path) + "."
	var found []backup
	for _, entry := range entries {
		stamp, ok := strings.CutPrefix(entry.Name(), prefix)
		if !ok || entry.IsDir() {
			continue
		}
		at, err := time.Parse(backupStamp, strings.TrimSuffix(stamp, ".gz"))
		if err != nil {
			continue
		}
		found = append(found, backup{path: filepath.Join(dir, entry.Name()), at: at})
	}
	return found
}

func gzipInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	_, copyErr := io.Copy(zw, in)
	closeErr := zw.Close()
	fileErr := out.Close()
	return errors.Join(copyErr, closeErr, fileErr)
}
