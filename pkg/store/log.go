package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/ericogr/temprec/pkg/sensor"
)

// Log is the append-only, line oriented file backing one sensor's series.
// Only the owning Store writes to it.
type Log struct {
	path   string
	logger *slog.Logger
}

// NewLog returns a Log for path. A nil logger means slog.Default().
func NewLog(path string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{path: path, logger: logger}
}

func (l *Log) Path() string { return l.path }

// BackupPath is where Compact moves the previous log content.
func (l *Log) BackupPath() string { return l.path + ".bak" }

// Append writes exactly one line for m and syncs the file.
func (l *Log) Append(m Measurement) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &PersistAppendError{Path: l.path, Err: err}
	}
	if _, err := f.WriteString(m.Line() + "\n"); err != nil {
		_ = f.Close()
		return &PersistAppendError{Path: l.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return &PersistAppendError{Path: l.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &PersistAppendError{Path: l.path, Err: err}
	}
	return nil
}

// Replay reads the log back. Lines that cannot be parsed and Invalid entries
// are skipped with a warning. A missing log replays as empty; if only the
// backup exists (a compaction was interrupted after the rename) the backup is
// replayed and fromBackup is true.
func (l *Log) Replay() (ms []Measurement, fromBackup bool, err error) {
	ms, err = l.replayFile(l.path)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return ms, false, err
	}
	ms, err = l.replayFile(l.BackupPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	l.logger.Warn("log missing, replayed backup", "path", l.path, "backup", l.BackupPath())
	return ms, true, nil
}

func (l *Log) replayFile(path string) ([]Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ms []Measurement
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		m, err := ParseLine(line)
		if err != nil {
			l.logger.Warn("skip invalid line", "path", path, "line", n, "text", line, "err", err)
			continue
		}
		if m.Reading.Kind == sensor.Invalid {
			l.logger.Warn("skip invalid reading", "path", path, "line", n, "text", line)
			continue
		}
		ms = append(ms, m)
	}
	if err := sc.Err(); err != nil {
		return ms, fmt.Errorf("read %s: %w", path, err)
	}
	return ms, nil
}

// Compact replaces the log content with exactly ms. The new content is
// written and synced to a temporary file first, then the current log is
// renamed to BackupPath and the temporary file renamed over it. The live log
// is therefore never partially written: a crash leaves either the old log or
// only the backup, which Replay falls back to.
func (l *Log) Compact(ms []Measurement) error {
	tmp := l.tempPath()
	if err := writeFile(tmp, ms); err != nil {
		_ = os.Remove(tmp)
		return &PersistCompactError{Path: l.path, Op: "rewrite", Err: err}
	}
	backedUp := true
	if err := os.Rename(l.path, l.BackupPath()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			_ = os.Remove(tmp)
			return &PersistCompactError{Path: l.path, Op: "backup", Err: err}
		}
		backedUp = false
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		if backedUp {
			if rerr := os.Rename(l.BackupPath(), l.path); rerr != nil {
				l.logger.Error("restore backup after failed rewrite", "path", l.path, "err", rerr)
			}
		}
		return &PersistCompactError{Path: l.path, Op: "rewrite", Err: err}
	}
	return nil
}

func (l *Log) tempPath() string { return l.path + ".tmp" }

func writeFile(path string, ms []Measurement) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, m := range ms {
		if _, err := w.WriteString(m.Line() + "\n"); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
