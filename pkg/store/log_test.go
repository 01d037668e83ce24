package store

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericogr/temprec/pkg/sensor"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func measurements(start time.Time, n int) []Measurement {
	ms := make([]Measurement, 0, n)
	for i := 0; i < n; i++ {
		r := sensor.NewValue(20000 + i*250)
		if i%3 == 2 {
			r = sensor.NewError("crc failed")
		}
		ms = append(ms, Measurement{Time: start.Add(time.Duration(i) * 5 * time.Second), Reading: r})
	}
	return ms
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestLogRoundTrip(t *testing.T) {
	l := NewLog(filepath.Join(t.TempDir(), "28-0000000aaaaa.csv"), nil)
	ms := measurements(time.Date(2017, 3, 4, 12, 0, 0, 0, time.UTC), 7)
	for _, m := range ms {
		require.NoError(t, l.Append(m))
	}

	got, fromBackup, err := l.Replay()
	require.NoError(t, err)
	require.False(t, fromBackup)
	require.Len(t, got, len(ms))
	for i := range ms {
		require.True(t, ms[i].Time.Equal(got[i].Time))
		require.Equal(t, ms[i].Reading, got[i].Reading)
	}
}

func TestLogReplayMissing(t *testing.T) {
	l := NewLog(filepath.Join(t.TempDir(), "none.csv"), nil)
	got, fromBackup, err := l.Replay()
	require.NoError(t, err)
	require.False(t, fromBackup)
	require.Empty(t, got)
}

func TestLogReplaySkipsMalformedLines(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "s.csv")
	content := strings.Join([]string{
		"2017-03-04T12:00:00Z,21000",
		"garbage-line",
		"2017-03-04T12:00:05Z,crc failed",
		"not-a-time,21000",
		"2017-03-04T12:00:10Z,invalid",
		"",
		"2017-03-04T12:00:15Z,21500",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, _, err := NewLog(path, testLogger(&buf)).Replay()
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, sensor.NewValue(21000), got[0].Reading)
	require.Equal(t, sensor.NewError("crc failed"), got[1].Reading)
	require.Equal(t, sensor.NewValue(21500), got[2].Reading)
	require.Contains(t, buf.String(), "skip invalid line")
	require.Contains(t, buf.String(), "garbage-line")
	require.Contains(t, buf.String(), "skip invalid reading")
}

func TestLogCompact(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(filepath.Join(dir, "s.csv"), nil)
	ms := measurements(time.Date(2017, 3, 4, 12, 0, 0, 0, time.UTC), 5)
	for _, m := range ms {
		require.NoError(t, l.Append(m))
	}

	require.NoError(t, l.Compact(ms[1:3]))

	require.Len(t, readLines(t, l.BackupPath()), 5)
	require.Equal(t, []string{ms[1].Line(), ms[2].Line()}, readLines(t, l.Path()))
	_, err := os.Stat(l.tempPath())
	require.True(t, os.IsNotExist(err))
}

func TestLogCompactWriteFailureKeepsLog(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(filepath.Join(dir, "s.csv"), nil)
	ms := measurements(time.Date(2017, 3, 4, 12, 0, 0, 0, time.UTC), 3)
	for _, m := range ms {
		require.NoError(t, l.Append(m))
	}
	// A directory in the way of the temporary file makes the write fail.
	require.NoError(t, os.Mkdir(l.tempPath(), 0o755))

	err := l.Compact(ms[:1])
	var cerr *PersistCompactError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "rewrite", cerr.Op)
	require.Len(t, readLines(t, l.Path()), 3)
	_, err = os.Stat(l.BackupPath())
	require.True(t, os.IsNotExist(err))
}

func TestLogCompactWithoutLog(t *testing.T) {
	l := NewLog(filepath.Join(t.TempDir(), "s.csv"), nil)
	ms := measurements(time.Date(2017, 3, 4, 12, 0, 0, 0, time.UTC), 2)
	require.NoError(t, l.Compact(ms))
	require.Len(t, readLines(t, l.Path()), 2)
	_, err := os.Stat(l.BackupPath())
	require.True(t, os.IsNotExist(err))
}

func TestLogCompactFailure(t *testing.T) {
	l := NewLog(filepath.Join(t.TempDir(), "missing", "s.csv"), nil)
	err := l.Compact(nil)
	var cerr *PersistCompactError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "rewrite", cerr.Op)
}

func TestLogAppendFailure(t *testing.T) {
	l := NewLog(filepath.Join(t.TempDir(), "missing", "s.csv"), nil)
	err := l.Append(Measurement{Time: time.Now(), Reading: sensor.NewValue(1)})
	var aerr *PersistAppendError
	require.True(t, errors.As(err, &aerr))
}

func TestLogReplayFromBackup(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(filepath.Join(t.TempDir(), "s.csv"), testLogger(&buf))
	ms := measurements(time.Date(2017, 3, 4, 12, 0, 0, 0, time.UTC), 3)
	for _, m := range ms {
		require.NoError(t, l.Append(m))
	}
	// Simulate a crash right after the backup rename.
	require.NoError(t, os.Rename(l.Path(), l.BackupPath()))

	got, fromBackup, err := l.Replay()
	require.NoError(t, err)
	require.True(t, fromBackup)
	require.Len(t, got, 3)
	require.Contains(t, buf.String(), "replayed backup")
}
