package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericogr/temprec/pkg/sensor"
)

// scriptedSource replays a fixed list of readings, then repeats the last.
type scriptedSource struct {
	mu       sync.Mutex
	readings []sensor.Reading
	calls    int
}

func (s *scriptedSource) Read(string) sensor.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.readings)-1)
	s.calls++
	return s.readings[i]
}

type recordingListener struct {
	mu  sync.Mutex
	got []Measurement
}

func (l *recordingListener) Publish(_ string, m Measurement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, m)
	return nil
}

var t0 = time.Date(2017, 3, 4, 12, 0, 0, 0, time.UTC)

// newTestStore returns a store whose clock advances 5s per recorded sample.
func newTestStore(t *testing.T, src sensor.Source, opts Options) *Store {
	t.Helper()
	l := NewLog(filepath.Join(t.TempDir(), "28-0000000aaaaa.csv"), opts.Logger)
	s := New("28-0000000aaaaa", l, src, opts)
	clock := t0
	s.now = func() time.Time {
		clock = clock.Add(5 * time.Second)
		return clock
	}
	return s
}

func seed(s *Store, ms ...Measurement) {
	for _, m := range ms {
		if err := s.record(m); err != nil {
			panic(err)
		}
	}
}

func at(sec int, mc int) Measurement {
	return Measurement{Time: t0.Add(time.Duration(sec) * time.Second), Reading: sensor.NewValue(mc)}
}

func TestSampleAppliesChangeFilter(t *testing.T) {
	src := &scriptedSource{readings: []sensor.Reading{
		sensor.NewValue(21000),
		sensor.NewValue(21100),
		sensor.NewValue(21250),
		sensor.NewError("crc failed"),
		sensor.NewError("crc failed"),
		sensor.NewValue(21250),
	}}
	lis := &recordingListener{}
	s := newTestStore(t, src, Options{Listener: lis})
	for range src.readings {
		s.sample()
	}

	lines := strings.Split(s.Dump(), "\n")
	require.Equal(t, []string{
		"2017-03-04T12:00:05Z,21000",
		"2017-03-04T12:00:10Z,21250",
		"2017-03-04T12:00:15Z,crc failed",
		"2017-03-04T12:00:20Z,21250",
	}, lines)
	require.Len(t, lis.got, 4)
	require.Equal(t, lines, readLines(t, s.log.Path()))
}

func TestSampleAppendFailureKeepsSampling(t *testing.T) {
	var buf bytes.Buffer
	src := &scriptedSource{readings: []sensor.Reading{sensor.NewValue(21000)}}
	s := newTestStore(t, src, Options{Logger: testLogger(&buf)})
	good := s.log.path
	s.log.path = filepath.Join(filepath.Dir(good), "missing", "s.csv")

	s.sample()
	require.Equal(t, 0, s.Len())
	require.Contains(t, buf.String(), "sample not persisted")

	s.log.path = good
	s.sample()
	require.Equal(t, 1, s.Len())
}

func TestDumpFromExcludesFirstMatch(t *testing.T) {
	s := newTestStore(t, &scriptedSource{}, Options{})
	seed(s, at(0, 20000), at(10, 21000), at(20, 22000), at(30, 23000), at(40, 24000))

	cutoff := t0.Add(5 * time.Second)
	require.Equal(t, strings.Join([]string{
		at(20, 22000).Line(),
		at(30, 23000).Line(),
		at(40, 24000).Line(),
	}, "\n"), s.DumpFrom(cutoff))

	// Strictly greater: a measurement at the cutoff itself does not qualify.
	require.Equal(t, at(40, 24000).Line(), s.DumpFrom(t0.Add(20*time.Second)))
	require.Equal(t, "", s.DumpFrom(t0.Add(30*time.Second)))
	require.Equal(t, "", s.DumpFrom(t0.Add(time.Hour)))
}

func TestRemove(t *testing.T) {
	s := newTestStore(t, &scriptedSource{}, Options{})
	seed(s, at(0, 20000), at(10, 21000), at(20, 22000))

	n, remaining, err := s.Remove(t0.Add(10 * time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, at(0, 20000).Line()+"\n"+at(20, 22000).Line(), remaining)
	require.NotContains(t, s.Dump(), at(10, 21000).Line())
	require.Equal(t, 2, s.Len())

	_, err = os.Stat(s.log.BackupPath())
	require.NoError(t, err)
	require.Len(t, readLines(t, s.log.Path()), s.Len())
}

func TestRemoveAllAtSameTimestamp(t *testing.T) {
	s := newTestStore(t, &scriptedSource{}, Options{})
	seed(s, at(0, 20000), at(10, 21000), at(10, 22000), at(20, 23000))

	n, _, err := s.Remove(t0.Add(10 * time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, at(0, 20000).Line()+"\n"+at(20, 23000).Line(), s.Dump())
}

func TestRemoveCompactFailure(t *testing.T) {
	s := newTestStore(t, &scriptedSource{}, Options{})
	seed(s, at(0, 20000), at(10, 21000))
	s.log.path = filepath.Join(t.TempDir(), "missing", "s.csv")

	_, _, err := s.Remove(t0)
	var cerr *PersistCompactError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, 2, s.Len())
}

func TestRunRestoresAndStops(t *testing.T) {
	src := &scriptedSource{readings: []sensor.Reading{sensor.NewValue(30000)}}
	s := newTestStore(t, src, Options{Interval: time.Millisecond})
	require.NoError(t, s.log.Append(at(0, 20000)))
	require.NoError(t, s.log.Append(at(10, 21000)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	require.Eventually(t, func() bool { return s.Len() == 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	m, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, sensor.NewValue(30000), m.Reading)
	require.True(t, strings.HasPrefix(s.Dump(), at(0, 20000).Line()))
}

func TestRestoreFromBackupRewritesLog(t *testing.T) {
	s := newTestStore(t, &scriptedSource{}, Options{})
	require.NoError(t, s.log.Append(at(0, 20000)))
	require.NoError(t, os.Rename(s.log.Path(), s.log.BackupPath()))

	s.restore()
	require.Equal(t, 1, s.Len())
	require.Equal(t, []string{at(0, 20000).Line()}, readLines(t, s.log.Path()))
}

func TestRestoreAfterInterruptedCompaction(t *testing.T) {
	src := &scriptedSource{readings: []sensor.Reading{sensor.NewValue(30000)}}
	s := newTestStore(t, src, Options{})
	for _, m := range []Measurement{at(0, 20000), at(1, 21000), at(2, 22000)} {
		require.NoError(t, s.log.Append(m))
	}
	// Crash during Remove: the rewrite only reached the temporary file and
	// the log had already been moved to the backup.
	require.NoError(t, os.WriteFile(s.log.tempPath(), []byte(at(1, 21000).Line()), 0o644))
	require.NoError(t, os.Rename(s.log.Path(), s.log.BackupPath()))

	s.restore()
	require.Equal(t, 3, s.Len())
	require.Len(t, readLines(t, s.log.Path()), 3)

	s.sample()
	n, _, err := s.Remove(t0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 3, s.Len())
	require.Len(t, readLines(t, s.log.Path()), 3)
	require.Len(t, readLines(t, s.log.BackupPath()), 4)
}

func TestConcurrentDumpDuringAppends(t *testing.T) {
	s := newTestStore(t, &scriptedSource{}, Options{})
	const appends = 200
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := 0
			for {
				select {
				case <-stop:
					return
				default:
				}
				out := s.Dump()
				if out == "" {
					continue
				}
				lines := strings.Split(out, "\n")
				if len(lines) < prev {
					t.Errorf("series shrank from %d to %d", prev, len(lines))
					return
				}
				prev = len(lines)
				for _, line := range lines {
					if _, err := ParseLine(line); err != nil {
						t.Errorf("partial line %q: %v", line, err)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < appends; i++ {
		require.NoError(t, s.record(at(i, 20000+i)))
	}
	close(stop)
	wg.Wait()
	require.Equal(t, appends, s.Len())
}
