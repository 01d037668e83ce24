// Package store keeps the time series of every sensor: an in-memory buffer
// per sensor backed by an append-only CSV log, the sampling loop feeding it,
// and the registry mapping sensor ids to stores.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericogr/temprec/pkg/sensor"
)

// DefaultInterval is the pause between two samples of one sensor.
const DefaultInterval = 5 * time.Second

// Listener is told about every measurement the sampler records.
type Listener interface {
	Publish(id string, m Measurement) error
}

// Options tune a Store. Zero values select the defaults.
type Options struct {
	Threshold int
	Interval  time.Duration
	Logger    *slog.Logger
	Listener  Listener
}

// Store owns one sensor's series. The sampler is the only appender; readers
// take the shared lock, appends and removals the exclusive one, so a reader
// never sees a partially applied mutation.
type Store struct {
	id       string
	log      *Log
	source   sensor.Source
	filter   sensor.ChangeFilter
	interval time.Duration
	logger   *slog.Logger
	listener Listener
	now      func() time.Time

	// last is only touched by the sampling goroutine.
	last sensor.Reading

	mu     sync.RWMutex
	series []Measurement
}

func New(id string, log *Log, source sensor.Source, opts Options) *Store {
	if opts.Threshold == 0 {
		opts.Threshold = sensor.DefaultThreshold
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		id:       id,
		log:      log,
		source:   source,
		filter:   sensor.ChangeFilter{Threshold: opts.Threshold},
		interval: opts.Interval,
		logger:   opts.Logger.With("sensor", id),
		listener: opts.Listener,
		now:      time.Now,
	}
}

func (s *Store) ID() string { return s.id }

// Run replays the log and then samples the sensor every interval until ctx is
// done. A failed append is logged and sampling goes on.
func (s *Store) Run(ctx context.Context) {
	s.restore()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.sample()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// restore installs the replayed log as the initial series.
func (s *Store) restore() {
	ms, fromBackup, err := s.log.Replay()
	if err != nil {
		s.logger.Error("replay failed", "path", s.log.Path(), "err", err)
	}
	if len(ms) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = ms
	s.logger.Info("read existing data", "measurements", len(ms))
	if fromBackup {
		if err := s.log.Compact(s.series); err != nil {
			s.logger.Error("rewrite log from backup failed", "err", err)
		}
	}
}

// sample takes one reading and records it if it differs from the last one.
func (s *Store) sample() {
	r := s.source.Read(s.id)
	if !s.filter.HasChanged(r, s.last) {
		return
	}
	m := Measurement{Time: s.now().UTC().Truncate(time.Second), Reading: r}
	if err := s.record(m); err != nil {
		s.logger.Error("sample not persisted", "reading", r.String(), "err", err)
		return
	}
	s.last = r
	if r.Kind == sensor.Error {
		s.logger.Warn("sensor error recorded", "message", r.Message)
	}
	if s.listener != nil {
		if err := s.listener.Publish(s.id, m); err != nil {
			s.logger.Error("publish failed", "err", err)
		}
	}
}

// record appends m to the log and, only if that worked, to the series.
func (s *Store) record(m Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.log.Append(m); err != nil {
		return err
	}
	s.series = append(s.series, m)
	return nil
}

// Len returns the number of measurements held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}

// Last returns the most recent measurement.
func (s *Store) Last() (Measurement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.series) == 0 {
		return Measurement{}, false
	}
	return s.series[len(s.series)-1], true
}

// Dump renders the whole series as CSV in insertion order.
func (s *Store) Dump() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return formatCSV(s.series)
}

// DumpFrom renders the trailing run of measurements newer than cutoff, minus
// the oldest of them: with T1<T2<T3 all after cutoff only T2,T3 are returned.
// Existing clients rely on this, so the first match stays excluded.
func (s *Store) DumpFrom(cutoff time.Time) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := len(s.series)
	for i > 0 && s.series[i-1].Time.After(cutoff) {
		i--
	}
	if len(s.series)-i < 2 {
		return ""
	}
	return formatCSV(s.series[i+1:])
}

// Remove deletes every measurement taken at exactly t and rewrites the log.
// It returns how many were removed and the remaining series as CSV, rendered
// before any later sample can be appended. On a *PersistCompactError the
// series is left untouched.
func (s *Store) Remove(t time.Time) (removed int, remaining string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]Measurement, 0, len(s.series))
	for _, m := range s.series {
		if !m.Time.Equal(t) {
			kept = append(kept, m)
		}
	}
	if err := s.log.Compact(kept); err != nil {
		return 0, "", err
	}
	removed = len(s.series) - len(kept)
	s.series = kept
	s.logger.Info("removed measurements", "time", t.UTC().Format(TimeLayout), "count", removed)
	return removed, formatCSV(s.series), nil
}
