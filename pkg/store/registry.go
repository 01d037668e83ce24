package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ericogr/temprec/pkg/sensor"
)

// Discover lists the 1-Wire slaves in dir whose name starts with prefix,
// sorted. Entries that are not well formed slave ids are ignored.
func Discover(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read device dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if _, err := sensor.ParseID(name); err != nil {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

// Config holds what the registry needs to build one Store per sensor.
type Config struct {
	DataDir string
	Source  sensor.Source
	Options Options
}

// Registry maps sensor ids to their stores. Ids are kept sorted; that order
// also defines ordinal lookups.
type Registry struct {
	ids    []string
	stores map[string]*Store
	wg     sync.WaitGroup
}

// NewRegistry builds a Store for every id, logging to <DataDir>/<id>.csv.
func NewRegistry(ids []string, cfg Config) *Registry {
	logger := cfg.Options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stores := make([]*Store, 0, len(ids))
	for _, id := range ids {
		l := NewLog(filepath.Join(cfg.DataDir, id+".csv"), logger.With("sensor", id))
		stores = append(stores, New(id, l, cfg.Source, cfg.Options))
	}
	return NewRegistryOf(stores...)
}

// NewRegistryOf wraps already built stores. Later duplicates of an id win.
func NewRegistryOf(stores ...*Store) *Registry {
	r := &Registry{stores: make(map[string]*Store, len(stores))}
	for _, s := range stores {
		if _, dup := r.stores[s.ID()]; !dup {
			r.ids = append(r.ids, s.ID())
		}
		r.stores[s.ID()] = s
	}
	sort.Strings(r.ids)
	return r
}

// All discovers the sensors in deviceDir and starts sampling each of them.
func All(ctx context.Context, deviceDir, prefix string, cfg Config) (*Registry, error) {
	ids, err := Discover(deviceDir, prefix)
	if err != nil {
		return nil, err
	}
	r := NewRegistry(ids, cfg)
	r.Start(ctx)
	return r, nil
}

// Start launches the sampling loop of every store. Each loop runs in its own
// goroutine until ctx is done.
func (r *Registry) Start(ctx context.Context) {
	for _, id := range r.ids {
		s := r.stores[id]
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			s.Run(ctx)
		}()
	}
}

// Wait blocks until every loop started by Start has returned.
func (r *Registry) Wait() { r.wg.Wait() }

// IDs returns the sensor ids in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

func (r *Registry) Len() int { return len(r.ids) }

// Get looks a store up by exact id.
func (r *Registry) Get(id string) (*Store, error) {
	s, ok := r.stores[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s, nil
}

// At returns the store at position n of the sorted ids. Positions are only
// stable while the set of sensors does not change.
func (r *Registry) At(n int) (*Store, error) {
	if n < 0 || n >= len(r.ids) {
		return nil, fmt.Errorf("%w: ordinal %d", ErrNotFound, n)
	}
	return r.stores[r.ids[n]], nil
}

// Lookup resolves key as an id first and as an ordinal second.
func (r *Registry) Lookup(key string) (*Store, error) {
	if s, ok := r.stores[key]; ok {
		return s, nil
	}
	if n, err := strconv.Atoi(key); err == nil {
		return r.At(n)
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
}
