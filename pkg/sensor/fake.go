package sensor

import (
	"math/rand"
	"sync"
)

// FakeSource simulates sensors with a random walk around room temperature.
// Roughly one read in errorEvery reports a crc failure.
type FakeSource struct {
	mu         sync.Mutex
	rnd        *rand.Rand
	current    map[string]int
	errorEvery int
}

func NewFakeSource(seed int64) *FakeSource {
	return &FakeSource{
		rnd:        rand.New(rand.NewSource(seed)),
		current:    make(map[string]int),
		errorEvery: 50,
	}
}

func (f *FakeSource) Read(id string) Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errorEvery > 0 && f.rnd.Intn(f.errorEvery) == 0 {
		return NewError("crc failed line=\"simulated\"")
	}
	v, ok := f.current[id]
	if !ok {
		v = 18000 + f.rnd.Intn(6000)
	}
	v += f.rnd.Intn(601) - 300
	v = min(max(v, 10000), 35000)
	f.current[id] = v
	return NewValue(v)
}
