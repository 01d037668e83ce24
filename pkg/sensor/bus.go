package sensor

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/host/v3"
)

// DS18B20 function commands.
const (
	cmdConvertT       = 0x44
	cmdReadScratchpad = 0xbe
)

// ConversionTime is the worst case duration of a 12-bit temperature
// conversion.
const ConversionTime = 750 * time.Millisecond

// BusSource reads DS18B20 sensors by addressing them directly on a 1-Wire bus
// master instead of going through the w1_therm sysfs files.
type BusSource struct {
	bus   onewire.Bus
	sleep func(time.Duration)

	// mu serializes bus transactions; every store samples concurrently.
	mu sync.Mutex
}

func NewBusSource(bus onewire.Bus) *BusSource {
	return &BusSource{bus: bus, sleep: time.Sleep}
}

// OpenBus initializes the host drivers and opens the named 1-Wire bus. An
// empty name selects the default bus.
func OpenBus(name string) (onewire.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := onewirereg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open 1-wire bus: %w", err)
	}
	return bus, nil
}

// Discover searches the bus and returns the sorted ids of the DS18B20
// thermometers found on it.
func (s *BusSource) Discover() ([]string, error) {
	s.mu.Lock()
	addrs, err := s.bus.Search(false)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.bus, err)
	}
	ids := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if Family(a) == FamilyDS18B20 {
			ids = append(ids, FormatID(a))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *BusSource) Read(id string) Reading {
	addr, err := ParseID(id)
	if err != nil {
		return NewError(err.Error())
	}
	dev := onewire.Dev{Bus: s.bus, Addr: addr}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := dev.TxPower([]byte{cmdConvertT}, nil); err != nil {
		return NewError(fmt.Sprintf("convert %s: %v", id, err))
	}
	s.sleep(ConversionTime)
	var pad [9]byte
	if err := dev.Tx([]byte{cmdReadScratchpad}, pad[:]); err != nil {
		return NewError(fmt.Sprintf("read scratchpad %s: %v", id, err))
	}
	return decodeScratchpad(pad[:])
}

// decodeScratchpad converts the 9-byte scratchpad to a reading. The
// temperature register holds sixteenths of a degree.
func decodeScratchpad(pad []byte) Reading {
	if same(pad, 0x00) || same(pad, 0xff) {
		return NewError("no response from device")
	}
	if !onewire.CheckCRC(pad) {
		return NewError(fmt.Sprintf("crc check failed scratchpad=% x", pad))
	}
	raw := int16(uint16(pad[0]) | uint16(pad[1])<<8)
	return NewValue(int(raw) * 1000 / 16)
}

func same(b []byte, v byte) bool {
	for _, c := range b {
		if c != v {
			return false
		}
	}
	return true
}

// Close releases the bus when it can be closed.
func (s *BusSource) Close() error {
	if c, ok := s.bus.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
