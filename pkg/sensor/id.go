package sensor

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/onewire"
)

// FamilyDS18B20 is the 1-Wire family code of the DS18B20 thermometer, and
// DefaultPrefix the matching sysfs directory prefix.
const (
	FamilyDS18B20 = 0x28
	DefaultPrefix = "28-"
)

// ParseID converts a sysfs slave name such as "28-0000000aaaaa" to the
// device's 64-bit ROM address, computing the CRC byte the kernel strips.
func ParseID(id string) (onewire.Address, error) {
	fam, serial, ok := strings.Cut(id, "-")
	if !ok || len(fam) != 2 || len(serial) != 12 {
		return 0, fmt.Errorf("malformed 1-wire id %q", id)
	}
	f, err := strconv.ParseUint(fam, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("family code of %q: %w", id, err)
	}
	s, err := strconv.ParseUint(serial, 16, 48)
	if err != nil {
		return 0, fmt.Errorf("serial of %q: %w", id, err)
	}
	var rom [8]byte
	rom[0] = byte(f)
	for i := 0; i < 6; i++ {
		rom[1+i] = byte(s >> (8 * i))
	}
	rom[7] = onewire.CalcCRC(rom[:7])
	return onewire.Address(binary.LittleEndian.Uint64(rom[:])), nil
}

// Family returns the family code held in the lowest byte of a ROM address.
func Family(a onewire.Address) byte {
	return byte(a)
}

// FormatID is the inverse of ParseID: it renders a ROM address the way the
// kernel names sysfs slaves, without the CRC byte.
func FormatID(a onewire.Address) string {
	return fmt.Sprintf("%02x-%012x", Family(a), (uint64(a)>>8)&0xffffffffffff)
}
