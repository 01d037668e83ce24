package sensor

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDeviceDir is where the kernel exposes 1-Wire slaves.
const DefaultDeviceDir = "/sys/bus/w1/devices"

// W1Source reads DS18B20 sensors through the w1_therm sysfs interface.
type W1Source struct {
	dir string
}

// NewW1Source returns a source reading <dir>/<id>/w1_slave.
func NewW1Source(dir string) *W1Source {
	return &W1Source{dir: dir}
}

func (s *W1Source) Read(id string) Reading {
	path := filepath.Join(s.dir, id, "w1_slave")
	f, err := os.Open(path)
	if err != nil {
		return NewError(fmt.Sprintf("couldn't open file %s", path))
	}
	defer f.Close()
	return parseSlave(f)
}
