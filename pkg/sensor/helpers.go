package sensor

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

var (
	crcLine  = regexp.MustCompile(`([0-9a-f]{2} ){9}: crc=[0-9a-f]{2} YES`)
	tempLine = regexp.MustCompile(`([0-9a-f]{2} ){9}t=([+-]?[0-9]+)`)
)

// parseSlave decodes the two-line w1_slave format written by the w1_therm
// kernel driver:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseSlave(r io.Reader) Reading {
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		return NewError("crc line couldn't be read")
	}
	line := sc.Text()
	if !crcLine.MatchString(line) {
		return NewError(fmt.Sprintf("crc failed line=%q", line))
	}

	if !sc.Scan() {
		return NewError("temperature line couldn't be read")
	}
	line = sc.Text()
	m := tempLine.FindStringSubmatch(line)
	if m == nil {
		return NewError(fmt.Sprintf("couldn't parse temperature line %q", line))
	}
	v, err := strconv.Atoi(m[2])
	if err != nil {
		return NewError(fmt.Sprintf("couldn't parse number string=%q err=%q", m[2], err.Error()))
	}
	return NewValue(v)
}
