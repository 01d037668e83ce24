package sensor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestW1SourceRead(t *testing.T) {
	dir := t.TempDir()
	id := "28-0000000aaaaa"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, id), 0o755))
	slave := "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, id, "w1_slave"), []byte(slave), 0o644))

	s := NewW1Source(dir)
	require.Equal(t, NewValue(23125), s.Read(id))

	missing := s.Read("28-0000000bbbbb")
	require.Equal(t, Error, missing.Kind)
	require.Contains(t, missing.Message, "couldn't open file")
}
