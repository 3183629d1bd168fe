package site

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testYAML = `
sensors:
  all:
    - 1
    - 2
    - 3
flowtypes:
  inweb:
    class: all
    type: inweb
  outweb:
    class: all
    type: outweb
`

func writeSiteFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAndSensorIter(t *testing.T) {
	path := writeSiteFile(t, testYAML)
	s, err := Load(path)
	require.NoError(t, err)

	var got []uint32
	for id := range s.SensorIter("all") {
		got = append(got, id)
	}
	require.Equal(t, []uint32{1, 2, 3}, got)
}

func TestFlowtypeLookup(t *testing.T) {
	path := writeSiteFile(t, testYAML)
	s, err := Load(path)
	require.NoError(t, err)

	id, ok := s.FlowtypeLookup("all", "inweb")
	require.True(t, ok)
	require.Equal(t, uint32(0), s.FlowtypeClassID(id))

	_, ok = s.FlowtypeLookup("all", "missing")
	require.False(t, ok)
}

func TestGeneratePathname(t *testing.T) {
	path := writeSiteFile(t, testYAML)
	s, err := Load(path)
	require.NoError(t, err)

	id, ok := s.FlowtypeLookup("all", "inweb")
	require.True(t, ok)
	name := s.GeneratePathname(id, 2, 1700000000, ".tmp")
	require.Contains(t, name, "all/inweb")
	require.Contains(t, name, "S2")
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := writeSiteFile(t, testYAML)
	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.Watch())
	defer s.Close()

	const updated = `
sensors:
  all:
    - 1
    - 2
    - 3
    - 4
flowtypes:
  inweb:
    class: all
    type: inweb
  outweb:
    class: all
    type: outweb
`
	// Overwrite with an additional sensor; fsnotify delivers this as a
	// Write event on most platforms.
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		var found bool
		for id := range s.SensorIter("all") {
			if id == 4 {
				found = true
			}
		}
		return found
	}, 2*time.Second, 20*time.Millisecond)
}
