package spatial_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airwatch/airwatch/internal/spatial"
)

func TestDefaultZones(t *testing.T) {
	zones := spatial.DefaultZones()
	require.Len(t, zones, 4)
	assert.Equal(t, "industrial", zones[0].Name)
	assert.Equal(t, 33.8869, zones[0].Lat)
	assert.Equal(t, 10.0982, zones[0].Lon)
}

func TestLoadZones(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
zones:
  - name: port
    lat: 33.9
    lon: 10.11
  - name: oasis
    lat: 33.87
    lon: 10.09
`), 0o600))

	zones, err := spatial.LoadZones(path)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, spatial.Zone{Name: "port", Lat: 33.9, Lon: 10.11}, zones[0])
}

func TestParseZones_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":     "zones: []",
		"no name":   "zones:\n  - lat: 1\n    lon: 2",
		"duplicate": "zones:\n  - {name: a, lat: 1, lon: 2}\n  - {name: a, lat: 3, lon: 4}",
		"range":     "zones:\n  - {name: a, lat: 91, lon: 2}",
		"syntax":    "zones: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := spatial.ParseZones([]byte(doc))
			assert.ErrorIs(t, err, spatial.ErrInvalidZones)
		})
	}
}

func TestLoadZones_MissingFile(t *testing.T) {
	_, err := spatial.LoadZones(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewAggregator_CustomZones(t *testing.T) {
	agg := spatial.NewAggregator(spatial.AggregatorConfig{
		Zones: []spatial.Zone{{Name: "port", Lat: 33.9, Lon: 10.11}},
	})
	require.Len(t, agg.Zones(), 1)
	assert.Equal(t, "port", agg.Zones()[0].Name)
}
