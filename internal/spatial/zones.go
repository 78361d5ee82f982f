// Package spatial aggregates located measurements into named zone risk
// levels, grid cells and heatmap points.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidZones is returned when a zones file cannot be used.
var ErrInvalidZones = errors.New("invalid zones")

// Zone is a named point of interest.
type Zone struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// DefaultZones returns the monitored zones of Gabès.
func DefaultZones() []Zone {
	return []Zone{
		{Name: "industrial", Lat: 33.8869, Lon: 10.0982},
		{Name: "city_center", Lat: 33.8815, Lon: 10.0982},
		{Name: "residential", Lat: 33.8900, Lon: 10.1100},
		{Name: "coastal", Lat: 33.8700, Lon: 10.1200},
	}
}

type zonesFile struct {
	Zones []Zone `yaml:"zones"`
}

// LoadZones reads zones from a YAML file of the form:
//
//	zones:
//	  - name: industrial
//	    lat: 33.8869
//	    lon: 10.0982
func LoadZones(path string) ([]Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	return ParseZones(data)
}

// ParseZones decodes and validates a YAML zones document.
func ParseZones(data []byte) ([]Zone, error) {
	var f zonesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidZones, err)
	}
	if len(f.Zones) == 0 {
		return nil, fmt.Errorf("%w: no zones defined", ErrInvalidZones)
	}

	seen := make(map[string]bool, len(f.Zones))
	for _, z := range f.Zones {
		switch {
		case z.Name == "":
			return nil, fmt.Errorf("%w: zone without name", ErrInvalidZones)
		case seen[z.Name]:
			return nil, fmt.Errorf("%w: duplicate zone %q", ErrInvalidZones, z.Name)
		case math.Abs(z.Lat) > 90 || math.Abs(z.Lon) > 180:
			return nil, fmt.Errorf("%w: zone %q has out-of-range coordinates", ErrInvalidZones, z.Name)
		}
		seen[z.Name] = true
	}
	return f.Zones, nil
}
