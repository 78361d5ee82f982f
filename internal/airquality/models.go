// Package airquality scores pollutant measurements and keeps them queryable.
package airquality

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Measurement errors.
var (
	ErrInvalidMeasurement = errors.New("invalid measurement")
	ErrNoMeasurements     = errors.New("no measurements available")
	ErrUnknownPollutant   = errors.New("unknown pollutant")
)

// Pollutant represents a monitored pollutant.
type Pollutant string

const (
	PollutantSO2  Pollutant = "SO2"
	PollutantNH3  Pollutant = "NH3"
	PollutantPM25 Pollutant = "PM2.5"
)

// Pollutants is the fixed evaluation order. Ties on the dominant pollutant
// resolve to the earliest entry.
var Pollutants = []Pollutant{PollutantSO2, PollutantNH3, PollutantPM25}

// ParsePollutant accepts the canonical names plus the "PM25"/"pm25" spelling
// used in query strings and column names.
func ParsePollutant(s string) (Pollutant, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SO2":
		return PollutantSO2, nil
	case "NH3":
		return PollutantNH3, nil
	case "PM2.5", "PM25", "PM2_5":
		return PollutantPM25, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPollutant, s)
}

// Unit is the measurement unit for every pollutant concentration.
const Unit = "µg/m³"

// Fields is the normalized input for a new measurement. Importers and API
// handlers map their own column names onto it.
type Fields struct {
	SO2           float64
	NH3           float64
	PM25          float64
	Temperature   *float64
	Humidity      *float64
	WindSpeed     *float64
	WindDirection *float64
	Pressure      *float64
	Lat           *float64
	Lon           *float64
	RecordedAt    time.Time
	Source        string
}

// Measurement is a single point-in-time reading. It is not modified after
// it has been stored.
type Measurement struct {
	ID            string
	SO2           float64
	NH3           float64
	PM25          float64
	Temperature   *float64
	Humidity      *float64
	WindSpeed     *float64
	WindDirection *float64
	Pressure      *float64
	Lat           *float64
	Lon           *float64
	RecordedAt    time.Time
	Source        string

	// AQI is attached after scoring.
	AQI *float64
}

// Concentration returns the value of the given pollutant.
func (m *Measurement) Concentration(p Pollutant) float64 {
	switch p {
	case PollutantSO2:
		return m.SO2
	case PollutantNH3:
		return m.NH3
	case PollutantPM25:
		return m.PM25
	}
	return 0
}

// HasLocation reports whether the measurement carries a coordinate.
func (m *Measurement) HasLocation() bool {
	return m.Lat != nil && m.Lon != nil
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError collects every field rejected by NewMeasurement.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "invalid measurement: " + strings.Join(parts, "; ")
}

// Unwrap lets callers match ErrInvalidMeasurement.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidMeasurement
}

// NewMeasurement validates f and builds a measurement with a fresh ID.
// Negative concentrations are clamped to zero; non-finite values are rejected.
func NewMeasurement(f Fields) (*Measurement, error) {
	var errs []FieldError

	check := func(name string, v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, FieldError{Field: name, Reason: "must be a finite number"})
			return 0
		}
		if v < 0 {
			return 0
		}
		return v
	}
	checkOptional := func(name string, v *float64) {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			errs = append(errs, FieldError{Field: name, Reason: "must be a finite number"})
		}
	}

	so2 := check("so2", f.SO2)
	nh3 := check("nh3", f.NH3)
	pm25 := check("pm25", f.PM25)
	checkOptional("temperature", f.Temperature)
	checkOptional("humidity", f.Humidity)
	checkOptional("wind_speed", f.WindSpeed)
	checkOptional("wind_direction", f.WindDirection)
	checkOptional("pressure", f.Pressure)

	if (f.Lat == nil) != (f.Lon == nil) {
		errs = append(errs, FieldError{Field: "location", Reason: "latitude and longitude must be given together"})
	}
	if f.Lat != nil && (*f.Lat < -90 || *f.Lat > 90) {
		errs = append(errs, FieldError{Field: "latitude", Reason: "must be between -90 and 90"})
	}
	if f.Lon != nil && (*f.Lon < -180 || *f.Lon > 180) {
		errs = append(errs, FieldError{Field: "longitude", Reason: "must be between -180 and 180"})
	}
	if f.RecordedAt.IsZero() {
		errs = append(errs, FieldError{Field: "recorded_at", Reason: "is required"})
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	source := f.Source
	if source == "" {
		source = "api"
	}

	return &Measurement{
		ID:            uuid.NewString(),
		SO2:           so2,
		NH3:           nh3,
		PM25:          pm25,
		Temperature:   f.Temperature,
		Humidity:      f.Humidity,
		WindSpeed:     f.WindSpeed,
		WindDirection: f.WindDirection,
		Pressure:      f.Pressure,
		Lat:           f.Lat,
		Lon:           f.Lon,
		RecordedAt:    f.RecordedAt.UTC(),
		Source:        source,
	}, nil
}

// BBox is an inclusive latitude/longitude rectangle.
type BBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Around returns the box extending delta degrees on each side of a point.
func Around(lat, lon, delta float64) BBox {
	return BBox{
		MinLat: lat - delta,
		MaxLat: lat + delta,
		MinLon: lon - delta,
		MaxLon: lon + delta,
	}
}

// Contains reports whether the point lies inside the box.
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Stats summarizes the measurements in a period.
type Stats struct {
	Count   int
	AvgSO2  float64
	AvgNH3  float64
	AvgPM25 float64
	AvgAQI  float64
	MaxSO2  float64
	MaxNH3  float64
	MaxPM25 float64
	MaxAQI  float64
}
