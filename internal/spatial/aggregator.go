package spatial

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/airwatch/airwatch/internal/airquality"
)

const (
	// ZoneRadius is the half-width in degrees of the box around a zone.
	ZoneRadius = 0.01

	// DefaultCellSize is the default grid cell size in degrees.
	DefaultCellSize = 0.01

	// CurrentWindow is how far back "current" data reaches.
	CurrentWindow = time.Hour
)

// Risk is the qualitative risk of a zone.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskModerate Risk = "moderate"
	RiskHigh     Risk = "high"
	RiskVeryHigh Risk = "very_high"
	RiskUnknown  Risk = "unknown"
)

var riskColors = map[Risk]string{
	RiskLow:      "#00E400",
	RiskModerate: "#FFFF00",
	RiskHigh:     "#FF7E00",
	RiskVeryHigh: "#FF0000",
	RiskUnknown:  "#CCCCCC",
}

// Color returns the display color of r.
func (r Risk) Color() string {
	if c, ok := riskColors[r]; ok {
		return c
	}
	return riskColors[RiskUnknown]
}

// RiskFor classifies a mean AQI. A nil AQI is unknown.
func RiskFor(aqi *float64) Risk {
	switch {
	case aqi == nil:
		return RiskUnknown
	case *aqi <= 50:
		return RiskLow
	case *aqi <= 100:
		return RiskModerate
	case *aqi <= 150:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// Metric is a value that can be mapped: a pollutant or the AQI.
type Metric string

// MetricAQI maps the overall AQI.
const MetricAQI Metric = "AQI"

var intensityCaps = map[Metric]float64{
	Metric(airquality.PollutantSO2):  200,
	Metric(airquality.PollutantNH3):  200,
	Metric(airquality.PollutantPM25): 100,
	MetricAQI:                        300,
}

const defaultIntensityCap = 100

// ParseMetric accepts a pollutant name or "aqi".
func ParseMetric(s string) (Metric, error) {
	if strings.EqualFold(s, string(MetricAQI)) {
		return MetricAQI, nil
	}
	p, err := airquality.ParsePollutant(s)
	if err != nil {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return Metric(p), nil
}

// Intensity normalizes value into [0, 1] for display, rounded to 3 decimals.
func Intensity(m Metric, value float64) float64 {
	limit, ok := intensityCaps[m]
	if !ok {
		limit = defaultIntensityCap
	}
	return round(math.Max(0, math.Min(value/limit, 1)), 3)
}

// value returns the metric for a measurement. Measurements without an AQI
// have no value for MetricAQI.
func (m Metric) value(meas *airquality.Measurement) (float64, bool) {
	if m == MetricAQI {
		if meas.AQI == nil {
			return 0, false
		}
		return *meas.AQI, true
	}
	return meas.Concentration(airquality.Pollutant(m)), true
}

// Timeframe selects the history used for a heatmap.
type Timeframe string

const (
	TimeframeCurrent Timeframe = "current"
	TimeframeLast24h Timeframe = "last_24h"
	TimeframeAll     Timeframe = "all"
)

// Since returns the start of the timeframe relative to now. TimeframeAll
// returns the zero time.
func (t Timeframe) Since(now time.Time) (time.Time, error) {
	switch t {
	case TimeframeCurrent, "":
		return now.Add(-CurrentWindow), nil
	case TimeframeLast24h:
		return now.Add(-24 * time.Hour), nil
	case TimeframeAll:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unknown timeframe %q", t)
	}
}

// MeasurementSource returns located measurements.
type MeasurementSource interface {
	Since(ctx context.Context, since time.Time) ([]*airquality.Measurement, error)
	InBBox(ctx context.Context, box airquality.BBox, since time.Time) ([]*airquality.Measurement, error)
}

// ZoneRisk is the risk summary of one zone.
type ZoneRisk struct {
	Zone  string
	Lat   float64
	Lon   float64
	AQI   *float64
	Risk  Risk
	Color string
}

// Cell is one non-empty grid cell.
type Cell struct {
	Lat       float64
	Lon       float64
	Value     float64
	Count     int
	Intensity float64
}

// Grid is the result of bucketing measurements into cells.
type Grid struct {
	Metric   Metric
	CellSize float64
	Cells    []Cell
}

// Point is one heatmap point.
type Point struct {
	Lat        float64
	Lon        float64
	Value      float64
	Intensity  float64
	RecordedAt time.Time
}

// Heatmap lists located values of a metric with their range.
type Heatmap struct {
	Metric    Metric
	Timeframe Timeframe
	Points    []Point
	Min       float64
	Max       float64
}

// AggregatorConfig holds configuration for the aggregator.
type AggregatorConfig struct {
	// Source provides measurements.
	Source MeasurementSource

	// Zones to summarize (default: DefaultZones()).
	Zones []Zone

	// Logger for aggregation.
	Logger zerolog.Logger
}

// Aggregator summarizes measurements by place.
type Aggregator struct {
	source MeasurementSource
	zones  []Zone
	logger zerolog.Logger
}

// NewAggregator creates a new aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	zones := cfg.Zones
	if len(zones) == 0 {
		zones = DefaultZones()
	}
	return &Aggregator{
		source: cfg.Source,
		zones:  zones,
		logger: cfg.Logger,
	}
}

// Zones returns the configured zones.
func (a *Aggregator) Zones() []Zone {
	return a.zones
}

// ZoneRisks averages the AQI of measurements recorded in the last hour within
// ZoneRadius of each zone. A zone without such measurements has a nil AQI and
// unknown risk.
func (a *Aggregator) ZoneRisks(ctx context.Context, now time.Time) ([]ZoneRisk, error) {
	since := now.Add(-CurrentWindow)

	out := make([]ZoneRisk, 0, len(a.zones))
	for _, z := range a.zones {
		nearby, err := a.source.InBBox(ctx, airquality.Around(z.Lat, z.Lon, ZoneRadius), since)
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", z.Name, err)
		}

		var sum float64
		var n int
		for _, m := range nearby {
			if m.AQI == nil {
				continue
			}
			sum += *m.AQI
			n++
		}

		var aqi *float64
		if n > 0 {
			v := round(sum/float64(n), 1)
			aqi = &v
		}
		risk := RiskFor(aqi)
		out = append(out, ZoneRisk{
			Zone:  z.Name,
			Lat:   z.Lat,
			Lon:   z.Lon,
			AQI:   aqi,
			Risk:  risk,
			Color: risk.Color(),
		})
	}
	return out, nil
}

type cellKey struct {
	lat, lon float64
}

type cellAcc struct {
	sum   float64
	count int
}

// Grid buckets the last hour of located measurements into cells of cellSize
// degrees and averages metric per cell. Cells are ordered by latitude then
// longitude.
func (a *Aggregator) Grid(ctx context.Context, now time.Time, metric Metric, cellSize float64) (*Grid, error) {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}

	measurements, err := a.located(ctx, now.Add(-CurrentWindow))
	if err != nil {
		return nil, err
	}

	cells := make(map[cellKey]*cellAcc)
	for _, m := range measurements {
		v, ok := metric.value(m)
		if !ok {
			continue
		}
		k := cellKey{
			lat: snap(*m.Lat, cellSize),
			lon: snap(*m.Lon, cellSize),
		}
		acc, ok := cells[k]
		if !ok {
			acc = &cellAcc{}
			cells[k] = acc
		}
		acc.sum += v
		acc.count++
	}

	grid := &Grid{Metric: metric, CellSize: cellSize, Cells: make([]Cell, 0, len(cells))}
	for k, acc := range cells {
		avg := acc.sum / float64(acc.count)
		grid.Cells = append(grid.Cells, Cell{
			Lat:       k.lat,
			Lon:       k.lon,
			Value:     round(avg, 2),
			Count:     acc.count,
			Intensity: Intensity(metric, avg),
		})
	}
	sort.Slice(grid.Cells, func(i, j int) bool {
		if grid.Cells[i].Lat == grid.Cells[j].Lat {
			return grid.Cells[i].Lon < grid.Cells[j].Lon
		}
		return grid.Cells[i].Lat < grid.Cells[j].Lat
	})

	a.logger.Debug().
		Str("metric", string(metric)).
		Float64("cell_size", cellSize).
		Int("measurements", len(measurements)).
		Int("cells", len(grid.Cells)).
		Msg("grid aggregated")

	return grid, nil
}

// Heatmap lists every located value of metric in the timeframe, newest first.
func (a *Aggregator) Heatmap(ctx context.Context, now time.Time, metric Metric, timeframe Timeframe) (*Heatmap, error) {
	since, err := timeframe.Since(now)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		timeframe = TimeframeCurrent
	}

	measurements, err := a.located(ctx, since)
	if err != nil {
		return nil, err
	}

	hm := &Heatmap{Metric: metric, Timeframe: timeframe, Points: []Point{}}
	for i := len(measurements) - 1; i >= 0; i-- {
		m := measurements[i]
		v, ok := metric.value(m)
		if !ok {
			continue
		}
		if len(hm.Points) == 0 || v < hm.Min {
			hm.Min = v
		}
		if len(hm.Points) == 0 || v > hm.Max {
			hm.Max = v
		}
		hm.Points = append(hm.Points, Point{
			Lat:        *m.Lat,
			Lon:        *m.Lon,
			Value:      v,
			Intensity:  Intensity(metric, v),
			RecordedAt: m.RecordedAt,
		})
	}
	return hm, nil
}

// located returns measurements since t that carry coordinates, oldest first.
func (a *Aggregator) located(ctx context.Context, since time.Time) ([]*airquality.Measurement, error) {
	all, err := a.source.Since(ctx, since)
	if err != nil {
		return nil, err
	}
	var out []*airquality.Measurement
	for _, m := range all {
		if m.HasLocation() {
			out = append(out, m)
		}
	}
	return out, nil
}

func snap(coord, cellSize float64) float64 {
	return round(math.Round(coord/cellSize)*cellSize, 6)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
