package airquality

import (
	"errors"
	"math"
)

// ErrInvalidConcentration is returned for NaN or infinite concentrations.
var ErrInvalidConcentration = errors.New("concentration must be a finite number")

// MaxIndex is the saturation value for concentrations above every bracket.
const MaxIndex = 500.0

// Breakpoint maps a concentration range onto an index range.
type Breakpoint struct {
	CLow  float64
	CHigh float64
	ILow  float64
	IHigh float64
}

// BreakpointTable is an ordered, non-overlapping list of breakpoints.
type BreakpointTable []Breakpoint

// SubIndex interpolates c within the first bracket whose upper bound is not
// below c. A concentration that falls in the gap between two brackets takes
// the lower index bound of the next bracket. Values above the last bracket
// saturate at MaxIndex.
func (t BreakpointTable) SubIndex(c float64) float64 {
	if c < 0 {
		c = 0
	}
	for _, bp := range t {
		if c > bp.CHigh {
			continue
		}
		if c <= bp.CLow {
			return bp.ILow
		}
		return (bp.IHigh-bp.ILow)/(bp.CHigh-bp.CLow)*(c-bp.CLow) + bp.ILow
	}
	return MaxIndex
}

// BreakpointTables holds one table per pollutant.
type BreakpointTables map[Pollutant]BreakpointTable

// DefaultBreakpointTables returns the standard tables for SO2, NH3 and PM2.5.
func DefaultBreakpointTables() BreakpointTables {
	return BreakpointTables{
		PollutantSO2: {
			{0, 20, 0, 50},
			{20, 50, 51, 100},
			{50, 100, 101, 150},
			{100, 200, 151, 200},
			{200, 500, 201, 300},
			{500, 1000, 301, 500},
		},
		PollutantNH3: {
			{0, 30, 0, 50},
			{30, 60, 51, 100},
			{60, 120, 101, 150},
			{120, 200, 151, 200},
			{200, 400, 201, 300},
			{400, 800, 301, 500},
		},
		PollutantPM25: {
			{0, 12, 0, 50},
			{12.1, 35.4, 51, 100},
			{35.5, 55.4, 101, 150},
			{55.5, 150.4, 151, 200},
			{150.5, 250.4, 201, 300},
			{250.5, 500, 301, 500},
		},
	}
}

// Category is the coarse color bucket for an AQI value.
type Category string

const (
	CategoryGreen  Category = "green"
	CategoryYellow Category = "yellow"
	CategoryOrange Category = "orange"
	CategoryRed    Category = "red"
)

// Recommendations are activity guidelines for an AQI band.
type Recommendations struct {
	General   string `json:"general"`
	Sensitive string `json:"sensitive"`
	Outdoor   string `json:"outdoor"`
}

// Band describes one AQI range and how it is presented.
type Band struct {
	Max             float64
	Level           string
	Category        Category
	Color           string
	HealthMessage   string
	Recommendations Recommendations
}

// bands are ordered by Max; the last one is open ended.
var bands = []Band{
	{
		Max: 50, Level: "Good", Category: CategoryGreen, Color: "#00E400",
		HealthMessage: "Air quality is satisfactory. Enjoy your outdoor activities.",
		Recommendations: Recommendations{
			General:   "Ideal conditions for all outdoor activities",
			Sensitive: "No restrictions",
			Outdoor:   "All activities recommended",
		},
	},
	{
		Max: 100, Level: "Moderate", Category: CategoryYellow, Color: "#FFFF00",
		HealthMessage: "Air quality is acceptable. Sensitive people should limit prolonged exertion.",
		Recommendations: Recommendations{
			General:   "Acceptable for most people",
			Sensitive: "Limit prolonged exertion if you are sensitive",
			Outdoor:   "Normal activities possible",
		},
	},
	{
		Max: 150, Level: "Unhealthy for Sensitive Groups", Category: CategoryOrange, Color: "#FF7E00",
		HealthMessage: "Sensitive groups may experience health effects. Limit prolonged outdoor activity.",
		Recommendations: Recommendations{
			General:   "Reduce intense outdoor activities",
			Sensitive: "Avoid prolonged exertion outdoors",
			Outdoor:   "Prefer indoor activities",
		},
	},
	{
		Max: 200, Level: "Unhealthy", Category: CategoryOrange, Color: "#FF0000",
		HealthMessage: "Everyone may begin to experience health effects. Avoid prolonged outdoor activity.",
		Recommendations: Recommendations{
			General:   "Avoid prolonged outdoor activities",
			Sensitive: "Stay indoors",
			Outdoor:   "Indoor activities only",
		},
	},
	{
		Max: 300, Level: "Very Unhealthy", Category: CategoryRed, Color: "#8F3F97",
		HealthMessage: "Health alert: increased risk for everyone. Avoid going out. People at risk should stay indoors.",
		Recommendations: Recommendations{
			General:   "Stay indoors with doors and windows closed",
			Sensitive: "Evacuate if possible",
			Outdoor:   "Not permitted",
		},
	},
	{
		Max: math.Inf(1), Level: "Hazardous", Category: CategoryRed, Color: "#7E0023",
		HealthMessage: "Health emergency. Stay indoors and keep doors and windows closed.",
		Recommendations: Recommendations{
			General:   "Stay indoors with doors and windows closed",
			Sensitive: "Evacuate if possible",
			Outdoor:   "Not permitted",
		},
	},
}

// BandFor returns the band containing aqi. Upper bounds are inclusive.
func BandFor(aqi float64) Band {
	for _, b := range bands {
		if aqi <= b.Max {
			return b
		}
	}
	return bands[len(bands)-1]
}

// Result is the outcome of scoring one set of concentrations.
type Result struct {
	Overall       float64
	Level         string
	Category      Category
	Color         string
	HealthMessage string
	PerPollutant  map[Pollutant]float64

	// Dominant is chosen on unrounded sub-indices, so it can name a pollutant
	// whose rounded PerPollutant value equals another's. Exact ties go to the
	// first pollutant in Pollutants order.
	Dominant Pollutant
}

// Calculator converts concentrations into AQI values.
type Calculator struct {
	tables BreakpointTables
}

// NewCalculator creates a calculator over the given tables. A nil map uses
// DefaultBreakpointTables.
func NewCalculator(tables BreakpointTables) *Calculator {
	if tables == nil {
		tables = DefaultBreakpointTables()
	}
	return &Calculator{tables: tables}
}

// SubIndex returns the unrounded sub-index of one pollutant.
func (c *Calculator) SubIndex(p Pollutant, concentration float64) (float64, error) {
	if math.IsNaN(concentration) || math.IsInf(concentration, 0) {
		return 0, ErrInvalidConcentration
	}
	table, ok := c.tables[p]
	if !ok {
		return 0, ErrUnknownPollutant
	}
	return table.SubIndex(concentration), nil
}

// Calculate scores the three pollutants. The overall value is the rounded
// maximum sub-index. The band is chosen on that rounded value, so the
// reported AQI and its band always agree.
func (c *Calculator) Calculate(so2, nh3, pm25 float64) (Result, error) {
	values := map[Pollutant]float64{
		PollutantSO2:  so2,
		PollutantNH3:  nh3,
		PollutantPM25: pm25,
	}

	per := make(map[Pollutant]float64, len(Pollutants))
	var (
		maxIndex = -1.0
		dominant Pollutant
	)
	for _, p := range Pollutants {
		idx, err := c.SubIndex(p, values[p])
		if err != nil {
			return Result{}, err
		}
		per[p] = math.Round(idx)
		if idx > maxIndex {
			maxIndex = idx
			dominant = p
		}
	}

	overall := math.Round(maxIndex)
	band := BandFor(overall)

	return Result{
		Overall:       overall,
		Level:         band.Level,
		Category:      band.Category,
		Color:         band.Color,
		HealthMessage: band.HealthMessage,
		PerPollutant:  per,
		Dominant:      dominant,
	}, nil
}

// CalculateMeasurement scores a stored measurement.
func (c *Calculator) CalculateMeasurement(m *Measurement) (Result, error) {
	return c.Calculate(m.SO2, m.NH3, m.PM25)
}

// Describe returns the band for an arbitrary AQI value.
func (c *Calculator) Describe(aqi float64) Band {
	return BandFor(math.Round(aqi))
}
