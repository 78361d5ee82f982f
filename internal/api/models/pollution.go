package models

import (
	"time"

	"github.com/airwatch/airwatch/internal/airquality"
	"github.com/airwatch/airwatch/internal/spatial"
)

// MeasurementRequest is the body of POST /api/pollution/data.
type MeasurementRequest struct {
	SO2           *float64   `json:"so2" validate:"required"`
	NH3           *float64   `json:"nh3" validate:"required"`
	PM25          *float64   `json:"pm25" validate:"required"`
	Temperature   *float64   `json:"temperature" validate:"omitempty,gte=-90,lte=70"`
	Humidity      *float64   `json:"humidity" validate:"omitempty,gte=0,lte=100"`
	WindSpeed     *float64   `json:"wind_speed" validate:"omitempty,gte=0"`
	WindDirection *float64   `json:"wind_direction" validate:"omitempty,gte=0,lte=360"`
	Pressure      *float64   `json:"pressure" validate:"omitempty,gt=0"`
	Latitude      *float64   `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64   `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Timestamp     *Timestamp `json:"timestamp"`
	Source        string     `json:"source" validate:"omitempty,max=64"`
}

// Fields maps the request onto the ingestion input. A missing timestamp
// means now.
func (r MeasurementRequest) Fields(now time.Time) airquality.Fields {
	recordedAt := now
	if r.Timestamp != nil {
		recordedAt = r.Timestamp.Time()
	}
	return airquality.Fields{
		SO2:           deref(r.SO2),
		NH3:           deref(r.NH3),
		PM25:          deref(r.PM25),
		Temperature:   r.Temperature,
		Humidity:      r.Humidity,
		WindSpeed:     r.WindSpeed,
		WindDirection: r.WindDirection,
		Pressure:      r.Pressure,
		Lat:           r.Latitude,
		Lon:           r.Longitude,
		RecordedAt:    recordedAt,
		Source:        r.Source,
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// AQIResponse is a scored set of concentrations.
type AQIResponse struct {
	Overall         float64                    `json:"overall"`
	Level           string                     `json:"level"`
	Category        string                     `json:"category"`
	Color           string                     `json:"color"`
	HealthMessage   string                     `json:"health_message"`
	Dominant        string                     `json:"dominant_pollutant"`
	Pollutants      map[string]float64         `json:"pollutants"`
	Recommendations airquality.Recommendations `json:"recommendations"`
}

// NewAQIResponse converts a calculator result.
func NewAQIResponse(r airquality.Result) AQIResponse {
	per := make(map[string]float64, len(r.PerPollutant))
	for p, v := range r.PerPollutant {
		per[string(p)] = v
	}
	return AQIResponse{
		Overall:         r.Overall,
		Level:           r.Level,
		Category:        string(r.Category),
		Color:           r.Color,
		HealthMessage:   r.HealthMessage,
		Dominant:        string(r.Dominant),
		Pollutants:      per,
		Recommendations: airquality.BandFor(r.Overall).Recommendations,
	}
}

// IngestResponse is returned after a measurement is stored. AlertsError is
// set when the measurement was stored but alert processing failed.
type IngestResponse struct {
	Message       string      `json:"message"`
	ID            string      `json:"id"`
	AQI           AQIResponse `json:"aqi"`
	AlertsCreated int         `json:"alerts_created"`
	AlertsError   string      `json:"alerts_error,omitempty"`
}

// Concentrations are the three pollutant values of a measurement.
type Concentrations struct {
	SO2  float64 `json:"so2"`
	NH3  float64 `json:"nh3"`
	PM25 float64 `json:"pm25"`
}

// Weather are the optional weather readings of a measurement.
type Weather struct {
	Temperature   *float64 `json:"temperature"`
	Humidity      *float64 `json:"humidity"`
	WindSpeed     *float64 `json:"wind_speed"`
	WindDirection *float64 `json:"wind_direction"`
	Pressure      *float64 `json:"pressure"`
}

// Location is an optional coordinate.
type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CurrentResponse is the latest measurement with its score.
type CurrentResponse struct {
	ID         string         `json:"id"`
	Timestamp  Timestamp      `json:"timestamp"`
	Pollutants Concentrations `json:"pollutants"`
	Weather    Weather        `json:"weather"`
	AQI        AQIResponse    `json:"aqi"`
	Location   Location       `json:"location"`
	Source     string         `json:"source"`
}

// NewCurrentResponse converts a measurement and its score.
func NewCurrentResponse(m *airquality.Measurement, r airquality.Result) CurrentResponse {
	return CurrentResponse{
		ID:        m.ID,
		Timestamp: Timestamp(m.RecordedAt),
		Pollutants: Concentrations{
			SO2:  m.SO2,
			NH3:  m.NH3,
			PM25: m.PM25,
		},
		Weather: Weather{
			Temperature:   m.Temperature,
			Humidity:      m.Humidity,
			WindSpeed:     m.WindSpeed,
			WindDirection: m.WindDirection,
			Pressure:      m.Pressure,
		},
		AQI:      NewAQIResponse(r),
		Location: Location{Latitude: m.Lat, Longitude: m.Lon},
		Source:   m.Source,
	}
}

// HistoryPoint is one entry of a history series. With a pollutant filter
// only Value is set; otherwise the concentrations and AQI are.
type HistoryPoint struct {
	Timestamp Timestamp `json:"timestamp"`
	Value     *float64  `json:"value,omitempty"`
	SO2       *float64  `json:"so2,omitempty"`
	NH3       *float64  `json:"nh3,omitempty"`
	PM25      *float64  `json:"pm25,omitempty"`
	AQI       *float64  `json:"aqi,omitempty"`
}

// HistoryResponse is a measurement series.
type HistoryResponse struct {
	Period    string         `json:"period"`
	Pollutant string         `json:"pollutant"`
	Count     int            `json:"count"`
	Data      []HistoryPoint `json:"data"`
}

// NewHistoryResponse projects measurements onto a series. An empty pollutant
// keeps every value.
func NewHistoryResponse(period airquality.Period, pollutant airquality.Pollutant, ms []*airquality.Measurement) HistoryResponse {
	data := make([]HistoryPoint, 0, len(ms))
	for _, m := range ms {
		pt := HistoryPoint{Timestamp: Timestamp(m.RecordedAt)}
		if pollutant != "" {
			v := m.Concentration(pollutant)
			pt.Value = &v
		} else {
			so2, nh3, pm25 := m.SO2, m.NH3, m.PM25
			pt.SO2, pt.NH3, pt.PM25 = &so2, &nh3, &pm25
			pt.AQI = m.AQI
		}
		data = append(data, pt)
	}

	name := "all"
	if pollutant != "" {
		name = string(pollutant)
	}
	return HistoryResponse{
		Period:    string(period),
		Pollutant: name,
		Count:     len(data),
		Data:      data,
	}
}

// MapPoint is one located measurement.
type MapPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	SO2       float64   `json:"so2"`
	NH3       float64   `json:"nh3"`
	PM25      float64   `json:"pm25"`
	AQI       *float64  `json:"aqi"`
	Timestamp Timestamp `json:"timestamp"`
}

// MapDataResponse lists located measurements of the last hour.
type MapDataResponse struct {
	Points []MapPoint `json:"points"`
	Count  int        `json:"count"`
}

// NewMapDataResponse converts located measurements.
func NewMapDataResponse(ms []*airquality.Measurement) MapDataResponse {
	points := make([]MapPoint, 0, len(ms))
	for _, m := range ms {
		if !m.HasLocation() {
			continue
		}
		points = append(points, MapPoint{
			Lat:       *m.Lat,
			Lng:       *m.Lon,
			SO2:       m.SO2,
			NH3:       m.NH3,
			PM25:      m.PM25,
			AQI:       m.AQI,
			Timestamp: Timestamp(m.RecordedAt),
		})
	}
	return MapDataResponse{Points: points, Count: len(points)}
}

// HeatmapPoint is one weighted heatmap point.
type HeatmapPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Value     float64   `json:"value"`
	Intensity float64   `json:"intensity"`
	Timestamp Timestamp `json:"timestamp"`
}

// HeatmapResponse lists heatmap points with the value range.
type HeatmapResponse struct {
	Pollutant string         `json:"pollutant"`
	Timeframe string         `json:"timeframe"`
	Points    []HeatmapPoint `json:"points"`
	Count     int            `json:"count"`
	Min       float64        `json:"min"`
	Max       float64        `json:"max"`
}

// NewHeatmapResponse converts a heatmap.
func NewHeatmapResponse(h *spatial.Heatmap) HeatmapResponse {
	points := make([]HeatmapPoint, 0, len(h.Points))
	for _, p := range h.Points {
		points = append(points, HeatmapPoint{
			Lat:       p.Lat,
			Lng:       p.Lon,
			Value:     p.Value,
			Intensity: p.Intensity,
			Timestamp: Timestamp(p.RecordedAt),
		})
	}
	return HeatmapResponse{
		Pollutant: string(h.Metric),
		Timeframe: string(h.Timeframe),
		Points:    points,
		Count:     len(points),
		Min:       h.Min,
		Max:       h.Max,
	}
}

// GridCell is one aggregated grid cell.
type GridCell struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Value     float64 `json:"value"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"`
}

// GridResponse lists the non-empty cells of a grid.
type GridResponse struct {
	Pollutant string     `json:"pollutant"`
	GridSize  float64    `json:"grid_size"`
	Cells     []GridCell `json:"cells"`
	Count     int        `json:"count"`
}

// NewGridResponse converts a grid.
func NewGridResponse(g *spatial.Grid) GridResponse {
	cells := make([]GridCell, 0, len(g.Cells))
	for _, c := range g.Cells {
		cells = append(cells, GridCell{
			Lat:       c.Lat,
			Lng:       c.Lon,
			Value:     c.Value,
			Count:     c.Count,
			Intensity: c.Intensity,
		})
	}
	return GridResponse{
		Pollutant: string(g.Metric),
		GridSize:  g.CellSize,
		Cells:     cells,
		Count:     len(cells),
	}
}

// ZoneResponse is the risk summary of one zone.
type ZoneResponse struct {
	Zone  string   `json:"zone"`
	Lat   float64  `json:"lat"`
	Lng   float64  `json:"lng"`
	AQI   *float64 `json:"aqi"`
	Risk  string   `json:"risk_level"`
	Color string   `json:"color"`
}

// ZonesResponse lists zone risks.
type ZonesResponse struct {
	Zones     []ZoneResponse `json:"zones"`
	Timestamp Timestamp      `json:"timestamp"`
}

// NewZonesResponse converts zone risks.
func NewZonesResponse(risks []spatial.ZoneRisk, now time.Time) ZonesResponse {
	zones := make([]ZoneResponse, 0, len(risks))
	for _, z := range risks {
		zones = append(zones, ZoneResponse{
			Zone:  z.Zone,
			Lat:   z.Lat,
			Lng:   z.Lon,
			AQI:   z.AQI,
			Risk:  string(z.Risk),
			Color: z.Color,
		})
	}
	return ZonesResponse{Zones: zones, Timestamp: Timestamp(now)}
}

// StatsResponse summarizes measurements in a period.
type StatsResponse struct {
	Period       string         `json:"period"`
	TotalRecords int            `json:"total_records"`
	Averages     Concentrations `json:"averages"`
	Maximums     Concentrations `json:"maximums"`
	AverageAQI   float64        `json:"average_aqi"`
	MaxAQI       float64        `json:"max_aqi"`
}

// NewStatsResponse converts measurement statistics.
func NewStatsResponse(period airquality.Period, st airquality.Stats) StatsResponse {
	return StatsResponse{
		Period:       string(period),
		TotalRecords: st.Count,
		Averages:     Concentrations{SO2: st.AvgSO2, NH3: st.AvgNH3, PM25: st.AvgPM25},
		Maximums:     Concentrations{SO2: st.MaxSO2, NH3: st.MaxNH3, PM25: st.MaxPM25},
		AverageAQI:   st.AvgAQI,
		MaxAQI:       st.MaxAQI,
	}
}
