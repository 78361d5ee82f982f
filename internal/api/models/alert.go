package models

import (
	"time"

	"github.com/airwatch/airwatch/internal/alert"
)

// AlertResponse is one health alert.
type AlertResponse struct {
	ID         string     `json:"id"`
	Pollutant  string     `json:"pollutant"`
	Value      float64    `json:"value"`
	Level      string     `json:"level"`
	Message    string     `json:"message"`
	IsActive   bool       `json:"is_active"`
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	CreatedAt  Timestamp  `json:"created_at"`
	ResolvedAt *Timestamp `json:"resolved_at"`
}

// NewAlertResponse converts an alert.
func NewAlertResponse(a *alert.Alert) AlertResponse {
	return AlertResponse{
		ID:         a.ID,
		Pollutant:  string(a.Pollutant),
		Value:      a.Value,
		Level:      string(a.Level),
		Message:    a.Message,
		IsActive:   a.Active,
		Latitude:   a.Lat,
		Longitude:  a.Lon,
		CreatedAt:  Timestamp(a.CreatedAt),
		ResolvedAt: TimestampPtr(a.ResolvedAt),
	}
}

func newAlertResponses(alerts []*alert.Alert) []AlertResponse {
	out := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, NewAlertResponse(a))
	}
	return out
}

// ActiveAlertsResponse lists the active alerts.
type ActiveAlertsResponse struct {
	ActiveAlerts []AlertResponse `json:"active_alerts"`
	Count        int             `json:"count"`
	Timestamp    Timestamp       `json:"timestamp"`
}

// NewActiveAlertsResponse converts active alerts.
func NewActiveAlertsResponse(alerts []*alert.Alert, now time.Time) ActiveAlertsResponse {
	items := newAlertResponses(alerts)
	return ActiveAlertsResponse{ActiveAlerts: items, Count: len(items), Timestamp: Timestamp(now)}
}

// AlertHistoryFilters echoes the applied history filters.
type AlertHistoryFilters struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Limit     int     `json:"limit"`
}

// AlertHistoryResponse lists past alerts, newest first.
type AlertHistoryResponse struct {
	Alerts  []AlertResponse     `json:"alerts"`
	Count   int                 `json:"count"`
	Filters AlertHistoryFilters `json:"filters"`
}

// NewAlertHistoryResponse converts an alert history page.
func NewAlertHistoryResponse(alerts []*alert.Alert, f alert.HistoryFilter) AlertHistoryResponse {
	items := newAlertResponses(alerts)
	return AlertHistoryResponse{
		Alerts: items,
		Count:  len(items),
		Filters: AlertHistoryFilters{
			StartDate: formatDate(f.From),
			EndDate:   formatDate(f.To),
			Limit:     f.Limit,
		},
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

// AlertStatsResponse summarizes the alert store.
type AlertStatsResponse struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	Last24h     int            `json:"last_24h"`
	ByLevel     map[string]int `json:"by_level"`
	ByPollutant map[string]int `json:"by_pollutant"`
}

// NewAlertStatsResponse converts alert statistics.
func NewAlertStatsResponse(st alert.Statistics) AlertStatsResponse {
	byLevel := make(map[string]int, len(st.ByLevel))
	for l, n := range st.ByLevel {
		byLevel[string(l)] = n
	}
	byPollutant := make(map[string]int, len(st.ByPollutant))
	for p, n := range st.ByPollutant {
		byPollutant[string(p)] = n
	}
	return AlertStatsResponse{
		Total:       st.Total,
		Active:      st.Active,
		Last24h:     st.Last24h,
		ByLevel:     byLevel,
		ByPollutant: byPollutant,
	}
}

// SimulateAlertRequest is the body of POST /api/alerts/simulate.
type SimulateAlertRequest struct {
	Pollutant string   `json:"pollutant" validate:"required"`
	Value     *float64 `json:"value" validate:"required,gte=0"`
}

// SimulateAlertResponse wraps a simulated alert.
type SimulateAlertResponse struct {
	Message string        `json:"message"`
	Alert   AlertResponse `json:"alert"`
}
