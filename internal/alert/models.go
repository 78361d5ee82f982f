// Package alert evaluates pollutant thresholds and maintains the per-pollutant
// alert timeline.
package alert

import (
	"errors"
	"time"

	"github.com/airwatch/airwatch/internal/airquality"
)

// Alert errors.
var (
	ErrBelowThreshold   = errors.New("below threshold, no alert generated")
	ErrUnknownPollutant = errors.New("no thresholds configured for pollutant")
	ErrLockTimeout      = errors.New("timed out waiting for pollutant lock")
)

// Level is the severity of a pollutant reading.
type Level string

const (
	LevelGreen  Level = "green"
	LevelYellow Level = "yellow"
	LevelOrange Level = "orange"
	LevelRed    Level = "red"
)

// Levels lists every level from least to most severe.
var Levels = []Level{LevelGreen, LevelYellow, LevelOrange, LevelRed}

// Severity orders levels: green 0, yellow 1, orange 2, red 3.
func (l Level) Severity() int {
	switch l {
	case LevelYellow:
		return 1
	case LevelOrange:
		return 2
	case LevelRed:
		return 3
	default:
		return 0
	}
}

// Thresholds are the lower bounds of the yellow, orange and red bands.
type Thresholds struct {
	Yellow float64 `json:"yellow" yaml:"yellow"`
	Orange float64 `json:"orange" yaml:"orange"`
	Red    float64 `json:"red" yaml:"red"`
}

// ThresholdTable maps each pollutant to its thresholds.
type ThresholdTable map[airquality.Pollutant]Thresholds

// DefaultThresholdTable returns the standard thresholds in µg/m³.
func DefaultThresholdTable() ThresholdTable {
	return ThresholdTable{
		airquality.PollutantSO2:  {Yellow: 20, Orange: 50, Red: 100},
		airquality.PollutantNH3:  {Yellow: 30, Orange: 60, Red: 120},
		airquality.PollutantPM25: {Yellow: 15, Orange: 35, Red: 55},
	}
}

// EvaluatePollutant classifies value against t. A value equal to a threshold
// belongs to the higher band.
func EvaluatePollutant(value float64, t Thresholds) Level {
	switch {
	case value < t.Yellow:
		return LevelGreen
	case value < t.Orange:
		return LevelYellow
	case value < t.Red:
		return LevelOrange
	default:
		return LevelRed
	}
}

// Alert is a health alert for one pollutant. Level is never green.
type Alert struct {
	ID         string
	Pollutant  airquality.Pollutant
	Value      float64
	Level      Level
	Message    string
	Active     bool
	Lat        *float64
	Lon        *float64
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Transition is the change applied to one pollutant for one measurement:
// any active alert is resolved at At, then Create (if set) becomes the new
// active alert.
type Transition struct {
	Pollutant airquality.Pollutant
	At        time.Time
	Create    *Alert
}

// ApplyResult reports what a batch of transitions changed.
type ApplyResult struct {
	Created  []*Alert
	Resolved int
}

// HistoryFilter selects alerts by creation time.
type HistoryFilter struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// Statistics summarizes the alert store.
type Statistics struct {
	Total       int
	Active      int
	ByLevel     map[Level]int
	ByPollutant map[airquality.Pollutant]int
	Last24h     int
}
