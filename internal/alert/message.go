package alert

import (
	"fmt"
	"math"
	"strconv"

	"github.com/airwatch/airwatch/internal/airquality"
)

var advice = map[Level]map[airquality.Pollutant]string{
	LevelYellow: {
		airquality.PollutantSO2:  "Sensitive people should limit prolonged outdoor activity.",
		airquality.PollutantNH3:  "Monitoring recommended for sensitive people.",
		airquality.PollutantPM25: "Reduce intense outdoor activity.",
	},
	LevelOrange: {
		airquality.PollutantSO2:  "Avoid prolonged outdoor activity. Sensitive people: stay indoors.",
		airquality.PollutantNH3:  "Limit exposure. Risk for the respiratory tract.",
		airquality.PollutantPM25: "Avoid outdoor exercise. Wear a mask if needed.",
	},
	LevelRed: {
		airquality.PollutantSO2:  "Stay indoors and close the windows. Avoid any exposure.",
		airquality.PollutantNH3:  "Serious health risk. Evacuate if possible.",
		airquality.PollutantPM25: "Stay indoors. Use an air purifier.",
	},
}

// FormatValue renders a concentration with at most two decimals.
func FormatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// Message renders the alert text for a pollutant reading. Yellow readings
// are informational, orange readings are warnings and red readings are
// emergencies. The value always appears in the text.
func Message(pollutant airquality.Pollutant, value float64, level Level) string {
	reading := fmt.Sprintf("%s concentration %s (%s %s)", pollutant, severityWord(level), FormatValue(value), airquality.Unit)

	tip := advice[level][pollutant]

	switch level {
	case LevelYellow:
		return fmt.Sprintf("Information: %s. %s", reading, tip)
	case LevelOrange:
		return fmt.Sprintf("⚠️ Warning: %s. %s", reading, tip)
	case LevelRed:
		return fmt.Sprintf("🚨 RED ALERT: %s! %s", reading, tip)
	default:
		return fmt.Sprintf("Pollution level %s: %s", level, reading)
	}
}

func severityWord(level Level) string {
	switch level {
	case LevelYellow:
		return "moderate"
	case LevelOrange:
		return "high"
	case LevelRed:
		return "dangerous"
	default:
		return "normal"
	}
}
