package forecast

import (
	"math"
)

// Pair is one predicted value with the value that was later observed.
type Pair struct {
	Predicted float64
	Actual    float64
}

// Metrics are error statistics over a set of pairs.
type Metrics struct {
	RMSE       float64
	MAE        float64
	R2         float64
	SampleSize int
}

// Evaluate computes RMSE, MAE and R² over pairs. R² is 0 when every actual
// value is identical. An empty input returns ErrInsufficientData.
func Evaluate(pairs []Pair) (Metrics, error) {
	n := len(pairs)
	if n == 0 {
		return Metrics{}, ErrInsufficientData
	}

	var sumActual float64
	for _, p := range pairs {
		sumActual += p.Actual
	}
	meanActual := sumActual / float64(n)

	var sumSquared, sumAbs, ssTotal float64
	for _, p := range pairs {
		diff := p.Predicted - p.Actual
		sumSquared += diff * diff
		sumAbs += math.Abs(diff)
		dev := p.Actual - meanActual
		ssTotal += dev * dev
	}

	r2 := 0.0
	if ssTotal != 0 {
		r2 = 1 - sumSquared/ssTotal
	}

	return Metrics{
		RMSE:       math.Sqrt(sumSquared / float64(n)),
		MAE:        sumAbs / float64(n),
		R2:         r2,
		SampleSize: n,
	}, nil
}

// Report is an accuracy evaluation as presented to clients: RMSE and MAE
// rounded to two decimals, R² to four.
type Report struct {
	Metrics
	Filter Filter
}

// NewReport rounds m for presentation.
func NewReport(m Metrics, f Filter) Report {
	return Report{
		Metrics: Metrics{
			RMSE:       roundTo(m.RMSE, 2),
			MAE:        roundTo(m.MAE, 2),
			R2:         roundTo(m.R2, 4),
			SampleSize: m.SampleSize,
		},
		Filter: f,
	}
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
