// Package gradescale derives gradebook percentages and letter grades from raw scores.
package gradescale

import (
	"errors"
	"math"
)

// ErrInvalidMaxScore is returned when the maximum score is not positive.
var ErrInvalidMaxScore = errors.New("max score must be positive")

// Band maps a minimum percentage to a letter.
type Band struct {
	Min    float64
	Letter string
}

// Bands is evaluated in order; the first band whose minimum is met wins.
var Bands = []Band{
	{Min: 90, Letter: "A"},
	{Min: 80, Letter: "B"},
	{Min: 70, Letter: "C"},
	{Min: 60, Letter: "D"},
}

// FailingLetter is assigned below the lowest band.
const FailingLetter = "F"

// Percentage returns score/maxScore*100 rounded to one decimal place.
func Percentage(score, maxScore float64) (float64, error) {
	if maxScore <= 0 {
		return 0, ErrInvalidMaxScore
	}
	return Round1(score / maxScore * 100), nil
}

// Round1 rounds half away from zero to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Letter maps an already rounded percentage onto the letter table.
func Letter(percentage float64) string {
	for _, band := range Bands {
		if percentage >= band.Min {
			return band.Letter
		}
	}
	return FailingLetter
}

// Derive computes both percentage and letter for a score.
func Derive(score, maxScore float64) (float64, string, error) {
	pct, err := Percentage(score, maxScore)
	if err != nil {
		return 0, "", err
	}
	return pct, Letter(pct), nil
}

// ScoreDecimals is the precision the gradebook columns store.
const ScoreDecimals = 2

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FitsScale reports whether v has no more than ScoreDecimals fractional digits.
func FitsScale(v float64) bool {
	scaled := v * math.Pow10(ScoreDecimals)
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}
