// Package trend computes percentage changes and the coarse trend indicator
// attached to each line of a price notification.
package trend

import "math"

// Band thresholds on the absolute percent change. Each band is closed at its
// lower edge and open at its upper edge.
const (
	SmallThreshold  = 0.01
	MediumThreshold = 1.0
	LargeThreshold  = 5.0
)

// PercentChange returns (current-reference)/reference*100. An absent, zero or
// non-finite reference yields 0 rather than an error or an infinity.
func PercentChange(current, reference float64) float64 {
	if reference <= 0 || math.IsNaN(reference) || math.IsInf(reference, 0) {
		return 0
	}
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return 0
	}
	return (current - reference) / reference * 100
}

// Direction is the sign of a change.
type Direction int

const (
	Flat Direction = iota
	Up
	Down
)

// Band is the magnitude bucket of a change.
type Band int

const (
	Neutral Band = iota
	Small
	Medium
	Large
)

func (b Band) String() string {
	switch b {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return "neutral"
	}
}

// Indicator is a direction plus magnitude band.
type Indicator struct {
	Direction Direction
	Band      Band
}

var symbols = map[Indicator]string{
	{Flat, Neutral}: "⚪",
	{Up, Small}:     "↗️",
	{Up, Medium}:    "📈",
	{Up, Large}:     "🚀",
	{Down, Small}:   "↘️",
	{Down, Medium}:  "📉",
	{Down, Large}:   "🔻",
}

// String renders the indicator symbol used in messages.
func (i Indicator) String() string {
	if s, ok := symbols[i]; ok {
		return s
	}
	return symbols[Indicator{Flat, Neutral}]
}

// Label is a plain-text name for logs, e.g. "large-down".
func (i Indicator) Label() string {
	switch i.Direction {
	case Up:
		return i.Band.String() + "-up"
	case Down:
		return i.Band.String() + "-down"
	default:
		return "neutral"
	}
}

// Classify maps a signed percent change onto an indicator.
func Classify(p float64) Indicator {
	if math.IsNaN(p) {
		return Indicator{Flat, Neutral}
	}
	mag := math.Abs(p)
	if mag < SmallThreshold {
		return Indicator{Flat, Neutral}
	}
	dir := Up
	if p < 0 {
		dir = Down
	}
	switch {
	case mag >= LargeThreshold:
		return Indicator{dir, Large}
	case mag >= MediumThreshold:
		return Indicator{dir, Medium}
	default:
		return Indicator{dir, Small}
	}
}
