package tide

import "time"

// Kind labels a water level series.
type Kind string

const (
	Observation Kind = "observation"
	Prediction  Kind = "prediction"
)

// Kinds are the series stored in an archive, in storage order.
var Kinds = []Kind{Observation, Prediction}

// Bounds is the time span over which a station reports data.
type Bounds struct {
	First time.Time
	Last  time.Time
}

// Station is a tide gauge as described by the remote station list.
type Station struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
	Bounds    Bounds
}

// Sample is a single water level reading taken (or predicted) at a given
// time. Samples are sparse: their timestamps need not fall on a grid slot.
type Sample struct {
	Kind  Kind
	Time  time.Time
	Value float64
}
