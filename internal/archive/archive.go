// Package archive persists dense multi-station water level grids as NetCDF
// files and serves per-station time range queries against them.
package archive

import (
	"fmt"
	"time"

	"github.com/rtm0/stormsurge/internal/tide"
)

// Variable and dimension names of the archive layout.
const (
	dimStation = "station"
	dimTime    = "time"
	dimIDLen   = "id_strlen"

	varStationID      = "stationid"
	varLatitude       = "latitude"
	varLongitude      = "longitude"
	varTimestamps     = "timestamps"
	varObservation    = "observation"
	varPrediction     = "prediction"
	varTimestampStart = "timestamp_start"
	varTimestampEnd   = "timestamp_end"

	attrFillValue  = "_FillValue"
	attrResolution = "resolution_seconds"
)

// Attributes is free-form provenance text stored as global attributes.
type Attributes struct {
	Title       string
	Description string
	Institution string
	Contact     string
}

// Archive is the in-memory form of an archive file: S stations by N time
// slots, one matrix per series kind.
type Archive struct {
	Attributes Attributes
	Resolution time.Duration
	FillValue  float32

	Stations    []tide.Station
	Timestamps  []int64
	Observation [][]float32
	Prediction  [][]float32
}

// Values returns the matrix holding kind.
func (a *Archive) Values(kind tide.Kind) ([][]float32, error) {
	switch kind {
	case tide.Observation:
		return a.Observation, nil
	case tide.Prediction:
		return a.Prediction, nil
	}
	return nil, fmt.Errorf("%w: no variable for kind %q", tide.ErrArchiveFormat, kind)
}

// Validate checks the dimensions of every variable and the ordering of the
// time axis.
func (a *Archive) Validate() error {
	s, n := len(a.Stations), len(a.Timestamps)
	if s == 0 || n == 0 {
		return fmt.Errorf("%w: empty archive (%d stations, %d timestamps)", tide.ErrArchiveFormat, s, n)
	}
	seen := make(map[string]struct{}, s)
	for _, st := range a.Stations {
		if st.ID == "" {
			return fmt.Errorf("%w: empty station id", tide.ErrArchiveFormat)
		}
		if _, dup := seen[st.ID]; dup {
			return fmt.Errorf("%w: duplicate station %q", tide.ErrArchiveFormat, st.ID)
		}
		seen[st.ID] = struct{}{}
	}
	for i := 1; i < n; i++ {
		if a.Timestamps[i] <= a.Timestamps[i-1] {
			return fmt.Errorf("%w: timestamps not strictly increasing at index %d", tide.ErrArchiveFormat, i)
		}
	}
	for _, m := range []struct {
		name string
		rows [][]float32
	}{{varObservation, a.Observation}, {varPrediction, a.Prediction}} {
		if len(m.rows) != s {
			return fmt.Errorf("%w: %s has %d rows for %d stations", tide.ErrArchiveFormat, m.name, len(m.rows), s)
		}
		for i, row := range m.rows {
			if len(row) != n {
				return fmt.Errorf("%w: %s row %d (%s) has %d values for %d timestamps",
					tide.ErrArchiveFormat, m.name, i, a.Stations[i].ID, len(row), n)
			}
		}
	}
	return nil
}
