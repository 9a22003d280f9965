package archive

import (
	"fmt"
	"time"

	"github.com/rtm0/stormsurge/internal/tide"
)

// Extract returns a single-station archive holding the data GetData returns
// for the same arguments. The result has the same layout as the source and
// can be written with Write.
func (r *Reader) Extract(id string, from, to time.Time) (*Archive, error) {
	st, _, err := r.Station(id)
	if err != nil {
		return nil, err
	}
	s, err := r.GetData(id, from, to)
	if err != nil {
		return nil, err
	}
	ts := make([]int64, len(s.Timestamps))
	for i, t := range s.Timestamps {
		ts[i] = t.Unix()
	}
	attrs := r.attrs
	attrs.Description = fmt.Sprintf("Extract of station %s from %s to %s. %s", id,
		s.Timestamps[0].Format(time.RFC3339), s.Timestamps[len(ts)-1].Format(time.RFC3339), attrs.Description)
	return &Archive{
		Attributes:  attrs,
		Resolution:  r.resolution,
		FillValue:   r.fill,
		Stations:    []tide.Station{st},
		Timestamps:  ts,
		Observation: [][]float32{s.Observation},
		Prediction:  [][]float32{s.Prediction},
	}, nil
}
