package tide

import (
	"fmt"
	"log/slog"
	"time"
)

// DefaultFillValue marks a slot without data.
const DefaultFillValue float32 = 1.0e37

// DenseSeries holds one value per grid slot for a single kind. Slots without
// data carry the fill value.
type DenseSeries struct {
	Kind   Kind
	Slots  []time.Time
	Values []float32
}

// NewDenseSeries checks that there is exactly one value per slot and that
// the slots are strictly increasing.
func NewDenseSeries(kind Kind, slots []time.Time, values []float32) (DenseSeries, error) {
	if len(slots) != len(values) {
		return DenseSeries{}, fmt.Errorf("%w: %s series has %d values for %d slots",
			ErrConsistency, kind, len(values), len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i].After(slots[i-1]) {
			return DenseSeries{}, fmt.Errorf("%w: %s series slot %d (%s) does not follow %s",
				ErrConsistency, kind, i, slots[i].Format(time.RFC3339), slots[i-1].Format(time.RFC3339))
		}
	}
	return DenseSeries{Kind: kind, Slots: slots, Values: values}, nil
}

// FilledSeries returns a series where every slot holds fill.
func FilledSeries(kind Kind, slots []time.Time, fill float32) DenseSeries {
	values := make([]float32, len(slots))
	for i := range values {
		values[i] = fill
	}
	return DenseSeries{Kind: kind, Slots: slots, Values: values}
}

// Len returns the number of slots.
func (s DenseSeries) Len() int {
	return len(s.Values)
}

// Reconcile maps sparse samples onto slots for each of kinds. A slot takes a
// sample's value only when their timestamps are exactly equal; every other
// slot gets fill. Samples of kinds not listed are dropped, and listed kinds
// without any sample yield an all-fill series. Neither case is an error.
func Reconcile(logger *slog.Logger, slots []time.Time, samples []Sample, kinds []Kind, fill float32) (map[Kind]DenseSeries, error) {
	wanted := make(map[Kind]map[int64]float32, len(kinds))
	for _, k := range kinds {
		wanted[k] = nil
	}

	dropped := make(map[Kind]int)
	for _, s := range samples {
		byTime, ok := wanted[s.Kind]
		if !ok {
			dropped[s.Kind]++
			continue
		}
		if byTime == nil {
			byTime = make(map[int64]float32)
			wanted[s.Kind] = byTime
		}
		byTime[s.Time.UnixNano()] = float32(s.Value)
	}
	for k, n := range dropped {
		logger.Warn("Dropping samples of unexpected kind", "kind", k, "count", n)
	}

	out := make(map[Kind]DenseSeries, len(kinds))
	for _, k := range kinds {
		byTime := wanted[k]
		if byTime == nil {
			logger.Warn("Missing expected kind, filling", "kind", k, "slots", len(slots))
		}
		values := make([]float32, len(slots))
		missing := 0
		for i, slot := range slots {
			v, ok := byTime[slot.UnixNano()]
			if !ok {
				v = fill
				missing++
			}
			values[i] = v
		}
		if missing > 0 && byTime != nil {
			logger.Debug("Filled missing slots", "kind", k, "missing", missing, "slots", len(slots))
		}
		ds, err := NewDenseSeries(k, slots, values)
		if err != nil {
			return nil, err
		}
		out[k] = ds
	}
	return out, nil
}

// SegmentWithinBounds reports whether seg lies strictly inside b. A segment
// touching either bound counts as outside.
func SegmentWithinBounds(seg Segment, b Bounds) bool {
	return seg.Start.After(b.First) && seg.End.Before(b.Last)
}

// SegmentOverlapsBounds reports whether seg shares any instant with b.
func SegmentOverlapsBounds(seg Segment, b Bounds) bool {
	return !seg.End.Before(b.First) && !seg.Start.After(b.Last)
}
