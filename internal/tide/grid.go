package tide

import (
	"fmt"
	"time"
)

// DefaultResolution is the sampling interval of the remote tide API.
const DefaultResolution = 10 * time.Minute

// Grid is a fixed-resolution time axis over the half-open interval
// [Start, End).
type Grid struct {
	Start      time.Time
	End        time.Time
	Resolution time.Duration
}

// NewGrid validates the interval and returns the grid covering it. Both
// bounds must be UTC and aligned to the resolution.
func NewGrid(start, end time.Time, resolution time.Duration) (Grid, error) {
	if err := checkInterval(start, end, resolution); err != nil {
		return Grid{}, err
	}
	if err := CheckAligned(start, resolution); err != nil {
		return Grid{}, err
	}
	if err := CheckAligned(end, resolution); err != nil {
		return Grid{}, err
	}
	return Grid{Start: start, End: end, Resolution: resolution}, nil
}

// Len returns the number of slots in the grid.
func (g Grid) Len() int {
	return slotCount(g.Start, g.End, g.Resolution)
}

// Slots returns every slot of the grid in increasing order.
func (g Grid) Slots() []time.Time {
	return slotsBetween(g.Start, g.End, g.Resolution)
}

// Timestamps returns the slots as Unix seconds.
func (g Grid) Timestamps() []int64 {
	ts := make([]int64, g.Len())
	for i := range ts {
		ts[i] = g.Start.Add(time.Duration(i) * g.Resolution).Unix()
	}
	return ts
}

// SlotsIn returns the grid slots within [from, to), clipped to the grid.
func (g Grid) SlotsIn(from, to time.Time) []time.Time {
	if from.Before(g.Start) {
		from = g.Start
	}
	if to.After(g.End) {
		to = g.End
	}
	if !from.Before(to) {
		return nil
	}
	// Snap from to the first slot at or after it.
	k := from.Sub(g.Start) / g.Resolution
	first := g.Start.Add(k * g.Resolution)
	if first.Before(from) {
		first = first.Add(g.Resolution)
	}
	if !first.Before(to) {
		return nil
	}
	return slotsBetween(first, to, g.Resolution)
}

// EnumerateSlots returns start, start+resolution, ... strictly before end.
func EnumerateSlots(start, end time.Time, resolution time.Duration) ([]time.Time, error) {
	if err := checkInterval(start, end, resolution); err != nil {
		return nil, err
	}
	return slotsBetween(start, end, resolution), nil
}

// Segment is a bounded sub-interval used to pace remote fetches.
type Segment struct {
	Start time.Time
	End   time.Time
}

// Segments tiles [start, end] into consecutive segments of maxSpan. The last
// segment may be shorter. The end of each segment is the start of the next,
// so boundary samples are covered by both.
func Segments(start, end time.Time, maxSpan time.Duration) ([]Segment, error) {
	if err := checkInterval(start, end, maxSpan); err != nil {
		return nil, err
	}
	var segs []Segment
	for s := start; ; s = s.Add(maxSpan) {
		e := s.Add(maxSpan)
		if !e.Before(end) {
			segs = append(segs, Segment{Start: s, End: end})
			return segs, nil
		}
		segs = append(segs, Segment{Start: s, End: e})
	}
}

// CheckUTC fails with ErrTimezone unless t is expressed in UTC. Local time
// is rejected even when the local zone happens to be UTC.
func CheckUTC(t time.Time) error {
	if t.Location() != time.UTC {
		return fmt.Errorf("%w: %s has location %q", ErrTimezone, t.Format(time.RFC3339), t.Location())
	}
	return nil
}

// CheckAligned fails with ErrAlignment unless t is a whole multiple of
// resolution since the Unix epoch.
func CheckAligned(t time.Time, resolution time.Duration) error {
	if resolution <= 0 {
		return fmt.Errorf("%w: resolution %s", ErrInvalidRange, resolution)
	}
	if t.Nanosecond() != 0 || t.UnixNano()%int64(resolution) != 0 {
		return fmt.Errorf("%w: %s is not a multiple of %s", ErrAlignment, t.Format(time.RFC3339Nano), resolution)
	}
	return nil
}

// ParseUTC parses an RFC 3339 timestamp that must carry a zero UTC offset.
func ParseUTC(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	if _, offset := t.Zone(); offset != 0 {
		return time.Time{}, fmt.Errorf("%w: %s has offset %ds", ErrTimezone, s, offset)
	}
	return t.UTC(), nil
}

func checkInterval(start, end time.Time, step time.Duration) error {
	if err := CheckUTC(start); err != nil {
		return err
	}
	if err := CheckUTC(end); err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidRange,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if step <= 0 {
		return fmt.Errorf("%w: step %s is not positive", ErrInvalidRange, step)
	}
	return nil
}

func slotCount(start, end time.Time, step time.Duration) int {
	d := end.Sub(start)
	n := d / step
	if d%step != 0 {
		n++
	}
	return int(n)
}

func slotsBetween(start, end time.Time, step time.Duration) []time.Time {
	slots := make([]time.Time, 0, slotCount(start, end, step))
	for t := start; t.Before(end); t = t.Add(step) {
		slots = append(slots, t)
	}
	return slots
}
