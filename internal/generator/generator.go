// Package generator builds dense multi-station archives from a remote tide
// data source.
package generator

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/rtm0/stormsurge/internal/archive"
	"github.com/rtm0/stormsurge/internal/tide"
)

// DefaultSegmentSpan is the longest time range requested at once.
const DefaultSegmentSpan = 5 * 24 * time.Hour

// Source provides station metadata and samples.
type Source interface {
	Stations(ctx context.Context) ([]tide.Station, error)
	StationBounds(ctx context.Context, id string) (tide.Bounds, error)
	// Series returns the samples between from and to, both inclusive.
	Series(ctx context.Context, id string, from, to time.Time) ([]tide.Sample, error)
}

// BoundsPolicy decides which segments of a station are worth fetching.
type BoundsPolicy string

const (
	// Strict fetches segments lying strictly inside the station bounds.
	Strict BoundsPolicy = "strict"
	// Overlap fetches every segment sharing an instant with the bounds.
	Overlap BoundsPolicy = "overlap"
)

func (p BoundsPolicy) admits(seg tide.Segment, b tide.Bounds) (bool, error) {
	switch p {
	case Strict, "":
		return tide.SegmentWithinBounds(seg, b), nil
	case Overlap:
		return tide.SegmentOverlapsBounds(seg, b), nil
	}
	return false, fmt.Errorf("unknown bounds policy %q", p)
}

// Options describes the archive to generate.
type Options struct {
	Start time.Time
	End   time.Time
	// StationIDs selects stations and their row order. Empty means every
	// station of the source, sorted by ID.
	StationIDs  []string
	Resolution  time.Duration
	SegmentSpan time.Duration
	// FillValue marks slots without data. Zero selects
	// tide.DefaultFillValue, so 0 itself cannot be used as a fill value.
	FillValue    float32
	BoundsPolicy BoundsPolicy
	Attributes   archive.Attributes
}

func (o *Options) setDefaults() {
	if o.Resolution == 0 {
		o.Resolution = tide.DefaultResolution
	}
	if o.SegmentSpan == 0 {
		o.SegmentSpan = DefaultSegmentSpan
	}
	if o.FillValue == 0 {
		o.FillValue = tide.DefaultFillValue
	}
	if o.BoundsPolicy == "" {
		o.BoundsPolicy = Strict
	}
}

// Generator assembles archives.
type Generator struct {
	logger *slog.Logger
	source Source
}

// New creates a new Generator.
func New(logger *slog.Logger, source Source) *Generator {
	return &Generator{logger: logger, source: source}
}

// Generate fetches and reconciles the data of every selected station over
// [opts.Start, opts.End). Stations are processed one at a time; any source
// error aborts the run.
func (g *Generator) Generate(ctx context.Context, opts Options) (*archive.Archive, error) {
	opts.setDefaults()
	if _, err := opts.BoundsPolicy.admits(tide.Segment{}, tide.Bounds{}); err != nil {
		return nil, err
	}
	grid, err := tide.NewGrid(opts.Start, opts.End, opts.Resolution)
	if err != nil {
		return nil, err
	}
	segs, err := tide.Segments(grid.Start, grid.End, opts.SegmentSpan)
	if err != nil {
		return nil, err
	}

	stations, err := g.selectStations(ctx, opts.StationIDs)
	if err != nil {
		return nil, err
	}

	a := &archive.Archive{
		Attributes: opts.Attributes,
		Resolution: grid.Resolution,
		FillValue:  opts.FillValue,
		Timestamps: grid.Timestamps(),
	}
	g.logger.Info("Generating archive", "stations", len(stations), "slots", len(a.Timestamps),
		"segments", len(segs), "start", grid.Start.Format(time.RFC3339), "end", grid.End.Format(time.RFC3339))

	for i, st := range stations {
		st.Bounds, err = g.source.StationBounds(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		obs, pred, err := g.station(ctx, grid, a.Timestamps, segs, st, opts)
		if err != nil {
			return nil, err
		}
		a.Stations = append(a.Stations, st)
		a.Observation = append(a.Observation, obs)
		a.Prediction = append(a.Prediction, pred)
		g.logger.Info("Station done", "station", st.ID, "progress", fmt.Sprintf("%d/%d", i+1, len(stations)))
	}
	return a, nil
}

// GenerateFile generates an archive and writes it to path.
func (g *Generator) GenerateFile(ctx context.Context, path string, opts Options) error {
	a, err := g.Generate(ctx, opts)
	if err != nil {
		return err
	}
	if err := archive.Write(path, a); err != nil {
		return err
	}
	g.logger.Info("Archive written", "path", path, "stations", len(a.Stations), "slots", len(a.Timestamps))
	return nil
}

func (g *Generator) selectStations(ctx context.Context, ids []string) ([]tide.Station, error) {
	all, err := g.source.Stations(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		slices.SortFunc(all, func(a, b tide.Station) int { return cmp.Compare(a.ID, b.ID) })
		return all, nil
	}
	byID := make(map[string]tide.Station, len(all))
	for _, st := range all {
		byID[st.ID] = st
	}
	selected := make([]tide.Station, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		st, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", tide.ErrUnknownStation, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("station %q requested twice", id)
		}
		seen[id] = true
		selected = append(selected, st)
	}
	return selected, nil
}

// station returns the observation and prediction rows of st.
func (g *Generator) station(ctx context.Context, grid tide.Grid, ts []int64, segs []tide.Segment,
	st tide.Station, opts Options) ([]float32, []float32, error) {
	obs := filled(len(ts), opts.FillValue)
	pred := filled(len(ts), opts.FillValue)
	logger := g.logger.With("station", st.ID)

	var fetched, skipped int
	for _, seg := range segs {
		ok, err := opts.BoundsPolicy.admits(seg, st.Bounds)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			skipped++
			continue
		}
		samples, err := g.source.Series(ctx, st.ID, seg.Start, seg.End)
		if err != nil {
			return nil, nil, err
		}
		fetched++

		slots := grid.SlotsIn(seg.Start, seg.End)
		dense, err := tide.Reconcile(logger.With("segment", seg.Start.Format(time.RFC3339)),
			slots, samples, tide.Kinds, opts.FillValue)
		if err != nil {
			return nil, nil, err
		}
		for i, slot := range slots {
			idx := int(slot.Sub(grid.Start) / grid.Resolution)
			if idx < 0 || idx >= len(ts) || ts[idx] != slot.Unix() {
				return nil, nil, fmt.Errorf("%w: station %q slot %s does not match grid index %d",
					tide.ErrConsistency, st.ID, slot.Format(time.RFC3339), idx)
			}
			obs[idx] = dense[tide.Observation].Values[i]
			pred[idx] = dense[tide.Prediction].Values[i]
		}
	}
	logger.Debug("Segments processed", "fetched", fetched, "skipped", skipped)
	return obs, pred, nil
}

func filled(n int, fill float32) []float32 {
	row := make([]float32, n)
	for i := range row {
		row[i] = fill
	}
	return row
}
