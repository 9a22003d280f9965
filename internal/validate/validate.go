// Package validate cross-checks an archive against the raw responses it was
// generated from.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rtm0/stormsurge/internal/archive"
	"github.com/rtm0/stormsurge/internal/cache"
	"github.com/rtm0/stormsurge/internal/logger"
	"github.com/rtm0/stormsurge/internal/sehavniva"
	"github.com/rtm0/stormsurge/internal/tide"
)

// Defaults for Options.
const (
	DefaultTrials        = 100
	DefaultTolerance     = 1e-2
	DefaultFillThreshold = 1e8
)

// Archive is the queried side of the check.
type Archive interface {
	GetData(id string, from, to time.Time) (archive.Series, error)
	Coverage() (time.Time, time.Time)
}

// Responses is the reference side of the check.
type Responses interface {
	RandomEntry(ctx context.Context, req cache.Request, rng *rand.Rand) (cache.Entry, error)
	Read(e cache.Entry) ([]byte, error)
}

// Options tunes a check.
type Options struct {
	// Bounds restricts checked samples to the open range (First, Last). The
	// zero value uses the archive coverage.
	Bounds     tide.Bounds
	Trials     int
	Resolution time.Duration
	Tolerance  float64
	// FillThreshold is the value above which an archive slot counts as
	// missing.
	FillThreshold float32
}

func (o *Options) setDefaults() {
	if o.Trials <= 0 {
		o.Trials = DefaultTrials
	}
	if o.Resolution <= 0 {
		o.Resolution = tide.DefaultResolution
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.FillThreshold <= 0 {
		o.FillThreshold = DefaultFillThreshold
	}
}

// Failure is one sample the archive disagrees with.
type Failure struct {
	Station string
	Time    time.Time
	Kind    tide.Kind
	// Want is NaN when the response was empty and a fill value was expected.
	Want float64
	Got  float32
	URL  string
}

// Report summarizes a check.
type Report struct {
	Trials  int
	Checked int
	// Empty counts trials on responses without samples.
	Empty    int
	Skipped  int
	Failures []Failure
}

// Validator runs randomized consistency checks.
type Validator struct {
	logger    *slog.Logger
	archive   Archive
	responses Responses
	rng       *rand.Rand
}

// New creates a new Validator drawing from rng.
func New(logger *slog.Logger, a Archive, responses Responses, rng *rand.Rand) *Validator {
	return &Validator{logger: logger, archive: a, responses: responses, rng: rng}
}

// Check samples opts.Trials cached data responses and compares one random
// sample of each with the archive. It returns an error wrapping
// tide.ErrConsistency if any comparison fails, together with the full report.
func (v *Validator) Check(ctx context.Context, opts Options) (Report, error) {
	opts.setDefaults()
	if opts.Bounds.First.IsZero() && opts.Bounds.Last.IsZero() {
		opts.Bounds.First, opts.Bounds.Last = v.archive.Coverage()
	}

	rep := Report{Trials: opts.Trials}
	for range opts.Trials {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		e, err := v.responses.RandomEntry(ctx, cache.StationData, v.rng)
		if err != nil {
			return rep, err
		}
		if err := v.trial(e, opts, &rep); err != nil {
			return rep, err
		}
	}

	v.logger.Info("Check finished", "trials", rep.Trials, "checked", rep.Checked, "empty", rep.Empty,
		"skipped", rep.Skipped, "failures", len(rep.Failures))
	if len(rep.Failures) > 0 {
		return rep, fmt.Errorf("%w: %d of %d compared samples differ from the cached responses",
			tide.ErrConsistency, len(rep.Failures), rep.Checked+rep.Empty)
	}
	return rep, nil
}

func (v *Validator) trial(e cache.Entry, opts Options, rep *Report) error {
	body, err := v.responses.Read(e)
	if err != nil {
		return fmt.Errorf("reading cached response %s: %w", e.URL, err)
	}
	samples, err := sehavniva.ParseSeries(body)
	if err != nil {
		return fmt.Errorf("cached response %s: %w", e.URL, err)
	}
	samples = expected(samples)

	if len(samples) == 0 {
		return v.checkEmpty(e, opts, rep)
	}

	s := samples[v.rng.IntN(len(samples))]
	if !s.Time.After(opts.Bounds.First) || !s.Time.Before(opts.Bounds.Last) {
		rep.Skipped++
		return nil
	}
	// A response includes its end instant, which the generator fills from
	// the following segment.
	if !e.To.IsZero() && !s.Time.Before(e.To) {
		rep.Skipped++
		return nil
	}
	got, ok, err := v.value(e.Station, s.Kind, s.Time, opts.Resolution)
	if err != nil || !ok {
		rep.Skipped++
		return err
	}
	rep.Checked++
	if math.Abs(float64(got)-s.Value) > opts.Tolerance {
		v.logger.Warn("Archive differs from cached response", "station", e.Station, "time", s.Time.Format(time.RFC3339),
			"kind", s.Kind, "want", s.Value, "got", got, "url", e.URL)
		rep.Failures = append(rep.Failures, Failure{
			Station: e.Station, Time: s.Time, Kind: s.Kind, Want: s.Value, Got: got, URL: e.URL,
		})
	}
	return nil
}

// checkEmpty verifies that the archive holds no data at the start of a
// segment the service returned nothing for.
func (v *Validator) checkEmpty(e cache.Entry, opts Options, rep *Report) error {
	if e.From.IsZero() || !e.From.After(opts.Bounds.First) || !e.From.Before(opts.Bounds.Last) {
		rep.Skipped++
		return nil
	}
	got, ok, err := v.value(e.Station, tide.Observation, e.From, opts.Resolution)
	if err != nil || !ok {
		rep.Skipped++
		return err
	}
	rep.Empty++
	if got <= opts.FillThreshold {
		v.logger.Warn("Archive has data where the cached response is empty", "station", e.Station,
			"time", e.From.Format(time.RFC3339), "got", got, "url", e.URL)
		rep.Failures = append(rep.Failures, Failure{
			Station: e.Station, Time: e.From, Kind: tide.Observation, Want: math.NaN(), Got: got, URL: e.URL,
		})
	}
	return nil
}

// value returns the archived value of kind at t. ok is false when the
// archive cannot answer for t: unknown station, outside the coverage, or t
// not on the time axis.
func (v *Validator) value(id string, kind tide.Kind, t time.Time, res time.Duration) (float32, bool, error) {
	series, err := v.archive.GetData(id, t, t.Add(res))
	switch {
	case errors.Is(err, tide.ErrOutOfRange), errors.Is(err, tide.ErrUnknownStation):
		v.logger.Debug("Sample not covered by archive", "station", id, "time", t.Format(time.RFC3339), logger.Err(err))
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	if len(series.Timestamps) == 0 || !series.Timestamps[0].Equal(t) {
		v.logger.Debug("Sample not on the archive time axis", "station", id, "time", t.Format(time.RFC3339))
		return 0, false, nil
	}
	return series.Values(kind)[0], true, nil
}

func expected(samples []tide.Sample) []tide.Sample {
	out := samples[:0:0]
	for _, s := range samples {
		for _, k := range tide.Kinds {
			if s.Kind == k {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
