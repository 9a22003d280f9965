package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rtm0/stormsurge/internal/archive"
	"github.com/rtm0/stormsurge/internal/cache"
	"github.com/rtm0/stormsurge/internal/config"
	"github.com/rtm0/stormsurge/internal/generator"
	"github.com/rtm0/stormsurge/internal/logger"
	"github.com/rtm0/stormsurge/internal/sehavniva"
	"github.com/rtm0/stormsurge/internal/tide"
	"github.com/rtm0/stormsurge/internal/validate"
)

var errUsage = errors.New("invalid command line")

func runGenerate(ctx context.Context, log *slog.Logger, conf *config.Config, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	start := fs.String("start", "", "first slot of the archive, RFC 3339 in UTC")
	end := fs.String("end", "", "end of the archive (exclusive), RFC 3339 in UTC")
	stations := fs.String("stations", "", "comma separated station codes; all stations when empty")
	out := fs.String("out", "", "path of the archive to write")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *out == "" {
		return fmt.Errorf("%w: -out is required", errUsage)
	}
	from, to, err := parseRange(*start, *end, true)
	if err != nil {
		return err
	}

	client, store, err := newClient(ctx, log, conf)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	opts := generator.Options{
		Start:        from,
		End:          to,
		StationIDs:   splitList(*stations),
		Resolution:   conf.Grid.Resolution,
		SegmentSpan:  conf.Grid.SegmentSpan,
		FillValue:    conf.Grid.FillValue,
		BoundsPolicy: generator.BoundsPolicy(conf.Grid.BoundsPolicy),
		Attributes: archive.Attributes{
			Title:       conf.Archive.Title,
			Description: conf.Archive.Description,
			Institution: conf.Archive.Institution,
			Contact:     conf.Archive.Contact,
		},
	}
	return generator.New(log, client).GenerateFile(ctx, *out, opts)
}

func runStations(ctx context.Context, log *slog.Logger, conf *config.Config, args []string) error {
	fs := flag.NewFlagSet("stations", flag.ContinueOnError)
	path := fs.String("archive", "", "read stations from this archive instead of the API")
	start := fs.String("start", "", "with -end, report whether each station's data covers this range")
	end := fs.String("end", "", "end of the range checked for availability")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	var (
		window    tide.Segment
		withRange = *start != "" || *end != ""
	)
	if withRange {
		var err error
		if window.Start, window.End, err = parseRange(*start, *end, false); err != nil {
			return err
		}
	}

	var stations []tide.Station
	if *path != "" {
		r, err := archive.Open(*path)
		if err != nil {
			return err
		}
		defer r.Close()
		stations = r.Stations()
	} else {
		client, store, err := newClient(ctx, log, conf)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
		}
		if stations, err = client.Stations(ctx); err != nil {
			return err
		}
		slices.SortFunc(stations, func(a, b tide.Station) int { return cmp.Compare(a.ID, b.ID) })
		for i := range stations {
			if stations[i].Bounds, err = client.StationBounds(ctx, stations[i].ID); err != nil {
				return err
			}
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := "ROW\tID\tNAME\tLATITUDE\tLONGITUDE\tFIRST\tLAST"
	if withRange {
		header += "\tAVAILABLE"
	}
	fmt.Fprintln(w, header)
	for i, st := range stations {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.6f\t%.6f\t%s\t%s", i, st.ID, st.Name, st.Latitude, st.Longitude,
			st.Bounds.First.Format(time.RFC3339), st.Bounds.Last.Format(time.RFC3339))
		if withRange {
			available := "N"
			if tide.SegmentWithinBounds(window, st.Bounds) {
				available = "Y"
			}
			fmt.Fprintf(w, "\t%s", available)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func runExtract(_ context.Context, log *slog.Logger, _ *config.Config, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	path := fs.String("archive", "", "source archive")
	station := fs.String("station", "", "station code to extract")
	start := fs.String("start", "", "start of the extracted range, RFC 3339 in UTC")
	end := fs.String("end", "", "end of the extracted range (inclusive), RFC 3339 in UTC")
	out := fs.String("out", "", "path of the sub-archive to write")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *path == "" || *station == "" || *out == "" {
		return fmt.Errorf("%w: -archive, -station and -out are required", errUsage)
	}
	from, to, err := parseRange(*start, *end, false)
	if err != nil {
		return err
	}

	r, err := archive.Open(*path)
	if err != nil {
		return err
	}
	defer r.Close()
	sub, err := r.Extract(*station, from, to)
	if err != nil {
		return err
	}
	if err := archive.Write(*out, sub); err != nil {
		return err
	}
	log.Info("Extract written", "path", *out, "station", *station, "slots", len(sub.Timestamps))
	return nil
}

func runCheck(ctx context.Context, log *slog.Logger, conf *config.Config, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	path := fs.String("archive", "", "archive to check")
	trials := fs.Int("trials", *conf.Check.Trials, "number of cached responses to compare")
	seed := fs.Uint64("seed", 0, "random seed; 0 picks one from the clock")
	start := fs.String("start", "", "only check samples after this time")
	end := fs.String("end", "", "only check samples before this time")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *path == "" {
		return fmt.Errorf("%w: -archive is required", errUsage)
	}
	if conf.Cache.Disable {
		return fmt.Errorf("%w: check needs the response cache, which is disabled", errUsage)
	}
	var bounds tide.Bounds
	if *start != "" || *end != "" {
		var err error
		if bounds.First, bounds.Last, err = parseRange(*start, *end, false); err != nil {
			return err
		}
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	r, err := archive.Open(*path)
	if err != nil {
		return err
	}
	defer r.Close()
	store, err := cache.Open(log, conf.Cache.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	v := validate.New(log, r, store, rand.New(rand.NewPCG(*seed, *seed>>1)))
	rep, err := v.Check(ctx, validate.Options{
		Bounds:     bounds,
		Trials:     *trials,
		Resolution: r.Resolution(),
		Tolerance:  conf.Check.Tolerance,
	})
	log.Info("Check report", "seed", *seed, "trials", rep.Trials, "checked", rep.Checked, "empty", rep.Empty,
		"skipped", rep.Skipped, "failures", len(rep.Failures))
	return err
}

// newClient opens the response cache unless disabled and returns an API
// client using it. The returned store is nil when caching is disabled.
func newClient(ctx context.Context, log *slog.Logger, conf *config.Config) (*sehavniva.Client, *cache.Store, error) {
	var (
		store *cache.Store
		err   error
	)
	opts := sehavniva.Options{
		BaseURL:          conf.API.BaseURL,
		UserAgent:        conf.API.UserAgent,
		Timeout:          conf.API.Timeout,
		MinInterval:      *conf.API.MinInterval,
		Interval:         conf.Grid.Resolution,
		Retry:            sehavniva.RetryPolicy{MaxAttempts: *conf.API.RetryAttempts, Backoff: *conf.API.RetryBackoff},
		BreakerThreshold: conf.API.BreakerThreshold,
		BreakerTimeout:   conf.API.BreakerTimeout,
	}
	if conf.Cache.Disable {
		client, err := sehavniva.NewClient(log, nil, opts)
		return client, nil, err
	}

	store, err = cache.Open(log, conf.Cache.Dir)
	if err != nil {
		return nil, nil, err
	}
	limits := cache.Limits{
		MaxBytes: *conf.Cache.WarnGiB << 30,
		MaxAge:   *conf.Cache.WarnAge,
		MaxFiles: *conf.Cache.WarnFiles,
	}
	if _, err := store.Warn(ctx, limits); err != nil {
		log.Warn("Could not inspect response cache", logger.Err(err))
	}
	client, err := sehavniva.NewClient(log, store, opts)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return client, store, nil
}

func parseRange(start, end string, ordered bool) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: -start and -end are required", errUsage)
	}
	from, err := tide.ParseUTC(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := tide.ParseUTC(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if ordered && !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s is not before end %s", tide.ErrInvalidRange, start, end)
	}
	return from, to, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}
