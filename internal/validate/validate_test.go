package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rtm0/stormsurge/internal/archive"
	"github.com/rtm0/stormsurge/internal/cache"
	"github.com/rtm0/stormsurge/internal/tide"
)

var (
	dayStart       = time.Date(2008, 12, 15, 0, 0, 0, 0, time.UTC)
	oslStart       = time.Date(2008, 12, 15, 9, 0, 0, 0, time.UTC)
	oslObservation = []float32{27.3, 26.4, 25.6, 25.0, 24.6, 24.2, 23.8}
	oslPrediction  = []float32{56.1, 54.8, 53.6, 52.7, 51.9, 51.2, 50.6}
)

func oslResponse() []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><tide><stationdata><location code="OSL">`)
	for _, d := range []struct {
		typ    string
		values []float32
	}{{"observation", oslObservation}, {"prediction", oslPrediction}} {
		fmt.Fprintf(&sb, `<data type="%s" unit="cm" reflevelcode="CD">`, d.typ)
		for i, v := range d.values {
			fmt.Fprintf(&sb, `<waterlevel value="%.1f" time="%s"/>`, v,
				oslStart.Add(time.Duration(i)*10*time.Minute).Format(time.RFC3339))
		}
		sb.WriteString(`</data>`)
	}
	sb.WriteString(`</location></stationdata></tide>`)
	return []byte(sb.String())
}

const emptyResponse = `<tide><stationdata><location code="OSL"/></stationdata></tide>`

// writeOSLArchive writes a one-day archive of OSL holding the fixture
// values shifted by offset.
func writeOSLArchive(t *testing.T, offset float32) *archive.Reader {
	t.Helper()
	n := 24 * 6
	a := &archive.Archive{
		Resolution: tide.DefaultResolution,
		FillValue:  tide.DefaultFillValue,
		Stations:   []tide.Station{{ID: "OSL", Latitude: 59.908559, Longitude: 10.734510}},
	}
	obs := make([]float32, n)
	pred := make([]float32, n)
	for i := range n {
		a.Timestamps = append(a.Timestamps, dayStart.Add(time.Duration(i)*tide.DefaultResolution).Unix())
		obs[i], pred[i] = tide.DefaultFillValue, tide.DefaultFillValue
	}
	for i := range oslObservation {
		obs[9*6+i] = oslObservation[i] + offset
		pred[9*6+i] = oslPrediction[i] + offset
	}
	a.Observation = [][]float32{obs}
	a.Prediction = [][]float32{pred}

	path := filepath.Join(t.TempDir(), "osl.nc")
	if err := archive.Write(path, a); err != nil {
		t.Fatalf("failed to write archive: %s", err)
	}
	r, err := archive.Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %s", err)
	}
	t.Cleanup(r.Close)
	return r
}

type fakeResponses struct {
	entries []cache.Entry
	bodies  map[string][]byte
}

func (f *fakeResponses) add(station string, from time.Time, body []byte) {
	f.addRange(station, from, from.Add(24*time.Hour), body)
}

func (f *fakeResponses) addRange(station string, from, to time.Time, body []byte) {
	if f.bodies == nil {
		f.bodies = make(map[string][]byte)
	}
	url := fmt.Sprintf("%s/%s/%s", station, from.Format(time.RFC3339), to.Format(time.RFC3339))
	f.entries = append(f.entries, cache.Entry{Key: cache.Key{
		URL: url, Request: cache.StationData, Station: station, From: from, To: to,
	}})
	f.bodies[url] = body
}

func (f *fakeResponses) RandomEntry(_ context.Context, req cache.Request, rng *rand.Rand) (cache.Entry, error) {
	if len(f.entries) == 0 {
		return cache.Entry{}, fmt.Errorf("%w of type %s", cache.ErrEmpty, req)
	}
	return f.entries[rng.IntN(len(f.entries))], nil
}

func (f *fakeResponses) Read(e cache.Entry) ([]byte, error) {
	return f.bodies[e.URL], nil
}

func testValidator(a Archive, r Responses) *Validator {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), a, r, rand.New(rand.NewPCG(42, 7)))
}

func TestValidator_Check(t *testing.T) {
	t.Run("a faithful archive passes", func(t *testing.T) {
		responses := &fakeResponses{}
		responses.add("OSL", dayStart, oslResponse())
		rep, err := testValidator(writeOSLArchive(t, 0), responses).Check(t.Context(), Options{Trials: 20})
		if err != nil {
			t.Fatalf("expected check to pass, got %s", err)
		}
		if rep.Checked != 20 || len(rep.Failures) != 0 {
			t.Errorf("unexpected report %+v", rep)
		}
	})
	t.Run("differences beyond the tolerance fail", func(t *testing.T) {
		responses := &fakeResponses{}
		responses.add("OSL", dayStart, oslResponse())
		rep, err := testValidator(writeOSLArchive(t, 0.5), responses).Check(t.Context(), Options{Trials: 10})
		if !errors.Is(err, tide.ErrConsistency) {
			t.Fatalf("expected ErrConsistency, got %v", err)
		}
		if len(rep.Failures) != 10 {
			t.Errorf("expected every trial to fail, got %+v", rep)
		}
		if f := rep.Failures[0]; f.Station != "OSL" || f.Time.Before(oslStart) {
			t.Errorf("unexpected failure %+v", f)
		}
	})
	t.Run("differences within the tolerance pass", func(t *testing.T) {
		responses := &fakeResponses{}
		responses.add("OSL", dayStart, oslResponse())
		_, err := testValidator(writeOSLArchive(t, 0.005), responses).Check(t.Context(), Options{Trials: 10})
		if err != nil {
			t.Errorf("expected check to pass, got %s", err)
		}
	})
	t.Run("empty responses expect fill values", func(t *testing.T) {
		responses := &fakeResponses{}
		responses.add("OSL", dayStart.Add(3*time.Hour), []byte(emptyResponse))
		rep, err := testValidator(writeOSLArchive(t, 0), responses).Check(t.Context(), Options{Trials: 5})
		if err != nil {
			t.Fatalf("expected check to pass, got %s", err)
		}
		if rep.Empty != 5 {
			t.Errorf("unexpected report %+v", rep)
		}
	})
	t.Run("data where the response is empty fails", func(t *testing.T) {
		responses := &fakeResponses{}
		responses.add("OSL", oslStart, []byte(emptyResponse))
		rep, err := testValidator(writeOSLArchive(t, 0), responses).Check(t.Context(), Options{Trials: 3})
		if !errors.Is(err, tide.ErrConsistency) {
			t.Fatalf("expected ErrConsistency, got %v", err)
		}
		if len(rep.Failures) != 3 {
			t.Errorf("unexpected report %+v", rep)
		}
	})
	t.Run("responses the archive does not cover are skipped", func(t *testing.T) {
		responses := &fakeResponses{}
		responses.add("BGO", dayStart, oslResponse())
		responses.add("OSL", dayStart.AddDate(0, 0, 3), []byte(emptyResponse))
		rep, err := testValidator(writeOSLArchive(t, 0), responses).Check(t.Context(), Options{Trials: 10})
		if err != nil {
			t.Fatalf("expected check to pass, got %s", err)
		}
		if rep.Skipped != 10 || rep.Checked != 0 {
			t.Errorf("unexpected report %+v", rep)
		}
	})
	t.Run("samples outside the bounds are skipped", func(t *testing.T) {
		responses := &fakeResponses{}
		responses.add("OSL", dayStart, oslResponse())
		opts := Options{
			Trials: 10,
			Bounds: tide.Bounds{First: dayStart, Last: oslStart},
		}
		rep, err := testValidator(writeOSLArchive(t, 0.5), responses).Check(t.Context(), opts)
		if err != nil {
			t.Fatalf("expected check to pass, got %s", err)
		}
		if rep.Skipped != 10 {
			t.Errorf("unexpected report %+v", rep)
		}
	})
	t.Run("samples at the end of a response are skipped", func(t *testing.T) {
		responses := &fakeResponses{}
		// Every sample is at or after the segment end, so the archive rows
		// come from the following segment and are not compared.
		responses.addRange("OSL", dayStart, oslStart, oslResponse())
		rep, err := testValidator(writeOSLArchive(t, 0.5), responses).Check(t.Context(), Options{Trials: 10})
		if err != nil {
			t.Fatalf("expected check to pass, got %s", err)
		}
		if rep.Skipped != 10 || rep.Checked != 0 {
			t.Errorf("unexpected report %+v", rep)
		}
	})
	t.Run("a fill value at the segment end is not a failure", func(t *testing.T) {
		r := writeOSLArchive(t, 0)
		responses := &fakeResponses{}
		end := oslStart.Add(30 * time.Minute)
		var sb strings.Builder
		sb.WriteString(`<tide><stationdata><location code="OSL"><data type="observation" unit="cm" reflevelcode="CD">`)
		fmt.Fprintf(&sb, `<waterlevel value="%.1f" time="%s"/>`, oslObservation[2], oslStart.Add(20*time.Minute).Format(time.RFC3339))
		fmt.Fprintf(&sb, `<waterlevel value="99.0" time="%s"/>`, end.Format(time.RFC3339))
		sb.WriteString(`</data></location></stationdata></tide>`)
		responses.addRange("OSL", oslStart, end, []byte(sb.String()))
		rep, err := testValidator(r, responses).Check(t.Context(), Options{Trials: 20})
		if err != nil {
			t.Fatalf("expected check to pass, got %s (%+v)", err, rep)
		}
		if rep.Checked+rep.Skipped != 20 || rep.Checked == 0 || rep.Skipped == 0 {
			t.Errorf("unexpected report %+v", rep)
		}
	})
	t.Run("an empty cache fails", func(t *testing.T) {
		_, err := testValidator(writeOSLArchive(t, 0), &fakeResponses{}).Check(t.Context(), Options{})
		if !errors.Is(err, cache.ErrEmpty) {
			t.Errorf("expected cache.ErrEmpty, got %v", err)
		}
	})
}
