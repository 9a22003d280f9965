package sehavniva

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rtm0/stormsurge/internal/tide"
)

func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("failed to read test data: %s", err)
	}
	return body
}

var (
	oslObservation = []float64{27.3, 26.4, 25.6, 25.0, 24.6, 24.2, 23.8}
	oslPrediction  = []float64{56.1, 54.8, 53.6, 52.7, 51.9, 51.2, 50.6}
)

func TestParseStations(t *testing.T) {
	t.Run("parsing the station list should work", func(t *testing.T) {
		stations, err := ParseStations(readTestdata(t, "stationlist.xml"))
		if err != nil {
			t.Fatalf("failed to parse station list: %s", err)
		}
		if len(stations) != 3 {
			t.Fatalf("expected 3 stations, got %d", len(stations))
		}
		osl := stations[2]
		if osl.ID != "OSL" || osl.Name != "Oslo" || osl.Latitude != 59.908559 || osl.Longitude != 10.734510 {
			t.Errorf("unexpected station %+v", osl)
		}
	})
	t.Run("latin-1 documents are decoded", func(t *testing.T) {
		body := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<tide><stationinfo>" +
			"<location name=\"\xc5lesund\" code=\"AES\" latitude=\"62.469414\" longitude=\"6.151946\"/>" +
			"</stationinfo></tide>")
		stations, err := ParseStations(body)
		if err != nil {
			t.Fatalf("failed to parse station list: %s", err)
		}
		if len(stations) != 1 || stations[0].Name != "Ålesund" {
			t.Errorf("unexpected stations %+v", stations)
		}
	})
	t.Run("a bad coordinate fails", func(t *testing.T) {
		body := []byte(`<tide><stationinfo><location code="X" latitude="north" longitude="1"/></stationinfo></tide>`)
		if _, err := ParseStations(body); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})
	t.Run("a location without code fails", func(t *testing.T) {
		body := []byte(`<tide><stationinfo><location latitude="1" longitude="1"/></stationinfo></tide>`)
		if _, err := ParseStations(body); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})
}

func TestParseBounds(t *testing.T) {
	t.Run("bounds are converted to UTC", func(t *testing.T) {
		b, err := ParseBounds(readTestdata(t, "obstime.xml"))
		if err != nil {
			t.Fatalf("failed to parse bounds: %s", err)
		}
		want := tide.Bounds{
			First: time.Date(1913, 12, 31, 23, 0, 0, 0, time.UTC),
			Last:  time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		}
		if !b.First.Equal(want.First) || !b.Last.Equal(want.Last) {
			t.Errorf("expected %v, got %v", want, b)
		}
		if b.First.Location() != time.UTC || b.Last.Location() != time.UTC {
			t.Error("expected bounds in UTC")
		}
	})
	t.Run("a response without obstime fails", func(t *testing.T) {
		if _, err := ParseBounds([]byte(`<tide></tide>`)); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})
}

func TestParseSeries(t *testing.T) {
	t.Run("parsing station data should work", func(t *testing.T) {
		samples, err := ParseSeries(readTestdata(t, "stationdata_osl.xml"))
		if err != nil {
			t.Fatalf("failed to parse series: %s", err)
		}
		if len(samples) != 14 {
			t.Fatalf("expected 14 samples, got %d", len(samples))
		}
		start := time.Date(2008, 12, 15, 9, 0, 0, 0, time.UTC)
		for i, s := range samples {
			kind, values := tide.Observation, oslObservation
			if i >= 7 {
				kind, values = tide.Prediction, oslPrediction
			}
			if s.Kind != kind || s.Value != values[i%7] || !s.Time.Equal(start.Add(time.Duration(i%7)*10*time.Minute)) {
				t.Errorf("sample %d: unexpected %+v", i, s)
			}
		}
	})
	t.Run("other units keep the full label", func(t *testing.T) {
		body := []byte(`<tide><stationdata><location code="OSL">
<data type="observation" unit="cm" reflevelcode="MSL">
<waterlevel value="1.5" time="2008-12-15T09:00:00+00:00"/>
</data></location></stationdata></tide>`)
		samples, err := ParseSeries(body)
		if err != nil {
			t.Fatalf("failed to parse series: %s", err)
		}
		if len(samples) != 1 || samples[0].Kind != "observation_cm_MSL" {
			t.Errorf("unexpected samples %+v", samples)
		}
	})
	t.Run("an empty segment has no samples", func(t *testing.T) {
		samples, err := ParseSeries([]byte(`<tide><stationdata><location code="OSL"/></stationdata></tide>`))
		if err != nil || len(samples) != 0 {
			t.Errorf("expected no samples, got %v (%v)", samples, err)
		}
	})
	t.Run("an error document fails", func(t *testing.T) {
		_, err := ParseSeries([]byte(`<tide><error>Station not found</error></tide>`))
		if !errors.Is(err, ErrAPI) {
			t.Errorf("expected ErrAPI, got %v", err)
		}
	})
	t.Run("truncated documents fail", func(t *testing.T) {
		body := readTestdata(t, "stationdata_osl.xml")
		if _, err := ParseSeries(body[:len(body)/2]); !errors.Is(err, ErrMalformed) {
			t.Errorf("expected ErrMalformed, got %v", err)
		}
	})
}
