package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// Write persists the archive at path. The file is written next to path under
// a temporary name and renamed into place once complete, so path either
// holds the previous content or the full new archive.
func Write(path string, a *Archive) error {
	if err := a.Validate(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := writeCDF(tmpPath, a); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not move archive into place: %w", err)
	}
	return nil
}

func writeCDF(path string, a *Archive) error {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("could not open archive writer: %w", err)
	}

	global, err := attributes(
		"title", a.Attributes.Title,
		"description", a.Attributes.Description,
		"institution", a.Attributes.Institution,
		"contact", a.Attributes.Contact,
		attrResolution, int32(a.Resolution.Seconds()),
	)
	if err != nil {
		cw.Close()
		return err
	}
	if err := cw.AddGlobalAttrs(global); err != nil {
		cw.Close()
		return fmt.Errorf("could not add global attributes: %w", err)
	}

	s := len(a.Stations)
	ids := make([]string, s)
	lat := make([]float32, s)
	lon := make([]float32, s)
	first := make([]int64, s)
	last := make([]int64, s)
	width := 1
	for _, st := range a.Stations {
		width = max(width, len(st.ID))
	}
	for i, st := range a.Stations {
		// Char arrays are fixed width; pad with NULs, trimmed again on read.
		ids[i] = st.ID + strings.Repeat("\x00", width-len(st.ID))
		lat[i] = float32(st.Latitude)
		lon[i] = float32(st.Longitude)
		first[i] = st.Bounds.First.Unix()
		last[i] = st.Bounds.Last.Unix()
	}

	vars := []struct {
		name   string
		values any
		dims   []string
		attrs  []any
	}{
		{varStationID, ids, []string{dimStation, dimIDLen}, nil},
		{varLatitude, lat, []string{dimStation}, []any{"units", "degrees_north"}},
		{varLongitude, lon, []string{dimStation}, []any{"units", "degrees_east"}},
		{varTimestamps, a.Timestamps, []string{dimTime}, []any{"units", "seconds since 1970-01-01 00:00:00 UTC"}},
		{varObservation, a.Observation, []string{dimStation, dimTime},
			[]any{"units", "cm", "reference", "CD", attrFillValue, a.FillValue}},
		{varPrediction, a.Prediction, []string{dimStation, dimTime},
			[]any{"units", "cm", "reference", "CD", attrFillValue, a.FillValue}},
		{varTimestampStart, first, []string{dimStation}, []any{"units", "seconds since 1970-01-01 00:00:00 UTC"}},
		{varTimestampEnd, last, []string{dimStation}, []any{"units", "seconds since 1970-01-01 00:00:00 UTC"}},
	}
	for _, v := range vars {
		attrs, err := attributes(v.attrs...)
		if err != nil {
			cw.Close()
			return err
		}
		err = cw.AddVar(v.name, api.Variable{
			Values:     v.values,
			Dimensions: v.dims,
			Attributes: attrs,
		})
		if err != nil {
			cw.Close()
			return fmt.Errorf("could not add variable %q: %w", v.name, err)
		}
	}

	if err := cw.Close(); err != nil {
		return fmt.Errorf("could not write archive: %w", err)
	}
	return nil
}

// attributes builds an ordered attribute map from alternating keys and
// values.
func attributes(kv ...any) (api.AttributeMap, error) {
	keys := make([]string, 0, len(kv)/2)
	values := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("attribute key %v is not a string", kv[i])
		}
		keys = append(keys, k)
		values[k] = kv[i+1]
	}
	return util.NewOrderedMap(keys, values)
}
