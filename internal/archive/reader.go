package archive

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/rtm0/stormsurge/internal/tide"
)

// Series is the slice of one station's data returned by a query.
type Series struct {
	Station     string
	Timestamps  []time.Time
	Observation []float32
	Prediction  []float32
}

// Values returns the values of kind.
func (s Series) Values(kind tide.Kind) []float32 {
	switch kind {
	case tide.Observation:
		return s.Observation
	case tide.Prediction:
		return s.Prediction
	}
	return nil
}

// Reader serves queries against an archive file. Station metadata and the
// time axis are held in memory; the data matrices stay in the file and are
// read one station row at a time.
type Reader struct {
	mu   sync.Mutex
	nc   api.Group
	obs  api.VarGetter
	pred api.VarGetter

	attrs      Attributes
	fill       float32
	resolution time.Duration
	stations   []tide.Station
	index      map[string]int
	ts         []int64
}

// Open opens the archive at path and builds the station index.
func Open(path string) (*Reader, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tide.ErrArchiveFormat, path, err)
	}
	r := &Reader{nc: nc, fill: tide.DefaultFillValue}
	if err := r.load(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: %s: %w", tide.ErrArchiveFormat, path, err)
	}
	return r, nil
}

func (r *Reader) load() error {
	ids, err := stationIDs(r.nc)
	if err != nil {
		return err
	}
	lat, err := varValues[float32](r.nc, varLatitude)
	if err != nil {
		return err
	}
	lon, err := varValues[float32](r.nc, varLongitude)
	if err != nil {
		return err
	}
	first, err := varValues[int64](r.nc, varTimestampStart)
	if err != nil {
		return err
	}
	last, err := varValues[int64](r.nc, varTimestampEnd)
	if err != nil {
		return err
	}
	r.ts, err = varValues[int64](r.nc, varTimestamps)
	if err != nil {
		return err
	}

	s, n := len(ids), len(r.ts)
	if s == 0 || n == 0 {
		return fmt.Errorf("empty archive (%d stations, %d timestamps)", s, n)
	}
	for name, l := range map[string]int{varLatitude: len(lat), varLongitude: len(lon),
		varTimestampStart: len(first), varTimestampEnd: len(last)} {
		if l != s {
			return fmt.Errorf("%s has %d entries for %d stations", name, l, s)
		}
	}
	for i := 1; i < n; i++ {
		if r.ts[i] <= r.ts[i-1] {
			return fmt.Errorf("timestamps not strictly increasing at index %d", i)
		}
	}

	r.obs, err = r.nc.GetVarGetter(varObservation)
	if err != nil {
		return fmt.Errorf("variable %q: %w", varObservation, err)
	}
	r.pred, err = r.nc.GetVarGetter(varPrediction)
	if err != nil {
		return fmt.Errorf("variable %q: %w", varPrediction, err)
	}
	for name, vg := range map[string]api.VarGetter{varObservation: r.obs, varPrediction: r.pred} {
		dims := vg.Dimensions()
		if !slices.Equal(dims, []string{dimStation, dimTime}) || vg.Len() != int64(s) {
			return fmt.Errorf("%s has dimensions %v and %d rows, want [%s %s] and %d rows",
				name, dims, vg.Len(), dimStation, dimTime, s)
		}
	}
	if attrs := r.obs.Attributes(); attrs != nil {
		if v, ok := attrs.Get(attrFillValue); ok {
			if f, ok := v.(float32); ok {
				r.fill = f
			}
		}
	}

	r.attrs = Attributes{
		Title:       globalString(r.nc, "title"),
		Description: globalString(r.nc, "description"),
		Institution: globalString(r.nc, "institution"),
		Contact:     globalString(r.nc, "contact"),
	}
	r.resolution = resolution(r.nc, r.ts)

	r.stations = make([]tide.Station, s)
	r.index = make(map[string]int, s)
	for i, id := range ids {
		if _, dup := r.index[id]; dup {
			return fmt.Errorf("duplicate station %q", id)
		}
		r.index[id] = i
		r.stations[i] = tide.Station{
			ID:        id,
			Latitude:  float64(lat[i]),
			Longitude: float64(lon[i]),
			Bounds: tide.Bounds{
				First: time.Unix(first[i], 0).UTC(),
				Last:  time.Unix(last[i], 0).UTC(),
			},
		}
	}
	return nil
}

// Close releases the underlying file.
func (r *Reader) Close() {
	r.nc.Close()
}

// Stations returns the stations in row order.
func (r *Reader) Stations() []tide.Station {
	return slices.Clone(r.stations)
}

// Station returns the metadata and row index of a station.
func (r *Reader) Station(id string) (tide.Station, int, error) {
	row, ok := r.index[id]
	if !ok {
		return tide.Station{}, 0, fmt.Errorf("%w: %q", tide.ErrUnknownStation, id)
	}
	return r.stations[row], row, nil
}

// Attributes returns the provenance attributes of the archive.
func (r *Reader) Attributes() Attributes {
	return r.attrs
}

// FillValue returns the sentinel marking missing data.
func (r *Reader) FillValue() float32 {
	return r.fill
}

// Resolution returns the spacing of the time axis.
func (r *Reader) Resolution() time.Duration {
	return r.resolution
}

// Coverage returns the first and last timestamps of the archive.
func (r *Reader) Coverage() (time.Time, time.Time) {
	return time.Unix(r.ts[0], 0).UTC(), time.Unix(r.ts[len(r.ts)-1], 0).UTC()
}

// Timestamps returns the shared time axis as Unix seconds.
func (r *Reader) Timestamps() []int64 {
	return slices.Clone(r.ts)
}

// GetData returns the data of station id from the first slot at or after
// from up to and including the first slot at or after to. A range reaching
// past the last slot is cut at the last slot.
func (r *Reader) GetData(id string, from, to time.Time) (Series, error) {
	_, row, err := r.Station(id)
	if err != nil {
		return Series{}, err
	}
	if err := tide.CheckUTC(from); err != nil {
		return Series{}, err
	}
	if err := tide.CheckUTC(to); err != nil {
		return Series{}, err
	}
	if from.After(to) {
		return Series{}, fmt.Errorf("%w: start %s is after end %s", tide.ErrInvalidRange,
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	first, last := r.ts[0], r.ts[len(r.ts)-1]
	lo, hi := from.Unix(), ceilUnix(to)
	if lo >= last || hi <= first {
		return Series{}, fmt.Errorf("%w: station %q, [%s, %s] vs archive [%s, %s]", tide.ErrOutOfRange, id,
			from.Format(time.RFC3339), to.Format(time.RFC3339),
			time.Unix(first, 0).UTC().Format(time.RFC3339), time.Unix(last, 0).UTC().Format(time.RFC3339))
	}

	begin, err := tide.FindIndexFirstGreaterOrEqual(r.ts, lo, 0)
	if err != nil {
		return Series{}, err
	}
	end := len(r.ts) - 1
	if hi <= last {
		end, err = tide.FindIndexFirstGreaterOrEqual(r.ts, hi, 0)
		if err != nil {
			return Series{}, err
		}
	}

	r.mu.Lock()
	obs, err := readRow(r.obs, row)
	var pred []float32
	if err == nil {
		pred, err = readRow(r.pred, row)
	}
	r.mu.Unlock()
	if err != nil {
		return Series{}, err
	}
	if len(obs) != len(r.ts) || len(pred) != len(r.ts) {
		return Series{}, fmt.Errorf("%w: row %d of station %q has %d/%d values for %d timestamps",
			tide.ErrArchiveFormat, row, id, len(obs), len(pred), len(r.ts))
	}

	s := Series{
		Station:     id,
		Timestamps:  make([]time.Time, 0, end-begin+1),
		Observation: slices.Clone(obs[begin : end+1]),
		Prediction:  slices.Clone(pred[begin : end+1]),
	}
	for _, ts := range r.ts[begin : end+1] {
		s.Timestamps = append(s.Timestamps, time.Unix(ts, 0).UTC())
	}
	return s, nil
}

func readRow(vg api.VarGetter, row int) ([]float32, error) {
	v, err := vg.GetSlice(int64(row), int64(row)+1)
	if err != nil {
		return nil, fmt.Errorf("%w: reading row %d: %w", tide.ErrArchiveFormat, row, err)
	}
	rows, ok := v.([][]float32)
	if !ok || len(rows) != 1 {
		return nil, fmt.Errorf("%w: row %d has type %T", tide.ErrArchiveFormat, row, v)
	}
	return rows[0], nil
}

func ceilUnix(t time.Time) int64 {
	if t.Nanosecond() > 0 {
		return t.Unix() + 1
	}
	return t.Unix()
}

func varValues[T any](nc api.Group, name string) ([]T, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	values, ok := v.([]T)
	if !ok {
		return nil, fmt.Errorf("variable %q has type %T, want %T", name, v, values)
	}
	return values, nil
}

func stationIDs(nc api.Group) ([]string, error) {
	vg, err := nc.GetVarGetter(varStationID)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", varStationID, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", varStationID, err)
	}
	var ids []string
	switch v := v.(type) {
	case []string:
		ids = v
	case string:
		ids = []string{v}
	default:
		return nil, fmt.Errorf("variable %q has type %T, want []string", varStationID, v)
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strings.TrimRight(id, "\x00 ")
	}
	return out, nil
}

func globalString(nc api.Group, key string) string {
	attrs := nc.Attributes()
	if attrs == nil {
		return ""
	}
	v, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func resolution(nc api.Group, ts []int64) time.Duration {
	if attrs := nc.Attributes(); attrs != nil {
		if v, ok := attrs.Get(attrResolution); ok {
			switch v := v.(type) {
			case int32:
				return time.Duration(v) * time.Second
			case int64:
				return time.Duration(v) * time.Second
			}
		}
	}
	if len(ts) > 1 {
		return time.Duration(ts[1]-ts[0]) * time.Second
	}
	return tide.DefaultResolution
}
