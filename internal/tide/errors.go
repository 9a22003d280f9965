package tide

import "errors"

var (
	// ErrTimezone is returned for times not expressed in UTC.
	ErrTimezone = errors.New("time is not in UTC")
	// ErrAlignment is returned for times that are not a multiple of the
	// grid resolution.
	ErrAlignment = errors.New("time is not aligned to the grid resolution")
	// ErrInvalidRange is returned for empty or reversed ranges and
	// non-positive steps.
	ErrInvalidRange = errors.New("invalid time range")
	// ErrUnknownStation is returned for station codes absent from the
	// station list or the archive.
	ErrUnknownStation = errors.New("unknown station")
	// ErrOutOfRange is returned for queries outside the archive coverage.
	ErrOutOfRange = errors.New("time range outside archive coverage")
	// ErrArchiveFormat is returned when an archive file lacks a variable or
	// has mismatched dimensions.
	ErrArchiveFormat = errors.New("malformed archive")
	// ErrConsistency is returned when data disagrees with the grid or with
	// the cached responses.
	ErrConsistency = errors.New("consistency check failed")
	// ErrRemoteFetchExhausted is returned once every retry of a request
	// has failed.
	ErrRemoteFetchExhausted = errors.New("remote fetch retries exhausted")

	// ErrNoMatch is returned by FindIndexFirstGreaterOrEqual when no value
	// reaches the target.
	ErrNoMatch = errors.New("no value greater or equal to target")
	// ErrNotMonotonic is returned by FindIndexFirstGreaterOrEqual for input
	// that is not strictly monotonic.
	ErrNotMonotonic = errors.New("values are not strictly monotonic")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrTimezone, "TimezoneError"},
	{ErrAlignment, "AlignmentError"},
	{ErrInvalidRange, "InvalidRangeError"},
	{ErrUnknownStation, "UnknownStationError"},
	{ErrOutOfRange, "OutOfRangeError"},
	{ErrArchiveFormat, "ArchiveFormatError"},
	{ErrConsistency, "ConsistencyError"},
	{ErrRemoteFetchExhausted, "RemoteFetchExhaustedError"},
	{ErrNoMatch, "NoMatchError"},
	{ErrNotMonotonic, "NotMonotonicError"},
}

// ErrorKind returns the taxonomy name of err, or "Error" if err does not wrap
// any of the package sentinels.
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Error"
}
