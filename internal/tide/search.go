package tide

import (
	"fmt"
	"sort"
)

// Number is the set of element types FindIndexFirstGreaterOrEqual accepts.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// FindIndexFirstGreaterOrEqual returns the first index i such that
// values[i] >= target-tol. values must be strictly monotonic, ascending or
// descending, which is verified on every call.
func FindIndexFirstGreaterOrEqual[T Number](values []T, target, tol T) (int, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: empty input", ErrNoMatch)
	}
	ascending, err := strictDirection(values)
	if err != nil {
		return 0, err
	}
	limit := target - tol
	if ascending {
		i := sort.Search(len(values), func(i int) bool { return values[i] >= limit })
		if i == len(values) {
			return 0, fmt.Errorf("%w: %v is above the last value %v", ErrNoMatch, target, values[len(values)-1])
		}
		return i, nil
	}
	for i, v := range values {
		if v >= limit {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %v is above every value", ErrNoMatch, target)
}

// strictDirection reports whether values are strictly ascending. A single
// value counts as ascending.
func strictDirection[T Number](values []T) (bool, error) {
	if len(values) < 2 {
		return true, nil
	}
	ascending := values[1] > values[0]
	for i := 1; i < len(values); i++ {
		if ascending && values[i] <= values[i-1] || !ascending && values[i] >= values[i-1] {
			return false, fmt.Errorf("%w: at index %d", ErrNotMonotonic, i)
		}
	}
	return ascending, nil
}
