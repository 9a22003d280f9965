package cache

import (
	"context"
	"fmt"
	"time"
)

// Limits above which the cache is reported as needing a clean up.
type Limits struct {
	MaxBytes int64
	MaxAge   time.Duration
	MaxFiles int
}

// DefaultLimits warns at 50 GiB, 90 days and 100000 files.
var DefaultLimits = Limits{
	MaxBytes: 50 << 30,
	MaxAge:   90 * 24 * time.Hour,
	MaxFiles: 100000,
}

// Stats summarizes the manifest.
type Stats struct {
	Files  int
	Bytes  int64
	Oldest time.Time
	// Stale counts entries older than the MaxAge the stats were computed for.
	Stale int
}

// Stats computes the manifest summary, counting entries older than maxAge as
// stale. maxAge <= 0 disables the staleness count.
func (s *Store) Stats(ctx context.Context, maxAge time.Duration) (Stats, error) {
	var (
		st     Stats
		oldest int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(MIN(fetched_at), 0) FROM entries`).
		Scan(&st.Files, &st.Bytes, &oldest)
	if err != nil {
		return Stats{}, fmt.Errorf("manifest stats: %w", err)
	}
	if oldest > 0 {
		st.Oldest = time.Unix(oldest, 0).UTC()
	}
	if maxAge > 0 {
		cutoff := s.now().Add(-maxAge).Unix()
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE fetched_at < ?`, cutoff).Scan(&st.Stale)
		if err != nil {
			return Stats{}, fmt.Errorf("manifest stats: %w", err)
		}
	}
	return st, nil
}

// Warn logs a warning for every limit the cache exceeds and reports whether
// any was hit.
func (s *Store) Warn(ctx context.Context, l Limits) (bool, error) {
	st, err := s.Stats(ctx, l.MaxAge)
	if err != nil {
		return false, err
	}
	hit := false
	if l.MaxBytes > 0 && st.Bytes > l.MaxBytes {
		s.logger.Warn("Large response cache", "dir", s.root, "GiB", fmt.Sprintf("%.2f", float64(st.Bytes)/(1<<30)))
		hit = true
	}
	if st.Stale > 0 {
		s.logger.Warn("Old files in response cache", "dir", s.root, "count", st.Stale,
			"oldest", st.Oldest.Format(time.RFC3339))
		hit = true
	}
	if l.MaxFiles > 0 && st.Files > l.MaxFiles {
		s.logger.Warn("Many files in response cache", "dir", s.root, "count", st.Files)
		hit = true
	}
	if hit {
		s.logger.Warn("Consider cleaning the response cache", "dir", s.root)
	}
	return hit, nil
}
