// Package cache keeps raw API responses on disk so that archive generation can
// be resumed and checked without hitting the remote service again. Files live
// under a root directory; a SQLite manifest next to them records what each
// file holds.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Request is the type of API request a cached response answers.
type Request string

const (
	StationData Request = "stationdata"
	StationList Request = "stationlist"
	Metadata    Request = "metadata"
)

const manifestName = "manifest.db"

const schema = `
CREATE TABLE IF NOT EXISTS entries (
  url        TEXT    PRIMARY KEY,
  path       TEXT    NOT NULL,
  request    TEXT    NOT NULL,
  station    TEXT    NOT NULL DEFAULT '',
  from_ts    INTEGER NOT NULL DEFAULT 0,
  to_ts      INTEGER NOT NULL DEFAULT 0,
  size       INTEGER NOT NULL,
  fetched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_request ON entries(request);
`

// ErrEmpty is returned when no entry of the requested type is cached.
var ErrEmpty = errors.New("no cached entries")

// Key identifies a response and describes what it contains.
type Key struct {
	URL     string
	Request Request
	Station string
	// From and To are set for StationData requests only.
	From time.Time
	To   time.Time
}

// Entry is a manifest row.
type Entry struct {
	Key
	Path      string
	Size      int64
	FetchedAt time.Time
}

// Store is a response cache rooted at a directory.
type Store struct {
	logger *slog.Logger
	root   string
	db     *sql.DB
	now    func() time.Time
}

// Open opens or creates the cache at root.
func Open(logger *slog.Logger, root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filepath.Join(root, manifestName))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("manifest open: %w", err)
	}
	// A single writer avoids "database is locked" between our own connections.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manifest schema: %w", err)
	}
	logger.Info("Opened response cache", "dir", root)
	return &Store{logger: logger, root: root, db: db, now: time.Now}, nil
}

// Close closes the manifest.
func (s *Store) Close() error {
	return s.db.Close()
}

// Root returns the cache directory.
func (s *Store) Root() string {
	return s.root
}

// Get returns the cached response for url. A manifest row whose file has
// disappeared is dropped and reported as a miss.
func (s *Store) Get(ctx context.Context, url string) ([]byte, bool, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM entries WHERE url = ?`, url).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("manifest lookup: %w", err)
	}
	body, err := os.ReadFile(filepath.Join(s.root, path))
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Cached file is missing, dropping manifest entry", "url", url, "path", path)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE url = ?`, url); err != nil {
			return nil, false, fmt.Errorf("manifest delete: %w", err)
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// Put stores body as the response for key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key Key, body []byte) error {
	rel := s.path(key)
	if err := writeFile(filepath.Join(s.root, rel), body); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO entries (url, path, request, station, from_ts, to_ts, size, fetched_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
  path = excluded.path, request = excluded.request, station = excluded.station,
  from_ts = excluded.from_ts, to_ts = excluded.to_ts, size = excluded.size,
  fetched_at = excluded.fetched_at`,
		key.URL, rel, string(key.Request), key.Station, unix(key.From), unix(key.To),
		len(body), s.now().Unix())
	if err != nil {
		return fmt.Errorf("manifest insert: %w", err)
	}
	return nil
}

// Read returns the body of a manifest entry.
func (s *Store) Read(e Entry) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, e.Path))
}

// RandomEntry picks a uniformly random entry of the given request type.
func (s *Store) RandomEntry(ctx context.Context, req Request, rng *rand.Rand) (Entry, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE request = ?`, string(req)).Scan(&n); err != nil {
		return Entry{}, fmt.Errorf("manifest count: %w", err)
	}
	if n == 0 {
		return Entry{}, fmt.Errorf("%w of type %s", ErrEmpty, req)
	}
	row := s.db.QueryRowContext(ctx, `
SELECT url, path, request, station, from_ts, to_ts, size, fetched_at
FROM entries WHERE request = ? ORDER BY url LIMIT 1 OFFSET ?`, string(req), rng.IntN(n))
	var (
		e               Entry
		request         string
		from, to, fetch int64
	)
	if err := row.Scan(&e.URL, &e.Path, &request, &e.Station, &from, &to, &e.Size, &fetch); err != nil {
		return Entry{}, fmt.Errorf("manifest select: %w", err)
	}
	e.Request = Request(request)
	e.From, e.To, e.FetchedAt = fromUnix(from), fromUnix(to), time.Unix(fetch, 0).UTC()
	return e, nil
}

// path returns the location of key relative to the root. Data responses are
// spread over station/year/month directories so no directory grows without
// bound.
func (s *Store) path(key Key) string {
	sum := sha256.Sum256([]byte(key.URL))
	name := hex.EncodeToString(sum[:16]) + ".xml"
	switch key.Request {
	case StationData:
		from := key.From.UTC()
		return filepath.Join(key.Station, from.Format("2006"), from.Format("01"), name)
	case StationList, Metadata:
		return filepath.Join(string(key.Request), name)
	}
	return name
}

func writeFile(path string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
