// Package sehavniva is a client for the Kartverket water level API
// (api.sehavniva.no). Requests are paced, retried and answered from a local
// response cache when possible.
package sehavniva

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rtm0/stormsurge/internal/cache"
	"github.com/rtm0/stormsurge/internal/tide"
)

const (
	DefaultBaseURL   = "https://api.sehavniva.no/tideapi.php"
	DefaultUserAgent = "stormsurge/dev (+https://github.com/rtm0/stormsurge)"

	timeFormat = "2006-01-02T15:04:05"
)

// Cache stores raw responses keyed by URL.
type Cache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Put(ctx context.Context, key cache.Key, body []byte) error
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL   string
	UserAgent string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// MinInterval is the minimum spacing between two outbound requests.
	MinInterval time.Duration
	// Interval is the sampling interval requested for data, in whole minutes.
	Interval time.Duration
	Retry    RetryPolicy
	// BreakerThreshold is the number of consecutive failed attempts after
	// which requests are held back for BreakerTimeout. Zero disables it.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
	MaxConns         int
}

// Client talks to the sehavniva API.
type Client struct {
	logger    *slog.Logger
	httpCli   *http.Client
	baseURL   string
	userAgent string
	timeout   time.Duration
	interval  time.Duration

	cache   Cache
	limiter *rate.Limiter
	retry   RetryPolicy
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a new API client. store may be nil, in which case every
// call hits the network.
func NewClient(logger *slog.Logger, store Cache, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, err
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Interval == 0 {
		opts.Interval = tide.DefaultResolution
	}
	if opts.Interval < time.Minute || opts.Interval%time.Minute != 0 {
		return nil, fmt.Errorf("data interval %s is not a whole number of minutes", opts.Interval)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy
	}
	if err := opts.Retry.validate(); err != nil {
		return nil, err
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 1
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	c := &Client{
		logger: logger,
		httpCli: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        opts.MaxConns,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: opts.MaxConns,
				MaxConnsPerHost:     opts.MaxConns,
			},
		},
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		interval:  opts.Interval,
		cache:     store,
		limiter:   rate.NewLimiter(limit, 1),
		retry:     opts.Retry,
	}
	if opts.BreakerThreshold > 0 {
		c.breaker = newBreaker(logger, opts.BreakerThreshold, opts.BreakerTimeout)
	}
	return c, nil
}

// Stations returns the permanent stations. Their bounds are not set; use
// StationBounds.
func (c *Client) Stations(ctx context.Context) ([]tide.Station, error) {
	body, err := c.fetch(ctx, cache.Key{URL: c.stationListURL(), Request: cache.StationList})
	if err != nil {
		return nil, err
	}
	stations, err := ParseStations(body)
	if err != nil {
		return nil, fmt.Errorf("station list: %w", err)
	}
	return stations, nil
}

// StationBounds returns the first and last observation times of a station.
func (c *Client) StationBounds(ctx context.Context, id string) (tide.Bounds, error) {
	body, err := c.fetch(ctx, cache.Key{URL: c.obsTimeURL(id), Request: cache.Metadata, Station: id})
	if err != nil {
		return tide.Bounds{}, err
	}
	b, err := ParseBounds(body)
	if err != nil {
		return tide.Bounds{}, fmt.Errorf("bounds of station %q: %w", id, err)
	}
	return b, nil
}

// Series returns the samples of every kind the API reports for station id
// between from and to, both inclusive.
func (c *Client) Series(ctx context.Context, id string, from, to time.Time) ([]tide.Sample, error) {
	if err := tide.CheckUTC(from); err != nil {
		return nil, err
	}
	if err := tide.CheckUTC(to); err != nil {
		return nil, err
	}
	key := cache.Key{
		URL:     c.stationDataURL(id, from, to),
		Request: cache.StationData,
		Station: id,
		From:    from,
		To:      to,
	}
	body, err := c.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	samples, err := ParseSeries(body)
	if err != nil {
		return nil, fmt.Errorf("data of station %q from %s to %s: %w", id,
			from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return samples, nil
}

func (c *Client) stationListURL() string {
	return c.url(url.Values{
		"tide_request": {"stationlist"},
		"type":         {"perm"},
	})
}

func (c *Client) obsTimeURL(id string) string {
	return c.url(url.Values{
		"tide_request": {"obstime"},
		"stationcode":  {id},
	})
}

func (c *Client) stationDataURL(id string, from, to time.Time) string {
	return c.url(url.Values{
		"tide_request": {"stationdata"},
		"stationcode":  {id},
		"fromtime":     {from.Format(timeFormat)},
		"totime":       {to.Format(timeFormat)},
		"datatype":     {"obs"},
		"interval":     {fmt.Sprint(int(c.interval / time.Minute))},
		"tzone":        {"utc"},
	})
}

func (c *Client) url(q url.Values) string {
	u, _ := url.Parse(c.baseURL)
	u.RawQuery = q.Encode()
	return u.String()
}
