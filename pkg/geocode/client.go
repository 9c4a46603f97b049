package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/bookmap/internal/model"
)

// Defaults for the public Nominatim instance.
const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "libros-streamlit-app/1.0"
	DefaultTimeout   = 10 * time.Second
)

// Searcher looks a free-text query up remotely. found=false with a nil
// error means the service answered but had no usable result; an error
// means the service could not be reached.
type Searcher interface {
	Search(ctx context.Context, query string) (coord model.Coordinate, found bool, err error)
}

// Client queries a Nominatim-compatible /search endpoint.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent sets the User-Agent header; Nominatim's usage policy
// requires an identifying one.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates a Nominatim client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(1, 1), // public instance policy: 1 req/s
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchResult carries lat/lon raw: Nominatim sends strings, some
// compatible services send numbers.
type searchResult struct {
	Lat         json.RawMessage `json:"lat"`
	Lon         json.RawMessage `json:"lon"`
	DisplayName string          `json:"display_name"`
}

func parseRawFloat(raw json.RawMessage) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(strings.Trim(string(raw), `"`)), 64)
}

// Search issues GET /search?format=json&q=<query>&limit=1 and returns the
// first hit.
func (c *Client) Search(ctx context.Context, query string) (model.Coordinate, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.Coordinate{}, false, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"format": {"json"},
		"q":      {query},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return model.Coordinate{}, false, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Coordinate{}, false, eris.Wrap(err, "geocode: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	log := zap.L().With(zap.String("component", "geocode"), zap.String("query", query))
	if resp.StatusCode != http.StatusOK {
		log.Warn("geocode: unexpected status", zap.Int("status", resp.StatusCode))
		return model.Coordinate{}, false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.Coordinate{}, false, eris.Wrap(err, "geocode: read body")
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		log.Warn("geocode: malformed response", zap.Error(err))
		return model.Coordinate{}, false, nil
	}
	if len(results) == 0 {
		return model.Coordinate{}, false, nil
	}

	lat, latErr := parseRawFloat(results[0].Lat)
	lon, lonErr := parseRawFloat(results[0].Lon)
	coord := model.Coordinate{Lat: lat, Lon: lon}
	if latErr != nil || lonErr != nil || !coord.Valid() {
		log.Warn("geocode: unusable coordinates", zap.ByteString("lat", results[0].Lat), zap.ByteString("lon", results[0].Lon))
		return model.Coordinate{}, false, nil
	}

	log.Debug("geocode: found", zap.String("display_name", results[0].DisplayName))
	return coord, true, nil
}
