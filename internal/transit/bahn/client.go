// Package bahn implements the transit provider backed by the bahn.de
// travel-planning web API.
package bahn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bahnmcp/bahnmcp/internal/cache"
	"github.com/bahnmcp/bahnmcp/internal/provider/resilience"
	"github.com/bahnmcp/bahnmcp/internal/telemetry"
	"github.com/bahnmcp/bahnmcp/internal/transit"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "bahn"

	// DefaultBaseURL is the bahn.de web API base URL.
	DefaultBaseURL = "https://www.bahn.de/web/api"

	pathLocations  = "/reiseloesung/orte"
	pathNearby     = "/reiseloesung/orte/nearby"
	pathDepartures = "/reiseloesung/abfahrten"
	pathJourney    = "/reiseloesung/fahrt"

	maxVias     = 5
	maxBodySize = 8 << 20
)

// Operation names used in spans, metrics and logs.
const (
	OpSearchStations = "search_stations"
	OpNearbyStations = "nearby_stations"
	OpDepartures     = "departures"
	OpJourney        = "journey"
)

// TTLs holds the cache freshness window per endpoint.
type TTLs struct {
	Locations  time.Duration
	Departures time.Duration
	Journey    time.Duration
	Nearby     time.Duration
}

// DefaultTTLs returns the standard freshness windows.
func DefaultTTLs() TTLs {
	return TTLs{
		Locations:  300 * time.Second,
		Departures: 90 * time.Second,
		Journey:    30 * time.Second,
		Nearby:     300 * time.Second,
	}
}

// ClientConfig holds configuration for the bahn client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to bahn.de).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a single-attempt resilient client with a 15s timeout.
	HTTPClient *resilience.Client

	// Cache stores raw response bodies (optional, a private cache is created if nil).
	Cache *cache.Cache[[]byte]

	// TTLs overrides the per-endpoint freshness windows. Zero fields keep the default.
	TTLs TTLs

	// Metrics records request and cache metrics (optional).
	Metrics *telemetry.ProviderMetrics

	// Tracer opens client spans (optional, defaults to the global tracer).
	Tracer trace.Tracer

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a bahn.de API client. Responses are cached as raw JSON and
// decoded into transit wire records on every call.
//
// Concurrent misses for the same key are not coalesced: each caller issues
// its own upstream request and the last response to arrive wins the cache slot.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	cache      *cache.Cache[[]byte]
	ttls       TTLs
	metrics    *telemetry.ProviderMetrics
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewClient creates a new bahn client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	store := cfg.Cache
	if store == nil {
		store = cache.New[[]byte](cache.DefaultTTL)
	}

	ttls := DefaultTTLs()
	if cfg.TTLs.Locations > 0 {
		ttls.Locations = cfg.TTLs.Locations
	}
	if cfg.TTLs.Departures > 0 {
		ttls.Departures = cfg.TTLs.Departures
	}
	if cfg.TTLs.Journey > 0 {
		ttls.Journey = cfg.TTLs.Journey
	}
	if cfg.TTLs.Nearby > 0 {
		ttls.Nearby = cfg.TTLs.Nearby
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer(telemetry.InstrumentationName)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      store,
		ttls:       ttls,
		metrics:    cfg.Metrics,
		tracer:     tracer,
		logger:     cfg.Logger,
	}
}

var _ transit.Provider = (*Client)(nil)

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SearchStations runs a free-text location search.
func (c *Client) SearchStations(ctx context.Context, query string, limit int) ([]transit.StationRecord, error) {
	return fetch(ctx, c, request{
		op:   OpSearchStations,
		path: pathLocations,
		params: map[string]string{
			"suchbegriff": query,
			"typ":         "ALL",
			"limit":       strconv.Itoa(limit),
		},
		ttl: c.ttls.Locations,
	}, decodeStations)
}

// NearbyStations lists stations within radius meters of a coordinate.
func (c *Client) NearbyStations(ctx context.Context, lat, lon float64, radius, maxNo int) ([]transit.StationRecord, error) {
	return fetch(ctx, c, request{
		op:   OpNearbyStations,
		path: pathNearby,
		params: map[string]string{
			"lat":    formatCoord(lat),
			"long":   formatCoord(lon),
			"radius": strconv.Itoa(radius),
			"maxNo":  strconv.Itoa(maxNo),
		},
		ttl: c.ttls.Nearby,
	}, decodeStations)
}

// Departures fetches a departure board. An empty mode list means all modes.
func (c *Client) Departures(ctx context.Context, q transit.BoardQuery) (*transit.BoardRecord, error) {
	repeated := make([]param, 0, len(q.Modes))
	for _, m := range q.Modes {
		repeated = append(repeated, param{key: "verkehrsmittel[]", value: m})
	}

	sortedModes := append([]string(nil), q.Modes...)
	sort.Strings(sortedModes)

	return fetch(ctx, c, request{
		op:   OpDepartures,
		path: pathDepartures,
		params: map[string]string{
			"datum":    q.Date,
			"zeit":     q.Time,
			"ortExtId": strconv.FormatInt(q.EVA, 10),
			"ortId":    q.HafasID,
			"mitVias":  "true",
			"maxVias":  strconv.Itoa(maxVias),
		},
		repeated:  repeated,
		keySuffix: "&modes=" + strings.Join(sortedModes, ","),
		ttl:       c.ttls.Departures,
	}, decodeBoard)
}

// Journey fetches the stop list of a journey.
func (c *Client) Journey(ctx context.Context, journeyID string) (*transit.JourneyRecord, error) {
	return fetch(ctx, c, request{
		op:   OpJourney,
		path: pathJourney,
		params: map[string]string{
			"journeyId": journeyID,
			"poly":      "false",
		},
		ttl: c.ttls.Journey,
	}, decodeJourney)
}

type param struct {
	key   string
	value string
}

// request describes one cacheable GET.
type request struct {
	op     string
	path   string
	params map[string]string

	// repeated query parameters are sent but not part of the base key.
	repeated  []param
	keySuffix string

	ttl time.Duration
}

// cacheKey returns endpoint + "?" + sorted k=v pairs joined by "&".
func cacheKey(endpoint string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// fetch serves r from cache or upstream. Only bodies that decode are cached.
func fetch[T any](ctx context.Context, c *Client, r request, decode func([]byte) (T, error)) (T, error) {
	var zero T

	endpoint := c.baseURL + r.path
	key := cacheKey(endpoint, r.params) + r.keySuffix

	if body, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheHit(ctx, r.op)
		return decode(body)
	}
	c.metrics.RecordCacheMiss(ctx, r.op)

	body, err := c.do(ctx, r, endpoint)
	if err != nil {
		return zero, err
	}

	v, err := decode(body)
	if err != nil {
		return zero, fmt.Errorf("decoding %s response: %w", r.op, err)
	}

	c.cache.SetWithTTL(key, body, r.ttl)
	return v, nil
}

// do performs a single upstream GET and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, r request, endpoint string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "bahn."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", http.MethodGet),
			attribute.String("url.path", r.path),
			attribute.String("provider.operation", r.op),
		),
	)
	defer span.End()

	q := make(url.Values, len(r.params)+1)
	for k, v := range r.params {
		q.Set(k, v)
	}
	for _, p := range r.repeated {
		q.Add(p.key, p.value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	setHeaders(req)

	c.logger.Debug().
		Str("operation", r.op).
		Str("url", req.URL.String()).
		Msg("calling bahn API")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordRequest(ctx, r.op, 0, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, transportError(r.op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &transit.APIError{StatusCode: resp.StatusCode, URL: req.URL.String()}
		c.metrics.RecordRequest(ctx, r.op, resp.StatusCode, time.Since(start), apiErr)
		span.SetStatus(codes.Error, apiErr.Error())

		c.logger.Warn().
			Str("operation", r.op).
			Int("status", resp.StatusCode).
			Msg("bahn API returned error status")

		return nil, apiErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	c.metrics.RecordRequest(ctx, r.op, resp.StatusCode, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, transportError(r.op, fmt.Errorf("reading response: %w", err))
	}

	return body, nil
}

// transportError classifies failures that produced no usable response.
func transportError(op string, err error) error {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return fmt.Errorf("%s: %w", op, err)
	case resilience.IsTimeout(err):
		return fmt.Errorf("%s: %w: %w", op, transit.ErrTimeout, err)
	default:
		return fmt.Errorf("%s: executing request: %w", op, err)
	}
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
