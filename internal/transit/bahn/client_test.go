package bahn_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bahnmcp/bahnmcp/internal/cache"
	"github.com/bahnmcp/bahnmcp/internal/provider/resilience"
	"github.com/bahnmcp/bahnmcp/internal/transit"
	"github.com/bahnmcp/bahnmcp/internal/transit/bahn"
)

const boardJSON = `{
	"entries": [
		{
			"journeyId": "2|#VN#1#ST#1740000000#PI#0#ZI#123456#",
			"terminus": "München Hbf",
			"gleis": "7",
			"ezGleis": "",
			"zeit": "2026-02-24T14:32:00",
			"ezZeit": "2026-02-24T14:39:00",
			"ueber": ["Frankfurt(Main)Hbf", "Mannheim Hbf"],
			"verkehrmittel": {"kurzText": "ICE", "mittelText": "ICE 619", "langText": "ICE 619", "name": "ICE 619"},
			"meldungen": [{"type": "QUALITAET", "text": "Bordrestaurant geschlossen"}]
		}
	]
}`

const journeyJSON = `{
	"zugName": "ICE 619",
	"reisetag": "2026-02-24",
	"cancelled": false,
	"halte": [
		{"name": "Frankfurt(Main)Hbf", "evaNumber": "8000105", "gleis": "7", "abfahrtsZeitpunkt": "2026-02-24T14:32:00"},
		{"name": "Mannheim Hbf", "extId": 8000244, "ankunftsZeitpunkt": "2026-02-24T15:10:00", "canceled": true}
	]
}`

type fakeUpstream struct {
	server *httptest.Server
	hits   atomic.Int32

	mu       sync.Mutex
	requests []*http.Request
}

func newFakeUpstream(t *testing.T, handler http.HandlerFunc) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.mu.Lock()
		f.requests = append(f.requests, r.Clone(context.Background()))
		f.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) lastRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func newTestClient(baseURL string, store *cache.Cache[[]byte]) *bahn.Client {
	if store == nil {
		store = cache.New[[]byte](time.Minute)
	}
	return bahn.NewClient(bahn.ClientConfig{
		BaseURL:    baseURL,
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig("bahn-test")),
		Cache:      store,
		Logger:     zerolog.Nop(),
	})
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "bahn", newTestClient("http://localhost", nil).Name())
}

func TestClient_SearchStations(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(`[
		{"evaNumber": 8000105, "id": "A=1@O=Frankfurt(Main)Hbf@X=8663785@Y=50107149@", "name": "Frankfurt(Main)Hbf", "lat": 50.107149, "lon": 8.663785, "type": "ST", "products": ["ICE", "REGIONAL"]},
		{"extId": "8098105", "name": "Frankfurt(M) Flughafen", "type": "ST"}
	]`))
	client := newTestClient(upstream.server.URL, nil)

	stations, err := client.SearchStations(context.Background(), "Frankfurt", 10)
	require.NoError(t, err)
	require.Len(t, stations, 2)

	require.NotNil(t, stations[0].EVANumber)
	assert.Equal(t, transit.FlexInt(8000105), *stations[0].EVANumber)
	assert.Equal(t, "Frankfurt(Main)Hbf", stations[0].Name)
	assert.Equal(t, []string{"ICE", "REGIONAL"}, stations[0].Products)
	require.NotNil(t, stations[1].ExtID)
	assert.Equal(t, transit.FlexInt(8098105), *stations[1].ExtID)

	req := upstream.lastRequest()
	assert.Equal(t, "/reiseloesung/orte", req.URL.Path)
	assert.Equal(t, "Frankfurt", req.URL.Query().Get("suchbegriff"))
	assert.Equal(t, "ALL", req.URL.Query().Get("typ"))
	assert.Equal(t, "10", req.URL.Query().Get("limit"))
}

func TestClient_SearchStations_WrappedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "items", body: `{"items": [{"name": "A"}, {"name": "B"}]}`, want: 2},
		{name: "orte", body: `{"orte": [{"name": "A"}]}`, want: 1},
		{name: "items wins over orte", body: `{"items": [], "orte": [{"name": "A"}]}`, want: 0},
		{name: "neither", body: `{}`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := newFakeUpstream(t, jsonHandler(tt.body))
			client := newTestClient(upstream.server.URL, nil)

			stations, err := client.SearchStations(context.Background(), "x", 10)
			require.NoError(t, err)
			assert.Len(t, stations, tt.want)
		})
	}
}

func TestClient_Departures(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(boardJSON))
	client := newTestClient(upstream.server.URL, nil)

	board, err := client.Departures(context.Background(), transit.BoardQuery{
		EVA:     8000105,
		HafasID: "A=1@O=Frankfurt(Main)Hbf@X=8663785@Y=50107149@",
		Date:    "2026-02-24",
		Time:    "14:30:00",
		Modes:   []string{"SBAHN", "ICE"},
	})
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)

	entry := board.Entries[0]
	assert.Equal(t, "München Hbf", entry.Terminus)
	assert.Equal(t, "ICE 619", entry.Verkehrmittel.MittelText)
	assert.Equal(t, []string{"Frankfurt(Main)Hbf", "Mannheim Hbf"}, entry.Ueber)
	require.Len(t, entry.Meldungen, 1)

	q := upstream.lastRequest().URL.Query()
	assert.Equal(t, "/reiseloesung/abfahrten", upstream.lastRequest().URL.Path)
	assert.Equal(t, "2026-02-24", q.Get("datum"))
	assert.Equal(t, "14:30:00", q.Get("zeit"))
	assert.Equal(t, "8000105", q.Get("ortExtId"))
	assert.Equal(t, "A=1@O=Frankfurt(Main)Hbf@X=8663785@Y=50107149@", q.Get("ortId"))
	assert.Equal(t, "true", q.Get("mitVias"))
	assert.Equal(t, "5", q.Get("maxVias"))
	assert.Equal(t, []string{"SBAHN", "ICE"}, q["verkehrsmittel[]"])
}

func TestClient_Departures_NoModesSendsNoFilter(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(boardJSON))
	client := newTestClient(upstream.server.URL, nil)

	_, err := client.Departures(context.Background(), transit.BoardQuery{EVA: 1, Date: "2026-02-24", Time: "14:30:00"})
	require.NoError(t, err)

	_, ok := upstream.lastRequest().URL.Query()["verkehrsmittel[]"]
	assert.False(t, ok)
}

func TestClient_Departures_CacheKeyIncludesSortedModes(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(boardJSON))
	store := cache.New[[]byte](time.Minute)
	client := newTestClient(upstream.server.URL, store)
	ctx := context.Background()

	query := transit.BoardQuery{EVA: 8000105, HafasID: "x", Date: "2026-02-24", Time: "14:30:00"}

	query.Modes = []string{"ICE", "SBAHN"}
	_, err := client.Departures(ctx, query)
	require.NoError(t, err)

	query.Modes = []string{"SBAHN", "ICE"}
	_, err = client.Departures(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int32(1), upstream.hits.Load(), "mode order must not change the cache key")

	query.Modes = []string{"ICE"}
	_, err = client.Departures(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int32(2), upstream.hits.Load(), "different modes are a different board")

	query.Modes = nil
	_, err = client.Departures(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int32(3), upstream.hits.Load())

	assert.Equal(t, 3, store.Len())
}

func TestClient_Journey(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(journeyJSON))
	client := newTestClient(upstream.server.URL, nil)

	journey, err := client.Journey(context.Background(), "2|#VN#1#")
	require.NoError(t, err)

	assert.Equal(t, "ICE 619", journey.ZugName)
	require.Len(t, journey.Halte, 2)
	assert.Equal(t, transit.FlexString("8000105"), journey.Halte[0].EVANumber)
	assert.Equal(t, transit.FlexString("8000244"), journey.Halte[1].ExtID)
	assert.True(t, journey.Halte[1].Canceled)

	q := upstream.lastRequest().URL.Query()
	assert.Equal(t, "/reiseloesung/fahrt", upstream.lastRequest().URL.Path)
	assert.Equal(t, "2|#VN#1#", q.Get("journeyId"))
	assert.Equal(t, "false", q.Get("poly"))
}

func TestClient_NearbyStations(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(`[{"extId": "8000105", "name": "Frankfurt(Main)Hbf", "type": "ST"}]`))
	client := newTestClient(upstream.server.URL, nil)

	stations, err := client.NearbyStations(context.Background(), 50.107149, 8.663785, 500, 3)
	require.NoError(t, err)
	require.Len(t, stations, 1)

	q := upstream.lastRequest().URL.Query()
	assert.Equal(t, "/reiseloesung/orte/nearby", upstream.lastRequest().URL.Path)
	assert.Equal(t, "50.107149", q.Get("lat"))
	assert.Equal(t, "8.663785", q.Get("long"))
	assert.Equal(t, "500", q.Get("radius"))
	assert.Equal(t, "3", q.Get("maxNo"))
}

func TestClient_CacheHit(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(`[{"name": "Frankfurt(Main)Hbf"}]`))
	client := newTestClient(upstream.server.URL, nil)
	ctx := context.Background()

	first, err := client.SearchStations(ctx, "Frankfurt", 10)
	require.NoError(t, err)
	second, err := client.SearchStations(ctx, "Frankfurt", 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), upstream.hits.Load())

	_, err = client.SearchStations(ctx, "Frankfurt", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), upstream.hits.Load(), "limit is part of the key")
}

func TestClient_CacheExpiresPerEndpointTTL(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 2, 24, 14, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	upstream := newFakeUpstream(t, jsonHandler(journeyJSON))
	client := newTestClient(upstream.server.URL, cache.New[[]byte](time.Minute, cache.WithNow(clock)))
	ctx := context.Background()

	_, err := client.Journey(ctx, "j")
	require.NoError(t, err)

	advance(29 * time.Second)
	_, err = client.Journey(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, int32(1), upstream.hits.Load(), "journey is fresh for 30s")

	advance(2 * time.Second)
	_, err = client.Journey(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, int32(2), upstream.hits.Load(), "journey refetched after 30s")
}

func TestClient_NotFound(t *testing.T) {
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	client := newTestClient(upstream.server.URL, nil)

	_, err := client.Journey(context.Background(), "gone")
	require.Error(t, err)

	assert.True(t, errors.Is(err, transit.ErrNotFound))

	var apiErr *transit.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "Resource not found (404): ")
	assert.Contains(t, apiErr.Error(), "/reiseloesung/fahrt?")
}

func TestClient_ServerErrorIsNotRetriedOrCached(t *testing.T) {
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := cache.New[[]byte](time.Minute)
	client := newTestClient(upstream.server.URL, store)

	_, err := client.SearchStations(context.Background(), "Frankfurt", 10)
	require.Error(t, err)

	var apiErr *transit.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, "Upstream API error (500)", apiErr.Error())
	assert.False(t, errors.Is(err, transit.ErrNotFound))
	assert.Equal(t, int32(1), upstream.hits.Load(), "exactly one attempt")
	assert.Equal(t, 0, store.Len(), "errors are not cached")

	_, err = client.SearchStations(context.Background(), "Frankfurt", 10)
	require.Error(t, err)
	assert.Equal(t, int32(2), upstream.hits.Load())
}

func TestClient_ClientErrorStatus(t *testing.T) {
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	client := newTestClient(upstream.server.URL, nil)

	_, err := client.Departures(context.Background(), transit.BoardQuery{EVA: 1})

	var apiErr *transit.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_MalformedBodyIsNotCached(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(`{"entries": "nope"`))
	store := cache.New[[]byte](time.Minute)
	client := newTestClient(upstream.server.URL, store)

	_, err := client.Departures(context.Background(), transit.BoardQuery{EVA: 1})
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestClient_Timeout(t *testing.T) {
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	})

	cfg := resilience.DefaultClientConfig("bahn-timeout")
	cfg.Timeout = 50 * time.Millisecond
	client := bahn.NewClient(bahn.ClientConfig{
		BaseURL:    upstream.server.URL,
		HTTPClient: resilience.NewClient(cfg),
		Logger:     zerolog.Nop(),
	})

	_, err := client.SearchStations(context.Background(), "Frankfurt", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, transit.ErrTimeout))
	assert.Equal(t, int32(1), upstream.hits.Load())
}

func TestClient_RepeatedServerErrorsAlwaysReachUpstream(t *testing.T) {
	upstream := newFakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/reiseloesung/fahrt" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		jsonHandler(`[]`)(w, r)
	})
	client := newTestClient(upstream.server.URL, nil)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		_, err := client.Journey(ctx, "bad-id")

		var apiErr *transit.APIError
		require.True(t, errors.As(err, &apiErr), "call %d: %v", i, err)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.False(t, errors.Is(err, resilience.ErrCircuitOpen))
		assert.Equal(t, int32(i), upstream.hits.Load())
	}

	// Failing journeys do not block other endpoints.
	_, err := client.SearchStations(ctx, "Frankfurt", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(8), upstream.hits.Load())
}

func TestClient_BrowserHeaders(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(`[]`))
	client := newTestClient(upstream.server.URL, nil)

	_, err := client.SearchStations(context.Background(), "Frankfurt", 10)
	require.NoError(t, err)

	h := upstream.lastRequest().Header
	assert.Equal(t, "application/json, text/plain, */*", h.Get("Accept"))
	assert.Equal(t, "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7", h.Get("Accept-Language"))
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
	assert.Equal(t, "no-cache", h.Get("Pragma"))
	assert.Equal(t, "https://www.bahn.de", h.Get("Origin"))
	assert.Equal(t, "https://www.bahn.de/buchung/fahrplan/suche", h.Get("Referer"))
	assert.Equal(t, "empty", h.Get("Sec-Fetch-Dest"))
	assert.Equal(t, "cors", h.Get("Sec-Fetch-Mode"))
	assert.Equal(t, "same-origin", h.Get("Sec-Fetch-Site"))
	assert.Equal(t, `"Chromium";v="131", "Not?A_Brand";v="24", "Google Chrome";v="131"`, h.Get("sec-ch-ua"))
	assert.Equal(t, "?0", h.Get("sec-ch-ua-mobile"))
	assert.Contains(t, h.Get("User-Agent"), "Chrome/131.0.0.0")
}

var correlationIDPattern = regexp.MustCompile(
	`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestClient_CorrelationIDFreshPerCall(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(`[]`))
	client := newTestClient(upstream.server.URL, nil)
	ctx := context.Background()

	_, err := client.SearchStations(ctx, "a", 10)
	require.NoError(t, err)
	first := upstream.lastRequest().Header.Get("x-correlation-id")

	_, err = client.SearchStations(ctx, "b", 10)
	require.NoError(t, err)
	second := upstream.lastRequest().Header.Get("x-correlation-id")

	assert.Regexp(t, correlationIDPattern, first)
	assert.Regexp(t, correlationIDPattern, second)
	assert.NotEqual(t, first, second)
}

func TestClient_UserAgentRotates(t *testing.T) {
	upstream := newFakeUpstream(t, jsonHandler(`[]`))
	client := newTestClient(upstream.server.URL, nil)
	ctx := context.Background()

	seen := make(map[string]bool)
	var order []string
	for _, q := range []string{"a", "b", "c", "d"} {
		_, err := client.SearchStations(ctx, q, 10)
		require.NoError(t, err)
		ua := upstream.lastRequest().Header.Get("User-Agent")
		seen[ua] = true
		order = append(order, ua)
	}

	assert.Len(t, seen, 3, "three distinct user agents in rotation")
	assert.Equal(t, order[0], order[3], "rotation wraps after three calls")
}

func TestClient_ConcurrentMissesAreNotCoalesced(t *testing.T) {
	const callers = 5

	release := make(chan struct{})
	var arrived atomic.Int32

	upstream := newFakeUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		if arrived.Add(1) == callers {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		_, _ = w.Write([]byte(`[{"name": "Frankfurt(Main)Hbf"}]`))
	})
	store := cache.New[[]byte](time.Minute)
	client := newTestClient(upstream.server.URL, store)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.SearchStations(context.Background(), "Frankfurt", 10)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(callers), upstream.hits.Load(), "every concurrent miss reaches upstream")
	assert.Equal(t, 1, store.Len(), "all callers write the same key")
}
