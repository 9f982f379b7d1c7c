// Package handler provides HTTP handlers for the bahnmcp API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bahnmcp/bahnmcp/internal/api/middleware"
	"github.com/bahnmcp/bahnmcp/internal/api/models"
	"github.com/bahnmcp/bahnmcp/internal/api/response"
	"github.com/bahnmcp/bahnmcp/internal/clock"
	"github.com/bahnmcp/bahnmcp/internal/provider/resilience"
	"github.com/bahnmcp/bahnmcp/internal/transit"
)

// Tool error messages returned to callers.
const (
	msgInvalidJSON       = "Invalid JSON body"
	msgInvalidDateTime   = "Invalid datetime format, expected YYYY-MM-DDTHH:MM:SS"
	msgEmptyStation      = "Station name cannot be empty"
	msgEmptyJourneyID    = "journey_id cannot be empty"
	msgUpstreamBadInput  = "Invalid request. Please check your inputs."
	msgUpstreamNotFound  = "Resource not found."
	msgTimeout           = "Request timed out. Please try again."
	msgCircuitOpen       = "Upstream API temporarily unavailable. Please try again later."
	msgUnexpected        = "An unexpected error occurred."
	msgUpstreamErrFormat = "Upstream API error (%d). Please try again later."
)

// DepartureService is the transit functionality the tool endpoints expose.
type DepartureService interface {
	GetDepartures(ctx context.Context, req transit.DepartureRequest) (*transit.Location, []*transit.Departure, error)
	GetJourney(ctx context.Context, journeyID string) (*transit.Journey, error)
	NearbyStations(ctx context.Context, req transit.NearbyRequest) ([]*transit.Location, error)
}

// ToolsHandler serves the LLM tool endpoints. Every failure is answered with
// a {"error": message} payload.
type ToolsHandler struct {
	service  DepartureService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewToolsHandler creates a new ToolsHandler.
func NewToolsHandler(service DepartureService, logger zerolog.Logger) *ToolsHandler {
	return &ToolsHandler{
		service:  service,
		validate: newValidator(),
		logger:   logger,
	}
}

// GetDepartures handles POST /v1/tools/get_departures.
func (h *ToolsHandler) GetDepartures(w http.ResponseWriter, r *http.Request) {
	var input models.GetDeparturesRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.ToolError(w, r, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	station := strings.TrimSpace(input.StationName)
	if station == "" {
		response.ToolError(w, r, http.StatusBadRequest, msgEmptyStation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		response.ToolError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}

	at, err := parseBoardTime(input.DateTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	modes, err := transit.ParseTransportModes(input.TransportModes)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	location, departures, err := h.service.GetDepartures(r.Context(), transit.DepartureRequest{
		Station:     station,
		At:          at,
		Modes:       modes,
		Destination: input.DestinationFilter,
		MaxResults:  input.MaxResults,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result := models.DeparturesResult{
		Station:    models.NewStation(location),
		BoardTime:  input.DateTime,
		Departures: make([]models.Departure, 0, len(departures)),
		Count:      len(departures),
	}
	for _, d := range departures {
		result.Departures = append(result.Departures, models.NewDeparture(d))
	}

	response.JSON(w, r, http.StatusOK, result)
}

// GetJourney handles POST /v1/tools/get_journey.
func (h *ToolsHandler) GetJourney(w http.ResponseWriter, r *http.Request) {
	var input models.GetJourneyRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.ToolError(w, r, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	journeyID := strings.TrimSpace(input.JourneyID)
	if journeyID == "" {
		response.ToolError(w, r, http.StatusBadRequest, msgEmptyJourneyID)
		return
	}

	journey, err := h.service.GetJourney(r.Context(), journeyID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewJourneyResult(journey))
}

// nearbyQuery holds the parsed query of GET /v1/stations/nearby.
type nearbyQuery struct {
	Lat    *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon    *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Radius int      `json:"radius" validate:"omitempty,min=1,max=100000"`
	Max    int      `json:"max" validate:"omitempty,min=1,max=1000"`
}

// NearbyStations handles GET /v1/stations/nearby?lat=&lon=&radius=&max=.
func (h *ToolsHandler) NearbyStations(w http.ResponseWriter, r *http.Request) {
	q, err := parseNearbyQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		response.ToolError(w, r, http.StatusBadRequest, validationMessage(err))
		return
	}

	locations, err := h.service.NearbyStations(r.Context(), transit.NearbyRequest{
		Lat:    *q.Lat,
		Lon:    *q.Lon,
		Radius: q.Radius,
		Max:    q.Max,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result := models.NearbyStationsResult{
		Stations: make([]models.Station, 0, len(locations)),
		Count:    len(locations),
	}
	for _, l := range locations {
		result.Stations = append(result.Stations, models.NewStation(l))
	}

	response.JSON(w, r, http.StatusOK, result)
}

// fail maps err to a tool error response. Unexpected errors are logged and
// their detail is never returned.
func (h *ToolsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message, unexpected := toolError(err)
	if unexpected {
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("unexpected error in tool call")
	} else {
		h.logger.Debug().
			Err(err).
			Int("status", status).
			Str("path", r.URL.Path).
			Msg("tool call failed")
	}
	response.ToolError(w, r, status, message)
}

// toolError translates a service error into an HTTP status and a caller-facing message.
func toolError(err error) (status int, message string, unexpected bool) {
	var (
		notFound   *transit.StationNotFoundError
		apiErr     *transit.APIError
		validation *transit.ValidationError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error(), false
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusBadRequest:
			return http.StatusBadRequest, msgUpstreamBadInput, false
		case apiErr.StatusCode == http.StatusNotFound:
			return http.StatusNotFound, msgUpstreamNotFound, false
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return http.StatusBadGateway, fmt.Sprintf(msgUpstreamErrFormat, apiErr.StatusCode), false
		default:
			return http.StatusBadGateway, apiErr.Error(), false
		}
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, msgCircuitOpen, false
	case errors.Is(err, transit.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, msgTimeout, false
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error(), false
	default:
		return http.StatusInternalServerError, msgUnexpected, true
	}
}

// parseBoardTime parses an optional wall-clock board time in Europe/Berlin.
func parseBoardTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.ParseInLocation(models.DateTimeLayout, *s, clock.Berlin)
	if err != nil {
		return nil, &transit.ValidationError{Field: "datetime", Message: msgInvalidDateTime, Err: err}
	}
	return &t, nil
}

func parseNearbyQuery(r *http.Request) (*nearbyQuery, error) {
	values := r.URL.Query()
	q := &nearbyQuery{}

	for _, f := range []struct {
		name string
		dst  **float64
	}{
		{"lat", &q.Lat},
		{"lon", &q.Lon},
	} {
		raw := values.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &transit.ValidationError{Field: f.name, Message: f.name + " must be a number", Err: err}
		}
		*f.dst = &v
	}

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"radius", &q.Radius},
		{"max", &q.Max},
	} {
		raw := values.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &transit.ValidationError{Field: f.name, Message: f.name + " must be an integer", Err: err}
		}
		*f.dst = v
	}

	return q, nil
}
