// Package response provides utilities for HTTP response handling.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/bahnmcp/bahnmcp/internal/api/middleware"
	"github.com/bahnmcp/bahnmcp/internal/api/models"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ToolError writes the {"error": message} payload used by the tool endpoints.
func ToolError(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, r, status, models.ToolError{Error: message})
}

// Problem writes a Problem+JSON error response for the current request.
func Problem(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// NotFound writes a 404 problem for an unknown route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetRequestID(r.Context())
	Problem(w, r, models.NewNotFound(traceID, "no route for "+r.Method+" "+r.URL.Path))
}

// MethodNotAllowed writes a 405 problem.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetRequestID(r.Context())
	Problem(w, r, models.NewMethodNotAllowed(traceID, r.Method+" is not allowed on "+r.URL.Path))
}

// InternalError writes a 500 problem.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Problem(w, r, models.NewInternalError(traceID, detail))
}
