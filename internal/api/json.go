package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"fleetroute/internal/model"
	"fleetroute/internal/planning"
	"fleetroute/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP problems. Optimization failures
// carry the dispatcher-facing reason as their detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	status := http.StatusInternalServerError
	detail := err.Error()
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrUnknownStatus):
		status = http.StatusBadRequest
	case errors.Is(err, planning.ErrInvalidTransition),
		errors.Is(err, store.ErrStatusConflict),
		errors.Is(err, store.ErrOrderUnavailable):
		status = http.StatusConflict
	case errors.Is(err, planning.ErrNoPathFinder):
		status = http.StatusServiceUnavailable
	case isOptimizationFailure(err):
		status = http.StatusUnprocessableEntity
		detail = planning.FailureReason(err)
	}
	if status >= 500 {
		s.Log.Error(title, zap.Error(err), zap.String("path", r.URL.Path))
		detail = "internal error"
	}
	writeProblem(w, status, title, detail, r.URL.Path)
}

func isOptimizationFailure(err error) bool {
	return planning.Outcome(err) != "error"
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
}
