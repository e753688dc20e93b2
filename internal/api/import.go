package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"fleetroute/internal/integrations"
	"fleetroute/internal/integrations/csvorders"
	"fleetroute/internal/model"
)

type importError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// ImportOrdersHandler handles POST /v1/orders/import with a text/csv body.
// Valid rows become awaiting orders; rejected rows are reported by line and
// do not stop the import.
func (s *Server) ImportOrdersHandler(w http.ResponseWriter, r *http.Request) {
	src, err := csvorders.NewReader(http.MaxBytesReader(w, r.Body, 8*maxBodyBytes))
	if err != nil {
		badRequest(w, r, err)
		return
	}
	created := []model.Order{}
	rejected := []importError{}
	for {
		rec, err := src.Next(r.Context())
		if errors.Is(err, io.EOF) {
			break
		}
		var re *integrations.RecordError
		if errors.As(err, &re) {
			rejected = append(rejected, importError{Line: re.Line, Error: re.Err.Error()})
			continue
		}
		if err != nil {
			s.writeError(w, r, "Import failed", err)
			return
		}
		o, err := s.Store.CreateOrder(r.Context(), model.Order{CustomerID: rec.CustomerID, Demand: rec.Demand})
		if err != nil {
			rejected = append(rejected, importError{Line: rec.Line, Error: err.Error()})
			continue
		}
		created = append(created, o)
	}
	s.Log.Info("orders imported", zap.String("source", src.Name()), zap.Int("created", len(created)), zap.Int("rejected", len(rejected)))
	writeJSON(w, http.StatusOK, map[string]any{"created": created, "rejected": rejected})
}
