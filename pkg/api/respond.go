package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v as the response body
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

// writeStored serves payload bytes that were stored as JSON
func (s *Server) writeStored(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Error().Err(err).Msg("write response")
	}
}

// writeError maps the error taxonomy onto HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrConflict), errors.Is(err, types.ErrImmutable):
		status = http.StatusConflict
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrDecode):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrAuthDenied):
		status = http.StatusUnauthorized
	case errors.Is(err, types.ErrTransient):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeBody parses a JSON request body into v
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%v: %w", err, types.ErrDecode)
	}
	return nil
}
