package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// requireApprovedChild gates the peer group: the child_id header must
// name an approved child of this node
func (s *Server) requireApprovedChild(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("child_id")
		if raw == "" {
			s.writeError(w, fmt.Errorf("missing child_id: %w", types.ErrAuthDenied))
			return
		}
		childID, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, fmt.Errorf("child_id %q: %v: %w", raw, err, types.ErrDecode))
			return
		}
		if err := s.sync.Authorize(childID); err != nil {
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSyncID(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]uuid.UUID{"id": s.sync.ID()})
}

// handleSyncNext serves the transaction after the caller's watermark, or
// the first transaction when no watermark is given. 204 marks the tail.
func (s *Server) handleSyncNext(w http.ResponseWriter, r *http.Request) {
	var after *uuid.UUID
	if raw := r.URL.Query().Get("after"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, fmt.Errorf("after %q: %v: %w", raw, err, types.ErrDecode))
			return
		}
		after = &id
	}

	txn, err := s.sync.NextAfter(r.Context(), after)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if txn == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleSyncBlob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, fmt.Errorf("blob id: %v: %w", err, types.ErrDecode))
		return
	}
	data, err := s.sync.GetBlob(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error().Err(err).Msg("write blob response")
	}
}

func (s *Server) handleSyncDiff(w http.ResponseWriter, r *http.Request) {
	var peer []uuid.UUID
	if err := decodeBody(r, &peer); err != nil {
		s.writeError(w, err)
		return
	}
	have, need, err := s.sync.Diff(r.Context(), peer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]uuid.UUID{"have": have, "need": need})
}
