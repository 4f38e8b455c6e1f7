package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CCShambots/5907-scouting-api/pkg/types"
)

// Templates

func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	names, err := s.mgr.List(r.Context(), types.DataTypeTemplate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleTemplateAdd(w http.ResponseWriter, r *http.Request) {
	var t types.Template
	if err := decodeBody(r, &t); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.mgr.Add(r.Context(), &t); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleTemplateEdit(w http.ResponseWriter, r *http.Request) {
	var t types.Template
	if err := decodeBody(r, &t); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.mgr.Edit(r.Context(), &t); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	data, err := s.mgr.GetSerialized(r.Context(), chi.URLParam(r, "name"), types.DataTypeTemplate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeStored(w, data)
}

func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Delete(r.Context(), chi.URLParam(r, "name"), types.DataTypeTemplate); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Schedules

func (s *Server) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	events, err := s.mgr.List(r.Context(), types.DataTypeSchedule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleScheduleAdd(w http.ResponseWriter, r *http.Request) {
	var sched types.Schedule
	if err := decodeBody(r, &sched); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.mgr.Add(r.Context(), &sched); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleScheduleEdit(w http.ResponseWriter, r *http.Request) {
	var sched types.Schedule
	if err := decodeBody(r, &sched); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.mgr.Edit(r.Context(), &sched); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	data, err := s.mgr.GetSerialized(r.Context(), chi.URLParam(r, "event"), types.DataTypeSchedule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeStored(w, data)
}

func (s *Server) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Delete(r.Context(), chi.URLParam(r, "event"), types.DataTypeSchedule); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleScheduleShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := s.mgr.ScheduleShifts(r.Context(), chi.URLParam(r, "event"), chi.URLParam(r, "scouter"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shifts)
}

// Bytes

func (s *Server) handleBytesList(w http.ResponseWriter, r *http.Request) {
	keys, err := s.mgr.BytesList(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleBytesAdd(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, fmt.Errorf("read body: %v: %w", err, types.ErrStorage))
		return
	}
	if err := s.mgr.BytesAdd(r.Context(), chi.URLParam(r, "key"), data); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleBytesEdit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, fmt.Errorf("read body: %v: %w", err, types.ErrStorage))
		return
	}
	if err := s.mgr.BytesEdit(r.Context(), chi.URLParam(r, "key"), data); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBytesGet(w http.ResponseWriter, r *http.Request) {
	data, err := s.mgr.BytesGet(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error().Err(err).Msg("write response")
	}
}

func (s *Server) handleBytesDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.BytesDelete(r.Context(), chi.URLParam(r, "key")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Forms

func (s *Server) handleFormsList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.mgr.FormsList(r.Context(), chi.URLParam(r, "template"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleFormsAdd(w http.ResponseWriter, r *http.Request) {
	var form types.Form
	if err := decodeBody(r, &form); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.mgr.FormsAdd(r.Context(), chi.URLParam(r, "template"), form)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

func (s *Server) handleFormsFilter(w http.ResponseWriter, r *http.Request) {
	var filter types.Filter
	if err := decodeBody(r, &filter); err != nil {
		s.writeError(w, err)
		return
	}
	forms, err := s.mgr.FormsFilter(r.Context(), chi.URLParam(r, "template"), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, forms)
}

func (s *Server) handleFormsGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, fmt.Errorf("form id: %v: %w", err, types.ErrDecode))
		return
	}
	data, err := s.mgr.FormsGetSerialized(r.Context(), chi.URLParam(r, "template"), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeStored(w, data)
}

func (s *Server) handleFormsEdit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, fmt.Errorf("form id: %v: %w", err, types.ErrDecode))
		return
	}
	var form types.Form
	if err := decodeBody(r, &form); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.mgr.FormsEdit(r.Context(), chi.URLParam(r, "template"), form, id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFormsDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, fmt.Errorf("form id: %v: %w", err, types.ErrDecode))
		return
	}
	if err := s.mgr.FormsDelete(r.Context(), chi.URLParam(r, "template"), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Misc

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	kind, err := types.ParseDataType(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	count, err := s.mgr.CountByAltKey(r.Context(), chi.URLParam(r, "altKey"), kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "txn"))
	if err != nil {
		s.writeError(w, fmt.Errorf("transaction id: %v: %w", err, types.ErrDecode))
		return
	}
	txn, err := s.mgr.Restore(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txn)
}
