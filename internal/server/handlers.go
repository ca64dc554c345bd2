package server

import (
	"encoding/json"
	"net/http"

	"github.com/openclaw/smartwaitd/internal/logger"
	"github.com/openclaw/smartwaitd/internal/wait"
)

// registerPayload is the POST /api/waits request body.
type registerPayload struct {
	Target              string  `json:"target"`
	Display             string  `json:"display,omitempty"`
	Criteria            string  `json:"criteria"`
	TimeoutSeconds      int     `json:"timeout_s,omitempty"`
	PollIntervalSeconds float64 `json:"poll_interval_s,omitempty"`
	TaskID              string  `json:"task_id,omitempty"`
}

// updatePayload is the PATCH /api/waits/{id} request body.
type updatePayload struct {
	Criteria       *string `json:"criteria,omitempty"`
	TimeoutSeconds *int    `json:"timeout_s,omitempty"`
	Note           *string `json:"note,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	req := wait.RegisterRequest{
		Target:              payload.Target,
		Display:             payload.Display,
		Criteria:            payload.Criteria,
		TimeoutSeconds:      payload.TimeoutSeconds,
		PollIntervalSeconds: payload.PollIntervalSeconds,
		TaskID:              payload.TaskID,
	}
	if req.Target == "" {
		req.Target = "screen"
	}
	if req.Display == "" {
		req.Display = s.cfg.Defaults.Display
	}
	if req.TimeoutSeconds == 0 {
		req.TimeoutSeconds = s.cfg.Defaults.TimeoutSeconds
	}
	if req.PollIntervalSeconds == 0 {
		req.PollIntervalSeconds = s.cfg.Defaults.PollIntervalSeconds
	}

	id, err := s.engine.Register(req)
	if err != nil {
		s.writeJSON(w, httpStatusFor(err), errorBody(err))
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"id": id, "status": "watching"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" || status == "watching" {
		snaps := s.engine.StatusAll()
		s.writeJSON(w, http.StatusOK, map[string]any{"waits": snaps})
		return
	}

	records, err := s.lister.List(status, 100)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorBody(err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Status(r.PathValue("id"))
	if err != nil {
		s.writeJSON(w, httpStatusFor(err), errorBody(err))
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload updatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	id := r.PathValue("id")
	err := s.engine.Update(id, wait.UpdateRequest{
		Criteria:       payload.Criteria,
		TimeoutSeconds: payload.TimeoutSeconds,
		Note:           payload.Note,
	})
	if err != nil {
		s.writeJSON(w, httpStatusFor(err), errorBody(err))
		return
	}

	snap, err := s.engine.Status(id)
	if err != nil {
		s.writeJSON(w, httpStatusFor(err), errorBody(err))
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reason := r.URL.Query().Get("reason")

	if err := s.engine.Cancel(id, reason); err != nil {
		s.writeJSON(w, httpStatusFor(err), errorBody(err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "active": len(s.engine.StatusAll())})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", err, logger.Field{Key: "status", Value: status})
	}
}
