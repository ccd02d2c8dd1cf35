package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ManuGH/striploop/internal/mode"
)

type modeRequest struct {
	Mode string `json:"mode"`
}

type modeResponse struct {
	mode.Status
	Changed bool `json:"changed"`
}

func (s *Server) handleGetMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.modes.Status())
}

func (s *Server) handlePutMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"mode\": \"video\"|\"audio\"}")
		return
	}
	target, err := mode.Parse(req.Mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ctx := r.Context()
	if s.cfg.SwitchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SwitchTimeout)
		defer cancel()
	}
	changed, err := s.modes.SwitchTo(ctx, target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modeResponse{Status: s.modes.Status(), Changed: changed})
}
