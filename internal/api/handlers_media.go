// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/striploop/internal/ingest"
	xglog "github.com/ManuGH/striploop/internal/log"
)

// multipartSlack covers headers and boundaries around the file part.
const multipartSlack = 1 << 20

type uploadResponse struct {
	JobID   string `json:"job_id"`
	RawPath string `json:"raw_path"`
	Dest    string `json:"dest"`
}

// handleUpload streams the multipart "file" field into the raw store and queues
// it for ingest. The body is never buffered in memory.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartSlack)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected multipart/form-data")
		return
	}

	logger := xglog.WithContext(r.Context(), s.logger)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "bad_request", "missing file field")
			return
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		if part.FileName() == "" {
			writeError(w, http.StatusBadRequest, "invalid_name", "no file selected")
			return
		}

		rawPath, err := ingest.Deposit(s.ingest.RawDir(), part.FileName(), part, s.cfg.MaxUploadBytes)
		_ = part.Close()
		if err != nil {
			logger.Warn().Err(err).Str("filename", part.FileName()).Msg("upload rejected")
			writeDomainError(w, err)
			return
		}

		id, err := s.ingest.Enqueue(r.Context(), rawPath)
		if err != nil {
			// The raw file stays; the watcher or a later upload can pick it up.
			logger.Error().Err(err).Str(xglog.FieldRawPath, rawPath).Msg("upload stored but not queued")
			writeDomainError(w, err)
			return
		}
		logger.Info().
			Str("event", "upload.accepted").
			Str(xglog.FieldJobID, id).
			Str(xglog.FieldRawPath, rawPath).
			Msg("upload accepted")
		writeJSON(w, http.StatusAccepted, uploadResponse{
			JobID:   id,
			RawPath: rawPath,
			Dest:    s.ingest.Destination(rawPath),
		})
		return
	}
}

type videoEntry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified,omitzero"`
}

func (s *Server) handleListVideos(w http.ResponseWriter, _ *http.Request) {
	items, err := ingest.ListProcessed(s.ingest.ProcessedDir())
	if err != nil {
		s.logger.Error().Err(err).Msg("list processed store")
		writeDomainError(w, err)
		return
	}
	out := make([]videoEntry, 0, len(items))
	for _, it := range items {
		e := videoEntry{Name: it.Name(), Size: it.Size}
		if info, err := os.Stat(it.Path); err == nil {
			e.Modified = info.ModTime().UTC()
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": out})
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := ingest.DeleteProcessed(s.ingest.ProcessedDir(), name); err != nil {
		writeDomainError(w, err)
		return
	}
	logger := xglog.WithContext(r.Context(), s.logger)
	logger.Info().
		Str("event", "library.deleted").
		Str("name", name).
		Msg("processed file deleted")
	w.WriteHeader(http.StatusNoContent)
}
