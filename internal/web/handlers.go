package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/mediathek-loader/internal/config"
	"github.com/JonMunkholm/mediathek-loader/internal/core"
	"github.com/JonMunkholm/mediathek-loader/internal/loader"
)

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// respondError logs err with the request ID and writes the mapped user
// message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)
	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, status, ErrorResponse{Error: msg.Message, Action: msg.Action, Code: msg.Code})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	infos, err := s.channels.Channels(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// runBody is the optional JSON body of POST /api/run.
type runBody struct {
	Diff       bool `json:"diff"`
	Force      bool `json:"force"`
	MaxAgeDays *int `json:"max_age_days"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body runBody
	dec := json.NewDecoder(io.LimitReader(r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "REQ001"})
		return
	}
	if d := body.MaxAgeDays; d != nil && (*d < config.MinMaxAgeDays || *d > config.MaxMaxAgeDays) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("max_age_days must be %d-%d", config.MinMaxAgeDays, config.MaxMaxAgeDays),
			Code:  "REQ002",
		})
		return
	}

	req := loader.Request{Diff: body.Diff, Force: body.Force, MaxAgeDays: body.MaxAgeDays}
	if err := s.runner.Start(s.detach(r), req); err != nil {
		if errors.Is(err, core.ErrRunInProgress) {
			respondError(w, r, err, http.StatusConflict)
			return
		}
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
