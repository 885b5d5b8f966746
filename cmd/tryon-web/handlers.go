package main

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/virtual-tryon/internal/encoder"
	"github.com/fpang/virtual-tryon/internal/session"
)

// GET /
func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var buf bytes.Buffer
	if err := s.renderer.Page(&buf, s.ctrl.Snapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// POST /api/upload/{role} with multipart field "file"
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	role, err := session.ParseRole(strings.TrimPrefix(r.URL.Path, "/api/upload/"))
	if err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		// An empty selection is a no-op for the slot.
		s.finish(w, r, http.StatusBadRequest, errors.New("file is required"))
		return
	}
	defer file.Close()

	src := encoder.Source{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}
	err = s.ctrl.Upload(r.Context(), role, src)
	s.finish(w, r, uploadStatus(err), err)
}

// POST /api/clear/{role}
func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	role, err := session.ParseRole(strings.TrimPrefix(r.URL.Path, "/api/clear/"))
	if err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}

	err = s.ctrl.Clear(role)
	s.finish(w, r, http.StatusOK, err)
}

// POST /api/generate
func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sub, err := s.ctrl.Begin()
	if err != nil {
		s.finish(w, r, http.StatusConflict, err)
		return
	}
	s.startGeneration(sub)
	s.finish(w, r, http.StatusAccepted, nil)
}

// POST /api/error/dismiss
func (s *server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.ctrl.DismissError()
	s.finish(w, r, http.StatusOK, nil)
}

// GET /api/state
func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	respondJSON(w, http.StatusOK, newStateResponse(s.ctrl.Snapshot()))
}

// finish ends a mutating request. Form posts go back to the page, which
// shows any error in the banner; JSON callers get the state or the error.
func (s *server) finish(w http.ResponseWriter, r *http.Request, status int, err error) {
	if !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		httpError(w, status, err.Error())
		return
	}
	respondJSON(w, status, newStateResponse(s.ctrl.Snapshot()))
}

func uploadStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case encoder.IsValidation(err):
		return http.StatusUnsupportedMediaType
	case encoder.IsRead(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type slotResponse struct {
	Role       string `json:"role"`
	Label      string `json:"label"`
	Filled     bool   `json:"filled"`
	PreviewURL string `json:"preview_url,omitempty"`
	Name       string `json:"name,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
}

type stateResponse struct {
	Status    string         `json:"status"`
	Payload   string         `json:"payload,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	CanSubmit bool           `json:"can_submit"`
	Slots     []slotResponse `json:"slots"`
}

func newStateResponse(v session.View) stateResponse {
	resp := stateResponse{
		Error:     v.Error,
		CanSubmit: v.CanSubmit,
	}
	switch st := v.State.(type) {
	case session.Succeeded:
		resp.Payload = st.Payload
	case session.Failed:
		resp.Message = st.Message
	}
	if v.State != nil {
		resp.Status = v.State.Status()
	}
	for _, r := range session.Roles {
		sv := v.Slot(r)
		resp.Slots = append(resp.Slots, slotResponse{
			Role:       r.String(),
			Label:      r.Label(),
			Filled:     sv.Filled,
			PreviewURL: sv.PreviewURL,
			Name:       sv.Name,
			MediaType:  sv.MediaType,
		})
	}
	return resp
}
