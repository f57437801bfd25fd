package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/go-go-golems/contextcanvas/pkg/canvasdoc"
	"github.com/go-go-golems/contextcanvas/pkg/events"
	"github.com/go-go-golems/contextcanvas/pkg/orchestrator"
	"github.com/go-go-golems/contextcanvas/pkg/store"
)

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/chat-stream", s.handleChatStream)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.mux.HandleFunc("GET /api/canvases", s.handleListCanvases)
	s.mux.HandleFunc("POST /api/canvases", s.handleSaveCanvas)
	s.mux.HandleFunc("GET /api/canvases/{id}", s.handleGetCanvas)
	s.mux.HandleFunc("PUT /api/canvases/{id}", s.handleUpdateCanvas)
	s.mux.HandleFunc("DELETE /api/canvases/{id}", s.handleDeleteCanvas)

	s.mux.HandleFunc("GET /api/templates", s.handleListTemplates)
	s.mux.HandleFunc("GET /api/templates/{name}", s.handleGetTemplate)

	s.mux.HandleFunc("GET /api/sessions/{id}/viewport", s.handleGetViewport)
	s.mux.HandleFunc("POST /api/sessions/{id}/viewport", s.handleSetViewport)
	s.mux.HandleFunc("PUT /api/sessions/{id}/viewport", s.handleSetViewport)
	s.mux.HandleFunc("GET /api/sessions/{id}/canvas", s.handleSessionCanvas)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "contextcanvas server is running",
	})
}

// handleChat runs one orchestration to completion and returns the
// aggregate: final text, resulting canvas, tool invocations, token usage.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, _ := s.sessions.GetOrCreate(req.SessionID)
	if _, err := sess.TryAcquireRun(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	defer sess.EndRun()

	sink := &events.CollectorSink{}
	result, err := s.orch.Run(r.Context(), sess, runInput(req), sink)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sess.ID).Msg("chat run failed")
		writeJSON(w, http.StatusInternalServerError, ChatResponse{
			Success:   false,
			SessionID: sess.ID,
			CanvasJS:  result.Source,
			ToolUses:  result.ToolUses,
			Usage:     result.Usage,
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Success:           true,
		SessionID:         sess.ID,
		Response:          result.Text,
		CanvasJS:          result.Source,
		ToolUses:          result.ToolUses,
		Usage:             result.Usage,
		Thinking:          result.Thinking,
		ThinkingSignature: result.ThinkingSignature,
	})
}

func runInput(req ChatRequest) orchestrator.RunInput {
	in := orchestrator.RunInput{
		Message:    req.Message,
		CanvasJS:   req.CanvasJS,
		Screenshot: req.CanvasScreenshot,
	}
	if req.CanvasDimensions != nil {
		in.CanvasWidth = req.CanvasDimensions.Width
		in.CanvasHeight = req.CanvasDimensions.Height
	}
	return in
}

func (s *Server) handleListCanvases(w http.ResponseWriter, r *http.Request) {
	canvases, err := s.canvases.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"canvases": canvases})
}

func (s *Server) handleSaveCanvas(w http.ResponseWriter, r *http.Request) {
	var req SaveCanvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	canvasJS := canvasdoc.StripFences(req.CanvasJS)
	if canvasJS == "" && req.Template != "" {
		t, ok := s.templates.Get(req.Template)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown template: "+req.Template)
			return
		}
		canvasJS = t.CanvasJS
	}
	c := &store.Canvas{
		Name:     req.Name,
		Template: req.Template,
		CanvasJS: canvasJS,
	}
	if err := s.canvases.Save(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCanvas(w http.ResponseWriter, r *http.Request) {
	c, err := s.canvases.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "canvas not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCanvas(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.canvases.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "canvas not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var req SaveCanvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.CanvasJS != "" {
		existing.CanvasJS = canvasdoc.StripFences(req.CanvasJS)
	}
	if err := s.canvases.Save(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteCanvas(w http.ResponseWriter, r *http.Request) {
	if err := s.canvases.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "canvas not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": s.templates.List()})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, ok := s.templates.Get(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetViewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess.Viewport())
}

func (s *Server) handleSetViewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	var v orchestrator.Viewport
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, sess.SetViewport(v))
}

// handleSessionCanvas returns the session's current redacted source and,
// when available, the last rendered frame.
func (s *Server) handleSessionCanvas(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	resp := map[string]any{
		"session_id": sess.ID,
		"canvas_js":  canvasdoc.Redact(sess.Document(), canvasdoc.DefaultRedactThreshold),
	}
	if img := sess.LastImage(); img != nil {
		resp["image"] = img.Base64()
		resp["mime_type"] = img.MimeType
	}
	writeJSON(w, http.StatusOK, resp)
}
