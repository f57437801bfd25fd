package server

import (
	"github.com/go-go-golems/contextcanvas/pkg/claude"
	"github.com/go-go-golems/contextcanvas/pkg/orchestrator"
)

// ChatRequest is one user message against a session. CanvasJS carries the
// client's local copy of the canvas (manual edits included); the optional
// screenshot is a base64 PNG of the client's rendering.
type ChatRequest struct {
	Message          string            `json:"message"`
	SessionID        string            `json:"session_id,omitempty"`
	CanvasJS         string            `json:"canvas_js,omitempty"`
	CanvasScreenshot string            `json:"canvas_screenshot,omitempty"`
	CanvasDimensions *CanvasDimensions `json:"canvas_dimensions,omitempty"`
}

type CanvasDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ChatResponse is the buffered (non-streaming) result of a run. Thinking
// and its signature appear only when extended thinking is enabled.
type ChatResponse struct {
	Success           bool                          `json:"success"`
	SessionID         string                        `json:"session_id"`
	Response          string                        `json:"response"`
	CanvasJS          string                        `json:"canvas_js"`
	ToolUses          []orchestrator.ToolInvocation `json:"tool_uses,omitempty"`
	Usage             claude.Usage                  `json:"usage"`
	Thinking          string                        `json:"thinking,omitempty"`
	ThinkingSignature string                        `json:"thinking_signature,omitempty"`
	Error             string                        `json:"error,omitempty"`
}

// SaveCanvasRequest creates or updates a saved canvas.
type SaveCanvasRequest struct {
	Name     string `json:"name"`
	Template string `json:"template,omitempty"`
	CanvasJS string `json:"canvas_js"`
}

type errorResponse struct {
	Error string `json:"error"`
}
