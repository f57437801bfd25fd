package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/contextcanvas/pkg/canvasdoc"
	"github.com/go-go-golems/contextcanvas/pkg/claude"
	"github.com/go-go-golems/contextcanvas/pkg/webshot"
)

// Canvas tool names as exposed to the model.
const (
	ToolAppendToCanvas = "append_to_canvas"
	ToolReplaceCanvas  = "replace_canvas"
	ToolUpdateElement  = "update_element"
	ToolImportWebpage  = "import_webpage"
)

// ToolOutcome is what one tool execution produced: the result text folded
// back to the model, whether it counts as a tool error, and a short
// human-readable summary for event consumers.
type ToolOutcome struct {
	ResultText string
	IsError    bool
	Summary    string
}

type toolHandler func(ctx context.Context, s *Session, input json.RawMessage) ToolOutcome

// ToolRegistry maps tool names to handlers and carries the tool
// declarations sent with every model request.
type ToolRegistry struct {
	specs    []claude.Tool
	handlers map[string]toolHandler
	shooter  webshot.Screenshotter
	logger   zerolog.Logger
}

type RegistryOption func(*ToolRegistry)

// WithScreenshotter wires the webpage capture collaborator. Without it,
// import_webpage reports a tool error instead of capturing.
func WithScreenshotter(sh webshot.Screenshotter) RegistryOption {
	return func(r *ToolRegistry) { r.shooter = sh }
}

func NewToolRegistry(opts ...RegistryOption) *ToolRegistry {
	r := &ToolRegistry{
		handlers: make(map[string]toolHandler),
		logger:   log.With().Str("component", "tools").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.register(claude.Tool{
		Name:        ToolAppendToCanvas,
		Description: "Append JavaScript drawing code to the end of the canvas script. Use for adding new content without touching what is already there.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"code": {"type": "string", "description": "JavaScript canvas drawing code to append"}
			},
			"required": ["code"]
		}`),
	}, r.handleAppend)
	r.register(claude.Tool{
		Name:        ToolReplaceCanvas,
		Description: "Replace the entire canvas script with new JavaScript. Use when starting over or restructuring the whole drawing.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"code": {"type": "string", "description": "complete JavaScript canvas drawing code"}
			},
			"required": ["code"]
		}`),
	}, r.handleReplace)
	r.register(claude.Tool{
		Name:        ToolUpdateElement,
		Description: "Replace the body of a named element delimited by '// ELEMENT: name' and '// END ELEMENT: name' marker comments. Set create_if_missing to add the element when it does not exist yet.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"element_name": {"type": "string", "description": "name of the element to update"},
				"code": {"type": "string", "description": "new JavaScript body for the element, without the marker lines"},
				"create_if_missing": {"type": "boolean", "description": "append a new marked element if none exists"}
			},
			"required": ["element_name", "code"]
		}`),
	}, r.handleUpdateElement)
	r.register(claude.Tool{
		Name:        ToolImportWebpage,
		Description: "Capture a screenshot of a webpage and draw it onto the canvas as an image. Only http and https URLs are allowed.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "http(s) URL of the page to capture"},
				"x": {"type": "number", "description": "canvas x position to draw at (default 0)"},
				"y": {"type": "number", "description": "canvas y position to draw at (default 0)"},
				"width": {"type": "number", "description": "drawn width on the canvas (default 400)"},
				"height": {"type": "number", "description": "drawn height on the canvas (default 300)"}
			},
			"required": ["url"]
		}`),
	}, r.handleImportWebpage)
	return r
}

func (r *ToolRegistry) register(spec claude.Tool, h toolHandler) {
	r.specs = append(r.specs, spec)
	r.handlers[spec.Name] = h
}

// Specs returns the tool declarations in registration order.
func (r *ToolRegistry) Specs() []claude.Tool {
	return r.specs
}

// Execute dispatches one tool call against the session. Unknown tool names
// come back as a tool error, never a Go error: the model sees its mistake
// in the result and can recover.
func (r *ToolRegistry) Execute(ctx context.Context, s *Session, name string, input json.RawMessage) ToolOutcome {
	h, ok := r.handlers[name]
	if !ok {
		return ToolOutcome{
			ResultText: fmt.Sprintf("unknown tool: %s", name),
			IsError:    true,
			Summary:    "unknown tool " + name,
		}
	}
	out := h(ctx, s, input)
	if out.IsError {
		r.logger.Debug().Str("tool", name).Str("error", out.ResultText).Msg("tool call failed")
	} else {
		r.logger.Debug().Str("tool", name).Msg("tool call executed")
	}
	return out
}

type appendInput struct {
	Code string `json:"code"`
}

func (r *ToolRegistry) handleAppend(_ context.Context, s *Session, input json.RawMessage) ToolOutcome {
	var in appendInput
	if err := json.Unmarshal(input, &in); err != nil {
		return badInput(ToolAppendToCanvas, err)
	}
	code := canvasdoc.StripFences(in.Code)
	if code == "" {
		return ToolOutcome{ResultText: "append_to_canvas: code is empty", IsError: true, Summary: "empty code"}
	}
	s.mu.Lock()
	s.doc.Append(code)
	s.mu.Unlock()
	return ToolOutcome{
		ResultText: "Code appended to canvas.",
		Summary:    fmt.Sprintf("appended %d lines", strings.Count(code, "\n")+1),
	}
}

type replaceInput struct {
	Code string `json:"code"`
}

func (r *ToolRegistry) handleReplace(_ context.Context, s *Session, input json.RawMessage) ToolOutcome {
	var in replaceInput
	if err := json.Unmarshal(input, &in); err != nil {
		return badInput(ToolReplaceCanvas, err)
	}
	code := canvasdoc.StripFences(in.Code)
	s.mu.Lock()
	s.doc.ReplaceAll(code)
	s.mu.Unlock()
	return ToolOutcome{
		ResultText: "Canvas replaced.",
		Summary:    "replaced entire canvas",
	}
}

type updateElementInput struct {
	ElementName     string `json:"element_name"`
	Code            string `json:"code"`
	CreateIfMissing bool   `json:"create_if_missing"`
}

func (r *ToolRegistry) handleUpdateElement(_ context.Context, s *Session, input json.RawMessage) ToolOutcome {
	var in updateElementInput
	if err := json.Unmarshal(input, &in); err != nil {
		return badInput(ToolUpdateElement, err)
	}
	if in.ElementName == "" {
		return ToolOutcome{ResultText: "update_element: element_name is required", IsError: true, Summary: "missing element name"}
	}
	code := canvasdoc.StripFences(in.Code)
	s.mu.Lock()
	err := s.doc.UpdateElement(in.ElementName, code, in.CreateIfMissing)
	s.mu.Unlock()
	if err != nil {
		var notFound *canvasdoc.ElementNotFoundError
		if errors.As(err, &notFound) {
			return ToolOutcome{
				ResultText: fmt.Sprintf("Element %q not found. Pass create_if_missing to add it, or check the element markers in the current canvas source.", in.ElementName),
				IsError:    true,
				Summary:    "element " + in.ElementName + " not found",
			}
		}
		return ToolOutcome{ResultText: err.Error(), IsError: true, Summary: "update failed"}
	}
	return ToolOutcome{
		ResultText: fmt.Sprintf("Element %q updated.", in.ElementName),
		Summary:    "updated element " + in.ElementName,
	}
}

type importWebpageInput struct {
	URL    string  `json:"url"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r *ToolRegistry) handleImportWebpage(ctx context.Context, s *Session, input json.RawMessage) ToolOutcome {
	var in importWebpageInput
	if err := json.Unmarshal(input, &in); err != nil {
		return badInput(ToolImportWebpage, err)
	}
	if in.Width <= 0 {
		in.Width = 400
	}
	if in.Height <= 0 {
		in.Height = 300
	}
	if r.shooter == nil {
		return ToolOutcome{
			ResultText: "webpage import is not configured on this server",
			IsError:    true,
			Summary:    "import unavailable",
		}
	}

	// Capture at the drawn size so the screenshot's aspect matches the
	// region it lands on; the service clamps to its safe viewport range.
	shot, err := r.shooter.Capture(ctx, webshot.CaptureRequest{
		URL:    in.URL,
		Width:  webshot.ClampViewport(int(in.Width)),
		Height: webshot.ClampViewport(int(in.Height)),
	})
	if err != nil {
		// Leave a visible trace on the canvas so the user sees the
		// attempt, then tell the model what went wrong.
		annotation := fmt.Sprintf(
			"ctx.fillStyle = '#999';\nctx.font = '14px sans-serif';\nctx.fillText('failed to import %s', %g, %g);",
			jsEscape(in.URL), in.X+10, in.Y+20,
		)
		s.mu.Lock()
		s.doc.Append(annotation)
		s.mu.Unlock()
		return ToolOutcome{
			ResultText: fmt.Sprintf("failed to capture %s: %s", in.URL, err.Error()),
			IsError:    true,
			Summary:    "import of " + in.URL + " failed",
		}
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", shot.MimeType, base64Bytes(shot.Bytes))
	snippet := fmt.Sprintf(
		"ctx.drawImage('%s', %g, %g, %g, %g);",
		dataURI, in.X, in.Y, in.Width, in.Height,
	)
	s.mu.Lock()
	s.doc.Append(snippet)
	s.mu.Unlock()
	return ToolOutcome{
		ResultText: fmt.Sprintf("Imported %s onto the canvas at (%g, %g), %gx%g.", in.URL, in.X, in.Y, in.Width, in.Height),
		Summary:    "imported " + in.URL,
	}
}

func badInput(tool string, err error) ToolOutcome {
	return ToolOutcome{
		ResultText: fmt.Sprintf("%s: invalid input: %s", tool, err.Error()),
		IsError:    true,
		Summary:    "invalid input",
	}
}

func base64Bytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func jsEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
