package orchestrator

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/contextcanvas/pkg/canvasdoc"
	"github.com/go-go-golems/contextcanvas/pkg/claude"
	"github.com/go-go-golems/contextcanvas/pkg/events"
	"github.com/go-go-golems/contextcanvas/pkg/render"
)

// Gateway is the model call surface the orchestrator depends on. The real
// implementation is claude.Client; tests substitute scripted fakes.
type Gateway interface {
	Complete(ctx context.Context, req *claude.Request) (*claude.Response, error)
}

var _ Gateway = &claude.Client{}

// Config tunes one orchestrator instance. Zero values fall back to the
// defaults below.
type Config struct {
	Model          string
	MaxTokens      int
	MaxIterations  int
	SystemPrompt   string
	Temperature    *float64
	Thinking       bool
	ThinkingBudget int
	CanvasWidth    int
	CanvasHeight   int
}

const (
	DefaultMaxIterations  = 10
	DefaultMaxTokens      = 4096
	DefaultThinkingBudget = 2048
	DefaultCanvasWidth    = 800
	DefaultCanvasHeight   = 600
)

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Thinking && c.ThinkingBudget <= 0 {
		c.ThinkingBudget = DefaultThinkingBudget
	}
	if c.CanvasWidth <= 0 {
		c.CanvasWidth = DefaultCanvasWidth
	}
	if c.CanvasHeight <= 0 {
		c.CanvasHeight = DefaultCanvasHeight
	}
	return c
}

// ToolInvocation records one executed tool call for the buffered response.
type ToolInvocation struct {
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// RunResult is what a completed orchestration returns: the model's final
// text, the resulting canvas source, the tools it called, and token usage
// summed over every round. Thinking carries the model's last extended
// thinking content when the feature is enabled; its signature rides along
// untouched.
type RunResult struct {
	Text              string
	Source            string
	ToolUses          []ToolInvocation
	Usage             claude.Usage
	Thinking          string
	ThinkingSignature string
}

// RunInput is one user request against a session.
type RunInput struct {
	Message string

	// CanvasJS, when non-empty, replaces the session's canvas before the
	// run. Clients send their local copy so manual edits are not lost.
	CanvasJS string

	// Screenshot is an optional client-rendered frame (base64 PNG)
	// attached to the first turn so the model sees the canvas as the
	// user does.
	Screenshot string

	// CanvasWidth/CanvasHeight override the configured render size for
	// this run, so server-side frames match the client's canvas.
	CanvasWidth  int
	CanvasHeight int
}

// Orchestrator drives the tool-use loop: ask the model, execute its tool
// calls against the canvas, re-render, fold the results back, repeat until
// the model answers with text alone or the iteration cap is reached.
type Orchestrator struct {
	gateway    Gateway
	rasterizer render.Rasterizer
	registry   *ToolRegistry
	cfg        Config
	logger     zerolog.Logger
}

func New(gateway Gateway, rasterizer render.Rasterizer, registry *ToolRegistry, cfg Config) *Orchestrator {
	return &Orchestrator{
		gateway:    gateway,
		rasterizer: rasterizer,
		registry:   registry,
		cfg:        cfg.withDefaults(),
		logger:     log.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes one orchestration on the session. Events stream to sink as
// they happen; the aggregate comes back as the RunResult. Canvas mutations
// made by already-executed tools survive even when the run ends in error.
func (o *Orchestrator) Run(ctx context.Context, s *Session, in RunInput, sink events.Sink) (*RunResult, error) {
	if sink == nil {
		sink = events.NullSink{}
	}

	if in.CanvasJS != "" {
		s.SetDocument(canvasdoc.StripFences(in.CanvasJS))
	}

	width, height := o.cfg.CanvasWidth, o.cfg.CanvasHeight
	if in.CanvasWidth > 0 {
		width = in.CanvasWidth
	}
	if in.CanvasHeight > 0 {
		height = in.CanvasHeight
	}

	result := &RunResult{}
	turns := appendUserTurn(s.Turns(), o.initialTurn(s, in))

	defer func() {
		s.setTurns(turns)
		result.Source = canvasdoc.Redact(s.Document(), canvasdoc.DefaultRedactThreshold)
	}()

	for iteration := 0; iteration < o.cfg.MaxIterations; iteration++ {
		resp, err := o.gateway.Complete(ctx, o.buildRequest(turns))
		if err != nil {
			o.emit(sink, &events.ErrorEvent{Message: err.Error()})
			return result, errors.Wrap(err, "model call failed")
		}
		result.Usage.Add(resp.Usage)
		o.emit(sink, &events.UsageEvent{Usage: resp.Usage})

		if text := resp.Text(); text != "" {
			result.Text = text
			o.emit(sink, &events.MessageEvent{Text: text})
		}
		if tb, ok := resp.ThinkingBlock(); ok {
			result.Thinking = tb.Thinking
			result.ThinkingSignature = tb.Signature
		}

		// The assistant turn is carried verbatim so thinking blocks keep
		// their signatures.
		turns = append(turns, claude.Message{Role: claude.RoleAssistant, Content: resp.Content})

		uses := resp.ToolUses()
		if len(uses) == 0 {
			o.emitDone(sink, s, result)
			return result, nil
		}

		resultBlocks := make([]claude.ContentBlock, 0, len(uses))
		for _, use := range uses {
			o.emit(sink, &events.ToolUseEvent{Kind: use.Name, Detail: string(use.Input)})
			out := o.registry.Execute(ctx, s, use.Name, use.Input)
			result.ToolUses = append(result.ToolUses, ToolInvocation{
				Name:    use.Name,
				Summary: out.Summary,
				IsError: out.IsError,
			})
			if out.IsError {
				o.emit(sink, &events.ToolErrorEvent{Kind: use.Name, Message: out.ResultText})
			}
			resultBlocks = append(resultBlocks, claude.NewToolResultBlock(
				use.ID,
				[]claude.ContentBlock{claude.NewTextBlock(out.ResultText)},
				out.IsError,
			))
		}

		img := o.renderCanvas(ctx, s, sink, width, height)

		// One combined user turn: every tool result in invocation order,
		// then the fresh frame and the redacted source.
		followUp := resultBlocks
		if img != nil {
			followUp = append(followUp, claude.NewImageBlock(img.MimeType, img.Base64()))
		}
		redacted := canvasdoc.Redact(s.Document(), canvasdoc.DefaultRedactThreshold)
		followUp = append(followUp, claude.NewTextBlock("Current canvas source:\n\n"+redacted))
		turns = append(turns, claude.NewUserMessage(followUp...))
	}

	// Iteration cap: not an error. The canvas holds whatever the tools
	// built; answer with the best text we have.
	o.logger.Warn().Str("session_id", s.ID).Int("max_iterations", o.cfg.MaxIterations).Msg("iteration cap reached")
	if result.Text == "" {
		result.Text = "I reached the step limit for this request. The canvas reflects the work completed so far."
	}
	o.emitDone(sink, s, result)
	return result, nil
}

// appendUserTurn adds turn to the history, merging into a trailing user
// turn when one exists. A run that ended at the iteration cap or on a
// gateway error leaves its tool-result user turn last; merging keeps the
// roles strictly alternating for the next request.
func appendUserTurn(turns []claude.Message, turn claude.Message) []claude.Message {
	if n := len(turns); n > 0 && turns[n-1].Role == claude.RoleUser {
		merged := claude.Message{Role: claude.RoleUser}
		merged.Content = append(merged.Content, turns[n-1].Content...)
		merged.Content = append(merged.Content, turn.Content...)
		return append(turns[:n-1:n-1], merged)
	}
	return append(turns, turn)
}

func (o *Orchestrator) initialTurn(s *Session, in RunInput) claude.Message {
	blocks := []claude.ContentBlock{claude.NewTextBlock(in.Message)}
	if in.Screenshot != "" {
		blocks = append(blocks, claude.NewImageBlock("image/png", in.Screenshot))
	}
	if src := s.Document(); src != "" {
		redacted := canvasdoc.Redact(src, canvasdoc.DefaultRedactThreshold)
		blocks = append(blocks, claude.NewTextBlock("Current canvas source:\n\n"+redacted))
	}
	return claude.NewUserMessage(blocks...)
}

func (o *Orchestrator) buildRequest(turns []claude.Message) *claude.Request {
	req := &claude.Request{
		Model:       o.cfg.Model,
		MaxTokens:   o.cfg.MaxTokens,
		System:      o.cfg.SystemPrompt,
		Temperature: o.cfg.Temperature,
		Messages:    turns,
		Tools:       o.registry.Specs(),
	}
	if o.cfg.Thinking {
		req.Thinking = &claude.Thinking{Type: "enabled", BudgetTokens: o.cfg.ThinkingBudget}
		// Temperature and thinking are mutually exclusive.
		req.Temperature = nil
	}
	return req
}

// renderCanvas rasterizes the current source and records the frame on the
// session. The rasterizer never fails on script errors (it paints a
// placeholder instead), so a nil return only means infrastructure trouble,
// which is reported and tolerated.
func (o *Orchestrator) renderCanvas(ctx context.Context, s *Session, sink events.Sink, width, height int) *render.Image {
	source := s.Document()
	img, err := o.rasterizer.Render(ctx, source, width, height)
	if err != nil {
		o.logger.Error().Err(err).Str("session_id", s.ID).Msg("rasterization failed")
		o.emit(sink, &events.ToolErrorEvent{Kind: "render", Message: err.Error()})
		return nil
	}
	s.setLastImage(img)
	redacted := canvasdoc.Redact(source, canvasdoc.DefaultRedactThreshold)
	o.emit(sink, &events.CanvasUpdateEvent{
		Source:   redacted,
		Image:    img.Base64(),
		MimeType: img.MimeType,
	})
	return img
}

func (o *Orchestrator) emitDone(sink events.Sink, s *Session, result *RunResult) {
	redacted := canvasdoc.Redact(s.Document(), canvasdoc.DefaultRedactThreshold)
	o.emit(sink, &events.DoneEvent{FinalSource: redacted, Usage: result.Usage})
}

// emit publishes one event; a failed publish is logged, never fatal.
func (o *Orchestrator) emit(sink events.Sink, e events.Event) {
	if err := sink.Publish(e); err != nil {
		o.logger.Warn().Err(err).Str("event", string(e.EventType())).Msg("event publish failed")
	}
}
