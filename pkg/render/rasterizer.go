package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 600
	maxDimension  = 4096

	defaultRenderTimeout = 5 * time.Second
)

// Image is a rasterized canvas.
type Image struct {
	Bytes    []byte
	MimeType string
	Width    int
	Height   int
}

// Base64 returns the standard-encoded payload, ready for an API image block.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Bytes)
}

// Rasterizer turns canvas JavaScript into an image. Implementations must
// never surface a script failure: a source that throws produces a
// deterministic placeholder image instead. The orchestrator can rely on
// always getting an image back, possibly a placeholder.
type Rasterizer interface {
	Render(ctx context.Context, source string, width, height int) (*Image, error)
}

// GojaRasterizer executes the source in an isolated goja VM with a `ctx`
// host object implementing a Canvas-2D subset backed by a gg surface. The
// model-authored code is untrusted input; it only ever sees the drawing API,
// and runaway scripts are interrupted after a timeout.
type GojaRasterizer struct {
	timeout time.Duration
	logger  zerolog.Logger
}

type RasterizerOption func(*GojaRasterizer)

func WithRenderTimeout(d time.Duration) RasterizerOption {
	return func(r *GojaRasterizer) { r.timeout = d }
}

func NewGojaRasterizer(opts ...RasterizerOption) *GojaRasterizer {
	r := &GojaRasterizer{
		timeout: defaultRenderTimeout,
		logger:  log.With().Str("component", "rasterizer").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Rasterizer = &GojaRasterizer{}

func (r *GojaRasterizer) Render(ctx context.Context, source string, width, height int) (*Image, error) {
	width, height = clampDimensions(width, height)

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	registry := new(require.Registry)
	registry.Enable(vm)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&logPrinter{logger: r.logger}))
	console.Enable(vm)

	if err := vm.Set("ctx", newCanvas2D(dc)); err != nil {
		return nil, errors.Wrap(err, "install canvas context")
	}
	if err := vm.Set("canvas", map[string]interface{}{"width": width, "height": height}); err != nil {
		return nil, errors.Wrap(err, "install canvas object")
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	timer := time.AfterFunc(timeout, func() { vm.Interrupt("render timeout") })
	defer timer.Stop()

	if _, err := vm.RunString(source); err != nil {
		r.logger.Warn().Err(err).Int("source_len", len(source)).Msg("canvas script failed, rendering placeholder")
		return encodePNG(Placeholder(width, height, err.Error()), width, height)
	}
	return encodePNG(dc.Image(), width, height)
}

func clampDimensions(width, height int) (int, int) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if width > maxDimension {
		width = maxDimension
	}
	if height > maxDimension {
		height = maxDimension
	}
	return width, height
}

func encodePNG(im image.Image, width, height int) (*Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, im); err != nil {
		return nil, errors.Wrap(err, "encode png")
	}
	return &Image{Bytes: buf.Bytes(), MimeType: "image/png", Width: width, Height: height}, nil
}

// logPrinter routes console.log output from model code into the server log.
type logPrinter struct {
	logger zerolog.Logger
}

func (p *logPrinter) Log(s string)   { p.logger.Debug().Str("origin", "canvas-js").Msg(s) }
func (p *logPrinter) Warn(s string)  { p.logger.Warn().Str("origin", "canvas-js").Msg(s) }
func (p *logPrinter) Error(s string) { p.logger.Error().Str("origin", "canvas-js").Msg(s) }
