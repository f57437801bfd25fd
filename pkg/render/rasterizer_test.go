package render

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResult(t *testing.T, img *Image) (int, int) {
	t.Helper()
	require.NotNil(t, img)
	require.Equal(t, "image/png", img.MimeType)
	decoded, err := png.Decode(bytes.NewReader(img.Bytes))
	require.NoError(t, err)
	return decoded.Bounds().Dx(), decoded.Bounds().Dy()
}

func TestRender_SimpleDrawing(t *testing.T) {
	r := NewGojaRasterizer()
	img, err := r.Render(context.Background(), `
		ctx.fillStyle = '#ff0000';
		ctx.fillRect(10, 10, 50, 50);
		ctx.beginPath();
		ctx.arc(100, 100, 30, 0, Math.PI * 2);
		ctx.fill();
		ctx.fillText('hello', 20, 20);
	`, 200, 150)
	require.NoError(t, err)
	w, h := decodeResult(t, img)
	assert.Equal(t, 200, w)
	assert.Equal(t, 150, h)
}

func TestRender_ScriptErrorProducesPlaceholderNotError(t *testing.T) {
	r := NewGojaRasterizer()
	img, err := r.Render(context.Background(), `thisVariableDoesNotExist.draw();`, 320, 240)
	require.NoError(t, err, "script failures must not surface as errors")
	w, h := decodeResult(t, img)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
}

func TestRender_RunawayScriptIsInterrupted(t *testing.T) {
	r := NewGojaRasterizer(WithRenderTimeout(100 * time.Millisecond))
	start := time.Now()
	img, err := r.Render(context.Background(), `while (true) {}`, 64, 64)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	decodeResult(t, img)
}

func TestRender_DefaultAndClampedDimensions(t *testing.T) {
	r := NewGojaRasterizer()
	img, err := r.Render(context.Background(), ``, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, img.Width)
	assert.Equal(t, DefaultHeight, img.Height)

	img, err = r.Render(context.Background(), ``, 100000, 50)
	require.NoError(t, err)
	assert.Equal(t, 4096, img.Width)
}

func TestRender_CanvasObjectExposesDimensions(t *testing.T) {
	r := NewGojaRasterizer()
	_, err := r.Render(context.Background(), `
		ctx.fillRect(0, 0, canvas.width, canvas.height);
		console.log('w=' + canvas.width);
	`, 120, 80)
	require.NoError(t, err)
}

func TestRender_LinearGradientRampsAcrossTheFill(t *testing.T) {
	r := NewGojaRasterizer()
	img, err := r.Render(context.Background(), `
		const g = ctx.createLinearGradient(0, 0, 100, 0);
		g.addColorStop(0, 'red');
		g.addColorStop(1, 'blue');
		ctx.fillStyle = g;
		ctx.fillRect(0, 0, 100, 50);
	`, 100, 50)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img.Bytes))
	require.NoError(t, err)

	lr, _, lb, _ := decoded.At(2, 25).RGBA()
	rr, _, rb, _ := decoded.At(97, 25).RGBA()
	assert.Greater(t, lr, lb, "left edge should be red-dominant")
	assert.Greater(t, rb, rr, "right edge should be blue-dominant")
}

func TestParseCSSColor(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want rgba
	}{
		{"#fff", rgba{R: 255, G: 255, B: 255, A: 255}},
		{"#102030", rgba{R: 16, G: 32, B: 48, A: 255}},
		{"red", rgba{R: 255, G: 0, B: 0, A: 255}},
		{"rgb(1, 2, 3)", rgba{R: 1, G: 2, B: 3, A: 255}},
		{"rgba(10, 20, 30, 0.5)", rgba{R: 10, G: 20, B: 30, A: 127}},
	} {
		got, ok := parseCSSColor(tc.in)
		require.True(t, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	_, ok := parseCSSColor("definitely-not-a-color")
	assert.False(t, ok)
}
