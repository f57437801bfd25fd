package render

import (
	"image"

	"github.com/fogleman/gg"
)

// Placeholder renders the deterministic error image substituted when a canvas
// script fails: solid dark background plus a caption carrying the failure
// message. Returning this instead of an error is the adapter's contract with
// the orchestrator.
func Placeholder(width, height int, message string) image.Image {
	dc := gg.NewContext(width, height)
	dc.SetHexColor("#1a1a2e")
	dc.Clear()

	dc.SetHexColor("#e94560")
	caption := "canvas error: " + message
	margin := 40.0
	if float64(width) <= margin*2 {
		margin = 4
	}
	dc.DrawStringWrapped(caption, float64(width)/2, float64(height)/2, 0.5, 0.5,
		float64(width)-margin*2, 1.5, gg.AlignCenter)
	return dc.Image()
}
