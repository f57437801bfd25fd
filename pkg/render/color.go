package render

import (
	"image/color"
	"regexp"
	"strconv"
	"strings"
)

type rgba = color.NRGBA

var colorBlack = rgba{A: 255}

// The named colors the drawing prompts actually produce. Unknown names fall
// back to black rather than failing the render.
var namedColors = map[string]rgba{
	"black":   {R: 0, G: 0, B: 0, A: 255},
	"white":   {R: 255, G: 255, B: 255, A: 255},
	"red":     {R: 255, G: 0, B: 0, A: 255},
	"green":   {R: 0, G: 128, B: 0, A: 255},
	"lime":    {R: 0, G: 255, B: 0, A: 255},
	"blue":    {R: 0, G: 0, B: 255, A: 255},
	"yellow":  {R: 255, G: 255, B: 0, A: 255},
	"orange":  {R: 255, G: 165, B: 0, A: 255},
	"purple":  {R: 128, G: 0, B: 128, A: 255},
	"pink":    {R: 255, G: 192, B: 203, A: 255},
	"brown":   {R: 165, G: 42, B: 42, A: 255},
	"gray":    {R: 128, G: 128, B: 128, A: 255},
	"grey":    {R: 128, G: 128, B: 128, A: 255},
	"cyan":    {R: 0, G: 255, B: 255, A: 255},
	"magenta": {R: 255, G: 0, B: 255, A: 255},
	"gold":    {R: 255, G: 215, B: 0, A: 255},
	"silver":  {R: 192, G: 192, B: 192, A: 255},
	"navy":    {R: 0, G: 0, B: 128, A: 255},
	"teal":    {R: 0, G: 128, B: 128, A: 255},
	"maroon":  {R: 128, G: 0, B: 0, A: 255},
	"olive":   {R: 128, G: 128, B: 0, A: 255},
	"skyblue": {R: 135, G: 206, B: 235, A: 255},
	"transparent": {R: 0, G: 0, B: 0, A: 0},
}

var rgbFuncRe = regexp.MustCompile(`(?i)^rgba?\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*(?:,\s*([0-9.]+)\s*)?\)$`)

func parseCSSColor(s string) (rgba, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return rgba{}, false
	}
	if c, ok := namedColors[s]; ok {
		return c, true
	}
	if strings.HasPrefix(s, "#") {
		return parseHexColor(s[1:])
	}
	if m := rgbFuncRe.FindStringSubmatch(s); m != nil {
		r, _ := strconv.Atoi(m[1])
		g, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[3])
		a := 255.0
		if m[4] != "" {
			if f, err := strconv.ParseFloat(m[4], 64); err == nil {
				a = f * 255
			}
		}
		return rgba{R: clamp8(r), G: clamp8(g), B: clamp8(b), A: clamp8(int(a))}, true
	}
	return rgba{}, false
}

func parseHexColor(hex string) (rgba, bool) {
	switch len(hex) {
	case 3:
		return hexDigits(hex[0:1]+hex[0:1], hex[1:2]+hex[1:2], hex[2:3]+hex[2:3], "ff")
	case 4:
		return hexDigits(hex[0:1]+hex[0:1], hex[1:2]+hex[1:2], hex[2:3]+hex[2:3], hex[3:4]+hex[3:4])
	case 6:
		return hexDigits(hex[0:2], hex[2:4], hex[4:6], "ff")
	case 8:
		return hexDigits(hex[0:2], hex[2:4], hex[4:6], hex[6:8])
	}
	return rgba{}, false
}

func hexDigits(r, g, b, a string) (rgba, bool) {
	rv, err1 := strconv.ParseUint(r, 16, 8)
	gv, err2 := strconv.ParseUint(g, 16, 8)
	bv, err3 := strconv.ParseUint(b, 16, 8)
	av, err4 := strconv.ParseUint(a, 16, 8)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return rgba{}, false
	}
	return rgba{R: uint8(rv), G: uint8(gv), B: uint8(bv), A: uint8(av)}, true
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
