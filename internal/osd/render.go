package osd

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// glyphFace is the only bitmap font shipped with this compositor. §6's
// font_spec key selects a face name for forward compatibility, but the
// pack carries no TrueType asset to rasterize with github.com/golang/freetype
// (the library other camera-adjacent repos in the corpus use for this), so
// basicfont.Face7x13 is the one concrete face available. font_spec is not
// read by the renderer; a region's Size scales the face via scaleForSize.
var glyphFace font.Face = basicfont.Face7x13

// scaleForSize maps a region's configured point Size to an integer pixel
// scale factor against the fixed 7x13 glyph cell.
func scaleForSize(size int) int {
	switch {
	case size <= 16:
		return 1
	case size <= 28:
		return 2
	default:
		return 3
	}
}

// renderText rasterizes expanded text into an ARGB1555 bitmap using the
// region's font/size/color/outline/background configuration (§4.H step 2).
func renderText(text string, r *Region) *argbBitmap {
	scale := scaleForSize(r.Size)
	metrics := glyphFace.Metrics()
	cellW := basicfont.Face7x13.Advance * scale
	cellH := (metrics.Ascent.Ceil() + metrics.Descent.Ceil()) * scale

	n := len(text)
	if n == 0 {
		n = 1
	}
	textW := cellW * n
	textH := cellH

	pad := r.Padding
	thick := r.OutlineThickness
	totalW := textW + 2*(pad+thick)
	totalH := textH + 2*(pad+thick)

	bmp := newArgbBitmap(totalW, totalH)

	if r.OpacityBG > 0 {
		fillRoundedRect(bmp, 0, 0, totalW, totalH, r.BgColorRGB555)
	}

	originX := pad + thick
	originY := pad + thick

	for i := 0; i < len(text); i++ {
		drawGlyph(bmp, rune(text[i]), originX+i*cellW, originY, scale, r.ColorRGB555, r.OutlineColorRGB555, thick)
	}

	return bmp
}

// drawGlyph rasterizes one ASCII glyph at (x,y) scaled by scale, drawing an
// outline of thick pixels in outline color first when thick>0.
func drawGlyph(bmp *argbBitmap, r rune, x, y, scale int, fg, outline uint16, thick int) {
	if r < ' ' || r > '~' {
		r = ' '
	}

	dr, mask, maskp, _, ok := glyphFace.Glyph(fixed.Point26_6{}, r)
	if !ok || mask == nil {
		return
	}

	for gy := dr.Min.Y; gy < dr.Max.Y; gy++ {
		for gx := dr.Min.X; gx < dr.Max.X; gx++ {
			_, _, _, a := mask.At(maskp.X+(gx-dr.Min.X), maskp.Y+(gy-dr.Min.Y)).RGBA()
			if a == 0 {
				continue
			}
			plotScaled(bmp, x, y, gx-dr.Min.X, gy-dr.Min.Y, scale, fg, outline, thick)
		}
	}
}

func plotScaled(bmp *argbBitmap, originX, originY, gx, gy, scale int, fg, outline uint16, thick int) {
	for sy := 0; sy < scale; sy++ {
		for sx := 0; sx < scale; sx++ {
			px := originX + gx*scale + sx
			py := originY + gy*scale + sy
			if thick > 0 {
				for dy := -thick; dy <= thick; dy++ {
					for dx := -thick; dx <= thick; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						bmp.set(px+dx, py+dy, outline)
					}
				}
			}
			bmp.set(px, py, fg)
		}
	}
}

// fillRoundedRect draws a padded rounded rectangle behind the glyphs (§4.H
// step 2). The corner radius is fixed at 2px, adequate for the small
// overlay sizes this compositor targets.
func fillRoundedRect(bmp *argbBitmap, x0, y0, w, h int, color uint16) {
	const radius = 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if isCorner(x, y, w, h, radius) {
				continue
			}
			bmp.set(x0+x, y0+y, color)
		}
	}
}

// isCorner reports whether (x,y) falls outside the quarter-circle of radius
// r cut from each of the rect's four corners.
func isCorner(x, y, w, h, r int) bool {
	var cx, cy int
	switch {
	case x < r && y < r:
		cx, cy = r, r
	case x >= w-r && y < r:
		cx, cy = w-r-1, r
	case x < r && y >= h-r:
		cx, cy = r, h-r-1
	case x >= w-r && y >= h-r:
		cx, cy = w-r-1, h-r-1
	default:
		return false
	}
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy > r*r
}
