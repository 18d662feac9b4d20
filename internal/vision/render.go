// Package vision draws synthetic frames and finds the ball in received ones.
package vision

import (
	"image"
	"image/color"
)

var (
	Background = color.RGBA{A: 0xff}
	Foreground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// NewCanvas returns a w x h frame filled with Background.
func NewCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+3] = 0xff
	}
	return img
}

// DrawDisk fills every pixel within r of (cx, cy), clipped to img.
func DrawDisk(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	if r < 0 {
		return
	}
	box := image.Rect(cx-r, cy-r, cx+r+1, cy+r+1).Intersect(img.Bounds())
	for y := box.Min.Y; y < box.Max.Y; y++ {
		dy := y - cy
		for x := box.Min.X; x < box.Max.X; x++ {
			dx := x - cx
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// RenderBall draws a filled Foreground disk at (x, y) on a fresh canvas.
func RenderBall(w, h, x, y, r int) *image.RGBA {
	img := NewCanvas(w, h)
	DrawDisk(img, x, y, r, Foreground)
	return img
}
