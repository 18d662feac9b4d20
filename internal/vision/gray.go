package vision

import (
	"image"
	"image/draw"
)

// ToGray converts img to single-channel intensity. Gray inputs are returned
// as is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}
