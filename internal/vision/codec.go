package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

// EncodeFrame serializes a frame for transmission. The picture is lossless
// so detected positions can be compared to ground truth exactly.
func EncodeFrame(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeFrame(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
