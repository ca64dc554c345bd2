package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/openclaw/smartwaitd/internal/capture"
)

const (
	// frameMaxDim is sufficient for YES/NO condition checks; larger frames
	// only add tokens and latency.
	frameMaxDim      = 960
	frameJPEGQuality = 72
)

// encodeJPEG resizes the frame so its wider dimension is at most frameMaxDim
// and compresses it to JPEG for model input.
func encodeJPEG(frame *capture.Frame) ([]byte, error) {
	img := frame.ToImage()

	wider := frame.Width
	if frame.Height > wider {
		wider = frame.Height
	}
	if wider > frameMaxDim {
		stride := (wider + frameMaxDim - 1) / frameMaxDim
		img = shrink(img, stride)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// shrink samples img at an integer stride.
func shrink(img *image.RGBA, stride int) *image.RGBA {
	bounds := img.Bounds()
	outW := (bounds.Dx() + stride - 1) / stride
	outH := (bounds.Dy() + stride - 1) / stride
	out := image.NewRGBA(image.Rect(0, 0, outW, outH))

	for y := 0; y < outH; y++ {
		for x := 0; x < outW; x++ {
			out.Set(x, y, img.At(bounds.Min.X+x*stride, bounds.Min.Y+y*stride))
		}
	}
	return out
}
