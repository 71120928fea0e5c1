package embedding

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// DefaultImageSize is the square input size of the image model.
const DefaultImageSize = 224

// CLIP normalization statistics, per RGB channel.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

var errEmptyImage = errors.New("image has no pixels")

// Preprocess resizes img so its shorter side is size (Catmull-Rom), center-crops a size x size
// square and returns it as CHW float32 normalized with the CLIP mean and std.
func Preprocess(img image.Image, size int) ([]float32, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, errEmptyImage
	}
	rw, rh := size, size
	if w < h {
		rh = int(float64(size) * float64(h) / float64(w))
	} else if h < w {
		rw = int(float64(size) * float64(w) / float64(h))
	}
	resized := image.NewRGBA(image.Rect(0, 0, rw, rh))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, b, draw.Src, nil)

	top := int(math.Round(float64(rh-size) / 2))
	left := int(math.Round(float64(rw-size) / 2))
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := resized.RGBAAt(left+x, top+y)
			i := y*size + x
			out[i] = (float32(c.R)/255 - clipMean[0]) / clipStd[0]
			out[plane+i] = (float32(c.G)/255 - clipMean[1]) / clipStd[1]
			out[2*plane+i] = (float32(c.B)/255 - clipMean[2]) / clipStd[2]
		}
	}
	return out, nil
}
