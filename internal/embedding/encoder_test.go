package embedding

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// halfImage is left half a, right half b.
func halfImage(w, h int, a, b color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, a)
			} else {
				img.Set(x, y, b)
			}
		}
	}
	return img
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestPreprocess_SolidColor(t *testing.T) {
	out, err := Preprocess(solidImage(300, 200, color.RGBA{R: 255, G: 0, B: 128, A: 255}), 32)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3*32*32 {
		t.Fatalf("len = %d", len(out))
	}
	plane := 32 * 32
	wantR := (1 - clipMean[0]) / clipStd[0]
	wantG := (0 - clipMean[1]) / clipStd[1]
	wantB := (float32(128)/255 - clipMean[2]) / clipStd[2]
	for _, i := range []int{0, plane / 2, plane - 1} {
		if math.Abs(float64(out[i]-wantR)) > 2e-2 || math.Abs(float64(out[plane+i]-wantG)) > 2e-2 || math.Abs(float64(out[2*plane+i]-wantB)) > 2e-2 {
			t.Fatalf("pixel %d = (%f, %f, %f), want (%f, %f, %f)", i, out[i], out[plane+i], out[2*plane+i], wantR, wantG, wantB)
		}
	}
}

func TestPreprocess_CenterCrop(t *testing.T) {
	// A wide image: the crop keeps the middle, where the left and right halves meet.
	img := halfImage(400, 100, color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255})
	out, err := Preprocess(img, 20)
	if err != nil {
		t.Fatal(err)
	}
	plane := 20 * 20
	red := (1 - clipMean[0]) / clipStd[0]
	blue := (1 - clipMean[2]) / clipStd[2]
	// Top-left of the crop is in the red half, top-right in the blue half.
	if math.Abs(float64(out[0]-red)) > 2e-2 {
		t.Errorf("left edge R = %f, want %f", out[0], red)
	}
	if math.Abs(float64(out[2*plane+19]-blue)) > 2e-2 {
		t.Errorf("right edge B = %f, want %f", out[2*plane+19], blue)
	}
}

func TestPreprocess_EmptyImage(t *testing.T) {
	if _, err := Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 0)), 16); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestMockEncoder(t *testing.T) {
	enc := NewMockEncoder(64)
	ctx := context.Background()
	a := solidImage(50, 40, color.RGBA{R: 220, G: 180, B: 90, A: 255})
	e1, err := enc.Encode(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	e2, _ := NewMockEncoder(64).Encode(ctx, a)
	for i := range e1 {
		if e1[i] != e2[i] {
			t.Fatal("mock encoder must be deterministic across instances")
		}
	}
	if math.Abs(norm(e1)-1) > 1e-4 {
		t.Errorf("norm = %f, want 1", norm(e1))
	}
	b, _ := enc.Encode(ctx, halfImage(50, 40, color.RGBA{G: 255, A: 255}, color.RGBA{B: 255, A: 255}))
	same := true
	for i := range e1 {
		if e1[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different images should not share an embedding")
	}
	if enc.Dimensions() != 64 || NewMockEncoder(0).Dimensions() != 512 {
		t.Error("unexpected dimensions")
	}
}

func TestDecodeAndEncodeFile(t *testing.T) {
	var buf bytes.Buffer
	img := solidImage(12, 12, color.RGBA{R: 10, G: 200, B: 30, A: 255})
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeImage(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Bounds().Dx() != 12 {
		t.Errorf("decoded width = %d", decoded.Bounds().Dx())
	}
	if _, err := DecodeImage(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("expected decode error")
	}

	path := filepath.Join(t.TempDir(), "dish.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	enc := NewMockEncoder(16)
	fromFile, err := EncodeFile(context.Background(), enc, path)
	if err != nil {
		t.Fatal(err)
	}
	direct, _ := enc.Encode(context.Background(), img)
	for i := range direct {
		if fromFile[i] != direct[i] {
			t.Fatal("lossless file round trip should give the same embedding")
		}
	}
	if _, err := EncodeFile(context.Background(), enc, filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}
