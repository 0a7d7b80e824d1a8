package classifier

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestPreprocessProducesCHWLayout(t *testing.T) {
	const size = 4
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	fill := color.RGBA{R: 255, G: 128, B: 0, A: 255}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, fill)
		}
	}

	data, err := Preprocess(img, size)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(data) != 3*size*size {
		t.Fatalf("expected %d values, got %d", 3*size*size, len(data))
	}

	plane := size * size
	checkPlane := func(name string, offset int, want float64) {
		t.Helper()
		for i := 0; i < plane; i++ {
			got := float64(data[offset+i])
			if math.Abs(got-want) > 0.02 {
				t.Fatalf("%s channel at %d: expected ~%f, got %f", name, i, want, got)
			}
		}
	}

	checkPlane("red", 0, 1.0)
	checkPlane("green", plane, 128.0/255.0)
	checkPlane("blue", 2*plane, 0.0)
}

func TestPreprocessRejectsInvalidSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))

	if _, err := Preprocess(img, 0); err == nil {
		t.Fatal("expected error for zero size")
	}
	if _, err := Preprocess(img, -1); err == nil {
		t.Fatal("expected error for negative size")
	}
}
