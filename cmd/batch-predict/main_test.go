package main

import "testing"

func TestIsImageFile(t *testing.T) {
	accepted := []string{"lesion.jpg", "lesion.JPEG", "scan.png", "scan.GIF", "photo.webp", "photo.WEBP"}
	for _, name := range accepted {
		if !isImageFile(name) {
			t.Errorf("expected %q to be accepted", name)
		}
	}

	rejected := []string{"notes.txt", "model.onnx", "archive.tar.gz", "noext", ".hidden"}
	for _, name := range rejected {
		if isImageFile(name) {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}
