// Command batch-predict classifies every image in a directory and prints the
// top-k labels per file.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/example/dermscan/internal/classifier"
)

func main() {
	modelPath := flag.String("model", "checkpoints/model.onnx", "Path to the ONNX checkpoint")
	metadataPath := flag.String("metadata", "checkpoints/metadata.json", "Path to the model metadata JSON")
	inputDir := flag.String("input", "input_images", "Folder with input images")
	topK := flag.Int("topk", 3, "Number of top predictions to display")
	runtimeLib := flag.String("onnxruntime", os.Getenv("ONNXRUNTIME_LIB"), "Path to the onnxruntime shared library")
	flag.Parse()

	engine, err := classifier.NewEngine(*modelPath, *metadataPath, *runtimeLib)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	defer engine.Close()

	entries, err := os.ReadDir(*inputDir)
	if err != nil {
		log.Fatalf("failed to read input folder: %v", err)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isImageFile(entry.Name()) {
			images = append(images, entry.Name())
		}
	}
	sort.Strings(images)

	if len(images) == 0 {
		fmt.Println("No images found.")
		return
	}

	ctx := context.Background()
	for _, name := range images {
		predictions, err := classifyFile(ctx, engine, filepath.Join(*inputDir, name), *topK)
		if err != nil {
			log.Printf("%s: %v", name, err)
			continue
		}

		fmt.Printf("\n%s\n", name)
		for _, p := range predictions {
			fmt.Printf("  %-20s %6.2f%%\n", p.Label, p.Confidence*100)
		}
	}
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

func classifyFile(ctx context.Context, engine *classifier.Engine, path string, topK int) ([]classifier.Prediction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	return engine.Classify(ctx, img, topK)
}
