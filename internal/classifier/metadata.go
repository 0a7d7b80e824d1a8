package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Metadata describes the exported model: tensor shapes, class labels and the
// square input size the network expects. It is produced alongside the ONNX
// export.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// LoadMetadata reads and validates the metadata JSON at path.
func LoadMetadata(path string) (Metadata, error) {
	var metadata Metadata

	raw, err := os.ReadFile(path)
	if err != nil {
		return metadata, fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return metadata, fmt.Errorf("parse metadata: %w", err)
	}
	if err := metadata.validate(); err != nil {
		return metadata, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return metadata, nil
}

func (m Metadata) validate() error {
	if len(m.InputShape) == 0 {
		return errors.New("input_shape is empty")
	}
	if len(m.OutputShape) == 0 {
		return errors.New("output_shape is empty")
	}
	if len(m.Classes) == 0 {
		return errors.New("classes is empty")
	}
	if m.ImageSize <= 0 {
		return errors.New("image_size must be positive")
	}

	// The preprocessed image fills the whole input tensor, so the shape must
	// account for exactly 3*image_size*image_size elements.
	elements := int64(1)
	for _, dim := range m.InputShape {
		if dim <= 0 {
			return fmt.Errorf("input_shape has non-positive dimension %d", dim)
		}
		elements *= dim
	}
	if want := 3 * int64(m.ImageSize) * int64(m.ImageSize); elements != want {
		return fmt.Errorf("input_shape holds %d elements, image_size %d requires %d", elements, m.ImageSize, want)
	}
	return nil
}
