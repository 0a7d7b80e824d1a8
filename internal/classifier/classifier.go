package classifier

import (
	"context"
	"errors"
	"image"
)

// ErrNotLoaded is returned when inference is requested but no model has been
// loaded, for example when the skip-load flag is set.
var ErrNotLoaded = errors.New("classifier: model not loaded")

// Prediction is a single ranked class with its confidence.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Classifier runs inference over a decoded image and exposes the class
// labels the model was trained on.
type Classifier interface {
	Classify(ctx context.Context, img image.Image, topK int) ([]Prediction, error)
	Labels() []string
}
