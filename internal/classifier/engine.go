package classifier

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Engine owns the ONNX session and its preallocated input/output tensors.
// The tensors are shared between calls, so Classify serializes access with a
// mutex.
type Engine struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewEngine initializes the onnxruntime environment, reads the model
// metadata and creates an inference session over the checkpoint at
// modelPath. runtimeLib optionally points at the onnxruntime shared library.
func NewEngine(modelPath, metadataPath, runtimeLib string) (*Engine, error) {
	if runtimeLib != "" {
		ort.SetSharedLibraryPath(runtimeLib)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx environment: %w", err)
		}
	}

	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create onnx session %s: %w", modelPath, err)
	}

	return &Engine{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Classify preprocesses img, runs the model and returns the topK ranked
// predictions.
func (e *Engine) Classify(ctx context.Context, img image.Image, topK int) ([]Prediction, error) {
	if e == nil {
		return nil, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := Preprocess(img, e.metadata.ImageSize)
	if err != nil {
		return nil, fmt.Errorf("preprocess image: %w", err)
	}

	e.mu.Lock()
	copy(e.inputTensor.GetData(), input)
	runErr := e.session.Run()
	var scores []float32
	if runErr == nil {
		scores = append([]float32(nil), e.outputTensor.GetData()...)
	}
	e.mu.Unlock()

	if runErr != nil {
		return nil, fmt.Errorf("inference failed: %w", runErr)
	}

	return rankPredictions(scores, e.metadata.Classes, topK), nil
}

// Labels returns a copy of the class labels.
func (e *Engine) Labels() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.metadata.Classes...)
}

// Metadata returns the model metadata loaded at startup.
func (e *Engine) Metadata() Metadata {
	return e.metadata
}

// Close releases the session and its tensors.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// rankPredictions pairs scores with labels and returns the topK highest,
// clamped to [1, len(labels)].
func rankPredictions(scores []float32, labels []string, topK int) []Prediction {
	probs := normalizeScores(scores)

	n := len(labels)
	if len(probs) < n {
		n = len(probs)
	}

	preds := make([]Prediction, 0, n)
	for i := 0; i < n; i++ {
		preds = append(preds, Prediction{Label: labels[i], Confidence: probs[i]})
	}
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})

	if topK < 1 {
		topK = 1
	}
	if topK > len(preds) {
		topK = len(preds)
	}
	return preds[:topK]
}

// normalizeScores returns the scores as probabilities. Classification
// exports may emit either probabilities or raw logits depending on export
// settings; only the latter need a softmax.
func normalizeScores(scores []float32) []float32 {
	if len(scores) == 0 {
		return nil
	}

	var sum float64
	inRange := true
	for _, s := range scores {
		if s < 0 || s > 1 {
			inRange = false
			break
		}
		sum += float64(s)
	}
	if inRange && math.Abs(sum-1) < 0.01 {
		return scores
	}

	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	exps := make([]float64, len(scores))
	var total float64
	for i, s := range scores {
		exps[i] = math.Exp(float64(s - maxScore))
		total += exps[i]
	}

	probs := make([]float32, len(scores))
	for i, e := range exps {
		probs[i] = float32(e / total)
	}
	return probs
}
