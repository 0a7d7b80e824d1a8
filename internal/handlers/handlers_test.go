package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/dermscan/internal/assistant"
	"github.com/example/dermscan/internal/classifier"
	"github.com/example/dermscan/internal/recommend"
	"github.com/example/dermscan/internal/usecase"
)

type stubPredictor struct {
	record     *usecase.PredictionRecord
	cached     bool
	predictErr error
	getErr     error
	labels     []string
	labelsErr  error
	lastTopK   int
}

func (s *stubPredictor) Predict(ctx context.Context, imageBytes []byte, topK int) (*usecase.PredictionRecord, bool, error) {
	s.lastTopK = topK
	if s.predictErr != nil {
		return nil, false, s.predictErr
	}
	return s.record, s.cached, nil
}

func (s *stubPredictor) GetResult(ctx context.Context, requestID string) (*usecase.PredictionRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.record, nil
}

func (s *stubPredictor) Labels() ([]string, error) {
	if s.labelsErr != nil {
		return nil, s.labelsErr
	}
	return s.labels, nil
}

type stubAssistant struct {
	insight *assistant.Insight
	note    string
}

func (s *stubAssistant) Generate(ctx context.Context, symptoms, duration string) (*assistant.Insight, string) {
	return s.insight, s.note
}

type stubClinics struct {
	clinics []recommend.Clinic
	note    string
}

func (s *stubClinics) Fetch(ctx context.Context, location string) ([]recommend.Clinic, string) {
	return s.clinics, s.note
}

func newTestRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, opts)
	return router
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func postImage(t *testing.T, router *gin.Engine, contentType string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, formContentType := buildMultipartBody(t, contentType, payload)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", formContentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAlwaysOK(t *testing.T) {
	// No model, no assistant: health must not depend on any of them.
	router := newTestRouter(Options{Predictor: &stubPredictor{predictErr: classifier.ErrNotLoaded}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestPredictRequiresImageField(t *testing.T) {
	router := newTestRouter(Options{Predictor: &stubPredictor{}})

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(""))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPredictRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(Options{Predictor: &stubPredictor{}})

	resp := postImage(t, router, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1))

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestPredictUploadLimitIsConfigurable(t *testing.T) {
	predictor := &stubPredictor{record: &usecase.PredictionRecord{RequestID: "req-small"}}
	router := newTestRouter(Options{Predictor: predictor, MaxUploadSize: 1024})

	resp := postImage(t, router, "image/png", bytes.Repeat([]byte("a"), 2048))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for payload over the configured limit, got %d", resp.Code)
	}

	resp = postImage(t, router, "image/png", bytes.Repeat([]byte("a"), 512))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for payload under the configured limit, got %d", resp.Code)
	}
}

func TestPredictRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(Options{Predictor: &stubPredictor{}})

	resp := postImage(t, router, "text/plain", []byte("hello"))

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestPredictMapsInvalidImageToBadRequest(t *testing.T) {
	router := newTestRouter(Options{Predictor: &stubPredictor{predictErr: usecase.ErrInvalidImage}})

	resp := postImage(t, router, "image/png", []byte("garbage"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPredictMapsMissingModelToUnavailable(t *testing.T) {
	router := newTestRouter(Options{Predictor: &stubPredictor{predictErr: classifier.ErrNotLoaded}})

	resp := postImage(t, router, "image/png", []byte("payload"))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestPredictReturnsRankedPredictions(t *testing.T) {
	predictor := &stubPredictor{
		record: &usecase.PredictionRecord{
			RequestID: "req-1",
			Predictions: []classifier.Prediction{
				{Label: "acne", Confidence: 0.7},
				{Label: "eczema", Confidence: 0.2},
			},
			TopK:      2,
			CreatedAt: time.Now().UTC(),
		},
	}
	router := newTestRouter(Options{Predictor: predictor, DefaultTopK: 3})

	body, contentType := buildMultipartBody(t, "image/png", []byte("payload"))

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var parsed struct {
		RequestID   string                  `json:"request_id"`
		Cached      bool                    `json:"cached"`
		Predictions []classifier.Prediction `json:"predictions"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if parsed.RequestID != "req-1" {
		t.Fatalf("unexpected request id: %s", parsed.RequestID)
	}
	if len(parsed.Predictions) != 2 || parsed.Predictions[0].Label != "acne" {
		t.Fatalf("unexpected predictions: %+v", parsed.Predictions)
	}
	if predictor.lastTopK != 3 {
		t.Fatalf("expected default top-k 3, got %d", predictor.lastTopK)
	}
}

func TestPredictHonorsTopKFormField(t *testing.T) {
	predictor := &stubPredictor{record: &usecase.PredictionRecord{RequestID: "req-2"}}
	router := newTestRouter(Options{Predictor: predictor, DefaultTopK: 3})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("payload")); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if err := writer.WriteField("top_k", "5"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if predictor.lastTopK != 5 {
		t.Fatalf("expected top-k 5, got %d", predictor.lastTopK)
	}
}

func TestResultLookup(t *testing.T) {
	record := &usecase.PredictionRecord{RequestID: "req-3", TopK: 3}
	router := newTestRouter(Options{Predictor: &stubPredictor{record: record}})

	req := httptest.NewRequest(http.MethodGet, "/predictions/req-3", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "req-3") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestResultLookupNotFound(t *testing.T) {
	router := newTestRouter(Options{Predictor: &stubPredictor{getErr: usecase.ErrResultNotFound}})

	req := httptest.NewRequest(http.MethodGet, "/predictions/missing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestLabelsUnavailableWhenModelSkipped(t *testing.T) {
	router := newTestRouter(Options{Predictor: &stubPredictor{labelsErr: classifier.ErrNotLoaded}})

	req := httptest.NewRequest(http.MethodGet, "/labels", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestLabelsReturnsClassList(t *testing.T) {
	router := newTestRouter(Options{Predictor: &stubPredictor{labels: []string{"acne", "eczema"}}})

	req := httptest.NewRequest(http.MethodGet, "/labels", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "eczema") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestAssistantRequiresSymptoms(t *testing.T) {
	router := newTestRouter(Options{
		Predictor: &stubPredictor{},
		Assistant: &stubAssistant{insight: &assistant.Insight{Summary: "ok"}},
	})

	req := httptest.NewRequest(http.MethodPost, "/assistant", strings.NewReader(`{"duration":"2 days"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAssistantReturnsInsightWithNote(t *testing.T) {
	router := newTestRouter(Options{
		Predictor: &stubPredictor{},
		Assistant: &stubAssistant{insight: &assistant.Insight{Summary: "mild"}, note: "offline fallback"},
	})

	req := httptest.NewRequest(http.MethodPost, "/assistant", strings.NewReader(`{"symptoms":"itch"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "mild") || !strings.Contains(resp.Body.String(), "offline fallback") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestSpecialistsBundlesDirectoryAndClinics(t *testing.T) {
	router := newTestRouter(Options{
		Predictor: &stubPredictor{},
		Clinics:   &stubClinics{clinics: []recommend.Clinic{{Name: "Derma One"}}},
	})

	req := httptest.NewRequest(http.MethodGet, "/specialists?disease=Melanoma&location=Pune", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "Onco-Derm Center") {
		t.Fatalf("expected melanoma hospitals in body: %s", body)
	}
	if !strings.Contains(body, "Derma One") {
		t.Fatalf("expected clinics in body: %s", body)
	}
	if !strings.Contains(body, "Dermatologist") {
		t.Fatalf("expected city specialists in body: %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(Options{Predictor: &stubPredictor{}})

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}
