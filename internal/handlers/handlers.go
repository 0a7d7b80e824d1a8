package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/dermscan/internal/assistant"
	"github.com/example/dermscan/internal/classifier"
	"github.com/example/dermscan/internal/metrics"
	"github.com/example/dermscan/internal/recommend"
	"github.com/example/dermscan/internal/usecase"
)

// MaxUploadSize is the default bound on the accepted image payload, used
// when Options does not set one.
const MaxUploadSize = 10 << 20

// Predictor is the use-case surface the HTTP layer depends on.
type Predictor interface {
	Predict(ctx context.Context, imageBytes []byte, topK int) (*usecase.PredictionRecord, bool, error)
	GetResult(ctx context.Context, requestID string) (*usecase.PredictionRecord, error)
	Labels() ([]string, error)
}

// InsightGenerator produces assistant guidance for free-text symptoms.
type InsightGenerator interface {
	Generate(ctx context.Context, symptoms, duration string) (*assistant.Insight, string)
}

// ClinicFinder returns live clinic listings for a location.
type ClinicFinder interface {
	Fetch(ctx context.Context, location string) ([]recommend.Clinic, string)
}

// Options bundles the dependencies the routes need.
type Options struct {
	Predictor     Predictor
	Assistant     InsightGenerator
	Clinics       ClinicFinder
	DefaultTopK   int
	MaxUploadSize int64
	Logger        *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the gin router.
func RegisterRoutes(router *gin.Engine, opts Options) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DefaultTopK < 1 {
		opts.DefaultTopK = 3
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = MaxUploadSize
	}

	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "dermscan"})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/predict", predictHandler(opts))
	router.GET("/predictions/:id", resultHandler(opts))
	router.GET("/labels", labelsHandler(opts))
	router.POST("/assistant", assistantHandler(opts))
	router.GET("/specialists", specialistsHandler(opts))
}

func predictHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}

		if file.Size > opts.MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds the upload limit"})
			return
		}

		if ct := file.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only image uploads are supported"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		topK := opts.DefaultTopK
		if raw := c.PostForm("top_k"); raw != "" {
			if k, err := strconv.Atoi(raw); err == nil && k > 0 {
				topK = k
			}
		}

		record, cached, err := opts.Predictor.Predict(c.Request.Context(), data, topK)
		switch {
		case errors.Is(err, usecase.ErrInvalidImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image format; supported: JPEG, PNG, GIF, WEBP"})
			return
		case errors.Is(err, classifier.ErrNotLoaded):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model not loaded"})
			return
		case err != nil:
			opts.Logger.Error("prediction failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":  record.RequestID,
			"cached":      cached,
			"predictions": record.Predictions,
		})
	}
}

func resultHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		record, err := opts.Predictor.GetResult(c.Request.Context(), requestID)
		switch {
		case errors.Is(err, usecase.ErrResultNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		case err != nil:
			opts.Logger.Error("result lookup failed", zap.Error(err), zap.String("request_id", requestID))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "result lookup failed"})
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

func labelsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		labels, err := opts.Predictor.Labels()
		if errors.Is(err, classifier.ErrNotLoaded) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model not loaded"})
			return
		}
		if err != nil {
			opts.Logger.Error("labels lookup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "labels lookup failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"labels": labels})
	}
}

type assistantRequest struct {
	Symptoms string `json:"symptoms" binding:"required"`
	Duration string `json:"duration"`
}

func assistantHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Assistant == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assistant is not configured"})
			return
		}

		var req assistantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "symptoms is required"})
			return
		}

		insight, note := opts.Assistant.Generate(c.Request.Context(), req.Symptoms, req.Duration)

		response := gin.H{"insight": insight}
		if note != "" {
			response["note"] = note
		}
		c.JSON(http.StatusOK, response)
	}
}

func specialistsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		disease := strings.TrimSpace(c.Query("disease"))
		location := strings.TrimSpace(c.Query("location"))

		response := gin.H{
			"disease":  disease,
			"location": location,
		}

		if disease != "" {
			response["hospitals"] = recommend.HospitalsFor(disease)
		}
		if location != "" {
			response["city_specialists"] = recommend.CitySpecialists(location)
		}
		if opts.Clinics != nil && location != "" {
			clinics, note := opts.Clinics.Fetch(c.Request.Context(), location)
			response["clinics"] = clinics
			if note != "" {
				response["clinic_note"] = note
			}
		}

		c.JSON(http.StatusOK, response)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
