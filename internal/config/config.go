package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the dermscan service.
type Config struct {
	Port          string
	ModelPath     string
	MetadataPath  string
	SkipModelLoad bool
	RedisAddr     string
	ResultTTL     time.Duration
	DefaultTopK   int
	MaxUploadSize int64

	GroqAPIKey   string
	GroqModel    string
	GeminiAPIKey string
	GeminiModel  string

	// Optional path to the onnxruntime shared library, for hosts where it
	// is not on the default search path.
	ONNXRuntimeLib string
}

// Load reads configuration from environment variables, falling back to
// fixed defaults.
func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		ModelPath:      getEnv("MODEL_PATH", "checkpoints/model.onnx"),
		MetadataPath:   getEnv("MODEL_METADATA", "checkpoints/metadata.json"),
		SkipModelLoad:  os.Getenv("SKIP_MODEL_LOAD") == "1",
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		ResultTTL:      5 * time.Minute,
		DefaultTopK:    3,
		MaxUploadSize:  10 << 20,
		GroqAPIKey:     os.Getenv("GROQ_API_KEY"),
		GroqModel:      getEnv("GROQ_MODEL", "openai/gpt-oss-120b"),
		GeminiAPIKey:   firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		ONNXRuntimeLib: os.Getenv("ONNXRUNTIME_LIB"),
	}

	if val := os.Getenv("RESULT_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil && ttl > 0 {
			cfg.ResultTTL = ttl
		}
	}
	if val := os.Getenv("DEFAULT_TOP_K"); val != "" {
		if k, err := strconv.Atoi(val); err == nil && k > 0 {
			cfg.DefaultTopK = k
		}
	}
	if val := os.Getenv("MAX_UPLOAD_SIZE"); val != "" {
		if size, err := strconv.ParseInt(val, 10, 64); err == nil && size > 0 {
			cfg.MaxUploadSize = size
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}
