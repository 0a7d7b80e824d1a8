package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

	systemPrompt = "You are a clinical support assistant for skin concerns. " +
		"You do not diagnose; you provide possible explanations, seriousness level, " +
		"red flags, self-care, and next steps. Keep it concise and safe. " +
		"Return STRICT JSON with keys: summary, seriousness, next_steps, red_flags, self_care, follow_up_questions."
)

// Insight is the structured guidance returned to the client.
type Insight struct {
	Summary           string   `json:"summary"`
	Seriousness       string   `json:"seriousness"`
	NextSteps         string   `json:"next_steps"`
	RedFlags          string   `json:"red_flags"`
	SelfCare          string   `json:"self_care"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
}

// Config carries provider credentials and model names.
type Config struct {
	GroqAPIKey   string
	GroqModel    string
	GeminiAPIKey string
	GeminiModel  string
}

// Client produces symptom insights. Groq is preferred when configured, then
// Gemini; without credentials it degrades to a keyword heuristic.
type Client struct {
	httpClient    *http.Client
	logger        *zap.Logger
	cfg           Config
	groqBaseURL   string
	geminiBaseURL string
}

// NewClient constructs an assistant client with a 30s request timeout.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logger.Named("assistant"),
		cfg:           cfg,
		groqBaseURL:   defaultGroqBaseURL,
		geminiBaseURL: defaultGeminiBaseURL,
	}
}

// Generate returns an insight for the given symptoms and an advisory note
// when the upstream provider was unavailable and a fallback was used. It
// never fails hard: degraded answers are still answers.
func (c *Client) Generate(ctx context.Context, symptoms, duration string) (*Insight, string) {
	if c.cfg.GroqAPIKey != "" {
		insight, err := c.generateGroq(ctx, symptoms, duration)
		if err == nil {
			return insight, ""
		}
		c.logger.Warn("groq request failed", zap.Error(err))
		return fallbackInsight(symptoms, duration), fmt.Sprintf("Groq request failed: %v", err)
	}

	if c.cfg.GeminiAPIKey != "" {
		insight, err := c.generateGemini(ctx, symptoms, duration)
		if err == nil {
			return insight, ""
		}
		c.logger.Warn("gemini request failed", zap.Error(err))
		return fallbackInsight(symptoms, duration), fmt.Sprintf("Gemini request failed: %v", err)
	}

	return fallbackInsight(symptoms, duration), "no assistant API key is configured"
}

func (c *Client) generateGroq(ctx context.Context, symptoms, duration string) (*Insight, error) {
	payload := map[string]interface{}{
		"model": c.cfg.GroqModel,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(symptoms, duration)},
		},
		"temperature": 0.4,
		"max_tokens":  500,
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	url := c.groqBaseURL + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.GroqAPIKey}
	if err := c.postJSON(ctx, url, headers, payload, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("groq returned an empty response")
	}
	return insightFromText(parsed.Choices[0].Message.Content), nil
}

func (c *Client) generateGemini(ctx context.Context, symptoms, duration string) (*Insight, error) {
	// Model names copied from provider listings may carry a "models/"
	// prefix that the URL already supplies.
	model := strings.TrimPrefix(c.cfg.GeminiModel, "models/")

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": []map[string]string{{"text": systemPrompt}}},
			{"role": "user", "parts": []map[string]string{{"text": userPrompt(symptoms, duration)}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.4,
			"maxOutputTokens": 500,
		},
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.geminiBaseURL, model)
	headers := map[string]string{"x-goog-api-key": c.cfg.GeminiAPIKey}
	if err := c.postJSON(ctx, url, headers, payload, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 ||
		parsed.Candidates[0].Content.Parts[0].Text == "" {
		return nil, fmt.Errorf("gemini returned an empty response")
	}
	return insightFromText(parsed.Candidates[0].Content.Parts[0].Text), nil
}

func (c *Client) postJSON(ctx context.Context, url string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider responded with status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func userPrompt(symptoms, duration string) string {
	return strings.TrimSpace(fmt.Sprintf("Symptoms: %s\nDuration: %s", symptoms, duration))
}

// insightFromText extracts the strict-JSON object the prompt asks for, and
// maps plain text into the summary when the model ignored the format.
func insightFromText(text string) *Insight {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		var insight Insight
		if err := json.Unmarshal([]byte(text[start:end+1]), &insight); err == nil && insight.Summary != "" {
			return &insight
		}
	}

	return &Insight{
		Summary:     strings.TrimSpace(text),
		Seriousness: "See summary",
		NextSteps:   "Follow the guidance above.",
		RedFlags:    "Seek urgent care if severe pain, fever, bleeding, or rapid change.",
		SelfCare:    "Avoid irritants and keep the area clean.",
		FollowUpQuestions: []string{
			"Where exactly is the affected area?",
			"When did it start and is it changing?",
			"Any known triggers or new products?",
		},
	}
}

// fallbackInsight is the offline keyword heuristic used when no provider is
// reachable.
func fallbackInsight(symptoms, duration string) *Insight {
	insight := &Insight{
		Summary:     "We could not interpret the input. Please add more detail.",
		Seriousness: "Unclear",
		NextSteps:   "Provide symptom location, onset, and any triggers.",
		RedFlags:    "Severe pain, rapid spreading, bleeding, or fever.",
		SelfCare:    "Keep the area clean and avoid known irritants.",
	}

	text := strings.ToLower(symptoms + " " + duration)
	switch {
	case containsAny(text, "bleeding", "black", "rapidly growing", "irregular", "ulcer"):
		insight.Seriousness = "High"
		insight.Summary = "Symptoms suggest a potentially serious skin concern."
		insight.NextSteps = "Seek dermatologist evaluation soon."
	case containsAny(text, "itch", "rash", "dry", "redness", "flaking"):
		insight.Seriousness = "Moderate"
		insight.Summary = "Symptoms align with inflammatory or allergic skin conditions."
		insight.NextSteps = "Consider gentle skincare and consult a clinician if persistent."
	case strings.TrimSpace(symptoms) != "":
		insight.Seriousness = "Low to moderate"
		insight.Summary = "Symptoms appear mild, but monitor for changes."
		insight.NextSteps = "If worsening or persistent, consult a specialist."
	}

	return insight
}

func containsAny(text string, words ...string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
