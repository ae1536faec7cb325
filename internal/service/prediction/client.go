package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jwalitptl/deepmed-api/internal/config"
	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/pkg/logger"
	"github.com/jwalitptl/deepmed-api/pkg/metrics"
)

const systemPrompt = "You are a helpful medical assistant that provides predictions in JSON format."

const promptTemplate = `Based on the following symptoms: %q, provide a medical prediction.
The response should be a JSON object with the following structure:
{
  "diseases": [
    {
      "disease": "Name of Disease",
      "accuracy": percentage,
      "description": "A brief description of the disease.",
      "severity": "mild, moderate, or severe",
      "recoveryTime": "Estimated recovery time, e.g., '1-2 weeks'",
      "medications": [{ "name": "Medication Name", "dosage": "e.g., 500mg twice a day", "purpose": "Purpose of medication" }],
      "diet": ["Dietary recommendation 1", "Dietary recommendation 2"],
      "precautions": ["Precaution 1", "Precaution 2"]
    }
  ],
  "recommendations": "General recommendations and advice."
}
List at least two possible diseases with their accuracy.`

var (
	ErrNoAPIKey     = errors.New("prediction provider API key is not configured")
	ErrEmptyContent = errors.New("provider response has no message content")
)

// fencePattern matches a markdown code block around the whole content,
// optionally tagged with a language.
var fencePattern = regexp.MustCompile("(?s)^```[A-Za-z]*\\s*(.*?)\\s*```$")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Outcome is the result of one prediction attempt. Prediction is always set;
// Err records why the fallback was used and is for logging only.
type Outcome struct {
	Prediction model.Prediction
	Fallback   bool
	Err        error
}

// Source labels where the prediction came from.
func (o *Outcome) Source() string {
	if o.Fallback {
		return metrics.SourceFallback
	}
	return metrics.SourceProvider
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	http    *resty.Client
	model   string
	apiKey  string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg config.LLMConfig, log *logger.Logger, m *metrics.Metrics) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:    client,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		logger:  log,
		metrics: m,
	}
}

// Predict asks the provider for a prediction. Any failure yields the fallback
// prediction; it never returns an error.
func (c *Client) Predict(ctx context.Context, symptoms string) *Outcome {
	prediction, err := c.request(ctx, symptoms)
	if err != nil {
		c.logger.WithContext(ctx).Warn(err, "Prediction provider failed, serving fallback")
		c.metrics.PredictionRequests.WithLabelValues(metrics.SourceFallback).Inc()
		return &Outcome{Prediction: model.FallbackPrediction(), Fallback: true, Err: err}
	}

	c.metrics.PredictionRequests.WithLabelValues(metrics.SourceProvider).Inc()
	return &Outcome{Prediction: prediction}
}

func (c *Client) request(ctx context.Context, symptoms string) (model.Prediction, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(promptTemplate, symptoms)},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(body).
		Post("/chat/completions")
	c.metrics.ProviderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to call prediction provider: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("prediction provider returned status %d: %s", resp.StatusCode(), truncate(resp.String(), 512))
	}

	var envelope chatResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if len(envelope.Choices) == 0 || strings.TrimSpace(envelope.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyContent
	}

	return ParseContent(envelope.Choices[0].Message.Content)
}

// ParseContent accepts the message content as a prediction when it is a JSON
// object, dropping a surrounding markdown code fence if there is one. The
// object is kept as sent.
func ParseContent(content string) (model.Prediction, error) {
	prediction, err := model.NewPrediction([]byte(StripFences(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return prediction, nil
}

func StripFences(content string) string {
	content = strings.TrimSpace(content)
	if m := fencePattern.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return content
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
