package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/resilience"
)

const classifierSystemPrompt = `You review direct messages exchanged on a mentoring platform.
Block messages that try to move the conversation off the platform, arrange private in-person meetings in unsafe settings, request money or payment details, or harass the recipient.
Reply with a single JSON object and nothing else: {"verdict":"allowed"|"blocked","reason":"<short explanation>"}`

// OpenAIClassifierConfig configures the chat-completions classifier
type OpenAIClassifierConfig struct {
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration

	// OnBreakerChange observes circuit transitions, e.g. for metrics.
	OnBreakerChange func(from, to resilience.CircuitBreakerState)
}

// OpenAIClassifier asks an OpenAI-compatible chat completions endpoint for
// a verdict. Calls go through a circuit breaker.
type OpenAIClassifier struct {
	cfg        OpenAIClassifierConfig
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewOpenAIClassifier creates a classifier client
func NewOpenAIClassifier(cfg OpenAIClassifierConfig, log *logger.Logger) (*OpenAIClassifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("classifier URL is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultClassifierTimeout
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig("moderation-classifier")
	breakerCfg.CallTimeout = cfg.Timeout
	if cfg.OnBreakerChange != nil {
		onChange := cfg.OnBreakerChange
		breakerCfg.OnStateChange = func(_ string, from, to resilience.CircuitBreakerState) {
			onChange(from, to)
		}
	}

	return &OpenAIClassifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    resilience.NewCircuitBreaker(breakerCfg, log),
	}, nil
}

// BreakerState reports whether calls currently reach the endpoint
func (c *OpenAIClassifier) BreakerState() resilience.CircuitBreakerState {
	return c.breaker.State()
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type verdictPayload struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

// Classify implements Classifier
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (ClassifierVerdict, error) {
	var verdict ClassifierVerdict
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		content, err := c.complete(ctx, text)
		if err != nil {
			return err
		}
		verdict, err = ParseVerdict(content)
		return err
	})
	return verdict, err
}

func (c *OpenAIClassifier) complete(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making API request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status code %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrUnparseable)
	}
	return parsed.Choices[0].Message.Content, nil
}

// ParseVerdict interprets classifier output. Anything other than an
// explicit allowed or blocked verdict is ErrUnparseable.
func ParseVerdict(content string) (ClassifierVerdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var payload verdictPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return ClassifierVerdict{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	switch strings.ToLower(strings.TrimSpace(payload.Verdict)) {
	case "blocked", "block":
		return ClassifierVerdict{Blocked: true, Reason: payload.Reason}, nil
	case "allowed", "allow":
		return ClassifierVerdict{Blocked: false, Reason: payload.Reason}, nil
	}
	return ClassifierVerdict{}, fmt.Errorf("%w: verdict %q", ErrUnparseable, payload.Verdict)
}
