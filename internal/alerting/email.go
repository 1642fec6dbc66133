package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/resilience"

	"github.com/hashicorp/go-retryablehttp"
)

var subjectTemplate = template.Must(template.New("subject").Parse(
	`[moderation] message blocked from user {{.SenderID}}`))

var bodyTemplate = template.Must(template.New("body").Funcs(template.FuncMap{
	"deref": func(p *uint) uint { return *p },
}).Parse(`A message was blocked by moderation.

Audit record: {{.LogID}}
Sender:       {{.SenderID}}
Recipient:    {{if .RecipientID}}{{deref .RecipientID}}{{else}}{{.RecipientAddress}}{{end}}
Method:       {{.Method}}
Reason:       {{.Reason}}
Time:         {{.Timestamp.Format "2006-01-02T15:04:05Z07:00"}}

Content:
{{.Content}}
`))

// EmailAPIConfig configures the HTTP email notifier
type EmailAPIConfig struct {
	URL     string
	APIKey  string
	From    string
	To      []string
	Timeout time.Duration
}

// EmailAPINotifier posts alerts to a transactional email HTTP API.
type EmailAPINotifier struct {
	cfg     EmailAPIConfig
	client  *retryablehttp.Client
	breaker *resilience.CircuitBreaker
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// NewEmailAPINotifier creates an email notifier
func NewEmailAPINotifier(cfg EmailAPIConfig, log *logger.Logger) (*EmailAPINotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("alerts API URL is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one alert recipient is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = log.WithComponent("alerting").Logger

	breakerCfg := resilience.DefaultCircuitBreakerConfig("alerts-email")
	breakerCfg.CallTimeout = cfg.Timeout

	return &EmailAPINotifier{
		cfg:     cfg,
		client:  client,
		breaker: resilience.NewCircuitBreaker(breakerCfg, log),
	}, nil
}

// SendBlockedContentAlert implements Notifier
func (n *EmailAPINotifier) SendBlockedContentAlert(ctx context.Context, alert Alert) error {
	payload, err := renderEmail(n.cfg.From, n.cfg.To, alert)
	if err != nil {
		return err
	}

	return n.breaker.Call(ctx, func(ctx context.Context) error {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, payload)
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if n.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("error sending alert: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("alerts API returned status %d", resp.StatusCode)
		}
		return nil
	})
}

func renderEmail(from string, to []string, alert Alert) ([]byte, error) {
	var subject, body bytes.Buffer
	if err := subjectTemplate.Execute(&subject, alert); err != nil {
		return nil, fmt.Errorf("render alert subject: %w", err)
	}
	if err := bodyTemplate.Execute(&body, alert); err != nil {
		return nil, fmt.Errorf("render alert body: %w", err)
	}

	return json.Marshal(emailRequest{
		From:    from,
		To:      to,
		Subject: strings.TrimSpace(subject.String()),
		Text:    body.String(),
	})
}
