package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mentorchat/backend/internal/models"
	"mentorchat/backend/pkg/logger"
)

const defaultClassifierTimeout = 5 * time.Second

// Gate evaluates content against the lexicon and the optional classifier.
type Gate struct {
	lexicon    LexiconSource
	classifier Classifier
	timeout    time.Duration
	log        *logger.Logger
}

// GateOption customises a Gate
type GateOption func(*Gate)

// WithClassifier enables the secondary classification stage
func WithClassifier(c Classifier) GateOption {
	return func(g *Gate) { g.classifier = c }
}

// WithClassifierTimeout bounds each classifier call
func WithClassifierTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGate builds a gate over the given lexicon source.
func NewGate(lexicon LexiconSource, log *logger.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		lexicon: lexicon,
		timeout: defaultClassifierTimeout,
		log:     log.WithComponent("moderation"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ClassifierEnabled reports whether the secondary stage runs
func (g *Gate) ClassifierEnabled() bool {
	return g.classifier != nil
}

// Evaluate returns exactly one verdict for content. It never fails.
func (g *Gate) Evaluate(ctx context.Context, content string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(content))

	entries, err := g.lexicon.ActiveEntries(ctx)
	if err != nil {
		g.log.Warn("lexicon unavailable, allowing message", "error", err.Error())
		return Decision{Verdict: models.VerdictAllowed, Method: models.MethodFallback}
	}

	for _, entry := range entries {
		phrase := strings.ToLower(strings.TrimSpace(entry.Phrase))
		if phrase == "" {
			continue
		}
		if strings.Contains(normalized, phrase) {
			return Decision{
				Verdict: models.VerdictBlocked,
				Method:  models.MethodRuleBased,
				Reason:  fmt.Sprintf("message contains the blocked phrase %q (category: %s)", entry.Phrase, entry.Category),
			}
		}
	}

	allowed := Decision{Verdict: models.VerdictAllowed, Method: models.MethodRuleBased}
	if g.classifier == nil {
		return allowed
	}

	verdict, err := g.classify(ctx, content)
	if err != nil {
		g.log.Warn("classifier failed, keeping rule-based verdict", "error", err.Error())
		return allowed
	}
	if !verdict.Blocked {
		return Decision{Verdict: models.VerdictAllowed, Method: models.MethodAIBased}
	}

	reason := strings.TrimSpace(verdict.Reason)
	if reason == "" {
		reason = "message was flagged by the content classifier"
	}
	return Decision{Verdict: models.VerdictBlocked, Method: models.MethodAIBased, Reason: reason}
}

// classify bounds the call even if the classifier ignores its context.
func (g *Gate) classify(ctx context.Context, content string) (ClassifierVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		verdict ClassifierVerdict
		err     error
	}
	done := make(chan result, 1)
	go func() {
		v, err := g.classifier.Classify(ctx, content)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.verdict, r.err
	case <-ctx.Done():
		return ClassifierVerdict{}, fmt.Errorf("classifier: %w", ctx.Err())
	}
}
