// Package moderation decides whether message content may be delivered.
//
// Evaluation runs a lexicon check first and, when enabled, a secondary
// classifier. Failures of either dependency never block traffic: a
// lexicon outage yields an allowed verdict with method fallback, and a
// classifier failure keeps the lexicon's allowed verdict.
package moderation

import (
	"context"
	"errors"

	"mentorchat/backend/internal/models"
)

// Decision is the single verdict produced by one evaluation.
type Decision struct {
	Verdict models.ModerationVerdict
	Method  models.ModerationMethod
	Reason  string
}

// Allowed reports whether the content may be delivered
func (d Decision) Allowed() bool {
	return d.Verdict == models.VerdictAllowed
}

// LexiconEntry is one blocked phrase and its category.
type LexiconEntry struct {
	Phrase   string
	Category string
}

// LexiconSource returns the active lexicon in evaluation order.
type LexiconSource interface {
	ActiveEntries(ctx context.Context) ([]LexiconEntry, error)
}

// ClassifierVerdict is the binary outcome of the secondary classifier.
type ClassifierVerdict struct {
	Blocked bool
	Reason  string
}

// Classifier is the optional secondary check.
type Classifier interface {
	Classify(ctx context.Context, text string) (ClassifierVerdict, error)
}

// ErrUnparseable is returned when the classifier answered but its output
// could not be interpreted as a verdict.
var ErrUnparseable = errors.New("classifier returned an unparseable verdict")
