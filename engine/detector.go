package engine

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/nabiya/diarymem/core"
)

// Verdict is the End-Detector's decision for one turn.
type Verdict int

const (
	// NotEnding means the conversation continues.
	NotEnding Verdict = iota

	// Pending means the user signalled an ending once; the caller should
	// ask for confirmation instead of ending.
	Pending

	// Confirmed means the user signalled an ending twice in a row; the
	// caller should write the diary now.
	Confirmed
)

func (v Verdict) String() string {
	switch v {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	default:
		return "not_ending"
	}
}

// IntentClassifier decides whether the last user message of msgs asks to
// end the conversation.
type IntentClassifier interface {
	ClassifyEnding(ctx context.Context, msgs []core.Message) (bool, error)
}

// IntentClassifierFunc adapts a function to IntentClassifier.
type IntentClassifierFunc func(ctx context.Context, msgs []core.Message) (bool, error)

// ClassifyEnding calls f.
func (f IntentClassifierFunc) ClassifyEnding(ctx context.Context, msgs []core.Message) (bool, error) {
	return f(ctx, msgs)
}

const (
	// DefaultDetectorWindow is how many recent messages the classifier sees.
	DefaultDetectorWindow = 6

	// minHistory is the longest history that is never treated as an ending.
	minHistory = 2
)

// EndDetector is the confirm-then-commit gate in front of diary writes.
// A single ending signal only moves it to a pending state; a second
// consecutive one confirms. It belongs to one conversation and is not safe
// for concurrent use.
type EndDetector struct {
	classifier IntentClassifier
	window     int
	awaiting   bool
}

// NewEndDetector returns a detector in the active state.
func NewEndDetector(classifier IntentClassifier) *EndDetector {
	return &EndDetector{
		classifier: classifier,
		window:     DefaultDetectorWindow,
	}
}

// Evaluate classifies the latest turn of history and advances the state.
func (d *EndDetector) Evaluate(ctx context.Context, history []core.Message) Verdict {
	if len(history) <= minHistory {
		d.awaiting = false
		return NotEnding
	}

	ending, err := d.classifier.ClassifyEnding(ctx, core.LastMessages(history, d.window))
	if err != nil {
		// A failed classification neither ends the session nor cancels a
		// pending confirmation.
		log.WithError(err).Warn("[DETECTOR] intent classification failed")
		return NotEnding
	}

	switch {
	case !ending:
		d.awaiting = false
		return NotEnding
	case d.awaiting:
		d.awaiting = false
		return Confirmed
	default:
		d.awaiting = true
		return Pending
	}
}

// Awaiting reports whether a confirmation is pending.
func (d *EndDetector) Awaiting() bool {
	return d.awaiting
}

// Reset returns the detector to the active state.
func (d *EndDetector) Reset() {
	d.awaiting = false
}
