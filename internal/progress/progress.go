// Package progress derives reading state from a scalar progress value and
// throttles progress reports coming from scrolling or card paging.
package progress

import (
	"math"

	"github.com/bunchhieng/saveit/internal/model"
)

const (
	// CompletedAt is the progress at which a link counts as read.
	CompletedAt = 0.98
	// ReadingAfter is the progress above which a link counts as started.
	ReadingAfter = 0.05

	// ScrollEpsilon is the minimum advance committed from scroll events.
	ScrollEpsilon = 0.015
	// CardEpsilon is the minimum advance committed from card paging.
	CardEpsilon = 0.01
)

// Clamp forces p into [0,1]. NaN becomes 0.
func Clamp(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// StatusFor maps a progress value to a status.
func StatusFor(p float64) model.Status {
	p = Clamp(p)
	switch {
	case p >= CompletedAt:
		return model.StatusCompleted
	case p > ReadingAfter:
		return model.StatusReading
	default:
		return model.StatusUnread
	}
}

// CanonicalProgress returns the progress an explicit status change implies.
// Reading has no canonical value, so current is kept.
func CanonicalProgress(s model.Status, current float64) float64 {
	switch s {
	case model.StatusUnread:
		return 0
	case model.StatusCompleted:
		return 1
	default:
		return Clamp(current)
	}
}

// Scroll computes progress from a scroll position: the bottom edge of the
// viewport over the total content height.
func Scroll(offset, viewport, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return Clamp((offset + viewport) / total)
}

// Card computes progress from the index of the visible card.
func Card(index, total int) float64 {
	if total <= 0 {
		return 0
	}
	return Clamp(float64(index+1) / float64(total))
}

// Tracker keeps the furthest progress reached during one viewing session and
// decides which reports are worth committing.
type Tracker struct {
	epsilon float64
	max     float64
}

// NewScrollTracker returns a tracker for scroll-derived progress starting at stored.
func NewScrollTracker(stored float64) *Tracker {
	return &Tracker{epsilon: ScrollEpsilon, max: Clamp(stored)}
}

// NewCardTracker returns a tracker for card-derived progress starting at stored.
func NewCardTracker(stored float64) *Tracker {
	return &Tracker{epsilon: CardEpsilon, max: Clamp(stored)}
}

// Offer reports a new observation. It returns the value to commit and true
// only when p advances past the furthest point by more than the epsilon.
func (t *Tracker) Offer(p float64) (float64, bool) {
	p = Clamp(p)
	if p <= t.max+t.epsilon {
		return t.max, false
	}
	t.max = p
	return p, true
}

// Max returns the furthest committed progress.
func (t *Tracker) Max() float64 {
	return t.max
}

// Reset moves the tracker back to p after an explicit status change.
func (t *Tracker) Reset(p float64) {
	t.max = Clamp(p)
}
