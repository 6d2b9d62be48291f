package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/logsmith/backend/pkg/logger"
)

// Progress event types.
const (
	EventRunStarted      = "run_started"
	EventPatternAccepted = "pattern_accepted"
	EventBatchFlushed    = "batch_flushed"
	EventRunFinished     = "run_finished"
)

// ProgressEvent is one lifecycle notification from a running pipeline.
type ProgressEvent struct {
	Type     string    `json:"type"`
	Group    string    `json:"group"`
	Pattern  string    `json:"pattern,omitempty"`
	Origin   string    `json:"origin,omitempty"`
	Score    float64   `json:"score,omitempty"`
	Fallback bool      `json:"fallback,omitempty"`
	Status   string    `json:"status,omitempty"`
	Scanned  int64     `json:"scanned,omitempty"`
	Parsed   int64     `json:"parsed,omitempty"`
	Failed   int64     `json:"failed,omitempty"`
	Time     time.Time `json:"time"`
}

const subscriberBuffer = 256

// ProgressHub broadcasts pipeline events to any number of subscribers.
// Slow subscribers drop events rather than stalling the pipeline.
type ProgressHub struct {
	mu   sync.RWMutex
	subs map[chan ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[chan ProgressEvent]struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called
// to release the subscription.
func (h *ProgressHub) Subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

func (h *ProgressHub) Publish(ev ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			logger.Debug("Progress event dropped for slow subscriber",
				zap.String("type", ev.Type),
				zap.String("group", ev.Group),
			)
		}
	}
}
