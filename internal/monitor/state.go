package monitor

import (
	"sync"
	"time"

	"stallwatch/internal/model"
	"stallwatch/internal/notification"
)

const (
	// historyWindow bounds the trailing price history per instrument.
	historyWindow = 5 * time.Minute
	// historyMaxPoints caps the history length regardless of age.
	historyMaxPoints = 100
	// sessionCheckInterval throttles market-session re-evaluation.
	sessionCheckInterval = 60 * time.Second
	// recentAlertsCap bounds the in-memory recent-alerts view.
	recentAlertsCap = 100
)

// symbolState is the per-instrument monitoring state, exclusively owned
// by the engine. The mutex serializes the tick path against the deferred
// timeout callback; timerGen invalidates stale callbacks after a
// cancel-and-rearm.
type symbolState struct {
	mu        sync.Mutex
	destroyed bool

	baseline int64
	history  []model.PricePoint // oldest first

	timer    *time.Timer
	timerGen uint64

	lastSessionCheck time.Time
	sessionActive    bool

	sound notification.Handle
}

// appendPrune appends a point and enforces both history bounds: entries
// older than historyWindow relative to the newest point are dropped, and
// at most historyMaxPoints remain.
func appendPrune(history []model.PricePoint, pt model.PricePoint) []model.PricePoint {
	history = append(history, pt)

	cutoff := pt.TS.Add(-historyWindow)
	start := 0
	for start < len(history) && history[start].TS.Before(cutoff) {
		start++
	}
	history = history[start:]

	if len(history) > historyMaxPoints {
		history = history[len(history)-historyMaxPoints:]
	}
	return history
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
