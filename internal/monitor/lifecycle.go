package monitor

import (
	"context"
	"fmt"
	"sort"

	"stallwatch/internal/model"
)

// Acknowledge marks one alert acknowledged, in the store and in the
// recent-alerts cache. Acknowledging an already-acknowledged alert is a
// no-op success.
func (e *Engine) Acknowledge(ctx context.Context, alertID string) error {
	if err := e.alerts.Acknowledge(ctx, e.userID, alertID); err != nil {
		if e.met != nil {
			e.met.StoreErrors.WithLabelValues("alerts").Inc()
		}
		return &model.PersistenceError{Op: "acknowledge", Err: err}
	}

	now := e.now().UTC()
	e.cacheMu.Lock()
	for i := range e.recent {
		if e.recent[i].ID == alertID && !e.recent[i].Acknowledged {
			e.recent[i].Acknowledged = true
			ts := now
			e.recent[i].AcknowledgedAt = &ts
		}
	}
	e.cacheMu.Unlock()
	return nil
}

// AcknowledgeAll marks every unacknowledged alert for the user. On
// success the recent-alerts cache and all inactive markers are cleared
// and every instrument's state is destroyed, cancelling pending timers
// and stopping sounds; the next tick recreates states lazily. Without
// the destroy a surviving timer would re-fire a fresh alert with no new
// tick after the user cleared everything.
func (e *Engine) AcknowledgeAll(ctx context.Context) error {
	if err := e.alerts.AcknowledgeAll(ctx, e.userID); err != nil {
		if e.met != nil {
			e.met.StoreErrors.WithLabelValues("alerts").Inc()
		}
		return &model.PersistenceError{Op: "acknowledge_all", Err: err}
	}

	e.cacheMu.Lock()
	e.recent = nil
	e.inactive = make(map[string]struct{})
	e.cacheMu.Unlock()

	e.mu.RLock()
	tokens := make([]string, 0, len(e.states))
	for token := range e.states {
		tokens = append(tokens, token)
	}
	e.mu.RUnlock()

	for _, token := range tokens {
		e.destroyState(token)
	}
	e.log.Info("all alerts acknowledged", "destroyed", len(tokens))
	return nil
}

// UpdateConfiguration persists the new configuration and restarts
// monitoring for the token: the existing state is destroyed
// unconditionally and lazily recreated on the next tick. This holds for
// any field change, including notification-flag-only edits.
func (e *Engine) UpdateConfiguration(ctx context.Context, cfg model.InstrumentConfig) error {
	if cfg.DurationSec <= 0 {
		return &model.ConfigurationError{
			Op:  "validate",
			Err: fmt.Errorf("duration_sec must be positive, got %d", cfg.DurationSec),
		}
	}
	if cfg.UserID == "" {
		cfg.UserID = e.userID
	}
	if err := e.cfgStore.Save(ctx, cfg); err != nil {
		if e.met != nil {
			e.met.StoreErrors.WithLabelValues("configs").Inc()
		}
		return &model.ConfigurationError{Op: "save", Err: err}
	}

	e.mu.Lock()
	e.configs[cfg.Token] = cfg
	e.mu.Unlock()

	e.destroyState(cfg.Token)
	e.log.Info("configuration updated", "token", cfg.Token, "enabled", cfg.Enabled)
	return nil
}

// RemoveConfiguration deletes the stored configuration and destroys any
// monitoring state for the token.
func (e *Engine) RemoveConfiguration(ctx context.Context, token string) error {
	if err := e.cfgStore.Delete(ctx, e.userID, token); err != nil {
		if e.met != nil {
			e.met.StoreErrors.WithLabelValues("configs").Inc()
		}
		return &model.ConfigurationError{Op: "delete", Err: err}
	}

	e.mu.Lock()
	delete(e.configs, token)
	e.mu.Unlock()

	e.destroyState(token)
	e.log.Info("configuration removed", "token", token)
	return nil
}

// RecentAlerts returns a copy of the in-memory recent-alerts view,
// most recent first.
func (e *Engine) RecentAlerts() []model.AlertRecord {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	out := make([]model.AlertRecord, len(e.recent))
	copy(out, e.recent)
	return out
}

// InactiveTokens returns the tokens currently flagged inactive, sorted
// for stable output.
func (e *Engine) InactiveTokens() []string {
	e.cacheMu.Lock()
	out := make([]string, 0, len(e.inactive))
	for token := range e.inactive {
		out = append(out, token)
	}
	e.cacheMu.Unlock()
	sort.Strings(out)
	return out
}

// Configs returns a copy of the cached configuration map.
func (e *Engine) Configs() map[string]model.InstrumentConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]model.InstrumentConfig, len(e.configs))
	for k, v := range e.configs {
		out[k] = v
	}
	return out
}

// MonitoredCount reports how many instruments currently hold state.
func (e *Engine) MonitoredCount() int {
	return e.stateCount()
}
