// Package emit turns a monitoring engine firing decision into a durable
// alert record plus best-effort notification side effects. Persistence
// failure never blocks the notification channels, and a failure to even
// construct the record suppresses every side effect.
package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"stallwatch/internal/model"
	"stallwatch/internal/notification"
)

const storeTimeout = 3 * time.Second

// StateSnapshot carries the engine's view of one instrument at the
// moment its inactivity timer fired.
type StateSnapshot struct {
	Baseline int64              `json:"baseline"`
	History  []model.PricePoint `json:"history"`
	Session  model.SessionInfo  `json:"session"`
}

// Emitter builds and dispatches inactivity alerts. Channel sinks are
// optional; a nil sink silently disables that channel.
type Emitter struct {
	Alerts  model.AlertStore
	Sound   notification.Player
	Browser notification.Notifier // usually wrapped in a PermissionGate
	Email   notification.Notifier

	// OnToast surfaces a transient UI message. Optional.
	OnToast func(msg string)

	Log *slog.Logger
}

// Fire constructs the alert record for the given tick/config/state and
// dispatches all configured side effects. The returned record is non-nil
// whenever construction succeeded, even if persistence failed; in that
// case err is a *model.PersistenceError the caller reports upward but
// treats as non-fatal. A started alert sound's handle is returned so the
// engine can stop it later.
func (e *Emitter) Fire(ctx context.Context, tick model.Tick, cfg model.InstrumentConfig, snap StateSnapshot) (*model.AlertRecord, notification.Handle, error) {
	now := time.Now().UTC()

	payload, err := json.Marshal(snap)
	if err != nil {
		// Record construction failed: no side effect may fire.
		return nil, 0, fmt.Errorf("emit: snapshot payload: %w", err)
	}

	min, max := priceRange(snap.History, tick.Price)
	rec := &model.AlertRecord{
		ID:            fmt.Sprintf("%s-%d", tick.Token, now.UnixNano()),
		UserID:        cfg.UserID,
		Token:         cfg.Token,
		Name:          cfg.Name,
		Exchange:      cfg.Exchange,
		Type:          model.AlertTypeInactivity,
		BaselinePrice: snap.Baseline,
		CurrentPrice:  tick.Price,
		PriceMin:      min,
		PriceMax:      max,
		Deviation:     cfg.DeviationPaise,
		DurationSec:   cfg.DurationSec,
		MarketSession: snap.Session.Session,
		MarketType:    snap.Session.MarketType,
		CreatedAt:     now,
		Payload:       payload,
	}

	var persistErr error
	if e.Alerts != nil {
		insertCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		if err := e.Alerts.Insert(insertCtx, rec); err != nil {
			persistErr = &model.PersistenceError{Op: "insert", Err: err}
			if e.Log != nil {
				e.Log.Error("alert persist failed", "token", rec.Token, "err", err)
			}
		}
		cancel()
	}

	sound := e.startSound(cfg)
	e.notify(cfg, rec)

	if e.OnToast != nil {
		e.OnToast(fmt.Sprintf("%s inactive for %ds (baseline %d)", cfg.Name, cfg.DurationSec, snap.Baseline))
	}

	return rec, sound, persistErr
}

func (e *Emitter) startSound(cfg model.InstrumentConfig) notification.Handle {
	if !cfg.Notify.Sound || e.Sound == nil {
		return 0
	}
	h, err := e.Sound.Start(notification.SoundSpec{
		Token: cfg.Token,
		Name:  "inactivity",
		Loop:  true,
	})
	if err != nil {
		if e.Log != nil {
			e.Log.Warn("alert sound failed", "token", cfg.Token, "err", err)
		}
		return 0
	}
	return h
}

// notify dispatches browser and email deliveries off the firing path.
// Channel failures degrade only that channel.
func (e *Emitter) notify(cfg model.InstrumentConfig, rec *model.AlertRecord) {
	msg := notification.Message{
		Level: notification.AlertWarning,
		Title: fmt.Sprintf("Inactivity: %s", cfg.Name),
		Body: fmt.Sprintf("%s (%s) stayed within %d paise of %d for %ds",
			cfg.Name, cfg.Exchange, rec.Deviation, rec.BaselinePrice, rec.DurationSec),
		Token: cfg.Token,
	}

	send := func(name string, n notification.Notifier) {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := n.Send(ctx, msg); err != nil && e.Log != nil {
			e.Log.Warn("notification channel failed", "channel", name, "token", cfg.Token, "err", err)
		}
	}

	if cfg.Notify.Browser && e.Browser != nil {
		go send("browser", e.Browser)
	}
	if cfg.Notify.Email && e.Email != nil {
		go send("email", e.Email)
	}
}

// priceRange computes min/max over the retained history, falling back
// to the current price when the history is empty.
func priceRange(history []model.PricePoint, current int64) (int64, int64) {
	if len(history) == 0 {
		return current, current
	}
	min, max := history[0].Price, history[0].Price
	for _, p := range history[1:] {
		if p.Price < min {
			min = p.Price
		}
		if p.Price > max {
			max = p.Price
		}
	}
	return min, max
}
