package model

import (
	"context"
)

// ── Storage & Oracle Port Interfaces ──
// These interfaces decouple the monitoring engine from concrete
// implementations (Redis, SQLite, market calendar). Each implementation
// satisfies one of these interfaces.

// ConfigStore persists per-(user, instrument) monitoring configurations.
type ConfigStore interface {
	// List returns every stored configuration for a user.
	List(ctx context.Context, userID string) ([]InstrumentConfig, error)

	// Save upserts a configuration.
	Save(ctx context.Context, cfg InstrumentConfig) error

	// Delete removes the configuration for one instrument token.
	Delete(ctx context.Context, userID, token string) error
}

// AlertStore persists fired alert records and acknowledgment state.
type AlertStore interface {
	// Insert writes a newly fired alert record.
	Insert(ctx context.Context, rec *AlertRecord) error

	// Query returns matching records (most recent first) and the total
	// match count before Limit/Offset are applied.
	Query(ctx context.Context, userID string, f AlertFilter) ([]AlertRecord, int, error)

	// Acknowledge marks one record acknowledged. Acknowledging an
	// already-acknowledged record is a no-op success.
	Acknowledge(ctx context.Context, userID, id string) error

	// AcknowledgeAll marks every unacknowledged record for the user.
	AcknowledgeAll(ctx context.Context, userID string) error

	// Close releases underlying resources.
	Close() error
}

// SessionOracle answers market-session questions for an instrument.
// Implementations must be pure queries with no engine-visible state.
type SessionOracle interface {
	// IsAlertingActive reports whether inactivity alerting should run
	// right now for the named instrument.
	IsAlertingActive(instrument string) (bool, error)

	// SessionInfo returns the current session label and market type.
	SessionInfo(instrument string) (SessionInfo, error)
}
