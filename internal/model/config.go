package model

// NotifyChannels selects which notification channels fire when an
// inactivity alert is emitted for an instrument.
type NotifyChannels struct {
	Sound   bool `json:"sound"`
	Browser bool `json:"browser"`
	Email   bool `json:"email"`
}

// InstrumentConfig holds the per-(user, instrument) monitoring settings.
// Owned by the configuration store; the engine caches a read-only copy
// and refreshes it only on explicit reconfiguration.
type InstrumentConfig struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`

	Enabled bool `json:"enabled"`

	// DeviationPaise is the price excursion from baseline that counts as
	// activity. A move strictly greater than this resets the cycle.
	DeviationPaise int64 `json:"deviation_paise"`

	// DurationSec is the inactivity window: if price stays within
	// DeviationPaise of baseline for this long, an alert fires.
	DurationSec int `json:"duration_sec"`

	// RespectMarketHours suspends monitoring outside the alerting session.
	RespectMarketHours bool `json:"respect_market_hours"`

	Notify NotifyChannels `json:"notify"`
}
