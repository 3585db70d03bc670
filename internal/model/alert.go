package model

import (
	"encoding/json"
	"time"
)

// AlertTypeInactivity is the only alert type this engine emits.
const AlertTypeInactivity = "inactivity"

// SessionInfo describes the market session an instrument is in.
type SessionInfo struct {
	Session    string `json:"session"`     // e.g. "regular", "pre-market", "closed"
	MarketType string `json:"market_type"` // e.g. "equity"
}

// AlertRecord is the durable record created when an inactivity timeout
// fires. Records transition unacknowledged → acknowledged and are never
// deleted by the engine; retention is a store concern.
type AlertRecord struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Type     string `json:"type"` // always AlertTypeInactivity

	BaselinePrice int64 `json:"baseline_price"` // paise
	CurrentPrice  int64 `json:"current_price"`  // paise
	PriceMin      int64 `json:"price_min"`      // paise, over retained history
	PriceMax      int64 `json:"price_max"`      // paise, over retained history
	Deviation     int64 `json:"deviation"`      // configured threshold, paise
	DurationSec   int   `json:"duration_sec"`

	MarketSession string `json:"market_session"`
	MarketType    string `json:"market_type"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	// Payload is a raw snapshot of the firing context for UI/audit use.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AlertFilter narrows an alert log query. Zero values mean "no filter";
// a nil Acknowledged matches both states.
type AlertFilter struct {
	Limit        int
	Offset       int
	Token        string
	Type         string
	From         time.Time
	To           time.Time
	Acknowledged *bool
}
