package markethours

import (
	"time"

	"stallwatch/internal/model"
)

// Oracle implements model.SessionOracle over the NSE calendar. The
// clock is injectable so session transitions can be tested without
// waiting for wall time.
type Oracle struct {
	// MarketType is reported in SessionInfo, default "equity".
	MarketType string

	// Now supplies the current time; defaults to time.Now.
	Now func() time.Time
}

// NewOracle creates an equity-market oracle on the real clock.
func NewOracle() *Oracle {
	return &Oracle{MarketType: "equity", Now: time.Now}
}

func (o *Oracle) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// IsAlertingActive reports whether inactivity alerting should run for
// the instrument right now. All NSE instruments share one calendar, so
// the instrument name only matters to callers with multi-market setups.
func (o *Oracle) IsAlertingActive(instrument string) (bool, error) {
	return IsMarketOpen(o.now()), nil
}

// SessionInfo returns the current session label and market type.
func (o *Oracle) SessionInfo(instrument string) (model.SessionInfo, error) {
	mt := o.MarketType
	if mt == "" {
		mt = "equity"
	}
	return model.SessionInfo{
		Session:    SessionLabel(o.now()),
		MarketType: mt,
	}, nil
}
