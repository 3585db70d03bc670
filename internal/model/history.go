package model

import "time"

// PricePoint is one retained (price, timestamp) observation in an
// instrument's trailing history window.
type PricePoint struct {
	Price int64     `json:"price"` // paise
	TS    time.Time `json:"ts"`
}
