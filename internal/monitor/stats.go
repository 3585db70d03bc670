package monitor

import (
	"context"
	"sort"
	"time"

	"stallwatch/internal/markethours"
	"stallwatch/internal/model"
)

// statsQueryLimit bounds how many records the leaderboard query pulls
// from the store.
const statsQueryLimit = 1000

// topInstrumentsCap is how many instruments the leaderboard reports.
const topInstrumentsCap = 5

// InstrumentCount is one leaderboard entry.
type InstrumentCount struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Statistics is a derived, read-only aggregation over the alert log.
type Statistics struct {
	Total          int               `json:"total"`
	Unacknowledged int               `json:"unacknowledged"`
	Today          int               `json:"today"`
	Week           int               `json:"week"`
	TopInstruments []InstrumentCount `json:"top_instruments"` // trailing week, ≤5
}

// Statistics aggregates the user's alert log: totals, today/week
// windows, and the trailing-week top-5 instruments by alert count. The
// counters come from the store's pre-limit totals, so they stay exact
// however large the log grows; only the leaderboard is computed from
// the most recent statsQueryLimit week records.
func (e *Engine) Statistics(ctx context.Context) (Statistics, error) {
	now := e.now()
	// "Today" is the calendar day in IST, the exchange's clock; the
	// week window is the trailing 7 days.
	ist := now.In(markethours.IST)
	dayStart := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, markethours.IST)
	weekStart := now.Add(-7 * 24 * time.Hour)

	count := func(f model.AlertFilter) (int, error) {
		f.Limit = 1
		_, total, err := e.alerts.Query(ctx, e.userID, f)
		return total, err
	}

	var s Statistics
	var err error
	if s.Total, err = count(model.AlertFilter{}); err != nil {
		return Statistics{}, e.statsErr(err)
	}
	unacked := false
	if s.Unacknowledged, err = count(model.AlertFilter{Acknowledged: &unacked}); err != nil {
		return Statistics{}, e.statsErr(err)
	}
	if s.Today, err = count(model.AlertFilter{From: dayStart}); err != nil {
		return Statistics{}, e.statsErr(err)
	}

	weekRecs, weekTotal, err := e.alerts.Query(ctx, e.userID, model.AlertFilter{
		From:  weekStart,
		Limit: statsQueryLimit,
	})
	if err != nil {
		return Statistics{}, e.statsErr(err)
	}
	s.Week = weekTotal
	s.TopInstruments = topInstruments(weekRecs)
	return s, nil
}

func (e *Engine) statsErr(err error) error {
	if e.met != nil {
		e.met.StoreErrors.WithLabelValues("alerts").Inc()
	}
	return &model.PersistenceError{Op: "query", Err: err}
}

// topInstruments counts alerts per instrument and returns the top
// entries by count, descending. Ties keep first-seen order in the
// source iteration.
func topInstruments(recs []model.AlertRecord) []InstrumentCount {
	counts := make(map[string]*InstrumentCount)
	order := make([]string, 0)

	for _, r := range recs {
		c, ok := counts[r.Token]
		if !ok {
			c = &InstrumentCount{Token: r.Token, Name: r.Name}
			counts[r.Token] = c
			order = append(order, r.Token)
		}
		c.Count++
	}

	top := make([]InstrumentCount, 0, len(order))
	for _, token := range order {
		top = append(top, *counts[token])
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > topInstrumentsCap {
		top = top[:topInstrumentsCap]
	}
	return top
}
