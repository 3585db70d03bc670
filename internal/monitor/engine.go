// Package monitor implements the per-instrument inactivity state
// machine: one symbolState per enabled instrument, armed with a
// cancellable timeout that fires when price fails to move beyond the
// configured deviation within the configured duration, honoring
// per-instrument market-session rules.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stallwatch/internal/emit"
	"stallwatch/internal/ingest"
	"stallwatch/internal/metrics"
	"stallwatch/internal/model"
)

// Options configures a monitoring engine.
type Options struct {
	UserID  string
	Configs model.ConfigStore
	Alerts  model.AlertStore
	Oracle  model.SessionOracle
	Emitter *emit.Emitter
	Logger  *slog.Logger
	Metrics *metrics.Metrics // optional

	// Now supplies the current time; defaults to time.Now. Injectable
	// for deterministic tests of throttling and history pruning.
	Now func() time.Time
}

// Engine owns the symbol-state table and the per-(user) configuration
// cache. Tick batches are processed sequentially by a single caller;
// per-instrument timeout callbacks are the only concurrent entrants and
// synchronize through each state's mutex plus a timer generation check.
type Engine struct {
	userID   string
	cfgStore model.ConfigStore
	alerts   model.AlertStore
	oracle   model.SessionOracle
	emitter  *emit.Emitter
	log      *slog.Logger
	met      *metrics.Metrics
	now      func() time.Time

	mu      sync.RWMutex
	configs map[string]model.InstrumentConfig
	states  map[string]*symbolState

	cacheMu  sync.Mutex
	recent   []model.AlertRecord // most recent first, ≤ recentAlertsCap
	inactive map[string]struct{} // tokens currently flagged inactive
}

// New creates an engine. Call LoadConfigs before feeding ticks.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		userID:   opts.UserID,
		cfgStore: opts.Configs,
		alerts:   opts.Alerts,
		oracle:   opts.Oracle,
		emitter:  opts.Emitter,
		log:      log,
		met:      opts.Metrics,
		now:      now,
		configs:  make(map[string]model.InstrumentConfig),
		states:   make(map[string]*symbolState),
		inactive: make(map[string]struct{}),
	}
}

// LoadConfigs refreshes the configuration cache from the store. On
// failure the last-known configuration is retained and a
// *model.ConfigurationError is returned.
func (e *Engine) LoadConfigs(ctx context.Context) error {
	cfgs, err := e.cfgStore.List(ctx, e.userID)
	if err != nil {
		return &model.ConfigurationError{Op: "list", Err: err}
	}

	next := make(map[string]model.InstrumentConfig, len(cfgs))
	for _, c := range cfgs {
		if c.DurationSec <= 0 {
			e.log.Warn("ignoring configuration with non-positive duration",
				"token", c.Token, "duration_sec", c.DurationSec)
			continue
		}
		next[c.Token] = c
	}

	e.mu.Lock()
	e.configs = next
	stale := make([]string, 0)
	for token := range e.states {
		if c, ok := next[token]; !ok || !c.Enabled {
			stale = append(stale, token)
		}
	}
	e.mu.Unlock()

	for _, token := range stale {
		e.destroyState(token)
	}

	e.log.Info("configurations loaded", "count", len(next), "destroyed", len(stale))
	return nil
}

// ProcessBatch ingests one tick batch: dedup to the latest tick per
// token, then run each through the state machine. Batches must be fed
// from a single goroutine.
func (e *Engine) ProcessBatch(ctx context.Context, batch []model.Tick) {
	if len(batch) == 0 {
		return
	}
	if e.met != nil {
		e.met.TicksTotal.Add(float64(len(batch)))
		e.met.BatchesTotal.Inc()
	}

	for token, tk := range ingest.Latest(batch) {
		e.processTick(ctx, token, tk)
	}

	if e.met != nil {
		e.met.MonitoredInstruments.Set(float64(e.stateCount()))
	}
}

// processTick applies the transition rules for one instrument, in
// priority order.
func (e *Engine) processTick(ctx context.Context, token string, tk model.Tick) {
	e.mu.RLock()
	cfg, hasCfg := e.configs[token]
	st := e.states[token]
	e.mu.RUnlock()

	// Rule 1: disabled or unconfigured instruments carry no state.
	if !hasCfg || !cfg.Enabled {
		if st != nil {
			e.destroyState(token)
		}
		return
	}

	// Rule 2: first eligible tick creates the state.
	if st == nil {
		e.createState(token, cfg, tk)
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.destroyed {
		// Destroyed since lookup; the next tick recreates it.
		return
	}

	// Rule 3: throttled session re-evaluation and transition handling.
	if cfg.RespectMarketHours && e.now().Sub(st.lastSessionCheck) >= sessionCheckInterval {
		active := e.alertingActive(cfg)
		st.lastSessionCheck = e.now()
		if active != st.sessionActive {
			st.sessionActive = active
			if active {
				st.baseline = tk.Price
				e.rearmLocked(token, st, cfg)
				e.clearInactive(token)
				e.stopSoundLocked(st)
				e.countSessionTransition("resume")
			} else {
				e.cancelTimerLocked(st)
				e.stopSoundLocked(st)
				e.countSessionTransition("suspend")
			}
			e.log.Debug("session transition", "token", token, "active", active)
		}
	}

	// Rule 4: suspended instruments ignore price updates entirely.
	if cfg.RespectMarketHours && !st.sessionActive {
		return
	}

	// Rule 5: armed — record the tick and test for a price excursion.
	st.history = appendPrune(st.history, model.PricePoint{Price: tk.Price, TS: tk.TickTS})
	if abs64(tk.Price-st.baseline) > cfg.DeviationPaise {
		st.baseline = tk.Price
		e.rearmLocked(token, st, cfg)
		e.clearInactive(token)
		e.stopSoundLocked(st)
	}
}

// createState builds a fresh symbolState from the first tick. The timer
// is armed only when the session currently allows alerting (or market
// hours are ignored).
func (e *Engine) createState(token string, cfg model.InstrumentConfig, tk model.Tick) {
	st := &symbolState{
		baseline:         tk.Price,
		history:          []model.PricePoint{{Price: tk.Price, TS: tk.TickTS}},
		lastSessionCheck: e.now(),
	}

	active := true
	if cfg.RespectMarketHours {
		active = e.alertingActive(cfg)
	}
	st.sessionActive = active

	// The state must be visible in the map before the timer is armed:
	// a callback firing immediately would otherwise find no state, back
	// out, and leave the instrument unmonitored.
	e.mu.Lock()
	e.states[token] = st
	e.mu.Unlock()

	st.mu.Lock()
	if active {
		e.rearmLocked(token, st, cfg)
	}
	st.mu.Unlock()
}

// destroyState removes and tears down an instrument's state. The timer
// is cancelled and the sound released synchronously; a timeout callback
// already in flight sees destroyed=true and backs out.
func (e *Engine) destroyState(token string) {
	e.mu.Lock()
	st := e.states[token]
	delete(e.states, token)
	e.mu.Unlock()

	if st == nil {
		return
	}
	st.mu.Lock()
	st.destroyed = true
	e.cancelTimerLocked(st)
	e.stopSoundLocked(st)
	st.mu.Unlock()
}

// rearmLocked schedules a fresh inactivity timeout, cancelling any
// outstanding one first. Caller holds st.mu.
func (e *Engine) rearmLocked(token string, st *symbolState, cfg model.InstrumentConfig) {
	if st.timer != nil {
		st.timer.Stop()
		if e.met != nil {
			e.met.TimersCancelled.Inc()
		}
	}
	st.timerGen++
	gen := st.timerGen
	st.timer = time.AfterFunc(time.Duration(cfg.DurationSec)*time.Second, func() {
		e.onTimeout(token, gen)
	})
	if e.met != nil {
		e.met.TimersArmed.Inc()
	}
}

// cancelTimerLocked stops the pending timeout and invalidates callbacks
// already scheduled. Caller holds st.mu.
func (e *Engine) cancelTimerLocked(st *symbolState) {
	st.timerGen++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
		if e.met != nil {
			e.met.TimersCancelled.Inc()
		}
	}
}

func (e *Engine) stopSoundLocked(st *symbolState) {
	if st.sound == 0 {
		return
	}
	if e.emitter != nil && e.emitter.Sound != nil {
		e.emitter.Sound.Stop(st.sound)
	}
	st.sound = 0
}

// onTimeout is the armed timer's callback: the only code path that runs
// concurrently with tick processing. It re-validates configuration and
// session under the instrument's lock before emitting, then rearms a
// new baseline cycle so repeated inactivity keeps being observed.
func (e *Engine) onTimeout(token string, gen uint64) {
	e.mu.RLock()
	st := e.states[token]
	cfg, hasCfg := e.configs[token]
	e.mu.RUnlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	if st.destroyed || gen != st.timerGen {
		st.mu.Unlock()
		return
	}
	st.timer = nil

	// Ticks may have disabled or reconfigured the instrument since the
	// timer was armed.
	if !hasCfg || !cfg.Enabled {
		st.mu.Unlock()
		e.destroyState(token)
		return
	}

	// A stale timer across a session boundary fires no alert.
	if cfg.RespectMarketHours && !e.alertingActive(cfg) {
		st.mu.Unlock()
		e.destroyState(token)
		e.countSessionTransition("stale_timer")
		return
	}

	e.fireLocked(token, st, cfg)
	st.mu.Unlock()
}

// fireLocked emits the inactivity alert and starts the next cycle.
// Caller holds st.mu.
func (e *Engine) fireLocked(token string, st *symbolState, cfg model.InstrumentConfig) {
	current := st.baseline
	if n := len(st.history); n > 0 {
		current = st.history[n-1].Price
	}

	session := model.SessionInfo{}
	if e.oracle != nil {
		if info, err := e.oracle.SessionInfo(cfg.Name); err == nil {
			session = info
		}
	}

	snap := emit.StateSnapshot{
		Baseline: st.baseline,
		History:  append([]model.PricePoint(nil), st.history...),
		Session:  session,
	}
	tick := model.Tick{Token: token, Exchange: cfg.Exchange, Price: current, TickTS: e.now().UTC()}

	start := time.Now()
	rec, sound, err := e.emitter.Fire(context.Background(), tick, cfg, snap)
	if e.met != nil {
		e.met.EmitDur.Observe(time.Since(start).Seconds())
	}

	if rec != nil {
		// In-memory bookkeeping happens even when persistence failed.
		e.stopSoundLocked(st)
		st.sound = sound

		e.cacheMu.Lock()
		e.recent = append([]model.AlertRecord{*rec}, e.recent...)
		if len(e.recent) > recentAlertsCap {
			e.recent = e.recent[:recentAlertsCap]
		}
		e.inactive[token] = struct{}{}
		e.cacheMu.Unlock()

		if e.met != nil {
			e.met.AlertsFired.WithLabelValues(cfg.Exchange).Inc()
		}
		e.log.Info("inactivity alert fired",
			"token", token, "name", cfg.Name, "baseline", snap.Baseline, "current", current)
	}
	if err != nil {
		if e.met != nil {
			e.met.StoreErrors.WithLabelValues("alerts").Inc()
		}
		e.log.Error("alert emission error", "token", token, "err", err)
	}
	if rec == nil {
		// Record construction failed: no side effects fired, keep watching.
		e.rearmLocked(token, st, cfg)
		return
	}

	st.baseline = current
	e.rearmLocked(token, st, cfg)
}

// alertingActive consults the oracle, degrading to "inactive" on error
// to avoid false positives.
func (e *Engine) alertingActive(cfg model.InstrumentConfig) bool {
	if e.oracle == nil {
		return true
	}
	active, err := e.oracle.IsAlertingActive(cfg.Name)
	if err != nil {
		e.log.Warn("session oracle error, treating as inactive", "token", cfg.Token, "err", err)
		return false
	}
	return active
}

func (e *Engine) clearInactive(token string) {
	e.cacheMu.Lock()
	delete(e.inactive, token)
	e.cacheMu.Unlock()
}

func (e *Engine) countSessionTransition(kind string) {
	if e.met != nil {
		e.met.SessionTransitions.WithLabelValues(kind).Inc()
	}
}

func (e *Engine) stateCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.states)
}
