package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"stallwatch/internal/model"
)

func TestAcknowledgeUpdatesStoreAndCache(t *testing.T) {
	h := newHarness(t, cfg("101"))
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})
	fireTimeout(t, h, "101")

	recent := h.eng.RecentAlerts()
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent alert, got %d", len(recent))
	}
	id := recent[0].ID

	if err := h.eng.Acknowledge(context.Background(), id); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	h.alerts.mu.Lock()
	acked := append([]string(nil), h.alerts.acked...)
	h.alerts.mu.Unlock()
	if len(acked) != 1 || acked[0] != id {
		t.Errorf("store acked = %v, want [%s]", acked, id)
	}

	got := h.eng.RecentAlerts()
	if !got[0].Acknowledged || got[0].AcknowledgedAt == nil {
		t.Error("cache entry not marked acknowledged")
	}

	// Second acknowledge is a no-op success.
	if err := h.eng.Acknowledge(context.Background(), id); err != nil {
		t.Fatalf("repeat Acknowledge: %v", err)
	}
}

func TestAcknowledgeStoreFailure(t *testing.T) {
	h := newHarness(t, cfg("101"))
	h.alerts.mu.Lock()
	h.alerts.ackErr = errors.New("db locked")
	h.alerts.mu.Unlock()

	err := h.eng.Acknowledge(context.Background(), "some-id")
	var perr *model.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *model.PersistenceError", err)
	}
}

func TestAcknowledgeAllClearsEverything(t *testing.T) {
	h := newHarness(t, cfg("101"), cfg("102"))
	h.eng.ProcessBatch(context.Background(), []model.Tick{
		tick("101", 10000, h.clock.Now()),
		tick("102", 20000, h.clock.Now()),
	})
	fireTimeout(t, h, "101")
	fireTimeout(t, h, "102")

	if len(h.eng.RecentAlerts()) != 2 || len(h.eng.InactiveTokens()) != 2 {
		t.Fatal("expected two fired alerts before AcknowledgeAll")
	}

	if err := h.eng.AcknowledgeAll(context.Background()); err != nil {
		t.Fatalf("AcknowledgeAll: %v", err)
	}

	if got := h.eng.RecentAlerts(); len(got) != 0 {
		t.Errorf("recent alerts = %d, want 0", len(got))
	}
	if got := h.eng.InactiveTokens(); len(got) != 0 {
		t.Errorf("inactive tokens = %v, want none", got)
	}

	// Every playing sound stops.
	h.player.mu.Lock()
	started, stopped := len(h.player.started), len(h.player.stopped)
	h.player.mu.Unlock()
	if stopped != started {
		t.Errorf("sounds stopped = %d, want %d (all started)", stopped, started)
	}

	h.alerts.mu.Lock()
	calls := h.alerts.ackedAll
	h.alerts.mu.Unlock()
	if calls != 1 {
		t.Errorf("store AcknowledgeAll calls = %d, want 1", calls)
	}
}

// Clearing all alerts must also tear down every instrument's state, or
// a pending inactivity timer re-fires a fresh alert with no new tick
// after the user cleared everything.
func TestAcknowledgeAllDestroysMonitoringState(t *testing.T) {
	h := newHarness(t, cfg("101"))
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})
	fireTimeout(t, h, "101")

	h.eng.mu.RLock()
	st := h.eng.states["101"]
	h.eng.mu.RUnlock()
	st.mu.Lock()
	gen := st.timerGen
	st.mu.Unlock()

	if err := h.eng.AcknowledgeAll(context.Background()); err != nil {
		t.Fatalf("AcknowledgeAll: %v", err)
	}

	if n := h.eng.MonitoredCount(); n != 0 {
		t.Fatalf("monitored instruments = %d, want 0 after AcknowledgeAll", n)
	}
	st.mu.Lock()
	destroyed, timer := st.destroyed, st.timer
	st.mu.Unlock()
	if !destroyed {
		t.Error("state not marked destroyed by AcknowledgeAll")
	}
	if timer != nil {
		t.Error("AcknowledgeAll left a pending timer armed")
	}

	// A callback already in flight for the old timer backs out.
	h.alerts.mu.Lock()
	before := len(h.alerts.inserted)
	h.alerts.mu.Unlock()
	h.eng.onTimeout("101", gen)
	h.alerts.mu.Lock()
	fired := len(h.alerts.inserted) - before
	h.alerts.mu.Unlock()
	if fired != 0 {
		t.Fatalf("%d alerts fired after AcknowledgeAll without a new tick", fired)
	}

	// The next tick recreates the state lazily.
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})
	if n := h.eng.MonitoredCount(); n != 1 {
		t.Fatalf("monitored instruments = %d, want 1 after a new tick", n)
	}
}

func TestAcknowledgeAllStoreFailureLeavesCache(t *testing.T) {
	h := newHarness(t, cfg("101"))
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})
	fireTimeout(t, h, "101")

	h.alerts.mu.Lock()
	h.alerts.ackErr = errors.New("db locked")
	h.alerts.mu.Unlock()

	if err := h.eng.AcknowledgeAll(context.Background()); err == nil {
		t.Fatal("expected error from AcknowledgeAll")
	}
	if got := h.eng.RecentAlerts(); len(got) != 1 {
		t.Errorf("cache cleared despite store failure (recent = %d, want 1)", len(got))
	}
	if n := h.eng.MonitoredCount(); n != 1 {
		t.Errorf("state destroyed despite store failure (monitored = %d, want 1)", n)
	}
}

func TestUpdateConfigurationRestartsMonitoring(t *testing.T) {
	h := newHarness(t, cfg("101"))
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})
	if h.eng.MonitoredCount() != 1 {
		t.Fatal("expected state before reconfigure")
	}

	// Even a notification-flag-only change restarts the cycle.
	updated := cfg("101")
	updated.Notify.Browser = true
	if err := h.eng.UpdateConfiguration(context.Background(), updated); err != nil {
		t.Fatalf("UpdateConfiguration: %v", err)
	}

	if n := h.eng.MonitoredCount(); n != 0 {
		t.Fatalf("expected state destroyed on reconfigure, got %d", n)
	}
	if got := h.eng.Configs()["101"]; !got.Notify.Browser {
		t.Error("config cache not updated")
	}
	h.cfgs.mu.Lock()
	saved := len(h.cfgs.saved)
	h.cfgs.mu.Unlock()
	if saved != 1 {
		t.Errorf("store saves = %d, want 1", saved)
	}

	// Next tick recreates the state under the new config.
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})
	if n := h.eng.MonitoredCount(); n != 1 {
		t.Fatalf("expected state recreated, got %d", n)
	}
}

func TestUpdateConfigurationRejectsNonPositiveDuration(t *testing.T) {
	h := newHarness(t, cfg("101"))

	for _, dur := range []int{0, -5} {
		bad := cfg("101")
		bad.DurationSec = dur
		err := h.eng.UpdateConfiguration(context.Background(), bad)
		var cerr *model.ConfigurationError
		if !errors.As(err, &cerr) {
			t.Fatalf("duration %d: error = %v, want *model.ConfigurationError", dur, err)
		}
	}

	h.cfgs.mu.Lock()
	saved := len(h.cfgs.saved)
	h.cfgs.mu.Unlock()
	if saved != 0 {
		t.Errorf("invalid configuration reached the store (%d saves)", saved)
	}
	if got := h.eng.Configs()["101"]; got.DurationSec != 30 {
		t.Errorf("config cache changed by rejected update (duration = %d)", got.DurationSec)
	}
}

func TestUpdateConfigurationSaveFailureKeepsOldConfig(t *testing.T) {
	h := newHarness(t, cfg("101"))
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})

	h.cfgs.mu.Lock()
	h.cfgs.saveErr = errors.New("redis down")
	h.cfgs.mu.Unlock()

	updated := cfg("101")
	updated.DeviationPaise = 999
	err := h.eng.UpdateConfiguration(context.Background(), updated)
	var cerr *model.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *model.ConfigurationError", err)
	}
	if got := h.eng.Configs()["101"]; got.DeviationPaise != 100 {
		t.Errorf("config cache changed despite save failure (deviation = %d)", got.DeviationPaise)
	}
	if n := h.eng.MonitoredCount(); n != 1 {
		t.Errorf("state destroyed despite save failure (monitored = %d)", n)
	}
}

func TestRemoveConfiguration(t *testing.T) {
	h := newHarness(t, cfg("101"))
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})

	if err := h.eng.RemoveConfiguration(context.Background(), "101"); err != nil {
		t.Fatalf("RemoveConfiguration: %v", err)
	}
	if _, ok := h.eng.Configs()["101"]; ok {
		t.Error("config still cached after removal")
	}
	if n := h.eng.MonitoredCount(); n != 0 {
		t.Errorf("state survived removal (monitored = %d)", n)
	}
	h.cfgs.mu.Lock()
	deleted := append([]string(nil), h.cfgs.deleted...)
	h.cfgs.mu.Unlock()
	if len(deleted) != 1 || deleted[0] != "101" {
		t.Errorf("store deletes = %v, want [101]", deleted)
	}

	// Later ticks for the removed token create nothing.
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})
	if n := h.eng.MonitoredCount(); n != 0 {
		t.Errorf("removed token regained state (monitored = %d)", n)
	}
}

func TestLoadConfigsFailureRetainsLastKnown(t *testing.T) {
	h := newHarness(t, cfg("101"))

	h.cfgs.mu.Lock()
	h.cfgs.listErr = errors.New("redis down")
	h.cfgs.mu.Unlock()

	err := h.eng.LoadConfigs(context.Background())
	var cerr *model.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *model.ConfigurationError", err)
	}
	if _, ok := h.eng.Configs()["101"]; !ok {
		t.Error("last-known configs dropped on refresh failure")
	}
}

func TestInactiveTokensSorted(t *testing.T) {
	h := newHarness(t, cfg("300"), cfg("101"), cfg("200"))
	now := h.clock.Now()
	h.eng.ProcessBatch(context.Background(), []model.Tick{
		tick("300", 1000, now), tick("101", 1000, now), tick("200", 1000, now),
	})
	fireTimeout(t, h, "300")
	fireTimeout(t, h, "101")
	fireTimeout(t, h, "200")

	got := h.eng.InactiveTokens()
	want := []string{"101", "200", "300"}
	if len(got) != len(want) {
		t.Fatalf("inactive tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("inactive tokens = %v, want %v", got, want)
		}
	}
}

// Guards against regressions in the ack timestamp: it must come from the
// engine clock, not the record's creation time.
func TestAcknowledgeTimestampUsesEngineClock(t *testing.T) {
	h := newHarness(t, cfg("101"))
	h.eng.ProcessBatch(context.Background(), []model.Tick{tick("101", 10000, h.clock.Now())})
	fireTimeout(t, h, "101")

	h.clock.Advance(42 * time.Minute)
	id := h.eng.RecentAlerts()[0].ID
	if err := h.eng.Acknowledge(context.Background(), id); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	got := h.eng.RecentAlerts()[0]
	want := h.clock.Now().UTC()
	if got.AcknowledgedAt == nil || !got.AcknowledgedAt.Equal(want) {
		t.Errorf("AcknowledgedAt = %v, want %v", got.AcknowledgedAt, want)
	}
}
