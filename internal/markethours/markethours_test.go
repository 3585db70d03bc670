package markethours

import (
	"testing"
	"time"
)

// istDate builds a time in IST for brevity.
func istDate(y int, mo time.Month, d, h, m int) time.Time {
	return time.Date(y, mo, d, h, m, 0, 0, IST)
}

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"mid-session weekday", istDate(2026, time.March, 4, 11, 0), true},   // Wednesday
		{"before open", istDate(2026, time.March, 4, 9, 14), false},
		{"at open", istDate(2026, time.March, 4, 9, 15), true},
		{"at close", istDate(2026, time.March, 4, 15, 30), false},
		{"saturday", istDate(2026, time.March, 7, 11, 0), false},
		{"sunday", istDate(2026, time.March, 8, 11, 0), false},
		{"republic day holiday", istDate(2026, time.January, 26, 11, 0), false},
	}
	for _, c := range cases {
		if got := IsMarketOpen(c.t); got != c.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSessionLabel(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want string
	}{
		{"pre-market", istDate(2026, time.March, 4, 9, 5), SessionPreMarket},
		{"regular", istDate(2026, time.March, 4, 12, 0), SessionRegular},
		{"post-market", istDate(2026, time.March, 4, 15, 45), SessionPostMarket},
		{"evening", istDate(2026, time.March, 4, 18, 0), SessionClosed},
		{"early morning", istDate(2026, time.March, 4, 7, 0), SessionClosed},
		{"weekend", istDate(2026, time.March, 7, 12, 0), SessionClosed},
		{"holiday", istDate(2026, time.January, 26, 12, 0), SessionClosed},
	}
	for _, c := range cases {
		if got := SessionLabel(c.t); got != c.want {
			t.Errorf("%s: SessionLabel = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestNextOpen_SkipsWeekend(t *testing.T) {
	// Friday after close → Monday 9:15
	friEvening := istDate(2026, time.March, 6, 18, 0)
	next := NextOpen(friEvening)
	want := istDate(2026, time.March, 9, 9, 15)
	if !next.Equal(want) {
		t.Errorf("NextOpen = %v, want %v", next, want)
	}
}

func TestOracle(t *testing.T) {
	o := NewOracle()
	o.Now = func() time.Time { return istDate(2026, time.March, 4, 12, 0) }

	active, err := o.IsAlertingActive("SBIN")
	if err != nil || !active {
		t.Errorf("expected alerting active mid-session, got %v err=%v", active, err)
	}

	info, err := o.SessionInfo("SBIN")
	if err != nil {
		t.Fatalf("SessionInfo error: %v", err)
	}
	if info.Session != SessionRegular || info.MarketType != "equity" {
		t.Errorf("unexpected session info: %+v", info)
	}

	o.Now = func() time.Time { return istDate(2026, time.March, 7, 12, 0) } // Saturday
	active, _ = o.IsAlertingActive("SBIN")
	if active {
		t.Error("expected alerting inactive on Saturday")
	}
}
