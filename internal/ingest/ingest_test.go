package ingest

import (
	"testing"
	"time"

	"stallwatch/internal/model"
)

func mkTick(token string, price int64, sec int64) model.Tick {
	return model.Tick{
		Token:    token,
		Exchange: "NSE",
		Price:    price,
		TickTS:   time.Unix(1700000000+sec, 0).UTC(),
	}
}

func TestLatest_EmptyBatch(t *testing.T) {
	out := Latest(nil)
	if len(out) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(out))
	}
}

func TestLatest_PicksNewestPerToken(t *testing.T) {
	batch := []model.Tick{
		mkTick("101", 10000, 5),
		mkTick("202", 50000, 1),
		mkTick("101", 10050, 9),
		mkTick("101", 10025, 3), // older than the second 101 tick
		mkTick("202", 50100, 2),
	}

	out := Latest(batch)
	if len(out) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(out))
	}
	if out["101"].Price != 10050 {
		t.Errorf("token 101: expected price 10050, got %d", out["101"].Price)
	}
	if out["202"].Price != 50100 {
		t.Errorf("token 202: expected price 50100, got %d", out["202"].Price)
	}
}

func TestLatest_TieBrokenByLastSeen(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	batch := []model.Tick{
		{Token: "101", Exchange: "NSE", Price: 100, TickTS: ts},
		{Token: "101", Exchange: "NSE", Price: 200, TickTS: ts},
		{Token: "101", Exchange: "NSE", Price: 300, TickTS: ts},
	}

	out := Latest(batch)
	if out["101"].Price != 300 {
		t.Errorf("expected last-seen tick to win the tie, got price %d", out["101"].Price)
	}
}

func TestLatest_SingleTick(t *testing.T) {
	out := Latest([]model.Tick{mkTick("7", 12345, 0)})
	if len(out) != 1 || out["7"].Price != 12345 {
		t.Fatalf("unexpected result: %+v", out)
	}
}
