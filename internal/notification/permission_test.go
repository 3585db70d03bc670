package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// captureNotifier records every delivered message.
type captureNotifier struct {
	mu   sync.Mutex
	sent []Message
}

func (c *captureNotifier) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func waitForState(t *testing.T, g *PermissionGate, want Permission) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if g.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("gate never reached state %v (now %v)", want, g.State())
}

func TestPermissionGate_NoRetroactiveDelivery(t *testing.T) {
	sink := &captureNotifier{}
	g := NewPermissionGate(sink, func(ctx context.Context) (bool, error) {
		return true, nil
	})

	// First send while undetermined: triggers the request, message dropped.
	if err := g.Send(context.Background(), Message{Title: "first"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForState(t, g, PermissionGranted)

	if n := sink.count(); n != 0 {
		t.Fatalf("the triggering message must not be delivered retroactively, got %d", n)
	}

	// Sends after the grant pass through.
	if err := g.Send(context.Background(), Message{Title: "second"}); err != nil {
		t.Fatalf("unexpected error after grant: %v", err)
	}
	if n := sink.count(); n != 1 {
		t.Fatalf("expected 1 delivered message after grant, got %d", n)
	}
}

func TestPermissionGate_Denied(t *testing.T) {
	sink := &captureNotifier{}
	g := NewPermissionGate(sink, func(ctx context.Context) (bool, error) {
		return false, nil
	})

	g.Send(context.Background(), Message{Title: "trigger"})
	waitForState(t, g, PermissionDenied)

	err := g.Send(context.Background(), Message{Title: "blocked"})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if n := sink.count(); n != 0 {
		t.Fatalf("denied gate must deliver nothing, got %d", n)
	}
}

func TestPermissionGate_RequestErrorAllowsRetry(t *testing.T) {
	sink := &captureNotifier{}
	var mu sync.Mutex
	calls := 0
	g := NewPermissionGate(sink, func(ctx context.Context) (bool, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return false, errors.New("prompt unavailable")
		}
		return true, nil
	})

	g.Send(context.Background(), Message{Title: "a"})

	// Wait for the failed request to reset the requested flag.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n >= 1 && g.State() == PermissionDefault {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	g.Send(context.Background(), Message{Title: "b"}) // retriggers the request
	waitForState(t, g, PermissionGranted)
}

func TestLogPlayer_HandlesIncrement(t *testing.T) {
	p := NewLogPlayer()
	h1, err := p.Start(SoundSpec{Token: "101", Name: "beep"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h2, _ := p.Start(SoundSpec{Token: "202", Name: "beep"})
	if h1 == h2 || h1 == 0 {
		t.Errorf("handles must be distinct and non-zero: %d %d", h1, h2)
	}
	p.Stop(h1)
}
