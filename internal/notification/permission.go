package notification

import (
	"context"
	"log"
	"sync"
)

// Permission is the tri-state delivery permission for a channel.
type Permission int

const (
	PermissionDefault Permission = iota // not yet asked
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "default"
	}
}

// RequestFunc asks the embedding application for delivery permission.
// It may block (user prompt) and is always invoked off the tick path.
type RequestFunc func(ctx context.Context) (bool, error)

// PermissionGate wraps a Notifier behind a permission check. While
// permission is undetermined the first Send triggers one asynchronous
// request; the triggering message is dropped, and only messages sent
// after a successful grant are delivered. A denied permission fails
// every Send with ErrPermissionDenied.
type PermissionGate struct {
	mu        sync.Mutex
	state     Permission
	requested bool

	next    Notifier
	request RequestFunc
}

// NewPermissionGate wraps next behind the given request function.
func NewPermissionGate(next Notifier, request RequestFunc) *PermissionGate {
	return &PermissionGate{next: next, request: request}
}

// State returns the current permission state.
func (g *PermissionGate) State() Permission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// SetState forces the permission state (restore from preferences).
func (g *PermissionGate) SetState(p Permission) {
	g.mu.Lock()
	g.state = p
	g.mu.Unlock()
}

func (g *PermissionGate) Send(ctx context.Context, msg Message) error {
	g.mu.Lock()
	switch g.state {
	case PermissionGranted:
		g.mu.Unlock()
		return g.next.Send(ctx, msg)

	case PermissionDenied:
		g.mu.Unlock()
		return ErrPermissionDenied

	default:
		if !g.requested && g.request != nil {
			g.requested = true
			go g.resolve()
		}
		g.mu.Unlock()
		// Undetermined: drop this message, no retroactive delivery.
		return nil
	}
}

// resolve performs the one-shot permission request off the tick path.
func (g *PermissionGate) resolve() {
	granted, err := g.request(context.Background())

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		// Leave state undetermined so a later Send can retry.
		g.requested = false
		log.Printf("[notify] permission request failed: %v", err)
		return
	}
	if granted {
		g.state = PermissionGranted
	} else {
		g.state = PermissionDenied
	}
	log.Printf("[notify] permission resolved: %s", g.state)
}
