// Package notification provides alert delivery to external channels
// (desktop/browser notifications, webhooks, Telegram) plus the sound
// capability the monitoring engine drives. The engine never touches
// audio or display APIs directly; the embedding application supplies
// implementations of these interfaces.
package notification

import (
	"context"
	"errors"
	"log"
)

// AlertLevel represents the severity of a notification.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Message is a notification to be delivered on one channel.
type Message struct {
	Level AlertLevel `json:"level"`
	Title string     `json:"title"`
	Body  string     `json:"body"`
	Token string     `json:"token"` // instrument token the message concerns
}

// ErrPermissionDenied is returned when a channel's delivery permission
// has been explicitly refused. Only that channel degrades.
var ErrPermissionDenied = errors.New("notification: permission denied")

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers a message. Returns an error if delivery fails.
	Send(ctx context.Context, msg Message) error
}

// LogNotifier logs messages instead of delivering them (useful for
// development and as the toast fallback).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	log.Printf("[notify] [%s] %s: %s", msg.Level, msg.Title, msg.Body)
	return nil
}
