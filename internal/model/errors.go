package model

import "fmt"

// ConfigurationError reports a configuration store read/write failure.
// The engine retains its last-known configuration when one occurs.
type ConfigurationError struct {
	Op  string // "list", "save", "delete"
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config store %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PersistenceError reports an alert log read/write failure. Non-fatal:
// in-memory state is still updated and monitoring continues.
type PersistenceError struct {
	Op  string // "insert", "query", "acknowledge", "acknowledge_all"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("alert store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
