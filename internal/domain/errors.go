package domain

import (
	"fmt"
	"time"
)

// ConfigError reports an unusable target configuration. It is fatal at
// startup; a reload that hits it keeps the previous configuration.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ProbeError describes why a host was unreachable. Probers only ever store it
// in a result; it is never returned up the stack.
type ProbeError struct {
	Host string
	Err  error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe %s: %v", e.Host, e.Err) }

func (e *ProbeError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed read or write of durable state.
type PersistenceError struct {
	Op  string // "load_states", "save_subscribers", ...
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence %s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError is returned by a sender when a message did not reach a recipient.
type DeliveryError struct {
	Recipient RecipientID
	Attempts  int
	At        time.Time
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("deliver to %s (after %d attempts): %v", e.Recipient, e.Attempts, e.Err)
	}
	return fmt.Sprintf("deliver to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
