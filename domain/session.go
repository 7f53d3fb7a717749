// Package domain contains core concepts of the relay.
// This file defines the derived presence view.
// No runtime, network, or UI logic should be added here.
package domain

// PresenceEntry is one row of the derived presence set.
type PresenceEntry struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}
