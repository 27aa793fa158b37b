// Package hook runs external executables in response to session events.
package hook

import (
	"encoding/json"
	"slices"
	"time"
)

// ManifestFile is the name of the manifest inside each hook directory.
const ManifestFile = "hook.json"

// Manifest describes a hook and the events it subscribes to.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request is written to the hook's stdin as JSON.
type Request struct {
	Event  string          `json:"event"`
	Time   time.Time       `json:"time"`
	Data   json.RawMessage `json:"data,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is read from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Wants reports whether the hook subscribes to event. "*" matches everything.
func (h *Hook) Wants(event string) bool {
	return slices.Contains(h.Manifest.Events, event) || slices.Contains(h.Manifest.Events, "*")
}
