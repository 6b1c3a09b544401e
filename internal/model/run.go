// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data: similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Run is one entry of the execution history.
//
// Only metadata is stored: the submitted source, stdin and captured output are
// never persisted, so the history cannot be used to recover a session's buffer.
// The `json:"..."` tags control how the struct is serialised by /api/runs.
type Run struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId,omitempty"` // set when the run came from a live session
	Language   string    `json:"language"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exitCode"`
	DurationMs int64     `json:"durationMs"`
	CodeBytes  int       `json:"codeBytes"`
	CreatedAt  time.Time `json:"createdAt"`
}
