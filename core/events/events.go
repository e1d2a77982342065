// Package events fans build lifecycle events out to any number of observers.
package events

import "time"

// Type tags the variant of an Event.
type Type string

const (
	TypeStarted   Type = "started"
	TypeProgress  Type = "progress"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
)

// Event is a transient build lifecycle notification. Only the fields of its Type are set.
type Event struct {
	Type        Type      `json:"type"`
	JobID       string    `json:"jobId"`
	Percent     int       `json:"percent"`
	Message     string    `json:"message,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// IsTerminal reports whether no other event can follow `e` for the same job.
func (e Event) IsTerminal() bool {
	return e.Type == TypeCompleted || e.Type == TypeFailed
}

func Started(jobID string, at time.Time) Event {
	return Event{Type: TypeStarted, JobID: jobID, At: at}
}

func Progress(jobID string, percent int, msg string, at time.Time) Event {
	return Event{Type: TypeProgress, JobID: jobID, Percent: percent, Message: msg, At: at}
}

func Completed(jobID, downloadURL string, at time.Time) Event {
	return Event{Type: TypeCompleted, JobID: jobID, Percent: 100, DownloadURL: downloadURL, At: at}
}

func Failed(jobID string, percent int, reason string, at time.Time) Event {
	return Event{Type: TypeFailed, JobID: jobID, Percent: percent, Reason: reason, At: at}
}
