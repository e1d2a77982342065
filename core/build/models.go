package build

import (
	"time"

	"github.com/trezcool/appgen/core/appconfig"
)

// Status is the lifecycle state of a build job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStarting  Status = "starting"
	StatusBuilding  Status = "building"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var AllStatuses = []Status{StatusQueued, StatusStarting, StatusBuilding, StatusCompleted, StatusFailed}

// validTransitions lists, for each status, the statuses a job may move to.
// Terminal statuses have no entry.
var validTransitions = map[Status][]Status{
	StatusQueued:   {StatusStarting, StatusFailed},
	StatusStarting: {StatusBuilding, StatusCompleted, StatusFailed},
	StatusBuilding: {StatusBuilding, StatusCompleted, StatusFailed},
}

// CanTransition reports whether a job in status `from` may move to status `to`.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition is defined out of `s`.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

type LogEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Job is one build attempt for one platform, app kind and config snapshot.
type Job struct {
	ID             string              `json:"id"`
	Platform       appconfig.Platform  `json:"platform"`
	AppKind        appconfig.AppKind   `json:"appKind"`
	ConfigSnapshot appconfig.AppConfig `json:"configSnapshot"`
	Status         Status              `json:"status"`
	Progress       int                 `json:"progress"`
	Log            []LogEntry          `json:"log"`
	DownloadURL    *string             `json:"downloadUrl"`
	CreatedAt      time.Time           `json:"createdAt"`
	CompletedAt    *time.Time          `json:"completedAt"`
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	clone := j
	clone.ConfigSnapshot = j.ConfigSnapshot.Clone()
	clone.Log = make([]LogEntry, len(j.Log))
	copy(clone.Log, j.Log)
	if j.DownloadURL != nil {
		url := *j.DownloadURL
		clone.DownloadURL = &url
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		clone.CompletedAt = &at
	}
	return clone
}

// LastMessage returns the latest log message, or "" for an empty log.
func (j Job) LastMessage() string {
	if len(j.Log) == 0 {
		return ""
	}
	return j.Log[len(j.Log)-1].Message
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Filter narrows a job history query. Zero fields match everything.
// Results are ordered newest first.
type Filter struct {
	AppKind  appconfig.AppKind
	Platform appconfig.Platform
	Status   Status
	Limit    int // 0 means no limit
}

func (f Filter) Match(j Job) bool {
	return (f.AppKind == "" || f.AppKind == j.AppKind) &&
		(f.Platform == "" || f.Platform == j.Platform) &&
		(f.Status == "" || f.Status == j.Status)
}

// SubmitRequest asks for a new build.
type SubmitRequest struct {
	Platform string              `json:"platform"`
	AppKind  string              `json:"appKind"`
	Config   appconfig.RawConfig `json:"config"`
}
