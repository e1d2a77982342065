package build

import (
	"context"

	"github.com/trezcool/appgen/core/appconfig"
)

// ExecRequest is what an executor needs to produce a native app.
type ExecRequest struct {
	JobID    string
	Platform appconfig.Platform
	AppKind  appconfig.AppKind
	Config   appconfig.AppConfig
}

// Artifact is the result of a successful build.
type Artifact struct {
	DownloadURL string
}

// ProgressFunc receives executor progress. It may block until the job driver accepts the update,
// and returns early when the build context is done.
type ProgressFunc func(percent int, message string)

// Executor produces native builds. Implementations wrap ErrExecutorUnavailable when the
// build toolchain cannot be reached.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest, progress ProgressFunc) (Artifact, error)
}

// Update is an executor report received out of band (eg. from a build farm webhook).
// Exactly one of its outcomes applies: Error set means failure, DownloadURL set means success,
// otherwise it is a progress report.
type Update struct {
	Percent     int    `json:"percent"`
	Message     string `json:"message"`
	DownloadURL string `json:"downloadUrl"`
	Error       string `json:"error"`
}

func (u Update) isFailure() bool { return u.Error != "" }
func (u Update) isSuccess() bool { return u.Error == "" && u.DownloadURL != "" }

// Observer is notified of job outcomes, for metrics.
type Observer interface {
	JobSubmitted(platform appconfig.Platform, kind appconfig.AppKind)
	JobFinished(job Job)
}

type nopObserver struct{}

func (nopObserver) JobSubmitted(appconfig.Platform, appconfig.AppKind) {}
func (nopObserver) JobFinished(Job)                                    {}
