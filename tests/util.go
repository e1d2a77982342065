package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/build"
)

// CreateJob persists a job in `status` with a single log entry, bypassing the orchestrator.
func CreateJob(
	t *testing.T,
	repo build.Repository,
	platform appconfig.Platform,
	kind appconfig.AppKind,
	status build.Status,
	message string,
	createdAt ...time.Time,
) build.Job {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	job := build.Job{
		ID:             uuid.NewString(),
		Platform:       platform,
		AppKind:        kind,
		ConfigSnapshot: appconfig.AppConfig{Name: "Test App", Version: "1.0.0", BuildNumber: 1, Template: appconfig.TemplateDefault},
		Status:         status,
		Log:            []build.LogEntry{{At: tstamp, Message: message}},
		CreatedAt:      tstamp,
	}
	if status.IsTerminal() {
		job.CompletedAt = &tstamp
	}
	if status == build.StatusCompleted {
		url := "https://dl.test/" + job.ID
		job.Progress = 100
		job.DownloadURL = &url
	}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob() failed: %v", err)
	}
	return job
}
