package redisrepos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/build"
)

// requires a running redis, eg. REDIS_ADDR=localhost:6379
func newTestRepo(t *testing.T) *jobRepository {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := Open(ctx, core.RedisConfig{Addr: addr})
	require.NoError(t, err)

	prefix := "appgen-test:" + uuid.NewString() + ":"
	repo := NewJobRepository(rdb, prefix)
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
		_ = rdb.Close()
	})
	return repo
}

func TestJobRepository_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	jobs := []build.Job{
		{ID: "a", Platform: appconfig.PlatformAndroid, AppKind: appconfig.KindGuardian, Status: build.StatusCompleted, CreatedAt: base},
		{ID: "b", Platform: appconfig.PlatformIOS, AppKind: appconfig.KindGuardian, Status: build.StatusFailed, CreatedAt: base.Add(time.Minute)},
		{ID: "c", Platform: appconfig.PlatformAndroid, AppKind: appconfig.KindInstructor, Status: build.StatusQueued, CreatedAt: base.Add(time.Minute)},
	}
	for _, j := range jobs {
		require.NoError(t, repo.CreateJob(ctx, j))
	}
	assert.Error(t, repo.CreateJob(ctx, jobs[0]))

	got, err := repo.GetJob(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, appconfig.PlatformIOS, got.Platform)
	assert.True(t, got.CreatedAt.Equal(jobs[1].CreatedAt))

	_, err = repo.GetJob(ctx, "missing")
	assert.Equal(t, build.ErrNotFound, err)

	url := "https://dl.test/c.apk"
	update := jobs[2]
	update.Status, update.Progress, update.DownloadURL = build.StatusCompleted, 100, &url
	require.NoError(t, repo.UpdateJob(ctx, update))
	got, err = repo.GetJob(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, build.StatusCompleted, got.Status)
	require.NotNil(t, got.DownloadURL)

	assert.Equal(t, build.ErrNotFound, repo.UpdateJob(ctx, build.Job{ID: "missing"}))

	tests := []struct {
		name    string
		filter  build.Filter
		wantIDs []string
	}{
		{name: "all", wantIDs: []string{"c", "b", "a"}},
		{name: "limit", filter: build.Filter{Limit: 2}, wantIDs: []string{"c", "b"}},
		{name: "guardian", filter: build.Filter{AppKind: appconfig.KindGuardian}, wantIDs: []string{"b", "a"}},
		{name: "completed android", filter: build.Filter{Platform: appconfig.PlatformAndroid, Status: build.StatusCompleted}, wantIDs: []string{"c", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(list))
			for _, j := range list {
				ids = append(ids, j.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}
