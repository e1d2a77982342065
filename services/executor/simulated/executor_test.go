package simulated

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/build"
	"github.com/trezcool/appgen/storage/blob/fsblob"
)

func newRequest(platform appconfig.Platform) build.ExecRequest {
	return build.ExecRequest{
		JobID:    "job-1",
		Platform: platform,
		AppKind:  appconfig.KindGuardian,
		Config: appconfig.AppConfig{
			Name:        "Al Hikmah Parents",
			Version:     "1.2.0",
			BuildNumber: 7,
			Template:    "default",
			Features:    map[string]bool{"attendance": true, "payments": true, "messages": false},
		},
	}
}

func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		platform appconfig.Platform
		wantKey  string
	}{
		{appconfig.PlatformAndroid, "artifacts/job-1/al-hikmah-parents-1.2.0+7.apk"},
		{appconfig.PlatformIOS, "artifacts/job-1/al-hikmah-parents-1.2.0+7.ipa"},
	}
	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			ctx := context.Background()
			blobs, err := fsblob.New(t.TempDir())
			require.NoError(t, err)
			exec := New(blobs, "https://appgen.test/", 0)

			var percents []int
			var messages []string
			art, err := exec.Execute(ctx, newRequest(tt.platform), func(pct int, msg string) {
				percents = append(percents, pct)
				messages = append(messages, msg)
			})
			require.NoError(t, err)
			assert.Equal(t, "https://appgen.test/files/"+tt.wantKey, art.DownloadURL)

			require.Len(t, percents, len(stages))
			for i := 1; i < len(percents); i++ {
				assert.Greater(t, percents[i], percents[i-1])
			}
			assert.Contains(t, messages, "compiling "+string(tt.platform)+" sources")

			obj, err := blobs.Get(ctx, tt.wantKey)
			require.NoError(t, err)
			manifest := string(obj.Data)
			assert.True(t, strings.Contains(manifest, `"attendance"`), manifest)
			assert.False(t, strings.Contains(manifest, `"messages"`), manifest)
		})
	}
}

func TestExecutor_Execute_Cancelled(t *testing.T) {
	blobs, err := fsblob.New(t.TempDir())
	require.NoError(t, err)
	exec := New(blobs, "", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = exec.Execute(ctx, newRequest(appconfig.PlatformAndroid), func(int, string) {
		t.Error("no progress expected")
	})
	assert.Equal(t, context.Canceled, err)
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Al Hikmah Parents": "al-hikmah-parents",
		"  Ustadz -- App! ": "ustadz-app",
		"***":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, slug(in), in)
	}
}
