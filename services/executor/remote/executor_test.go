package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/build"
	logsvc "github.com/trezcool/appgen/services/logger"
)

type progressCall struct {
	pct int
	msg string
}

// newFarm serves the given poll responses in order, repeating the last one.
func newFarm(t *testing.T, polls ...string) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu    sync.Mutex
		seen  []string
		count int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/builds":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"id": "farm-9"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/builds/farm-9":
			i := count
			if i >= len(polls) {
				i = len(polls) - 1
			}
			count++
			_, _ = w.Write([]byte(polls[i]))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func newExecutor(url string) *Executor {
	return New(Config{BaseURL: url, Token: "s3cret", PollInterval: 5 * time.Millisecond}, logsvc.NewMemoryLogger())
}

func execReq() build.ExecRequest {
	return build.ExecRequest{JobID: "job-1", Platform: appconfig.PlatformAndroid, AppKind: appconfig.KindGuardian}
}

func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		name         string
		polls        []string
		wantURL      string
		wantErr      string
		wantErrCause error
		wantProgress []progressCall
	}{
		{
			name: "succeeded",
			polls: []string{
				`{"status": "queued"}`,
				`{"status": "running", "progress": {"percent": 40, "message": "compiling"}}`,
				`{"status": "running", "progress": {"percent": 40, "message": "compiling"}}`,
				`{"status": "running", "progress": {"percent": 80, "message": "signing"}}`,
				`{"status": "succeeded", "artifact": {"url": "https://cdn.test/app.apk"}}`,
			},
			wantURL:      "https://cdn.test/app.apk",
			wantProgress: []progressCall{{40, "compiling"}, {80, "signing"}},
		},
		{
			name:    "failed",
			polls:   []string{`{"status": "failed", "error": "gradle exited with 1"}`},
			wantErr: "gradle exited with 1",
		},
		{
			name:         "succeeded without artifact",
			polls:        []string{`{"status": "succeeded"}`},
			wantErrCause: build.ErrMissingArtifact,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newFarm(t, tt.polls...)
			var calls []progressCall
			art, err := newExecutor(srv.URL).Execute(context.Background(), execReq(), func(pct int, msg string) {
				calls = append(calls, progressCall{pct, msg})
			})

			switch {
			case tt.wantErr != "":
				assert.EqualError(t, err, tt.wantErr)
			case tt.wantErrCause != nil:
				assert.Equal(t, tt.wantErrCause, errors.Cause(err))
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantURL, art.DownloadURL)
			}
			assert.Equal(t, tt.wantProgress, calls)
		})
	}
}

func TestExecutor_Execute_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newExecutor(srv.URL).Execute(context.Background(), execReq(), func(int, string) {})
	assert.Equal(t, build.ErrExecutorUnavailable, errors.Cause(err))

	srv.Close()
	_, err = newExecutor(srv.URL).Execute(context.Background(), execReq(), func(int, string) {})
	assert.Equal(t, build.ErrExecutorUnavailable, errors.Cause(err))
}

func TestExecutor_Execute_CancelAborts(t *testing.T) {
	srv, seen := newFarm(t, `{"status": "running"}`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := newExecutor(srv.URL).Execute(ctx, execReq(), func(int, string) {})
	assert.Equal(t, context.Canceled, err)
	assert.Contains(t, seen(), "DELETE /builds/farm-9")
}

func TestNew_PanicsWithoutURL(t *testing.T) {
	assert.Panics(t, func() { New(Config{}, logsvc.NewMemoryLogger()) })
}
