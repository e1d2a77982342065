package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/asset"
	"github.com/trezcool/appgen/core/build"
	"github.com/trezcool/appgen/core/events"
	logsvc "github.com/trezcool/appgen/services/logger"
	metricsvc "github.com/trezcool/appgen/services/metrics"
	"github.com/trezcool/appgen/storage/blob/fsblob"
	inmemdb "github.com/trezcool/appgen/storage/database/inmem"
)

const webhookToken = "hook-s3cret"

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	header   map[string]string
	wantCode int
	wantData []byte
}

type testEnv struct {
	srv     Server
	svc     *build.Service
	hub     *events.Hub
	release chan struct{}
}

// gateExecutor reports some progress, then completes once released.
type gateExecutor struct {
	release chan struct{}
}

func (g gateExecutor) Execute(ctx context.Context, req build.ExecRequest, progress build.ProgressFunc) (build.Artifact, error) {
	progress(40, "compiling")
	select {
	case <-g.release:
		return build.Artifact{DownloadURL: "/files/artifacts/" + req.JobID + "/app.apk"}, nil
	case <-ctx.Done():
		return build.Artifact{}, ctx.Err()
	}
}

type envOption func(conf *core.Config)

func setup(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	conf := &core.Config{
		AppName:  "AppGen",
		TestMode: true,
		Server:   core.ServerConfig{DisableReqLogs: true},
		Assets:   core.AssetsConfig{MaxBytes: 4 << 10},
		Builder:  core.BuilderConfig{RemoteToken: webhookToken},
	}
	for _, opt := range opts {
		opt(conf)
	}

	logger := logsvc.NewMemoryLogger()
	hub := events.NewHub(16, logger)
	metrics := metricsvc.New()
	metrics.WatchHub(hub)

	db, err := inmemdb.Open()
	require.NoError(t, err)

	release := make(chan struct{})
	svc := build.NewService(
		inmemdb.NewJobRepository(db),
		gateExecutor{release: release},
		hub,
		logger,
		build.Options{WatchdogTimeout: time.Minute, Observer: metrics},
	)

	blobs, err := fsblob.New(t.TempDir())
	require.NoError(t, err)

	srv := NewServer(ServerDeps{
		Conf:     conf,
		Logger:   logger,
		BuildSvc: svc,
		AssetSvc: asset.NewService(blobs, conf.Assets.MaxBytes),
		Hub:      hub,
		Metrics:  metrics,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
		hub.Close()
	})
	return &testEnv{srv: srv, svc: svc, hub: hub, release: release}
}

func (env *testEnv) do(method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) waitJob(t *testing.T, id string, cond func(build.Job) bool) build.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := env.svc.Get(context.Background(), id)
		require.NoError(t, err)
		if cond(job) {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s", id, job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func requestWithType(method, path string, body []byte, contentType string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return req
}
