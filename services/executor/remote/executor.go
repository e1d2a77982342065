// Package remote drives builds on an external build farm over HTTP.
//
// A build is submitted with `POST <base>/builds` and then polled with `GET <base>/builds/<id>`
// until the farm reports `succeeded` or `failed`. Poll responses look like:
//
//	{"status": "running", "progress": {"percent": 40, "message": "compiling"}}
//	{"status": "succeeded", "artifact": {"url": "https://..."}}
//	{"status": "failed", "error": "gradle exited with 1"}
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/build"
)

var (
	errBadResponse = errors.New("unexpected build farm response")

	DefaultPollInterval = 5 * time.Second
)

// farm build states
const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

type Config struct {
	BaseURL      string
	Token        string
	PollInterval time.Duration
	Client       *http.Client
}

type Executor struct {
	baseURL string
	token   string
	poll    time.Duration
	client  *http.Client
	log     core.Logger
}

var _ build.Executor = (*Executor)(nil) // interface compliance check

func New(cfg Config, log core.Logger) *Executor {
	vala.BeginValidation().Validate(
		vala.StringNotEmpty(cfg.BaseURL, "cfg.BaseURL"),
		vala.IsNotNil(log, "log"),
	).CheckAndPanic()

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Executor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		poll:    cfg.PollInterval,
		client:  cfg.Client,
		log:     log,
	}
}

func (e *Executor) Execute(ctx context.Context, req build.ExecRequest, progress build.ProgressFunc) (build.Artifact, error) {
	farmID, err := e.submit(ctx, req)
	if err != nil {
		return build.Artifact{}, err
	}

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	lastPct, lastMsg := -1, ""
	for {
		select {
		case <-ctx.Done():
			e.abort(farmID)
			return build.Artifact{}, ctx.Err()
		case <-ticker.C:
		}

		body, err := e.do(ctx, http.MethodGet, "/builds/"+farmID, nil)
		if err != nil {
			// transient poll failures are retried, the job watchdog bounds how long
			e.log.Warn(fmt.Sprintf("polling build %s (farm id %s): %v", req.JobID, farmID, err), err)
			continue
		}

		switch status := gjson.GetBytes(body, "status").String(); status {
		case statusSucceeded:
			url := gjson.GetBytes(body, "artifact.url").String()
			if url == "" {
				return build.Artifact{}, build.ErrMissingArtifact
			}
			return build.Artifact{DownloadURL: url}, nil
		case statusFailed:
			reason := gjson.GetBytes(body, "error").String()
			if reason == "" {
				reason = "build farm reported a failure"
			}
			return build.Artifact{}, errors.New(reason)
		default:
			pct := gjson.GetBytes(body, "progress.percent")
			msg := gjson.GetBytes(body, "progress.message").String()
			if pct.Exists() && (int(pct.Int()) != lastPct || msg != lastMsg) {
				lastPct, lastMsg = int(pct.Int()), msg
				progress(lastPct, msg)
			}
		}
	}
}

func (e *Executor) submit(ctx context.Context, req build.ExecRequest) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jobId":    req.JobID,
		"platform": req.Platform,
		"appKind":  req.AppKind,
		"config":   req.Config,
	})
	if err != nil {
		return "", errors.Wrap(err, "encoding build request")
	}
	body, err := e.do(ctx, http.MethodPost, "/builds", payload)
	if err != nil {
		return "", errors.Wrap(build.ErrExecutorUnavailable, err.Error())
	}
	farmID := gjson.GetBytes(body, "id").String()
	if farmID == "" {
		return "", errors.Wrap(build.ErrExecutorUnavailable, errBadResponse.Error())
	}
	return farmID, nil
}

// abort asks the farm to stop a build, best effort.
func (e *Executor) abort(farmID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.do(ctx, http.MethodDelete, "/builds/"+farmID, nil); err != nil {
		e.log.Warn(fmt.Sprintf("aborting farm build %s: %v", farmID, err), err)
	}
}

func (e *Executor) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Wrapf(errBadResponse, "%s %s: %d", method, path, resp.StatusCode)
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		return nil, errors.Wrapf(errBadResponse, "%s %s: invalid json", method, path)
	}
	return body, nil
}
