// Package simulated is a stand-in build executor: it walks through timed build stages and stores
// a placeholder artifact, so the whole pipeline can run without a native toolchain.
package simulated

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/asset"
	"github.com/trezcool/appgen/core/build"
)

type stage struct {
	percent int
	message string
}

var stages = []stage{
	{10, "preparing workspace"},
	{25, "applying branding"},
	{45, "generating feature modules"},
	{70, "compiling %s sources"},
	{90, "packaging"},
	{97, "signing"},
}

// content types of the produced packages
var packageTypes = map[appconfig.Platform]string{
	appconfig.PlatformAndroid: "application/vnd.android.package-archive",
	appconfig.PlatformIOS:     "application/octet-stream",
}

type Executor struct {
	blobs     asset.BlobStore
	baseURL   string
	stepDelay time.Duration
}

var _ build.Executor = (*Executor)(nil) // interface compliance check

// New returns a simulated executor. Artifacts are written to `blobs` and served under `baseURL`/files/.
func New(blobs asset.BlobStore, baseURL string, stepDelay time.Duration) *Executor {
	vala.BeginValidation().Validate(
		vala.IsNotNil(blobs, "blobs"),
	).CheckAndPanic()

	return &Executor{
		blobs:     blobs,
		baseURL:   strings.TrimRight(baseURL, "/"),
		stepDelay: stepDelay,
	}
}

func (e *Executor) Execute(ctx context.Context, req build.ExecRequest, progress build.ProgressFunc) (build.Artifact, error) {
	for _, st := range stages {
		if err := e.wait(ctx); err != nil {
			return build.Artifact{}, err
		}
		msg := st.message
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, req.Platform)
		}
		progress(st.percent, msg)
	}

	key, data, err := e.artifact(req)
	if err != nil {
		return build.Artifact{}, err
	}
	if err = e.blobs.Put(ctx, key, data, packageTypes[req.Platform]); err != nil {
		return build.Artifact{}, errors.Wrap(build.ErrExecutorUnavailable, err.Error())
	}
	return build.Artifact{DownloadURL: e.baseURL + "/files/" + key}, nil
}

func (e *Executor) wait(ctx context.Context) error {
	if e.stepDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.stepDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// artifact builds the placeholder package: a manifest describing what a real build would contain.
func (e *Executor) artifact(req build.ExecRequest) (string, []byte, error) {
	ext := ".apk"
	if req.Platform == appconfig.PlatformIOS {
		ext = ".ipa"
	}
	name := slug(req.Config.Name)
	if name == "" {
		name = string(req.AppKind)
	}
	fname := fmt.Sprintf("%s-%s+%d%s", name, req.Config.Version, req.Config.BuildNumber, ext)

	features := make([]string, 0)
	for _, f := range req.Config.EnabledFeatures(req.AppKind) {
		features = append(features, f.Key)
	}
	manifest := map[string]interface{}{
		"jobId":       req.JobID,
		"platform":    req.Platform,
		"appKind":     req.AppKind,
		"name":        req.Config.Name,
		"displayName": req.Config.DisplayName,
		"version":     req.Config.Version,
		"buildNumber": req.Config.BuildNumber,
		"template":    req.Config.Template,
		"features":    features,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", nil, errors.Wrap(err, "encoding manifest")
	}
	return path.Join("artifacts", req.JobID, fname), data, nil
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
