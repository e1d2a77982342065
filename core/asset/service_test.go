package asset_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/asset"
	"github.com/trezcool/appgen/storage/blob/fsblob"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0}, 32)...)
	webpBytes = append([]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), bytes.Repeat([]byte{0}, 32)...)
	svgBytes  = []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><rect width="10" height="10"/></svg>`)
)

func newService(t *testing.T, maxBytes int64) *asset.Service {
	t.Helper()
	store, err := fsblob.New(t.TempDir())
	require.NoError(t, err)
	return asset.NewService(store, maxBytes)
}

func TestService_Store(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, 0)

	tests := []struct {
		name    string
		data    []byte
		wantExt string
		wantErr error
	}{
		{name: "png", data: pngBytes, wantExt: ".png"},
		{name: "jpeg", data: jpegBytes, wantExt: ".jpg"},
		{name: "webp", data: webpBytes, wantExt: ".webp"},
		{name: "svg", data: svgBytes, wantErr: asset.ErrUnsupportedMediaType},
		{name: "plain text", data: []byte("just some notes\n"), wantErr: asset.ErrUnsupportedMediaType},
		{name: "pdf", data: []byte("%PDF-1.4\n%...."), wantErr: asset.ErrUnsupportedMediaType},
		{name: "empty", data: []byte{}, wantErr: asset.ErrUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := svc.Store(ctx, tt.data, appconfig.KindGuardian, asset.KindIcon)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				assert.Empty(t, ref)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(ref), "assets/guardian/icon/"), string(ref))
			assert.True(t, strings.HasSuffix(string(ref), tt.wantExt), string(ref))

			obj, err := svc.Open(ctx, string(ref))
			require.NoError(t, err)
			assert.Equal(t, tt.data, obj.Data)
			assert.NotEmpty(t, obj.ContentType)
		})
	}
}

func TestService_Store_ContentAddressed(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, 0)

	ref1, err := svc.Store(ctx, pngBytes, appconfig.KindInstructor, asset.KindSplash)
	require.NoError(t, err)
	ref2, err := svc.Store(ctx, pngBytes, appconfig.KindInstructor, asset.KindSplash)
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)

	// hex blake2b-256 + ext
	name := strings.TrimPrefix(string(ref1), "assets/instructor/splash/")
	assert.Len(t, name, 64+len(".png"))

	other, err := svc.Store(ctx, jpegBytes, appconfig.KindInstructor, asset.KindSplash)
	require.NoError(t, err)
	assert.NotEqual(t, ref1, other)
}

func TestService_Store_TooLarge(t *testing.T) {
	svc := newService(t, 16)
	_, err := svc.Store(context.Background(), pngBytes, appconfig.KindGuardian, asset.KindIcon)
	assert.Equal(t, asset.ErrPayloadTooLarge, err)

	_, err = svc.ReadLimited(bytes.NewReader(pngBytes))
	assert.Equal(t, asset.ErrPayloadTooLarge, err)

	data, err := svc.ReadLimited(bytes.NewReader(pngBytes[:16]))
	require.NoError(t, err)
	assert.Len(t, data, 16)
}

func TestService_Open(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, 0)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "missing", key: "assets/guardian/icon/nope.png", wantErr: true},
		{name: "empty", key: "  ", wantErr: true},
		{name: "escaping root", key: "../etc/passwd", wantErr: true},
		{name: "unclean", key: "assets//guardian/../icon.png", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Open(ctx, tt.key)
			assert.Error(t, err)
		})
	}

	_, err := svc.Open(ctx, "assets/guardian/icon/nope.png")
	assert.Equal(t, asset.ErrNotFound, err)
}

func TestParseKind(t *testing.T) {
	kind, err := asset.ParseKind(" Icon ")
	require.NoError(t, err)
	assert.Equal(t, asset.KindIcon, kind)

	_, err = asset.ParseKind("banner")
	assert.True(t, core.IsValidationError(err))
}
