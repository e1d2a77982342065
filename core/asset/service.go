// Package asset stores uploaded images and build artifacts, content-addressed.
package asset

import (
	"context"
	"encoding/hex"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/appconfig"
)

var (
	// errors
	ErrNotFound             = errors.New("asset not found")
	ErrUnsupportedMediaType = errors.New("unsupported media type, expected a png, jpeg or webp image")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrInvalidKey           = errors.New("invalid asset key")
	errUnknownKind          = errors.New("unknown asset kind")

	DefaultMaxBytes int64 = 5 << 20

	// accepted image types and the extension they are stored with
	imageTypes = []struct {
		mime string
		ext  string
	}{
		{"image/png", ".png"},
		{"image/jpeg", ".jpg"},
		{"image/webp", ".webp"},
	}
)

// Kind is the role of an uploaded asset in the generated app.
type Kind string

const (
	KindIcon   Kind = "icon"
	KindSplash Kind = "splash"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(core.CleanString(s, true /* lower */)); k {
	case KindIcon, KindSplash:
		return k, nil
	}
	return "", core.NewValidationError(errUnknownKind, core.FieldError{
		Field: "assetKind",
		Error: "assetKind must be one of [icon splash]",
	})
}

// Reference is a stable, content-addressed asset key, eg. assets/guardian/icon/<hash>.png
type Reference string

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// BlobStore is a flat key/value blob storage. Keys are slash separated.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (Object, error) // ErrNotFound
	Exists(ctx context.Context, key string) (bool, error)
}

type Service struct {
	blobs    BlobStore
	maxBytes int64
}

func NewService(blobs BlobStore, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{blobs: blobs, maxBytes: maxBytes}
}

func (svc *Service) MaxBytes() int64 {
	return svc.maxBytes
}

// ReadLimited reads `r` up to the size ceiling, failing with ErrPayloadTooLarge above it.
func (svc *Service) ReadLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, svc.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "reading upload")
	}
	if int64(len(data)) > svc.maxBytes {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}

// Store saves an uploaded image and returns its reference.
// Storing the same bytes again returns the same reference.
func (svc *Service) Store(ctx context.Context, data []byte, appKind appconfig.AppKind, kind Kind) (Reference, error) {
	if int64(len(data)) > svc.maxBytes {
		return "", ErrPayloadTooLarge
	}
	mtype := mimetype.Detect(data)
	ext := ""
	for _, it := range imageTypes {
		if mtype.Is(it.mime) {
			ext = it.ext
			break
		}
	}
	if ext == "" || len(data) == 0 {
		return "", errors.Wrap(ErrUnsupportedMediaType, mtype.String())
	}

	sum := blake2b.Sum256(data)
	key := path.Join("assets", string(appKind), string(kind), hex.EncodeToString(sum[:])+ext)

	exists, err := svc.blobs.Exists(ctx, key)
	if err != nil {
		return "", errors.Wrap(err, "checking asset")
	}
	if !exists {
		if err = svc.blobs.Put(ctx, key, data, mtype.String()); err != nil {
			return "", errors.Wrap(err, "storing asset")
		}
	}
	return Reference(key), nil
}

// Open returns a stored blob: an uploaded asset or a build artifact.
func (svc *Service) Open(ctx context.Context, key string) (Object, error) {
	key, err := CleanKey(key)
	if err != nil {
		return Object{}, err
	}
	obj, err := svc.blobs.Get(ctx, key)
	if err != nil {
		return Object{}, err
	}
	if obj.ContentType == "" {
		obj.ContentType = mimetype.Detect(obj.Data).String()
	}
	return obj, nil
}

// CleanKey normalizes a blob key and rejects keys escaping the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(core.CleanString(key), "/")
	if key == "" {
		return "", ErrNotFound
	}
	cleaned := path.Clean(key)
	if cleaned != key || strings.HasPrefix(cleaned, "../") || cleaned == ".." || cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
