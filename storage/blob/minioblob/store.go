// Package minioblob stores blobs in a MinIO bucket.
package minioblob

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core/asset"
)

var errNoEndpoint = errors.New("minio endpoint is required")

const noSuchKey = "NoSuchKey"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ asset.BlobStore = (*Store)(nil) // interface compliance check

// New connects to MinIO and creates the bucket if it does not exist yet.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errNoEndpoint
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating minio client")
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "appgen"
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errors.Wrap(err, "checking minio bucket")
	}
	if !exists {
		if err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "creating minio bucket")
		}
	}
	return &Store{client: client, bucket: bucket, prefix: cfg.Prefix}, nil
}

func (s *Store) objectName(key string) (string, error) {
	key, err := asset.CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	return key, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrapf(err, "minio put %s", name)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (asset.Object, error) {
	name, err := s.objectName(key)
	if err != nil {
		return asset.Object{}, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return asset.Object{}, s.trapNoSuchKey(err, name)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return asset.Object{}, s.trapNoSuchKey(err, name)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return asset.Object{}, errors.Wrapf(err, "minio read %s", name)
	}
	return asset.Object{Data: data, ContentType: info.ContentType}, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	name, err := s.objectName(key)
	if err != nil {
		return false, err
	}
	if _, err = s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == noSuchKey {
			return false, nil
		}
		return false, errors.Wrapf(err, "minio stat %s", name)
	}
	return true, nil
}

// trapNoSuchKey maps minio "NoSuchKey" err to asset.ErrNotFound
func (s *Store) trapNoSuchKey(err error, name string) error {
	if minio.ToErrorResponse(err).Code == noSuchKey {
		return asset.ErrNotFound
	}
	return errors.Wrapf(err, "minio get %s", name)
}
