// Package s3blob stores blobs in an S3 compatible bucket.
package s3blob

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core/asset"
)

var errNoBucket = errors.New("s3 bucket is required")

type Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for S3 compatible services
	Prefix   string
}

type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ asset.BlobStore = (*Store)(nil) // interface compliance check

// New loads AWS credentials from the default chain (env, shared config, instance role).
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errNoBucket
	}

	opts := make([]func(*config.LoadOptions) error, 0, 1)
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *Store) objectKey(key string) (string, error) {
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
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err = s.client.PutObject(ctx, input); err != nil {
		return errors.Wrapf(err, "s3 put %s", objKey)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (asset.Object, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return asset.Object{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return asset.Object{}, asset.ErrNotFound
		}
		return asset.Object{}, errors.Wrapf(err, "s3 get %s", objKey)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return asset.Object{}, errors.Wrapf(err, "s3 read %s", objKey)
	}
	return asset.Object{Data: data, ContentType: aws.ToString(out.ContentType)}, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, errors.Wrapf(err, "s3 head %s", objKey)
	}
	return true, nil
}
