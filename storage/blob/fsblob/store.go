// Package fsblob stores blobs on the local filesystem.
package fsblob

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core/asset"
)

type Store struct {
	baseDir string
	mu      sync.RWMutex
}

var _ asset.BlobStore = (*Store)(nil) // interface compliance check

func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating blob dir")
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) path(key string) (string, error) {
	key, err := asset.CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(key)), nil
}

// Put writes to a temp file then renames it, so readers never see partial blobs.
func (s *Store) Put(_ context.Context, key string, data []byte, _ string) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return errors.Wrap(err, "creating blob dir")
	}
	tmp := fp + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing blob")
	}
	if err = os.Rename(tmp, fp); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "committing blob")
	}
	return nil
}

// Get leaves ContentType empty, it is sniffed by the caller.
func (s *Store) Get(_ context.Context, key string) (asset.Object, error) {
	fp, err := s.path(key)
	if err != nil {
		return asset.Object{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return asset.Object{}, asset.ErrNotFound
		}
		return asset.Object{}, errors.Wrap(err, "reading blob")
	}
	return asset.Object{Data: data}, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	fp, err := s.path(key)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err = os.Stat(fp); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "checking blob")
	}
	return true, nil
}
