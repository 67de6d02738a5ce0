package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// LocalStorage implements Storage interface for local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create storage directory")
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Upload writes the artifact, replacing any previous file at the same path
func (s *LocalStorage) Upload(ctx context.Context, storagePath string, data io.Reader) (string, error) {
	fullPath := filepath.Join(s.basePath, storagePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", errors.Wrap(err, "failed to create directory")
	}

	// Write to a temp file first so a rerun never leaves a half-written brief behind
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "failed to write file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "failed to write file")
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", errors.Wrap(err, "failed to move file into place")
	}

	return storagePath, nil
}

// Download retrieves a file from local storage
func (s *LocalStorage) Download(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	fullPath := filepath.Join(s.basePath, storagePath)

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf("file not found: %s", storagePath)
		}
		return nil, errors.Wrap(err, "failed to open file")
	}

	return file, nil
}

// Delete removes a file from local storage
func (s *LocalStorage) Delete(ctx context.Context, storagePath string) error {
	fullPath := filepath.Join(s.basePath, storagePath)

	err := os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete file")
	}

	return nil
}
