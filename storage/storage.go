package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"coa-docket/models"
)

// Storage interface for downloaded document artifacts
type Storage interface {
	// Upload stores data under storagePath and returns the path it was written to
	Upload(ctx context.Context, storagePath string, data io.Reader) (string, error)

	// Download retrieves an artifact by storage path
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes an artifact by storage path
	Delete(ctx context.Context, storagePath string) error
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type         StorageType `yaml:"type"`
	LocalPath    string      `yaml:"local_path"` // For local storage
	S3Bucket     string      `yaml:"s3_bucket"`  // For S3 storage
	S3Region     string      `yaml:"s3_region"`  // For S3 storage
	AWSAccessKey string      `yaml:"-"`
	AWSSecretKey string      `yaml:"-"`
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		if cfg.LocalPath == "" {
			cfg.LocalPath = "./output/briefs"
		}
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.Wrap(models.ErrFatalConfiguration, "AWS_S3_BUCKET is required for S3 storage")
		}
		return NewS3Storage(cfg)
	default:
		return nil, errors.Wrapf(models.ErrFatalConfiguration, "unknown storage type: %s", cfg.Type)
	}
}

// ConfigFromEnv fills unset fields of cfg from environment variables
func ConfigFromEnv(cfg StorageConfig) StorageConfig {
	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.Type = StorageType(v)
	}
	if cfg.Type == "" {
		cfg.Type = StorageTypeLocal
	}
	if v := os.Getenv("STORAGE_LOCAL_PATH"); v != "" {
		cfg.LocalPath = v
	}
	if v := os.Getenv("AWS_S3_BUCKET"); v != "" {
		cfg.S3Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.S3Region = v
	}
	if cfg.S3Region == "" {
		cfg.S3Region = "us-east-1"
	}
	cfg.AWSAccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.AWSSecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	return cfg
}

// ArtifactPath builds the storage path of the seq-th downloaded brief of a case.
// Keying by case ID and a per-case sequence keeps multiple briefs apart.
func ArtifactPath(caseID string, seq int) string {
	name := sanitize(caseID)
	return fmt.Sprintf("%s/%s_brief_%d.pdf", name, name, seq)
}

// ArtifactSequence returns the sequence number encoded in a path built by
// ArtifactPath for caseID
func ArtifactSequence(caseID, storagePath string) (int, bool) {
	prefix := sanitize(caseID) + "_brief_"
	base := path.Base(storagePath)
	if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ".pdf") {
		return 0, false
	}
	seq, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, prefix), ".pdf"))
	if err != nil || seq < 1 {
		return 0, false
	}
	return seq, true
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	return name
}

// getContentType determines content type from filename
func getContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
