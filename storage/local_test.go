package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coa-docket/models"
)

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, "05-23-00123-CR/05-23-00123-CR_brief_1.pdf", ArtifactPath("05-23-00123-CR", 1))
	assert.Equal(t, "05-23-00123-CR/05-23-00123-CR_brief_2.pdf", ArtifactPath("05-23-00123-CR", 2))
	assert.Equal(t, "a_b_c/a_b_c_brief_1.pdf", ArtifactPath(" a/b c ", 1))
	assert.NotContains(t, ArtifactPath("../../etc", 1), "..")
}

func TestArtifactSequence(t *testing.T) {
	seq, ok := ArtifactSequence("05-23-00123-CR", ArtifactPath("05-23-00123-CR", 12))
	assert.True(t, ok)
	assert.Equal(t, 12, seq)

	_, ok = ArtifactSequence("05-23-00123-CR", ArtifactPath("01-23-00001-CR", 1))
	assert.False(t, ok)
	_, ok = ArtifactSequence("05-23-00123-CR", "05-23-00123-CR/notes.pdf")
	assert.False(t, ok)
	_, ok = ArtifactSequence("05-23-00123-CR", "")
	assert.False(t, ok)
}

func TestLocalStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)
	ctx := context.Background()

	key := ArtifactPath("05-23-00123-CR", 1)
	path, err := s.Upload(ctx, key, bytes.NewReader([]byte("first")))
	require.NoError(t, err)
	assert.Equal(t, key, path)

	// A rerun replaces the artifact in place
	_, err = s.Upload(ctx, key, bytes.NewReader([]byte("second")))
	require.NoError(t, err)

	r, err := s.Download(ctx, path)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "05-23-00123-CR"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.Delete(ctx, path))
	_, err = s.Download(ctx, path)
	assert.Error(t, err)
	assert.NoError(t, s.Delete(ctx, path))
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(StorageConfig{Type: StorageTypeLocal, LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = NewStorage(StorageConfig{Type: StorageTypeS3})
	assert.ErrorIs(t, err, models.ErrFatalConfiguration)

	_, err = NewStorage(StorageConfig{Type: "ftp"})
	assert.ErrorIs(t, err, models.ErrFatalConfiguration)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("AWS_S3_BUCKET", "briefs")
	t.Setenv("AWS_REGION", "")

	cfg := ConfigFromEnv(StorageConfig{LocalPath: "/data"})
	assert.Equal(t, StorageTypeS3, cfg.Type)
	assert.Equal(t, "briefs", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "/data", cfg.LocalPath)
}

func TestGetContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", getContentType("brief_1.pdf"))
	assert.Equal(t, "application/json", getContentType("case_details.json"))
	assert.Equal(t, "application/octet-stream", getContentType("brief"))
}
