package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coa-docket/models"
	"coa-docket/repository"
	"coa-docket/storage"
)

func downloadedFixture(t *testing.T, mediaIDs ...string) (*repository.CaseStore, storage.Storage, []models.DocumentRecord) {
	t.Helper()
	artifacts, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	var docs []models.DocumentRecord
	for i, id := range mediaIDs {
		doc := eligibleDoc("05-23-00123-CR", id)
		path, err := artifacts.Upload(context.Background(), storage.ArtifactPath(doc.CaseID, i+1), bytes.NewReader([]byte(pdfBody)))
		require.NoError(t, err)
		doc.DownloadStatus = models.DownloadStatusDownloaded
		doc.DownloadPath = path
		docs = append(docs, doc)
	}

	store := repository.NewCaseStore()
	_, err = store.Merge(models.CaseRecord{
		CaseID:    "05-23-00123-CR",
		Status:    models.CaseStatusActive,
		Parties:   []string{"Appellant: John Doe"},
		Documents: docs,
	})
	require.NoError(t, err)
	return store, artifacts, docs
}

func TestAnalyzeWithoutAnalyzerIsSkipped(t *testing.T) {
	store, artifacts, docs := downloadedFixture(t, "m1", "m2")
	before := store.Snapshot()

	result, err := NewAnalysisDispatcher(artifacts).Analyze(context.Background(), store, docs)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Equal(t, before, store.Snapshot())
}

func TestAnalyzeStoresIssues(t *testing.T) {
	store, artifacts, docs := downloadedFixture(t, "m1", "m2")
	analyzer := &stubAnalyzer{}

	result, err := NewAnalysisDispatcher(artifacts, DispatcherWithAnalyzer(analyzer), DispatcherWithRetryPolicy(fastRetry)).
		Analyze(context.Background(), store, docs)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 2, result.Completed)

	got := storedDoc(t, store, "05-23-00123-CR", "m2")
	assert.Equal(t, []models.Issue{{Category: "Sufficiency of Evidence", Description: "brief for m2"}}, got.Issues)
	assert.Empty(t, got.AnalysisError)
}

func TestAnalyzeIsolatesPerDocumentFailures(t *testing.T) {
	store, artifacts, docs := downloadedFixture(t, "m1", "m2")
	analyzer := &stubAnalyzer{errs: map[string]error{
		"m1": errors.Wrap(models.ErrDataFormat, "analysis response contains no issues"),
	}}

	result, err := NewAnalysisDispatcher(artifacts, DispatcherWithAnalyzer(analyzer), DispatcherWithRetryPolicy(fastRetry)).
		Analyze(context.Background(), store, docs)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Failed)

	failed := storedDoc(t, store, "05-23-00123-CR", "m1")
	assert.Empty(t, failed.Issues)
	assert.Contains(t, failed.AnalysisError, models.ErrorClassDataFormat)
	assert.Equal(t, models.DownloadStatusDownloaded, failed.DownloadStatus)

	assert.NotEmpty(t, storedDoc(t, store, "05-23-00123-CR", "m2").Issues)
}

func TestAnalyzeStopsWhenServiceUnavailable(t *testing.T) {
	store, artifacts, docs := downloadedFixture(t, "m1", "m2", "m3")
	unavailable := errors.Mark(errors.New("API key not valid"), models.ErrAnalysisUnavailable)
	analyzer := &stubAnalyzer{errs: map[string]error{"m1": unavailable, "m2": unavailable, "m3": unavailable}}
	before := store.Snapshot()

	result, err := NewAnalysisDispatcher(artifacts, DispatcherWithAnalyzer(analyzer), DispatcherWithConcurrency(1)).
		Analyze(context.Background(), store, docs)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 1, analyzer.calls)
	assert.Equal(t, before, store.Snapshot())
}

func TestAnalyzeSkipsDocumentsNotDownloaded(t *testing.T) {
	store, artifacts, docs := downloadedFixture(t, "m1")
	docs[0].DownloadStatus = models.DownloadStatusFailed
	analyzer := &stubAnalyzer{}

	result, err := NewAnalysisDispatcher(artifacts, DispatcherWithAnalyzer(analyzer)).Analyze(context.Background(), store, docs)
	require.NoError(t, err)
	assert.Zero(t, result.Completed)
	assert.Zero(t, analyzer.calls)
}

func TestParseIssues(t *testing.T) {
	t.Run("json object", func(t *testing.T) {
		issues, err := ParseIssues(`{"issues":[{"category":"Suppression","description":"Warrantless search of the vehicle"}]}`)
		require.NoError(t, err)
		assert.Equal(t, []models.Issue{{Category: "Suppression", Description: "Warrantless search of the vehicle"}}, issues)
	})

	t.Run("fenced json array", func(t *testing.T) {
		issues, err := ParseIssues("```json\n[{\"category\":\"\",\"description\":\"Jury charge error\"}]\n```")
		require.NoError(t, err)
		assert.Equal(t, []models.Issue{{Category: "General", Description: "Jury charge error"}}, issues)
	})

	t.Run("bullet list", func(t *testing.T) {
		issues, err := ParseIssues("Issues found:\n- Ineffective Assistance - Counsel failed to object to hearsay\n* **Sufficiency**: No evidence of intent\n1. Punishment exceeded the statutory range\n")
		require.NoError(t, err)
		assert.Equal(t, []models.Issue{
			{Category: "Ineffective Assistance", Description: "Counsel failed to object to hearsay"},
			{Category: "Sufficiency", Description: "No evidence of intent"},
			{Category: "General", Description: "Punishment exceeded the statutory range"},
		}, issues)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseIssues("  ")
		assert.ErrorIs(t, err, models.ErrDataFormat)

		_, err = ParseIssues("The brief raises no issues.")
		assert.ErrorIs(t, err, models.ErrDataFormat)

		_, err = ParseIssues(`{"issues": [}`)
		assert.ErrorIs(t, err, models.ErrDataFormat)
	})
}
