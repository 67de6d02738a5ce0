package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coa-docket/models"
	"coa-docket/repository"
	"coa-docket/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	artifacts, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	path, err := artifacts.Upload(context.Background(), storage.ArtifactPath("05-23-00123-CR", 1), bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)

	records := []models.CaseRecord{
		{
			CaseID:     "05-23-00123-CR",
			Status:     models.CaseStatusActive,
			BarNumbers: []string{"24000001", "24000002"},
			Documents: []models.DocumentRecord{
				{CaseID: "05-23-00123-CR", MediaID: "m1", DownloadStatus: models.DownloadStatusDownloaded, DownloadPath: path},
				{CaseID: "05-23-00123-CR", MediaID: "m2", DownloadStatus: models.DownloadStatusFailed},
			},
		},
		{CaseID: "05-23-00456-CR", Status: models.CaseStatusActive, BarNumbers: []string{"24000002"}},
	}
	writer, err := repository.NewSnapshotWriter(dir)
	require.NoError(t, err)
	require.NoError(t, writer.Write(records, nil))

	r := gin.New()
	NewCaseHandler(repository.NewSnapshotReader(dir), artifacts, nil).RegisterRoutes(r.Group("/api"))
	return r
}

func get(r *gin.Engine, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestListCases(t *testing.T) {
	r := setupRouter(t)

	w := get(r, "/api/cases?bar_number=24000001")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.True(t, body.Success)

	var data struct {
		Cases []models.CaseRecord `json:"cases"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, 1, data.Count)
	assert.Equal(t, "05-23-00123-CR", data.Cases[0].CaseID)

	w = get(r, "/api/cases")
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Equal(t, 2, data.Count)
}

func TestGetCase(t *testing.T) {
	r := setupRouter(t)

	w := get(r, "/api/cases/05-23-00456-CR")
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.CaseRecord
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &rec))
	assert.Equal(t, "05-23-00456-CR", rec.CaseID)

	w = get(r, "/api/cases/01-20-00001-CR")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.False(t, body.Success)
	assert.Equal(t, "CASE_NOT_FOUND", body.Error.Code)
}

func TestGetBarNumberIndex(t *testing.T) {
	r := setupRouter(t)

	w := get(r, "/api/bar-numbers")
	require.Equal(t, http.StatusOK, w.Code)
	var index map[string][]string
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &index))
	assert.Equal(t, map[string][]string{
		"24000001": {"05-23-00123-CR"},
		"24000002": {"05-23-00123-CR", "05-23-00456-CR"},
	}, index)
}

func TestGetRunSummaryMissing(t *testing.T) {
	r := setupRouter(t)

	w := get(r, "/api/run-summary")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RUN_NOT_FOUND", decode(t, w).Error.Code)
}

func TestGetDocumentFile(t *testing.T) {
	r := setupRouter(t)

	w := get(r, "/api/cases/05-23-00123-CR/documents/m1/file")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "05-23-00123-CR_brief_1.pdf")
	assert.Equal(t, "%PDF-1.4", w.Body.String())

	w = get(r, "/api/cases/05-23-00123-CR/documents/m2/file")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "DOCUMENT_NOT_AVAILABLE", decode(t, w).Error.Code)
}
