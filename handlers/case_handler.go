package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"coa-docket/models"
	"coa-docket/storage"
)

// CaseReader is the read side of persisted run results. Both
// repository.SnapshotReader and repository.CaseRepository satisfy it.
type CaseReader interface {
	ListCases(ctx context.Context, barNumber string) ([]models.CaseRecord, error)
	GetCase(ctx context.Context, caseID string) (*models.CaseRecord, error)
	BarNumberIndex(ctx context.Context) (map[string][]string, error)
	LatestRunSummary(ctx context.Context) (*models.RunSummary, error)
}

// CaseHandler handles HTTP requests for discovered cases and their briefs
type CaseHandler struct {
	reader  CaseReader
	storage storage.Storage
	logger  *slog.Logger
}

// NewCaseHandler creates a new case handler
func NewCaseHandler(reader CaseReader, artifacts storage.Storage, logger *slog.Logger) *CaseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaseHandler{
		reader:  reader,
		storage: artifacts,
		logger:  logger,
	}
}

// RegisterRoutes mounts the case routes on an /api group
func (h *CaseHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/cases", h.ListCases)
	api.GET("/cases/:id", h.GetCase)
	api.GET("/cases/:id/documents/:mediaId/file", h.GetDocumentFile)
	api.GET("/bar-numbers", h.GetBarNumberIndex)
	api.GET("/run-summary", h.GetRunSummary)
}

// ListCases handles GET /api/cases
func (h *CaseHandler) ListCases(c *gin.Context) {
	barNumber := c.Query("bar_number")

	cases, err := h.reader.ListCases(c.Request.Context(), barNumber)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to list cases", "bar_number", barNumber, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to list cases",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"cases": cases,
			"count": len(cases),
		},
	})
}

// GetCase handles GET /api/cases/:id
func (h *CaseHandler) GetCase(c *gin.Context) {
	caseID := c.Param("id")

	rec, err := h.reader.GetCase(c.Request.Context(), caseID)
	if errors.Is(err, models.ErrCaseNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CASE_NOT_FOUND",
				"message": fmt.Sprintf("Case %s not found", caseID),
			},
		})
		return
	}
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to get case", "case_id", caseID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to get case",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rec,
	})
}

// GetBarNumberIndex handles GET /api/bar-numbers
func (h *CaseHandler) GetBarNumberIndex(c *gin.Context) {
	index, err := h.reader.BarNumberIndex(c.Request.Context())
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to build bar number index", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to load bar numbers",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    index,
	})
}

// GetRunSummary handles GET /api/run-summary
func (h *CaseHandler) GetRunSummary(c *gin.Context) {
	summary, err := h.reader.LatestRunSummary(c.Request.Context())
	if errors.Is(err, models.ErrRunSummaryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RUN_NOT_FOUND",
				"message": "No run has finished yet",
			},
		})
		return
	}
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to load run summary", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to load run summary",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summary,
	})
}

// GetDocumentFile handles GET /api/cases/:id/documents/:mediaId/file
func (h *CaseHandler) GetDocumentFile(c *gin.Context) {
	caseID := c.Param("id")
	mediaID := c.Param("mediaId")

	rec, err := h.reader.GetCase(c.Request.Context(), caseID)
	if errors.Is(err, models.ErrCaseNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CASE_NOT_FOUND",
				"message": fmt.Sprintf("Case %s not found", caseID),
			},
		})
		return
	}
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to get case", "case_id", caseID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to get case",
			},
		})
		return
	}

	doc, ok := rec.Document(mediaID)
	if !ok || doc.DownloadStatus != models.DownloadStatusDownloaded || doc.DownloadPath == "" {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DOCUMENT_NOT_AVAILABLE",
				"message": "Document has not been downloaded",
			},
		})
		return
	}

	reader, err := h.storage.Download(c.Request.Context(), doc.DownloadPath)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to read artifact",
			"case_id", caseID, "media_id", mediaID, "path", doc.DownloadPath, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DOWNLOAD_FAILED",
				"message": "Failed to read document",
			},
		})
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, -1, "application/pdf", reader, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=\"%s\"", path.Base(doc.DownloadPath)),
	})
}
