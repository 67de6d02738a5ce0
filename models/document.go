package models

import (
	"net/url"
	"strings"
)

// SourceTable identifies which listing on the case page a document came from
type SourceTable string

const (
	SourceTableEvents SourceTable = "events"
	SourceTableBriefs SourceTable = "briefs"
)

// DownloadStatus represents the fetch outcome of a document
type DownloadStatus string

const (
	DownloadStatusPending    DownloadStatus = "pending"
	DownloadStatusDownloaded DownloadStatus = "downloaded"
	DownloadStatusFailed     DownloadStatus = "download_failed"
)

const courtSiteBaseURL = "https://search.txcourts.gov/"

// Issue is one categorized legal issue extracted from a brief
type Issue struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

// DocumentRecord represents a document listed on a case page.
// MediaID is unique within its case.
type DocumentRecord struct {
	CaseID      string      `json:"case_number"`
	MediaID     string      `json:"media_id"`
	FilingDate  string      `json:"date"`
	EventType   string      `json:"event_type"`
	Disposition string      `json:"disposition"`
	Description string      `json:"description"`
	DocType     string      `json:"doc_type"`
	URL         string      `json:"url"`
	SourceTable SourceTable `json:"table_type"`

	Eligibility *EligibilityVerdict `json:"eligibility,omitempty"`

	DownloadStatus DownloadStatus `json:"download_status,omitempty"`
	DownloadPath   string         `json:"download_path,omitempty"`
	RetryCount     int            `json:"retry_count,omitempty"`
	LastErrorClass string         `json:"last_error_class,omitempty"`
	LastError      string         `json:"last_error,omitempty"`

	Issues        []Issue `json:"issues,omitempty"`
	AnalysisError string  `json:"analysis_error,omitempty"`
}

// Clone returns a deep copy of the document
func (d DocumentRecord) Clone() DocumentRecord {
	out := d
	if d.Issues != nil {
		out.Issues = append([]Issue(nil), d.Issues...)
	}
	if d.Eligibility != nil {
		v := *d.Eligibility
		v.Reasons = append([]string(nil), d.Eligibility.Reasons...)
		out.Eligibility = &v
	}
	return out
}

// Key returns the document identity used by the store
func (d DocumentRecord) Key() DocumentKey {
	return DocumentKey{CaseID: d.CaseID, MediaID: d.MediaID}
}

// DocumentKey identifies a document across the store
type DocumentKey struct {
	CaseID  string `json:"case_id"`
	MediaID string `json:"media_id"`
}

// ResolveDocumentURL turns a relative court link into an absolute URL
func ResolveDocumentURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return courtSiteBaseURL + strings.TrimPrefix(href, "/")
}

// MediaIDFromURL extracts the MediaID (or MediaVersionID) query parameter
func MediaIDFromURL(rawURL string) string {
	q := queryOf(rawURL)
	if q == nil {
		return ""
	}
	if id := q.Get("MediaID"); id != "" {
		return id
	}
	return q.Get("MediaVersionID")
}

// DocTypeFromURL extracts the DT query parameter carrying the document type
func DocTypeFromURL(rawURL string) string {
	q := queryOf(rawURL)
	if q == nil {
		return ""
	}
	return q.Get("DT")
}

func queryOf(rawURL string) url.Values {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	// Court links use case-insensitive parameter names in practice
	q := url.Values{}
	for k, v := range u.Query() {
		switch strings.ToLower(k) {
		case "mediaid":
			q["MediaID"] = v
		case "mediaversionid":
			q["MediaVersionID"] = v
		case "dt":
			q["DT"] = v
		}
	}
	return q
}
