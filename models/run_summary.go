package models

import (
	"time"

	"github.com/google/uuid"
)

// JurisdictionFailure records a page fetch that exhausted its retries
type JurisdictionFailure struct {
	Jurisdiction Jurisdiction `json:"jurisdiction"`
	BarNumber    string       `json:"bar_number"`
	PageToken    string       `json:"page_token,omitempty"`
	ErrorClass   string       `json:"error_class"`
	Error        string       `json:"error"`
}

// RunSummary holds the counts reported at the end of a run
type RunSummary struct {
	RunID         uuid.UUID      `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	BarNumbers    []string       `json:"bar_numbers"`
	Jurisdictions []Jurisdiction `json:"jurisdictions"`

	CasesDiscovered     int                   `json:"cases_discovered"`
	RowsSkipped         int                   `json:"rows_skipped"`
	InactiveFiltered    int                   `json:"inactive_filtered"`
	FailedJurisdictions []Jurisdiction        `json:"failed_jurisdictions"`
	JurisdictionErrors  []JurisdictionFailure `json:"jurisdiction_errors,omitempty"`

	CrossReferencesLinked     int `json:"cross_references_linked"`
	CrossReferencesUnresolved int `json:"cross_references_unresolved"`

	DocumentsEvaluated  int `json:"documents_evaluated"`
	DocumentsEligible   int `json:"documents_eligible"`
	DocumentsDownloaded int `json:"documents_downloaded"`
	DocumentsFailed     int `json:"documents_failed"`

	AnalysisSkipped   bool `json:"analysis_skipped"`
	AnalysesCompleted int  `json:"analyses_completed"`
	AnalysesFailed    int  `json:"analyses_failed"`

	TimedOut bool `json:"timed_out"`
}
