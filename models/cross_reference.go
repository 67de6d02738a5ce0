package models

// CrossReferenceStatus describes how an appellate case was linked to its trial-level case
type CrossReferenceStatus string

const (
	CrossReferenceNotApplicable CrossReferenceStatus = "not_applicable" // the case itself is trial-level
	CrossReferenceNoneFound     CrossReferenceStatus = "none_found"
	CrossReferenceLinked        CrossReferenceStatus = "linked"
	CrossReferenceUnresolved    CrossReferenceStatus = "unresolved"
)

// CrossReference pairs an appellate case with the trial-level case of the same party.
// It is derived by the resolver and attached to the appellate CaseRecord.
type CrossReference struct {
	AppellateCaseID string               `json:"appellate_case_id"`
	TrialCaseID     string               `json:"trial_case_id,omitempty"`
	Status          CrossReferenceStatus `json:"status"`
	TrialCaseOpen   bool                 `json:"trial_case_open"`
	MandateIssued   bool                 `json:"mandate_issued"`
	Candidates      []string             `json:"candidates,omitempty"`
}

// Unresolved reports whether the resolver could not pick a single trial-level case
func (x CrossReference) Unresolved() bool {
	return x.Status == CrossReferenceUnresolved
}

// HasConcurrentOpenCase reports whether a trial-level case is open at the same time.
// Unresolved references count as open.
func (x CrossReference) HasConcurrentOpenCase() bool {
	switch x.Status {
	case CrossReferenceUnresolved:
		return true
	case CrossReferenceLinked:
		return x.TrialCaseOpen
	default:
		return false
	}
}
