package models

// EligibilityVerdict records whether a document warrants download and analysis,
// along with the ordered trace of predicates that were checked.
type EligibilityVerdict struct {
	Document DocumentKey `json:"document"`
	Eligible bool        `json:"eligible"`
	Reasons  []string    `json:"reasons"`
}
