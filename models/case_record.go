package models

// CaseStatus represents whether a case is still open at the court
type CaseStatus string

const (
	CaseStatusActive   CaseStatus = "active"
	CaseStatusInactive CaseStatus = "inactive"
)

// Attorney pairs an attorney name with the bar number used as a search key
type Attorney struct {
	Name      string `json:"name" yaml:"name"`
	BarNumber string `json:"bar_number" yaml:"bar_number"`
}

// CaseRecord represents one case discovered at any jurisdiction.
// CaseID is globally unique; the jurisdiction is embedded in its format.
type CaseRecord struct {
	CaseID         string           `json:"case_id"`
	Jurisdiction   Jurisdiction     `json:"jurisdiction"`
	Status         CaseStatus       `json:"status"`
	MandateIssued  bool             `json:"mandate_issued"`
	Parties        []string         `json:"parties"`
	Attorneys      []Attorney       `json:"attorneys"`
	Documents      []DocumentRecord `json:"documents"`
	BarNumbers     []string         `json:"associated_bar_numbers"`
	CrossReference *CrossReference  `json:"cross_reference,omitempty"`
}

// IsAppellate reports whether the record is a court of appeals case
func (c CaseRecord) IsAppellate() bool {
	return IsAppellateCaseID(c.CaseID)
}

// AttorneyBarNumbers returns every bar number tied to the case, both from the
// attorney listing and from the searches that surfaced it.
func (c CaseRecord) AttorneyBarNumbers() []string {
	out := make([]string, 0, len(c.Attorneys)+len(c.BarNumbers))
	for _, a := range c.Attorneys {
		if a.BarNumber != "" {
			out = append(out, a.BarNumber)
		}
	}
	return append(out, c.BarNumbers...)
}

// Document returns the document with the given media ID
func (c CaseRecord) Document(mediaID string) (DocumentRecord, bool) {
	for _, d := range c.Documents {
		if d.MediaID == mediaID {
			return d, true
		}
	}
	return DocumentRecord{}, false
}

// Clone returns a deep copy so callers never share slices with the store
func (c CaseRecord) Clone() CaseRecord {
	out := c
	out.Parties = append([]string(nil), c.Parties...)
	out.Attorneys = append([]Attorney(nil), c.Attorneys...)
	out.BarNumbers = append([]string(nil), c.BarNumbers...)
	if c.Documents != nil {
		out.Documents = make([]DocumentRecord, len(c.Documents))
		for i, d := range c.Documents {
			out.Documents[i] = d.Clone()
		}
	}
	if c.CrossReference != nil {
		xref := *c.CrossReference
		out.CrossReference = &xref
	}
	return out
}
