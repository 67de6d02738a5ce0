package models

// DocumentRow is one document link as listed in the events or briefs table
type DocumentRow struct {
	Date        string `json:"date" yaml:"date"`
	EventType   string `json:"event_type" yaml:"event_type"`
	Disposition string `json:"disposition" yaml:"disposition"`
	Description string `json:"description" yaml:"description"`
	DocType     string `json:"doc_type" yaml:"doc_type"`
	MediaID     string `json:"media_id" yaml:"media_id"`
	URL         string `json:"url" yaml:"url"`
}

// SearchRow is one case returned by a court search, with its case page fields
type SearchRow struct {
	CaseID        string        `json:"case_number" yaml:"case_number"`
	Status        CaseStatus    `json:"status" yaml:"status"`
	MandateIssued bool          `json:"mandate_issued" yaml:"mandate_issued"`
	Parties       []string      `json:"parties" yaml:"parties"`
	Attorneys     []Attorney    `json:"attorneys" yaml:"attorneys"`
	Events        []DocumentRow `json:"events" yaml:"events"`
	Briefs        []DocumentRow `json:"briefs" yaml:"briefs"`
}

// SearchPage is one page of search results. An empty NextPageToken means the
// result set is exhausted.
type SearchPage struct {
	Rows          []SearchRow `json:"rows" yaml:"rows"`
	NextPageToken string      `json:"next_page_token" yaml:"next_page_token"`
}

// Exhausted reports whether there are no further pages
func (p SearchPage) Exhausted() bool {
	return p.NextPageToken == ""
}
