package service

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"coa-docket/models"
)

const defaultIssueCategory = "General"

var (
	codeFencePattern    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	bulletMarkerPattern = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
)

// ParseIssues reads analyzer output. It accepts {"issues":[...]}, a bare JSON
// array, or one "- Category - description" bullet per line.
func ParseIssues(text string) ([]models.Issue, error) {
	text = strings.TrimSpace(text)
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return nil, errors.Wrap(models.ErrDataFormat, "empty analysis response")
	}

	var issues []models.Issue
	switch text[0] {
	case '{':
		var body struct {
			Issues []models.Issue `json:"issues"`
		}
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			return nil, errors.Wrapf(models.ErrDataFormat, "analysis response: %v", err)
		}
		issues = body.Issues
	case '[':
		if err := json.Unmarshal([]byte(text), &issues); err != nil {
			return nil, errors.Wrapf(models.ErrDataFormat, "analysis response: %v", err)
		}
	default:
		issues = parseIssueBullets(text)
	}

	out := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		issue.Category = strings.TrimSpace(issue.Category)
		issue.Description = strings.TrimSpace(issue.Description)
		if issue.Description == "" {
			continue
		}
		if issue.Category == "" {
			issue.Category = defaultIssueCategory
		}
		out = append(out, issue)
	}
	if len(out) == 0 {
		return nil, errors.Wrap(models.ErrDataFormat, "analysis response contains no issues")
	}
	return out, nil
}

func parseIssueBullets(text string) []models.Issue {
	var issues []models.Issue
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		loc := bulletMarkerPattern.FindStringIndex(line)
		if loc == nil {
			continue
		}
		line = strings.TrimSpace(line[loc[1]:])

		category, description, found := strings.Cut(line, " - ")
		if !found {
			category, description, found = strings.Cut(line, ": ")
		}
		if !found {
			category, description = "", line
		}
		issues = append(issues, models.Issue{
			Category:    strings.Trim(category, "*_ "),
			Description: description,
		})
	}
	return issues
}
