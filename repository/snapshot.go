package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"coa-docket/models"
)

// File names are fixed so a rerun overwrites the previous outputs in place
const (
	CasesByBarNumberFile = "cases_by_bar_number.json"
	CaseDetailsFile      = "case_details.json"
	RunSummaryFile       = "run_summary.json"
)

// SnapshotWriter persists the store as JSON files in an output directory
type SnapshotWriter struct {
	dir string
}

// NewSnapshotWriter creates the output directory if needed
func NewSnapshotWriter(dir string) (*SnapshotWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}
	return &SnapshotWriter{dir: dir}, nil
}

// Write saves the bar number index, the case details and the run summary
func (w *SnapshotWriter) Write(records []models.CaseRecord, summary *models.RunSummary) error {
	if err := writeJSON(filepath.Join(w.dir, CasesByBarNumberFile), BarNumberIndexOf(records)); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(w.dir, CaseDetailsFile), records); err != nil {
		return err
	}
	if summary != nil {
		if err := writeJSON(filepath.Join(w.dir, RunSummaryFile), summary); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", filepath.Base(path))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", filepath.Base(path))
	}
	return errors.Wrapf(os.Rename(tmp, path), "failed to replace %s", filepath.Base(path))
}

func readCaseDetails(dir string) ([]models.CaseRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, CaseDetailsFile))
	if err != nil {
		return nil, err
	}
	var records []models.CaseRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(models.ErrDataFormat, "failed to parse %s: %v", CaseDetailsFile, err)
	}
	return records, nil
}

// LoadSnapshot reads a previous run's case details from dir. A missing file
// is not an error and yields no records.
func LoadSnapshot(dir string) ([]models.CaseRecord, error) {
	records, err := readCaseDetails(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SnapshotReader serves persisted snapshot files to the API
type SnapshotReader struct {
	dir string
}

// NewSnapshotReader creates a reader over an output directory
func NewSnapshotReader(dir string) *SnapshotReader {
	return &SnapshotReader{dir: dir}
}

func (r *SnapshotReader) load() ([]models.CaseRecord, error) {
	records, err := readCaseDetails(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []models.CaseRecord{}, nil
	}
	return records, err
}

// ListCases returns all cases, or only those found under barNumber when set
func (r *SnapshotReader) ListCases(ctx context.Context, barNumber string) ([]models.CaseRecord, error) {
	records, err := r.load()
	if err != nil {
		return nil, err
	}
	return filterByBarNumber(records, barNumber), nil
}

// GetCase returns one case
func (r *SnapshotReader) GetCase(ctx context.Context, caseID string) (*models.CaseRecord, error) {
	records, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].CaseID == caseID {
			return &records[i], nil
		}
	}
	return nil, errors.Wrapf(models.ErrCaseNotFound, "case %s", caseID)
}

// BarNumberIndex returns bar number -> case IDs
func (r *SnapshotReader) BarNumberIndex(ctx context.Context) (map[string][]string, error) {
	records, err := r.load()
	if err != nil {
		return nil, err
	}
	return BarNumberIndexOf(records), nil
}

// LatestRunSummary returns the summary written by the last run
func (r *SnapshotReader) LatestRunSummary(ctx context.Context) (*models.RunSummary, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, RunSummaryFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(models.ErrRunSummaryNotFound, "no %s in output directory", RunSummaryFile)
	}
	if err != nil {
		return nil, err
	}
	var summary models.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, errors.Wrapf(models.ErrDataFormat, "failed to parse %s: %v", RunSummaryFile, err)
	}
	return &summary, nil
}

func filterByBarNumber(records []models.CaseRecord, barNumber string) []models.CaseRecord {
	if barNumber == "" {
		return records
	}
	out := make([]models.CaseRecord, 0, len(records))
	for _, rec := range records {
		for _, bar := range rec.BarNumbers {
			if bar == barNumber {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}
