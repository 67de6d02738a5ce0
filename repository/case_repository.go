package repository

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"coa-docket/models"
)

// DBTX is the subset of *pgxpool.Pool used by the repositories
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CaseRepository handles database operations for case records
type CaseRepository struct {
	db DBTX
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db DBTX) *CaseRepository {
	return &CaseRepository{db: db}
}

const upsertCaseQuery = `
		INSERT INTO case_records (
			case_id, jurisdiction, status, mandate_issued, bar_numbers, record
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (case_id) DO UPDATE SET
			jurisdiction = EXCLUDED.jurisdiction,
			status = EXCLUDED.status,
			mandate_issued = EXCLUDED.mandate_issued,
			bar_numbers = EXCLUDED.bar_numbers,
			record = EXCLUDED.record,
			updated_at = NOW()`

// SaveAll upserts every record in a single transaction, keyed by case ID
func (r *CaseRepository) SaveAll(ctx context.Context, records []models.CaseRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			_ = tx.Rollback(ctx)
			return errors.Wrapf(err, "failed to encode case %s", rec.CaseID)
		}

		_, err = tx.Exec(
			ctx, upsertCaseQuery,
			rec.CaseID,
			string(rec.Jurisdiction),
			string(rec.Status),
			rec.MandateIssued,
			rec.BarNumbers,
			payload,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return errors.Wrapf(err, "failed to upsert case %s", rec.CaseID)
		}
	}

	return errors.Wrap(tx.Commit(ctx), "failed to commit case records")
}

// GetCase retrieves a case record by ID
func (r *CaseRepository) GetCase(ctx context.Context, caseID string) (*models.CaseRecord, error) {
	query := `
		SELECT record
		FROM case_records
		WHERE case_id = $1`

	var payload []byte
	err := r.db.QueryRow(ctx, query, caseID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrCaseNotFound, "case %s", caseID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query case record")
	}

	rec := &models.CaseRecord{}
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, errors.Wrapf(models.ErrDataFormat, "case %s: %v", caseID, err)
	}
	return rec, nil
}

// ListCases retrieves all case records, or those found under barNumber when set
func (r *CaseRepository) ListCases(ctx context.Context, barNumber string) ([]models.CaseRecord, error) {
	query := `
		SELECT record
		FROM case_records`
	var args []any
	if barNumber != "" {
		query += `
		WHERE $1 = ANY(bar_numbers)`
		args = append(args, barNumber)
	}
	query += `
		ORDER BY case_id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query case records")
	}
	defer rows.Close()

	records := make([]models.CaseRecord, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "failed to scan case record")
		}
		var rec models.CaseRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, errors.Wrapf(models.ErrDataFormat, "case record: %v", err)
		}
		records = append(records, rec)
	}

	return records, errors.Wrap(rows.Err(), "error iterating case records")
}

// BarNumberIndex returns bar number -> case IDs
func (r *CaseRepository) BarNumberIndex(ctx context.Context) (map[string][]string, error) {
	query := `
		SELECT case_id, bar_numbers
		FROM case_records
		ORDER BY case_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query bar numbers")
	}
	defer rows.Close()

	var records []models.CaseRecord
	for rows.Next() {
		var rec models.CaseRecord
		if err := rows.Scan(&rec.CaseID, &rec.BarNumbers); err != nil {
			return nil, errors.Wrap(err, "failed to scan bar numbers")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating bar numbers")
	}

	return BarNumberIndexOf(records), nil
}

// SaveRunSummary stores the summary of a finished run
func (r *CaseRepository) SaveRunSummary(ctx context.Context, summary models.RunSummary) error {
	query := `
		INSERT INTO run_summaries (run_id, finished_at, summary)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			summary = EXCLUDED.summary`

	payload, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "failed to encode run summary")
	}

	_, err = r.db.Exec(ctx, query, summary.RunID, summary.FinishedAt, payload)
	return errors.Wrap(err, "failed to store run summary")
}

// LatestRunSummary returns the most recently finished run
func (r *CaseRepository) LatestRunSummary(ctx context.Context) (*models.RunSummary, error) {
	query := `
		SELECT summary
		FROM run_summaries
		ORDER BY finished_at DESC
		LIMIT 1`

	var payload []byte
	err := r.db.QueryRow(ctx, query).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.WithStack(models.ErrRunSummaryNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run summary")
	}

	summary := &models.RunSummary{}
	if err := json.Unmarshal(payload, summary); err != nil {
		return nil, errors.Wrapf(models.ErrDataFormat, "run summary: %v", err)
	}
	return summary, nil
}
