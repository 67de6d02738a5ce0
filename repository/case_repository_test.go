package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coa-docket/models"
)

func TestCaseRepository_SaveAll(t *testing.T) {
	t.Run("nominal", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rec := caseFound("24000001", brief("m1", models.SourceTableBriefs))

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO case_records").
			WithArgs(rec.CaseID, "coa05", "active", false, []string{"24000001"}, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		repo := NewCaseRepository(mock)
		assert.NoError(t, repo.SaveAll(context.Background(), []models.CaseRecord{rec}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec error rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO case_records").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection lost"))
		mock.ExpectRollback()

		repo := NewCaseRepository(mock)
		err = repo.SaveAll(context.Background(), []models.CaseRecord{caseFound("24000001")})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCaseRepository_GetCase(t *testing.T) {
	t.Run("nominal", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		rec := caseFound("24000001", brief("m1", models.SourceTableBriefs))
		payload, err := json.Marshal(rec)
		require.NoError(t, err)

		mock.ExpectQuery("SELECT record").
			WithArgs(rec.CaseID).
			WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(payload))

		repo := NewCaseRepository(mock)
		got, err := repo.GetCase(context.Background(), rec.CaseID)
		require.NoError(t, err)
		assert.Equal(t, rec, *got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT record").
			WithArgs("01-20-00001-CR").
			WillReturnError(pgx.ErrNoRows)

		repo := NewCaseRepository(mock)
		_, err = repo.GetCase(context.Background(), "01-20-00001-CR")
		assert.ErrorIs(t, err, models.ErrCaseNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCaseRepository_ListCases(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := caseFound("24000001")
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery(`WHERE \$1 = ANY\(bar_numbers\)`).
		WithArgs("24000001").
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(payload))

	repo := NewCaseRepository(mock)
	got, err := repo.ListCases(context.Background(), "24000001")
	require.NoError(t, err)
	assert.Equal(t, []models.CaseRecord{rec}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepository_BarNumberIndex(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT case_id, bar_numbers").
		WillReturnRows(pgxmock.NewRows([]string{"case_id", "bar_numbers"}).
			AddRow("01-23-00001-CR", []string{"24000001", "24000002"}).
			AddRow("05-23-00123-CR", []string{"24000001"}))

	repo := NewCaseRepository(mock)
	index, err := repo.BarNumberIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"24000001": {"01-23-00001-CR", "05-23-00123-CR"},
		"24000002": {"01-23-00001-CR"},
	}, index)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepository_RunSummary(t *testing.T) {
	t.Run("save", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		summary := models.RunSummary{RunID: uuid.New(), FinishedAt: time.Now().UTC()}
		mock.ExpectExec("INSERT INTO run_summaries").
			WithArgs(summary.RunID, summary.FinishedAt, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := NewCaseRepository(mock)
		assert.NoError(t, repo.SaveRunSummary(context.Background(), summary))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("none yet", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT summary").WillReturnError(pgx.ErrNoRows)

		repo := NewCaseRepository(mock)
		_, err = repo.LatestRunSummary(context.Background())
		assert.ErrorIs(t, err, models.ErrRunSummaryNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
