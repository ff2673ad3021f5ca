package models

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runColumns = []string{
	"id", "start_time", "end_time", "status", "dataset_id",
	"tables_processed", "rows_posted", "post_requests",
	"failed_table", "failed_batch", "error_message", "execution_time_seconds",
}

func newMockRepository(t *testing.T) (*MySQLRefreshLogRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMySQLRefreshLogRepository(db), mock
}

func TestRefreshLogCreateAndSucceed(t *testing.T) {
	repo, mock := newMockRepository(t)
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_run_log (start_time, status)")).
		WithArgs(start).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT start_time FROM refresh_run_log WHERE id = ?")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"start_time"}).AddRow(start))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_run_log")).
		WithArgs(end, "ds-1", 7, 25000, 3, 90.0, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.CreateLogEntry(start)
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	err = repo.UpdateLogEntrySuccess(id, end, RefreshRunResult{
		DatasetID:       "ds-1",
		TablesProcessed: 7,
		RowsPosted:      25000,
		PostRequests:    3,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshLogFailure(t *testing.T) {
	repo, mock := newMockRepository(t)
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT start_time FROM refresh_run_log")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"start_time"}).AddRow(start))
	mock.ExpectExec(regexp.QuoteMeta("status = 'failed'")).
		WithArgs(end, "DimStage", 2, "HTTP 400", 2.0, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateLogEntryFailure(3, end, RefreshRunFailure{Table: "DimStage", Batch: 2, ErrorMessage: "HTTP 400"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshLogGetLastRun(t *testing.T) {
	repo, mock := newMockRepository(t)
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_run_log")).
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow(4, start, nil, RunStatusInProgress, "", 0, 0, 0, "", 0, "", 0.0))

	run, err := repo.GetLastRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 4, run.ID)
	assert.Equal(t, RunStatusInProgress, run.Status)
	assert.Nil(t, run.EndTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshLogGetLastRunEmpty(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_run_log")).
		WillReturnError(sql.ErrNoRows)

	run, err := repo.GetLastRun()
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestRefreshLogGetRecentRuns(t *testing.T) {
	repo, mock := newMockRepository(t)
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT ?")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow(2, start, end, RunStatusFailed, "ds", 1, 10, 1, "DimDate", 1, "boom", 60.0).
			AddRow(1, start.Add(-time.Hour), end.Add(-time.Hour), RunStatusSuccess, "ds", 7, 100, 7, "", 0, "", 60.0))

	runs, err := repo.GetRecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "DimDate", runs[0].FailedTable)
	assert.Equal(t, 1, runs[0].FailedBatch)
	require.NotNil(t, runs[1].EndTime)
	assert.Equal(t, end.Add(-time.Hour), *runs[1].EndTime)
}

func TestRefreshLogQueryError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT ?")).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetRecentRuns(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
