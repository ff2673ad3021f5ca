package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MySQLRefreshLogRepository реализация RefreshLogRepository для MySQL
type MySQLRefreshLogRepository struct {
	db *sql.DB
}

// NewMySQLRefreshLogRepository создает новый экземпляр MySQLRefreshLogRepository
func NewMySQLRefreshLogRepository(db *sql.DB) *MySQLRefreshLogRepository {
	return &MySQLRefreshLogRepository{
		db: db,
	}
}

// CreateRefreshLogTable создает таблицу журнала запусков, если она не существует
func (r *MySQLRefreshLogRepository) CreateRefreshLogTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS refresh_run_log (
		id INT AUTO_INCREMENT PRIMARY KEY,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NULL,
		status ENUM('success', 'failed', 'in_progress') NOT NULL DEFAULT 'in_progress',
		dataset_id VARCHAR(64) NOT NULL DEFAULT '',
		tables_processed INT DEFAULT 0,
		rows_posted INT DEFAULT 0,
		post_requests INT DEFAULT 0,
		failed_table VARCHAR(100) NULL,
		failed_batch INT NULL,
		error_message TEXT,
		execution_time_seconds FLOAT DEFAULT 0
	);
	`

	_, err := r.db.Exec(query)
	if err != nil {
		return fmt.Errorf("ошибка при создании таблицы refresh_run_log: %w", err)
	}

	return nil
}

// CreateLogEntry создает новую запись о запуске обновления
func (r *MySQLRefreshLogRepository) CreateLogEntry(startTime time.Time) (int, error) {
	query := `INSERT INTO refresh_run_log (start_time, status) VALUES (?, 'in_progress')`

	result, err := r.db.Exec(query, startTime)
	if err != nil {
		return 0, fmt.Errorf("ошибка при создании записи о запуске обновления: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ошибка при получении ID созданной записи: %w", err)
	}

	return int(id), nil
}

// UpdateLogEntrySuccess обновляет запись при успешном завершении
func (r *MySQLRefreshLogRepository) UpdateLogEntrySuccess(id int, endTime time.Time, result RefreshRunResult) error {
	executionTime, err := r.executionSeconds(id, endTime)
	if err != nil {
		return err
	}

	query := `
	UPDATE refresh_run_log
	SET
		end_time = ?,
		status = 'success',
		dataset_id = ?,
		tables_processed = ?,
		rows_posted = ?,
		post_requests = ?,
		execution_time_seconds = ?
	WHERE id = ?
	`

	_, err = r.db.Exec(
		query,
		endTime,
		result.DatasetID,
		result.TablesProcessed,
		result.RowsPosted,
		result.PostRequests,
		executionTime,
		id,
	)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении записи о запуске обновления: %w", err)
	}

	return nil
}

// UpdateLogEntryFailure обновляет запись при неудачном завершении
func (r *MySQLRefreshLogRepository) UpdateLogEntryFailure(id int, endTime time.Time, failure RefreshRunFailure) error {
	executionTime, err := r.executionSeconds(id, endTime)
	if err != nil {
		return err
	}

	query := `
	UPDATE refresh_run_log
	SET
		end_time = ?,
		status = 'failed',
		failed_table = ?,
		failed_batch = ?,
		error_message = ?,
		execution_time_seconds = ?
	WHERE id = ?
	`

	_, err = r.db.Exec(query, endTime, failure.Table, failure.Batch, failure.ErrorMessage, executionTime, id)
	if err != nil {
		return fmt.Errorf("ошибка при обновлении записи о запуске обновления: %w", err)
	}

	return nil
}

func (r *MySQLRefreshLogRepository) executionSeconds(id int, endTime time.Time) (float64, error) {
	// Рассчитываем время выполнения в секундах
	var startTime time.Time
	err := r.db.QueryRow("SELECT start_time FROM refresh_run_log WHERE id = ?", id).Scan(&startTime)
	if err != nil {
		return 0, fmt.Errorf("ошибка при получении времени начала обновления: %w", err)
	}
	return endTime.Sub(startTime).Seconds(), nil
}

const selectRunColumns = `
	SELECT
		id, start_time, end_time, status, dataset_id,
		tables_processed, rows_posted, post_requests,
		IFNULL(failed_table, ''), IFNULL(failed_batch, 0), IFNULL(error_message, ''),
		execution_time_seconds
	FROM refresh_run_log
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RefreshRunLog, error) {
	var run RefreshRunLog
	var endTime sql.NullTime
	err := row.Scan(
		&run.ID, &run.StartTime, &endTime, &run.Status, &run.DatasetID,
		&run.TablesProcessed, &run.RowsPosted, &run.PostRequests,
		&run.FailedTable, &run.FailedBatch, &run.ErrorMessage,
		&run.ExecutionTimeSeconds,
	)
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		run.EndTime = &t
	}
	return &run, nil
}

// GetLastRun получает информацию о последнем запуске
func (r *MySQLRefreshLogRepository) GetLastRun() (*RefreshRunLog, error) {
	query := selectRunColumns + `ORDER BY start_time DESC, id DESC LIMIT 1`

	run, err := scanRun(r.db.QueryRow(query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Запусков еще не было
		}
		return nil, fmt.Errorf("ошибка при получении информации о последнем запуске: %w", err)
	}

	return run, nil
}

// GetRecentRuns получает последние limit запусков
func (r *MySQLRefreshLogRepository) GetRecentRuns(limit int) ([]RefreshRunLog, error) {
	query := selectRunColumns + `ORDER BY start_time DESC, id DESC LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении списка запусков: %w", err)
	}
	defer rows.Close()

	var runs []RefreshRunLog
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка при сканировании записи о запуске: %w", err)
		}
		runs = append(runs, *run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка после итерации по записям о запусках: %w", err)
	}

	return runs, nil
}
