package models

import (
	"time"
)

// Статусы запуска обновления
const (
	RunStatusInProgress = "in_progress"
	RunStatusSuccess    = "success"
	RunStatusFailed     = "failed"
)

// RefreshRunLog представляет запись о запуске обновления набора данных
type RefreshRunLog struct {
	ID                   int        `json:"id"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	Status               string     `json:"status"` // "success", "failed", "in_progress"
	DatasetID            string     `json:"dataset_id"`
	TablesProcessed      int        `json:"tables_processed"`
	RowsPosted           int        `json:"rows_posted"`
	PostRequests         int        `json:"post_requests"`
	FailedTable          string     `json:"failed_table,omitempty"`
	FailedBatch          int        `json:"failed_batch,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	ExecutionTimeSeconds float64    `json:"execution_time_seconds"`
}

// RefreshRunResult содержит итоговые счетчики успешного запуска
type RefreshRunResult struct {
	DatasetID       string
	TablesProcessed int
	RowsPosted      int
	PostRequests    int
}

// RefreshRunFailure описывает неудачный запуск
type RefreshRunFailure struct {
	Table        string
	Batch        int
	ErrorMessage string
}

// RefreshLogRepository представляет репозиторий журнала запусков обновления
type RefreshLogRepository interface {
	// CreateLogEntry создает новую запись о запуске
	CreateLogEntry(startTime time.Time) (int, error)

	// UpdateLogEntrySuccess обновляет запись при успешном завершении
	UpdateLogEntrySuccess(id int, endTime time.Time, result RefreshRunResult) error

	// UpdateLogEntryFailure обновляет запись при неудачном завершении
	UpdateLogEntryFailure(id int, endTime time.Time, failure RefreshRunFailure) error

	// GetLastRun получает последний запуск (любого статуса)
	GetLastRun() (*RefreshRunLog, error)

	// GetRecentRuns получает последние limit запусков, новые первыми
	GetRecentRuns(limit int) ([]RefreshRunLog, error)
}
