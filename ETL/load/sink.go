package load

import (
	"context"
	"errors"
	"fmt"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
)

// TableInfo описывает таблицу, существующую в наборе данных приемника
type TableInfo struct {
	Name string `json:"name"`
}

// DatasetInfo описывает набор данных приемника
type DatasetInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Sink - удаленный приемник строк (push-набор данных BI-сервиса)
type Sink interface {
	// ListTables возвращает таблицы набора данных
	ListTables(ctx context.Context, datasetID string) ([]TableInfo, error)

	// DeleteAllRows удаляет все строки таблицы
	DeleteAllRows(ctx context.Context, datasetID, table string) error

	// InsertRows добавляет строки в таблицу (не больше MaxRowsPerRequest за вызов)
	InsertRows(ctx context.Context, datasetID, table string, rows []models.Row) error

	// CreateDataset создает набор данных по спецификации
	CreateDataset(ctx context.Context, spec *models.DatasetSpec) (DatasetInfo, error)
}

// SinkError - ошибка вызова приемника с HTTP-статусом.
// Соединение, которое не удалось установить, отображается в статус 503.
type SinkError struct {
	Op         string
	StatusCode int
	RetryAfter string
	Body       string
}

func (e *SinkError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ошибка приемника (%s): HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("ошибка приемника (%s): HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Transient сообщает, имеет ли смысл повторять вызов (429 и 5xx)
func (e *SinkError) Transient() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode <= 599)
}

// StatusCode возвращает HTTP-статус ошибки приемника из цепочки err или 0
func StatusCode(err error) int {
	var sinkErr *SinkError
	if errors.As(err, &sinkErr) {
		return sinkErr.StatusCode
	}
	return 0
}
