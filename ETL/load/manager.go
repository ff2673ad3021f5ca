package load

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// Phase - этап загрузки таблицы
type Phase string

const (
	PhaseWiping  Phase = "wiping"
	PhasePosting Phase = "posting"
	PhaseDone    Phase = "done"
)

// ProgressEvent описывает ход загрузки
type ProgressEvent struct {
	Phase             Phase     `json:"phase"`
	Table             string    `json:"table"`
	TableIndex        int       `json:"table_index"`
	TableCount        int       `json:"table_count"`
	BatchIndex        int       `json:"batch_index,omitempty"`
	BatchCount        int       `json:"batch_count"`
	BatchRows         int       `json:"batch_rows,omitempty"`
	TotalRowsPosted   int       `json:"total_rows_posted"`
	TotalPostRequests int       `json:"total_post_requests"`
	Time              time.Time `json:"time"`
}

// ProgressReporter получает события хода загрузки
type ProgressReporter interface {
	ReportProgress(event ProgressEvent)
}

// ProgressReporterFunc позволяет использовать функцию как ProgressReporter
type ProgressReporterFunc func(event ProgressEvent)

func (f ProgressReporterFunc) ReportProgress(event ProgressEvent) {
	f(event)
}

type nopReporter struct{}

func (nopReporter) ReportProgress(ProgressEvent) {}

// UploadResult - итоги загрузки
type UploadResult struct {
	TablesProcessed   int `json:"tables_processed"`
	TotalRowsPosted   int `json:"total_rows_posted"`
	TotalPostRequests int `json:"total_post_requests"`
}

// PreconditionError - ошибка, обнаруженная до любого обращения к приемнику
type PreconditionError struct {
	Missing []string
	Extra   []string
	Err     error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("нарушено предусловие загрузки: %v", e.Err)
	}
	return fmt.Sprintf("набор таблиц не совпадает со спецификацией. Отсутствуют: %s. Лишние: %s.",
		joinOrNone(e.Missing), joinOrNone(e.Extra))
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// UploadError - сбой загрузки конкретной таблицы и пакета.
// Уже очищенные таблицы остаются пустыми.
type UploadError struct {
	Table      string
	Phase      Phase
	BatchIndex int
	BatchCount int
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.Phase == PhasePosting {
		return fmt.Sprintf("ошибка загрузки таблицы %s (пакет %d из %d, статус %d): %v",
			e.Table, e.BatchIndex, e.BatchCount, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ошибка очистки таблицы %s (статус %d): %v", e.Table, e.StatusCode, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "нет"
	}
	return strings.Join(names, ", ")
}

// LoadManager отвечает за перезагрузку набора данных приемника: очистка каждой таблицы и
// пакетная вставка строк под контролем квот и политики повторов
type LoadManager struct {
	sink         Sink
	governor     *QuotaGovernor
	retry        *RetryPolicy
	reporter     ProgressReporter
	logger       *utils.ETLLogger
	maxBatchSize int
}

// NewLoadManager создает новый экземпляр LoadManager
func NewLoadManager(sink Sink, governor *QuotaGovernor, retry *RetryPolicy, reporter ProgressReporter, logger *utils.ETLLogger, maxBatchSize int) *LoadManager {
	if reporter == nil {
		reporter = nopReporter{}
	}
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	if governor == nil {
		governor = NewQuotaGovernor(DefaultQuotaLimits(), nil)
	}
	if maxBatchSize == 0 {
		maxBatchSize = MaxRowsPerRequest
	}
	return &LoadManager{
		sink:         sink,
		governor:     governor,
		retry:        retry,
		reporter:     reporter,
		logger:       logger,
		maxBatchSize: maxBatchSize,
	}
}

// WipeAndReload очищает каждую таблицу набора данных и загружает в нее строки заново.
// При сбое возвращает *UploadError вместе с частичным результатом.
func (m *LoadManager) WipeAndReload(ctx context.Context, datasetID string, spec *models.DatasetSpec, tables map[string][]models.Row) (*UploadResult, error) {
	startTime := time.Now()
	result := &UploadResult{}

	plans, err := PlanWipeAndReload(spec, tables, m.maxBatchSize)
	if err != nil {
		m.logger.Error("Загрузка отклонена до обращения к приемнику: %v", err)
		return result, err
	}

	m.logger.Info("Начало фазы Load: %d таблиц, набор данных %s", len(plans), datasetID)

	// Начатый вызов приемника не прерывается отменой контекста
	sinkCtx := context.WithoutCancel(ctx)

	for tableIndex, plan := range plans {
		batchCount := len(plan.Batches)

		// 1. Очищаем таблицу
		m.report(ProgressEvent{Phase: PhaseWiping, Table: plan.Table, TableIndex: tableIndex + 1, TableCount: len(plans), BatchCount: batchCount}, result)
		m.logger.Info("Очистка таблицы %s", plan.Table)
		err := m.retry.Do(sinkCtx, func(ctx context.Context) error {
			return m.sink.DeleteAllRows(ctx, datasetID, plan.Table)
		})
		if err != nil {
			m.logger.Error("Ошибка при очистке таблицы %s: %v", plan.Table, err)
			return result, &UploadError{Table: plan.Table, Phase: PhaseWiping, BatchCount: batchCount, StatusCode: StatusCode(err), Err: err}
		}

		// 2. Отправляем пакеты по порядку
		for batchIndex, batch := range plan.Batches {
			uploadErr := func(err error) *UploadError {
				return &UploadError{
					Table:      plan.Table,
					Phase:      PhasePosting,
					BatchIndex: batchIndex + 1,
					BatchCount: batchCount,
					StatusCode: StatusCode(err),
					Err:        err,
				}
			}

			if err := ctx.Err(); err != nil {
				return result, uploadErr(err)
			}
			if err := m.governor.WaitForBudget(ctx, len(batch), 1); err != nil {
				return result, uploadErr(err)
			}

			// Каждая попытка, включая повторы, расходует квоту запросов
			attempts := 0
			err := m.retry.Do(sinkCtx, func(ctx context.Context) error {
				attempts++
				return m.sink.InsertRows(ctx, datasetID, plan.Table, batch)
			})
			if err != nil {
				if recordErr := m.governor.Record(0, attempts); recordErr != nil {
					m.logger.Warn("Не удалось учесть неудачные запросы в квоте: %v", recordErr)
				}
				m.logger.Error("Ошибка при отправке пакета %d/%d таблицы %s: %v", batchIndex+1, batchCount, plan.Table, err)
				return result, uploadErr(err)
			}
			if err := m.governor.Record(len(batch), attempts); err != nil {
				return result, uploadErr(err)
			}

			result.TotalRowsPosted += len(batch)
			result.TotalPostRequests++

			m.logger.Debug("Отправлен пакет %d/%d таблицы %s (%d строк, всего %d строк, %d запросов)",
				batchIndex+1, batchCount, plan.Table, len(batch), result.TotalRowsPosted, result.TotalPostRequests)
			m.report(ProgressEvent{
				Phase:      PhasePosting,
				Table:      plan.Table,
				TableIndex: tableIndex + 1,
				TableCount: len(plans),
				BatchIndex: batchIndex + 1,
				BatchCount: batchCount,
				BatchRows:  len(batch),
			}, result)
		}

		// 3. Таблица загружена
		result.TablesProcessed++
		m.report(ProgressEvent{Phase: PhaseDone, Table: plan.Table, TableIndex: tableIndex + 1, TableCount: len(plans), BatchCount: batchCount}, result)
		m.logger.Info("Таблица %s загружена: %d строк, %d пакетов", plan.Table, plan.Rows, batchCount)
	}

	m.logger.LogRefreshComplete(startTime, result.TablesProcessed, result.TotalRowsPosted, result.TotalPostRequests)
	return result, nil
}

func (m *LoadManager) report(event ProgressEvent, result *UploadResult) {
	event.TotalRowsPosted = result.TotalRowsPosted
	event.TotalPostRequests = result.TotalPostRequests
	event.Time = m.governor.clock.Now("load", "progress")
	m.reporter.ReportProgress(event)
}
