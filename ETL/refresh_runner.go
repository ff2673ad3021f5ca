package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LilVoxy/workflow_analytics/ETL/config"
	"github.com/LilVoxy/workflow_analytics/ETL/load"
	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/powerbi"
	"github.com/LilVoxy/workflow_analytics/ETL/transform"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
	"github.com/LilVoxy/workflow_analytics/processor"
	"github.com/LilVoxy/workflow_analytics/websocket"
)

var errRefreshInProgress = errors.New("обновление уже выполняется")

type canonicalSource interface {
	Extract() (*models.CanonicalData, error)
}

type schemaProvisioner interface {
	ApplySchema(ctx context.Context, datasetName string, spec *models.DatasetSpec) (*powerbi.ApplyResult, error)
}

type datasetLoader interface {
	WipeAndReload(ctx context.Context, datasetID string, spec *models.DatasetSpec, tables map[string][]models.Row) (*load.UploadResult, error)
}

type runNotifier interface {
	ReportRun(notice websocket.RunNotice)
}

// RefreshRunner выполняет полный цикл обновления: извлечение, построение модели,
// архивирование, подготовку набора данных и перезагрузку. Запуски не пересекаются.
type RefreshRunner struct {
	config      config.ETLConfig
	spec        *models.DatasetSpec
	logger      *utils.ETLLogger
	source      canonicalSource
	transformer *transform.Transformer
	provisioner schemaProvisioner
	loader      datasetLoader
	runs        models.RefreshLogRepository
	notifier    runNotifier

	// baseCtx используется запусками через API
	baseCtx context.Context
	mu      sync.Mutex
	running atomic.Bool
}

// ExecuteRefresh выполняет обновление синхронно; если запуск уже идет, возвращает errRefreshInProgress
func (r *RefreshRunner) ExecuteRefresh(ctx context.Context) error {
	if !r.mu.TryLock() {
		return errRefreshInProgress
	}
	r.running.Store(true)
	defer r.finish()

	return r.execute(ctx)
}

// TriggerRefresh запускает обновление в фоне; false, если запуск уже идет
func (r *RefreshRunner) TriggerRefresh() bool {
	if !r.mu.TryLock() {
		return false
	}
	r.running.Store(true)

	go func() {
		defer r.finish()
		if err := r.execute(r.baseCtx); err != nil {
			r.logger.Error("Ошибка при выполнении обновления, запущенного через API: %v", err)
		}
	}()
	return true
}

// Running сообщает, идет ли сейчас запуск
func (r *RefreshRunner) Running() bool {
	return r.running.Load()
}

func (r *RefreshRunner) finish() {
	r.running.Store(false)
	r.mu.Unlock()
}

func (r *RefreshRunner) execute(ctx context.Context) error {
	startTime := time.Now()
	r.logger.LogRefreshStart(r.config.PowerBI.DatasetName)

	// Создаем запись в журнале запусков
	logID, err := r.runs.CreateLogEntry(startTime)
	if err != nil {
		r.logger.Error("Ошибка при создании записи в журнале запусков: %v", err)
		return fmt.Errorf("ошибка при создании записи в журнале запусков: %w", err)
	}

	// 1-2. Извлечение и построение модели
	tables, err := r.buildTables(startTime)
	if err != nil {
		return r.fail(logID, models.RefreshRunFailure{}, err)
	}

	// 3. Подготовка набора данных
	applied, err := r.provisioner.ApplySchema(ctx, r.config.PowerBI.DatasetName, r.spec)
	if err != nil {
		return r.fail(logID, models.RefreshRunFailure{}, fmt.Errorf("ошибка подготовки набора данных: %w", err))
	}
	if applied.ChangesApplied {
		r.logger.Info("Созданы таблицы набора данных %s: %v", applied.DatasetID, applied.TablesCreated)
	}

	// 4. Перезагрузка
	result, err := r.loader.WipeAndReload(ctx, applied.DatasetID, r.spec, tables)
	if err != nil {
		failure := models.RefreshRunFailure{}
		var uploadErr *load.UploadError
		if errors.As(err, &uploadErr) {
			failure.Table = uploadErr.Table
			failure.Batch = uploadErr.BatchIndex
		}
		return r.fail(logID, failure, fmt.Errorf("ошибка загрузки: %w", err))
	}

	if err := r.runs.UpdateLogEntrySuccess(logID, time.Now(), models.RefreshRunResult{
		DatasetID:       applied.DatasetID,
		TablesProcessed: result.TablesProcessed,
		RowsPosted:      result.TotalRowsPosted,
		PostRequests:    result.TotalPostRequests,
	}); err != nil {
		r.logger.Error("Ошибка при обновлении записи в журнале запусков: %v", err)
	}
	r.notify(websocket.RunNotice{RunID: logID, Status: models.RunStatusSuccess, Result: result})

	r.logger.Info("Обновление успешно завершено. Длительность: %v", time.Since(startTime))
	return nil
}

// buildTables извлекает канонические данные, строит строки всех таблиц и при необходимости архивирует их
func (r *RefreshRunner) buildTables(startTime time.Time) (map[string][]models.Row, error) {
	data, err := r.source.Extract()
	if err != nil {
		return nil, fmt.Errorf("ошибка в фазе Extract: %w", err)
	}

	transformed, _, err := r.transformer.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("ошибка в фазе Transform: %w", err)
	}
	tables := transformed.TableRows()

	if r.config.SnapshotDir != "" {
		dir := filepath.Join(r.config.SnapshotDir, processor.SnapshotDirName(startTime))
		if _, err := processor.WriteSnapshot(dir, tables, startTime); err != nil {
			// Архив вспомогательный, загрузка продолжается
			r.logger.Warn("Не удалось сохранить архив таблиц в %s: %v", dir, err)
		} else {
			r.logger.Info("Архив таблиц сохранен в %s", dir)
		}
	}

	return tables, nil
}

func (r *RefreshRunner) fail(logID int, failure models.RefreshRunFailure, err error) error {
	r.logger.Error("%v", err)

	failure.ErrorMessage = err.Error()
	if updateErr := r.runs.UpdateLogEntryFailure(logID, time.Now(), failure); updateErr != nil {
		r.logger.Error("Ошибка при обновлении записи в журнале запусков: %v", updateErr)
	}
	r.notify(websocket.RunNotice{RunID: logID, Status: models.RunStatusFailed, Message: err.Error()})
	return err
}

func (r *RefreshRunner) notify(notice websocket.RunNotice) {
	if r.notifier != nil {
		r.notifier.ReportRun(notice)
	}
}
