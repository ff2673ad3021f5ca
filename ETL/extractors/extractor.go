package extractors

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// Имена канонических наборов
const (
	DatasetWorkflowDefinitions = "workflow_definitions"
	DatasetWorkflowStages      = "workflow_stages"
	DatasetTimeslices          = "timeslices"
)

// Extractor читает канонические объекты из последних выгрузок слоя нормализации:
// <dataDir>/canon/<набор>/<день>/records.jsonl
type Extractor struct {
	dataDir string
	logger  *utils.ETLLogger
}

// NewExtractor создает новый экземпляр Extractor
func NewExtractor(dataDir string, logger *utils.ETLLogger) *Extractor {
	return &Extractor{
		dataDir: dataDir,
		logger:  logger,
	}
}

// Extract извлекает определения процессов, этапы и интервалы
func (e *Extractor) Extract() (*models.CanonicalData, error) {
	startTime := time.Now()
	e.logger.LogExtractStart()

	var data models.CanonicalData
	var err error

	// Извлекаем определения процессов
	data.WorkflowDefinitions, err = extractLatest[models.WorkflowDefinition](e, DatasetWorkflowDefinitions)
	if err != nil {
		e.logger.Error("Ошибка при извлечении определений процессов: %v", err)
		return nil, fmt.Errorf("ошибка извлечения определений процессов: %w", err)
	}

	// Извлекаем этапы
	data.WorkflowStages, err = extractLatest[models.WorkflowStage](e, DatasetWorkflowStages)
	if err != nil {
		e.logger.Error("Ошибка при извлечении этапов: %v", err)
		return nil, fmt.Errorf("ошибка извлечения этапов: %w", err)
	}

	// Извлекаем интервалы
	data.Timeslices, err = extractLatest[models.Timeslice](e, DatasetTimeslices)
	if err != nil {
		e.logger.Error("Ошибка при извлечении интервалов: %v", err)
		return nil, fmt.Errorf("ошибка извлечения интервалов: %w", err)
	}

	e.logger.LogExtractComplete(
		len(data.WorkflowDefinitions),
		len(data.WorkflowStages),
		len(data.Timeslices),
		time.Since(startTime),
	)

	return &data, nil
}

func extractLatest[T any](e *Extractor, dataset string) ([]T, error) {
	datasetDir := filepath.Join(e.dataDir, "canon", dataset)
	day, err := latestDayDir(datasetDir)
	if err != nil {
		return nil, err
	}

	records, err := readJSONL[T](filepath.Join(datasetDir, day, recordsFileName))
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Набор %s: выгрузка %s, %d записей", dataset, day, len(records))
	return records, nil
}
