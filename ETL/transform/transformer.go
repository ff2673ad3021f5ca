package transform

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// Transformer координирует построение аналитической модели из канонических объектов
type Transformer struct {
	spec                *models.DatasetSpec
	logger              *utils.ETLLogger
	workflowDimProc     *WorkflowDimensionProcessor
	stageDimProc        *StageDimensionProcessor
	timeDimProc         *TimeDimensionProcessor
	timesliceFProcessor *TimesliceFactsProcessor
	occupancyProcessor  *StageOccupancyProcessor
	throughputProcessor *StageThroughputProcessor
}

// NewTransformer создает новый экземпляр Transformer.
// Календарные дни считаются в часовом поясе location; набор таблиц сверяется со spec.
func NewTransformer(spec *models.DatasetSpec, location *time.Location, logger *utils.ETLLogger) *Transformer {
	return &Transformer{
		spec:                spec,
		logger:              logger,
		workflowDimProc:     NewWorkflowDimensionProcessor(logger),
		stageDimProc:        NewStageDimensionProcessor(logger),
		timeDimProc:         NewTimeDimensionProcessor(location, logger),
		timesliceFProcessor: NewTimesliceFactsProcessor(location, logger),
		occupancyProcessor:  NewStageOccupancyProcessor(location, logger),
		throughputProcessor: NewStageThroughputProcessor(location, logger),
	}
}

// Transform строит измерения, факты и агрегаты и проверяет ссылочную целостность.
// Результат зависит только от входных данных: повторный запуск дает идентичные строки.
func (t *Transformer) Transform(data *models.CanonicalData) (*models.TransformedData, *DerivationStats, error) {
	startTime := time.Now()
	t.logger.Info("Начало фазы Transform (построение аналитической модели)")

	if data == nil {
		data = &models.CanonicalData{}
	}
	c := newCatalog(data)
	stats := &DerivationStats{}
	transformedData := &models.TransformedData{}

	// 1. Измерения процессов и этапов
	t.logger.Info("Построение измерений процессов и этапов...")
	transformedData.Workflows = t.workflowDimProc.ProcessWorkflowDimension(c)
	transformedData.Stages = t.stageDimProc.ProcessStageDimension(data.WorkflowStages, c)

	// 2. Факты интервалов
	t.logger.Info("Построение фактов интервалов...")
	facts, unresolvedStageIDs := t.timesliceFProcessor.ProcessTimesliceFacts(data.Timeslices, c)
	transformedData.Timeslices = facts

	// 3. Календарь и почасовые кадры
	t.logger.Info("Построение календарного измерения и кадров...")
	span := computeActivitySpan(data.Timeslices)
	transformedData.Dates = t.timeDimProc.ProcessDateDimension(span)
	transformedData.PlaybackFrames = t.timeDimProc.ProcessPlaybackFrames(span)

	// 4. Заполненность и пропускная способность
	t.logger.Info("Расчет заполненности и пропускной способности этапов...")
	transformedData.StageOccupancy = t.occupancyProcessor.ProcessStageOccupancy(
		data.Timeslices, transformedData.PlaybackFrames, transformedData.Stages, c, stats)
	transformedData.StageThroughput = t.throughputProcessor.ProcessStageThroughput(
		data.Timeslices, transformedData.StageOccupancy, transformedData.Stages, c, stats)

	// 5. Ссылочная целостность
	if err := ValidateIntegrity(transformedData, c.workflowKeys, unresolvedStageIDs); err != nil {
		t.logger.Error("Ошибка целостности модели: %v", err)
		return nil, stats, err
	}

	// 6. Набор таблиц должен совпадать со спецификацией
	if t.spec != nil {
		if err := assertTableSet(transformedData.TableRows(), t.spec.TableNames()); err != nil {
			t.logger.Error("%v", err)
			return nil, stats, err
		}
	}

	t.logger.Info("Счетчики аномалий: пропущено интервалов %d, входов учтено %d, входов без метки времени %d, входов не на этап 1 %d",
		stats.OccupancySkippedInvalidInterval,
		stats.EntryEdgeCounted,
		stats.EntryEdgeSkippedMissingTimestamp,
		stats.NonStage1EntryEdgeObserved)

	rowsByTable := make(map[string]int)
	for name, rows := range transformedData.TableRows() {
		rowsByTable[name] = len(rows)
	}
	t.logger.LogTransformComplete(rowsByTable, time.Since(startTime))

	return transformedData, stats, nil
}

func assertTableSet(rows map[string][]models.Row, expected []string) error {
	expectedSet := make(map[string]bool, len(expected))
	for _, name := range expected {
		expectedSet[name] = true
	}

	var missing, extra []string
	for _, name := range expected {
		if _, ok := rows[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range rows {
		if !expectedSet[name] {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	sort.Strings(extra)
	return fmt.Errorf("построенный набор таблиц не совпадает со спецификацией: отсутствуют [%s], лишние [%s]",
		strings.Join(missing, ", "), strings.Join(extra, ", "))
}
