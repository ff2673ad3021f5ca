package transform

import (
	"time"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// TimesliceFactsProcessor отвечает за построение таблицы фактов интервалов
type TimesliceFactsProcessor struct {
	location *time.Location
	logger   *utils.ETLLogger
}

// NewTimesliceFactsProcessor создает новый экземпляр TimesliceFactsProcessor
func NewTimesliceFactsProcessor(location *time.Location, logger *utils.ETLLogger) *TimesliceFactsProcessor {
	return &TimesliceFactsProcessor{
		location: location,
		logger:   logger,
	}
}

// ProcessTimesliceFacts строит по одной строке факта на интервал в порядке входных данных.
// Неразрешимые ссылки на этапы возвращаются отдельно для проверки целостности.
func (p *TimesliceFactsProcessor) ProcessTimesliceFacts(timeslices []models.Timeslice, c *catalog) ([]models.FactTimesliceRow, []string) {
	rows := make([]models.FactTimesliceRow, 0, len(timeslices))
	var unresolved []string

	for _, ts := range timeslices {
		// 1. Процесс
		workflowKey, workflowLabel := c.resolveWorkflow(ts.WorkflowDefinitionID)

		// 2. Этапы
		fromKey, ok := c.resolveStage(ts.FromStageID)
		if !ok {
			unresolved = append(unresolved, *ts.FromStageID)
		}
		toKey, ok := c.resolveStage(ts.ToStageID)
		if !ok {
			unresolved = append(unresolved, *ts.ToStageID)
		}

		// 3. Метки времени
		name := ts.ID
		if ts.Title != nil {
			name = *ts.Title
		}

		var fromTime, toTime *float64
		if t, ok := parseTimestamp(ts.StartedAt); ok {
			v := oleSerial(t)
			fromTime = &v
		}
		if t, ok := parseTimestamp(ts.EndedAt); ok {
			v := oleSerial(t)
			toTime = &v
		}

		var minutesDiff *int
		if ts.DurationSeconds != nil {
			v := roundHalfUp(*ts.DurationSeconds / 60)
			minutesDiff = &v
		}

		var toDateTime, toDate *string
		if t, ok := parseTimestamp(firstPresent(ts.EndedAt, ts.StartedAt, ts.LastEditedTime, ts.CreatedTime)); ok {
			iso := isoTimestamp(t)
			day := dayLabel(t, p.location)
			toDateTime = &iso
			toDate = &day
		}

		rows = append(rows, models.FactTimesliceRow{
			Name:                  &name,
			FromStepN:             c.stageNumberOrNil(fromKey),
			FromTime:              fromTime,
			FromWorkflowStep:      c.stageLabelOrNil(fromKey),
			MinutesDiff:           minutesDiff,
			SliceLabel:            &name,
			ToStepN:               c.stageNumberOrNil(toKey),
			ToTime:                toTime,
			ToWorkflowStep:        c.stageLabelOrNil(toKey),
			WorkflowDefinition:    workflowLabel,
			WorkflowRecord:        ts.SourceID,
			ToDateTime:            toDateTime,
			ToDate:                toDate,
			FromStageKey:          fromKey,
			ToStageKey:            toKey,
			WorkflowDefinitionKey: workflowKey,
		})
	}

	p.logger.Debug("Факты интервалов: %d строк, неразрешенных ссылок на этапы: %d", len(rows), len(unresolved))
	return rows, unresolved
}
