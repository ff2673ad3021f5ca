package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
)

// Сколько примеров ключей показывать в сообщении об ошибке
const maxReportedKeys = 10

// IntegrityViolation описывает внешний ключ, не найденный в своем измерении
type IntegrityViolation struct {
	Table   string
	Column  string
	Target  string
	Missing []string
}

// IntegrityError - фатальная ошибка построения модели: строка ссылается на отсутствующий ключ измерения
type IntegrityError struct {
	Violations []IntegrityViolation
}

func (e *IntegrityError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		shown := v.Missing
		if len(shown) > maxReportedKeys {
			shown = shown[:maxReportedKeys]
		}
		parts = append(parts, fmt.Sprintf("%s.%s -> %s: %d отсутствующих ключей (%s)",
			v.Table, v.Column, v.Target, len(v.Missing), strings.Join(shown, ", ")))
	}
	return "нарушение ссылочной целостности: " + strings.Join(parts, "; ")
}

type integrityChecker struct {
	violations []IntegrityViolation
}

// require проверяет, что все ключи присутствуют в known; отсутствующие сохраняются без повторов и по возрастанию
func (c *integrityChecker) require(table, column, target string, keys []string, known map[string]bool) {
	missingSet := make(map[string]bool)
	for _, key := range keys {
		if !known[key] {
			missingSet[key] = true
		}
	}
	if len(missingSet) == 0 {
		return
	}

	missing := make([]string, 0, len(missingSet))
	for key := range missingSet {
		missing = append(missing, key)
	}
	sort.Strings(missing)

	c.violations = append(c.violations, IntegrityViolation{
		Table:   table,
		Column:  column,
		Target:  target,
		Missing: missing,
	})
}

func (c *integrityChecker) err() error {
	if len(c.violations) == 0 {
		return nil
	}
	return &IntegrityError{Violations: c.violations}
}

// ValidateIntegrity проверяет, что каждый непустой внешний ключ фактов и агрегатов разрешается в свое измерение.
// unresolvedStageIDs - канонические ID этапов, на которые ссылаются интервалы, но которых нет среди этапов.
func ValidateIntegrity(data *models.TransformedData, workflowKeys map[string]bool, unresolvedStageIDs []string) error {
	checker := &integrityChecker{}

	if len(unresolvedStageIDs) > 0 {
		checker.require(models.TableFactTimeslices, "from_step_id/to_step_id", "WorkflowStage", unresolvedStageIDs, nil)
	}

	stageKeys := make(map[string]bool, len(data.Stages))
	for _, stage := range data.Stages {
		stageKeys[stage.StageKey] = true
	}
	dateKeys := make(map[string]bool, len(data.Dates))
	for _, date := range data.Dates {
		dateKeys[date.Date] = true
	}
	frameKeys := make(map[string]bool, len(data.PlaybackFrames))
	for _, frame := range data.PlaybackFrames {
		frameKeys[fmt.Sprint(frame.FrameN)] = true
	}

	// Факты
	var factStages, factWorkflows, factDates []string
	for _, fact := range data.Timeslices {
		if fact.FromStageKey != nil {
			factStages = append(factStages, *fact.FromStageKey)
		}
		if fact.ToStageKey != nil {
			factStages = append(factStages, *fact.ToStageKey)
		}
		if fact.WorkflowDefinitionKey != nil {
			factWorkflows = append(factWorkflows, *fact.WorkflowDefinitionKey)
		}
		if fact.ToDate != nil {
			factDates = append(factDates, *fact.ToDate)
		}
	}
	checker.require(models.TableFactTimeslices, "from_stage_key/to_stage_key", models.TableDimStage, factStages, stageKeys)
	checker.require(models.TableFactTimeslices, "Workflow Definition", "WorkflowDefinition", factWorkflows, workflowKeys)
	checker.require(models.TableFactTimeslices, "To Date", models.TableDimDate, factDates, dateKeys)

	// Измерения
	var dimWorkflowKeys, stageWorkflows, frameDates []string
	for _, workflow := range data.Workflows {
		dimWorkflowKeys = append(dimWorkflowKeys, workflow.WorkflowDefinitionKey)
	}
	for _, stage := range data.Stages {
		if stage.WorkflowDefinitionKey != nil {
			stageWorkflows = append(stageWorkflows, *stage.WorkflowDefinitionKey)
		}
	}
	for _, frame := range data.PlaybackFrames {
		frameDates = append(frameDates, frame.FrameDate)
	}
	checker.require(models.TableDimWorkflow, "workflow_definition_key", "WorkflowDefinition", dimWorkflowKeys, workflowKeys)
	checker.require(models.TableDimStage, "workflow_definition_key", "WorkflowDefinition", stageWorkflows, workflowKeys)
	checker.require(models.TableDimPlaybackFrame, "frame_date", models.TableDimDate, frameDates, dateKeys)

	// Агрегаты
	var occupancyStages, occupancyFrames []string
	for _, row := range data.StageOccupancy {
		occupancyStages = append(occupancyStages, row.StageKey)
		occupancyFrames = append(occupancyFrames, fmt.Sprint(row.FrameN))
	}
	checker.require(models.TableStageOccupancyHourly, "stage_key", models.TableDimStage, occupancyStages, stageKeys)
	checker.require(models.TableStageOccupancyHourly, "frame_n", models.TableDimPlaybackFrame, occupancyFrames, frameKeys)

	var throughputStages, throughputDays []string
	for _, row := range data.StageThroughput {
		throughputStages = append(throughputStages, row.StageKey)
		throughputDays = append(throughputDays, row.BucketDay)
	}
	checker.require(models.TableStageThroughputDaily, "stage_key", models.TableDimStage, throughputStages, stageKeys)
	checker.require(models.TableStageThroughputDaily, "bucket_day", models.TableDimDate, throughputDays, dateKeys)

	return checker.err()
}
