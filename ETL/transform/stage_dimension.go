package transform

import (
	"sort"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// StageDimensionProcessor отвечает за построение измерения этапов
type StageDimensionProcessor struct {
	logger *utils.ETLLogger
}

// NewStageDimensionProcessor создает новый экземпляр StageDimensionProcessor
func NewStageDimensionProcessor(logger *utils.ETLLogger) *StageDimensionProcessor {
	return &StageDimensionProcessor{logger: logger}
}

// ProcessStageDimension строит по одной строке на этап.
// Цвет, порядковый номер и подпись зависят только от входных данных.
func (p *StageDimensionProcessor) ProcessStageDimension(stages []models.WorkflowStage, c *catalog) []models.DimStageRow {
	byKey := make(map[string]models.DimStageRow, len(stages))

	for _, stage := range stages {
		stageKey := stageKeyOf(stage)
		workflowKey, workflowLabel := c.resolveWorkflow(stage.WorkflowDefinitionID)

		label := stageKey
		if stage.StageLabel != nil {
			label = *stage.StageLabel
		}
		stageN := normalizeStageNumber(stage.StageNumber)

		// При повторе ключа побеждает последний этап, как в индексе каталога
		byKey[stageKey] = models.DimStageRow{
			StageKey:              stageKey,
			ColorHex:              StageColorHex(stageKey),
			WorkflowDefinitionKey: workflowKey,
			WorkflowDefinition:    workflowLabel,
			Stage:                 label,
			StageN:                stageN,
			StageLabel:            pad2(stageN) + ". " + label,
		}
	}

	rows := make([]models.DimStageRow, 0, len(byKey))
	for _, row := range byKey {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].StageKey < rows[j].StageKey
	})

	p.logger.Debug("Измерение этапов: %d строк", len(rows))
	return rows
}
