package transform

import (
	"sort"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// WorkflowDimensionProcessor отвечает за построение измерения процессов
type WorkflowDimensionProcessor struct {
	logger *utils.ETLLogger
}

// NewWorkflowDimensionProcessor создает новый экземпляр WorkflowDimensionProcessor
func NewWorkflowDimensionProcessor(logger *utils.ETLLogger) *WorkflowDimensionProcessor {
	return &WorkflowDimensionProcessor{logger: logger}
}

// ProcessWorkflowDimension строит по одной строке на определение процесса, отсортированные по ключу
func (p *WorkflowDimensionProcessor) ProcessWorkflowDimension(c *catalog) []models.DimWorkflowRow {
	rows := make([]models.DimWorkflowRow, 0, len(c.workflowKeys))
	for key := range c.workflowKeys {
		rows = append(rows, models.DimWorkflowRow{
			WorkflowDefinitionKey: key,
			WorkflowDefinition:    c.workflowLabelByKey[key],
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].WorkflowDefinitionKey < rows[j].WorkflowDefinitionKey
	})

	p.logger.Debug("Измерение процессов: %d строк", len(rows))
	return rows
}
