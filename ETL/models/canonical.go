package models

// WorkflowDefinition представляет определение процесса (канонический объект)
type WorkflowDefinition struct {
	ID             string  `json:"workflow_definition_id"`
	SourceID       string  `json:"source_page_id"`
	Title          *string `json:"page_title"`
	CreatedTime    *string `json:"created_time"`
	LastEditedTime *string `json:"last_edited_time"`
}

// WorkflowStage представляет этап процесса (канонический объект)
type WorkflowStage struct {
	ID                   string   `json:"workflow_stage_id"`
	WorkflowDefinitionID *string  `json:"workflow_definition_id"`
	SourceID             string   `json:"source_page_id"`
	StageNumber          *float64 `json:"stage_number"`
	StageLabel           *string  `json:"stage_label"`
	SortKey              string   `json:"sort_key"`
}

// Timeslice представляет интервал пребывания элемента на этапе (или переход между этапами)
type Timeslice struct {
	ID                   string   `json:"timeslice_id"`
	WorkflowDefinitionID *string  `json:"workflow_definition_id"`
	FromStageID          *string  `json:"from_step_id"`
	ToStageID            *string  `json:"to_step_id"`
	StartedAt            *string  `json:"started_at"`
	EndedAt              *string  `json:"ended_at"`
	DurationSeconds      *float64 `json:"duration_seconds"`
	SourceID             string   `json:"source_page_id"`
	CreatedTime          *string  `json:"created_time"`
	LastEditedTime       *string  `json:"last_edited_time"`
	Title                *string  `json:"page_title"`
}

// CanonicalData содержит канонические объекты, полученные от слоя нормализации
type CanonicalData struct {
	WorkflowDefinitions []WorkflowDefinition
	WorkflowStages      []WorkflowStage
	Timeslices          []Timeslice
}

// IsEmpty сообщает, нет ли во входных данных ни одного объекта
func (d *CanonicalData) IsEmpty() bool {
	return len(d.WorkflowDefinitions) == 0 && len(d.WorkflowStages) == 0 && len(d.Timeslices) == 0
}
