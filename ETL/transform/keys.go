package transform

import (
	"encoding/binary"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
)

// UnknownWorkflowLabel подставляется, когда этап или интервал не привязан к процессу
const UnknownWorkflowLabel = "workflow_definition_unknown"

// Палитра цветов этапов
var stageColorPalette = []string{
	"#FF68A0", "#FF6C8B", "#FF7076", "#FF735F", "#FF7643", "#FF7800",
	"#EF8600", "#E19000", "#D59800", "#C89F00", "#BBA500", "#ABAC00",
	"#98B300", "#7BBB00", "#3DC500", "#00C55B", "#00C380", "#00C197",
	"#00BFA8", "#00BDB6", "#00BBC3", "#00B9CF", "#00B7DD", "#00B4EC",
	"#0EAFFF", "#51A9FF", "#6DA4FF", "#829EFF", "#9398FF", "#A491FF",
	"#B688FF", "#CA7BFF", "#E365FF", "#FF41F7", "#FF56D2", "#FF61B7",
}

var (
	hyphenatedUUIDPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	compactUUIDPattern    = regexp.MustCompile(`[0-9a-f]{32}`)
)

// StageColorHex возвращает цвет этапа: BLAKE3(ключ), первые 4 байта big-endian по модулю размера палитры
func StageColorHex(stageKey string) string {
	digest := blake3.Sum256([]byte(stageKey))
	prefix := binary.BigEndian.Uint32(digest[:4])
	return stageColorPalette[prefix%uint32(len(stageColorPalette))]
}

// uuidFromStableID извлекает UUID, встроенный в стабильный идентификатор (workflow_stage_<hex> и т.п.)
func uuidFromStableID(value string) (string, bool) {
	lower := strings.ToLower(value)

	match := hyphenatedUUIDPattern.FindString(lower)
	if match == "" {
		match = compactUUIDPattern.FindString(lower)
	}
	if match == "" {
		return "", false
	}

	parsed, err := uuid.Parse(match)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// stageKeyOf возвращает ключ этапа: идентификатор источника, иначе UUID из стабильного ID, иначе сам стабильный ID
func stageKeyOf(stage models.WorkflowStage) string {
	if stage.SourceID != "" {
		return stage.SourceID
	}
	if key, ok := uuidFromStableID(stage.ID); ok {
		return key
	}
	return stage.ID
}

// catalog содержит индексы канонических объектов, общие для всех шагов трансформации
type catalog struct {
	workflowByID       map[string]models.WorkflowDefinition
	workflowLabelByKey map[string]string
	workflowKeys       map[string]bool

	stageKeyByID map[string]string
	stageByKey   map[string]models.WorkflowStage
}

func newCatalog(data *models.CanonicalData) *catalog {
	c := &catalog{
		workflowByID:       make(map[string]models.WorkflowDefinition, len(data.WorkflowDefinitions)),
		workflowLabelByKey: make(map[string]string, len(data.WorkflowDefinitions)),
		workflowKeys:       make(map[string]bool, len(data.WorkflowDefinitions)),
		stageKeyByID:       make(map[string]string, len(data.WorkflowStages)),
		stageByKey:         make(map[string]models.WorkflowStage, len(data.WorkflowStages)),
	}

	for _, def := range data.WorkflowDefinitions {
		c.workflowByID[def.ID] = def
		c.workflowKeys[def.SourceID] = true
		label := def.SourceID
		if def.Title != nil {
			label = *def.Title
		}
		c.workflowLabelByKey[def.SourceID] = label
	}

	for _, stage := range data.WorkflowStages {
		key := stageKeyOf(stage)
		c.stageKeyByID[stage.ID] = key
		c.stageByKey[key] = stage
	}

	return c
}

// resolveWorkflow возвращает ключ и подпись процесса по каноническому ID.
// Отсутствующий ID дает nil-ключ; неразрешимый ID дает ключ, который затем не пройдет проверку целостности.
func (c *catalog) resolveWorkflow(workflowID *string) (*string, string) {
	if workflowID == nil || *workflowID == "" {
		return nil, UnknownWorkflowLabel
	}

	var key string
	if def, ok := c.workflowByID[*workflowID]; ok {
		key = def.SourceID
		if def.Title != nil {
			return &key, *def.Title
		}
	} else if recovered, ok := uuidFromStableID(*workflowID); ok {
		key = recovered
	} else {
		key = UnknownWorkflowLabel
	}

	if label, ok := c.workflowLabelByKey[key]; ok {
		return &key, label
	}
	return &key, key
}

// resolveStage возвращает ключ этапа по каноническому ID; ok=false для неизвестного непустого ID
func (c *catalog) resolveStage(stageID *string) (key *string, ok bool) {
	if stageID == nil || *stageID == "" {
		return nil, true
	}
	resolved, found := c.stageKeyByID[*stageID]
	if !found {
		return nil, false
	}
	return &resolved, true
}

// stageNumberOrNil округляет порядковый номер этапа; отсутствующий номер остается nil
func (c *catalog) stageNumberOrNil(stageKey *string) *int {
	if stageKey == nil {
		return nil
	}
	stage, ok := c.stageByKey[*stageKey]
	if !ok || stage.StageNumber == nil {
		return nil
	}
	n := roundHalfUp(*stage.StageNumber)
	return &n
}

func (c *catalog) stageLabelOrNil(stageKey *string) *string {
	if stageKey == nil {
		return nil
	}
	stage, ok := c.stageByKey[*stageKey]
	if !ok {
		return nil
	}
	return stage.StageLabel
}

// normalizeStageNumber округляет номер этапа для измерения: минимум 1, по умолчанию 1
func normalizeStageNumber(value *float64) int {
	if value == nil {
		return 1
	}
	n := roundHalfUp(*value)
	if n < 1 {
		return 1
	}
	return n
}
