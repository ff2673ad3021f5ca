package models

import (
	"fmt"
	"strings"
	"unicode"
)

// Имена таблиц набора данных в порядке их объявления
const (
	TableFactTimeslices       = "FactTimeslices"
	TableDimWorkflow          = "DimWorkflow"
	TableDimStage             = "DimStage"
	TableDimDate              = "DimDate"
	TableDimPlaybackFrame     = "DimPlaybackFrame"
	TableStageOccupancyHourly = "StageOccupancy_Hourly"
	TableStageThroughputDaily = "StageThroughput_Daily"
)

// Ограничения приемника на схему набора данных
const (
	MaxTables              = 75
	MaxColumnsPerTable     = 75
	MaxRelationships       = 75
	MaxNameLength          = 100
	DefaultRetentionPolicy = "None"
)

// Типы колонок
const (
	ColumnInt64    = "Int64"
	ColumnDouble   = "Double"
	ColumnBoolean  = "Boolean"
	ColumnString   = "String"
	ColumnDateTime = "DateTime"
)

// ColumnSpec описывает колонку таблицы
type ColumnSpec struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
}

// TableSpec описывает таблицу набора данных
type TableSpec struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

// RelationshipSpec описывает связь между таблицами
type RelationshipSpec struct {
	Name                   string `json:"name"`
	FromTable              string `json:"fromTable"`
	FromColumn             string `json:"fromColumn"`
	ToTable                string `json:"toTable"`
	ToColumn               string `json:"toColumn"`
	CrossFilteringBehavior string `json:"crossFilteringBehavior,omitempty"`
}

// DatasetSpec описывает набор данных приемника
type DatasetSpec struct {
	Name                   string             `json:"name"`
	DefaultRetentionPolicy string             `json:"-"`
	Tables                 []TableSpec        `json:"tables"`
	Relationships          []RelationshipSpec `json:"relationships,omitempty"`
}

// TableNames возвращает имена таблиц в порядке объявления
func (s *DatasetSpec) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		names = append(names, table.Name)
	}
	return names
}

// Table ищет таблицу по имени без учета регистра
func (s *DatasetSpec) Table(name string) (TableSpec, bool) {
	for _, table := range s.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return TableSpec{}, false
}

// BuildModelSpec строит спецификацию набора данных аналитической модели
func BuildModelSpec(datasetName string) (*DatasetSpec, error) {
	spec := &DatasetSpec{
		Name:                   datasetName,
		DefaultRetentionPolicy: DefaultRetentionPolicy,
		Tables: []TableSpec{
			{
				Name: TableFactTimeslices,
				Columns: []ColumnSpec{
					{"Name", ColumnString},
					{"From Event", ColumnString},
					{"From Status", ColumnString},
					{"From Step N", ColumnInt64},
					{"From Task Name", ColumnString},
					{"From Task Page ID", ColumnString},
					{"From Time", ColumnDouble},
					{"From Workflow Step", ColumnString},
					{"Minutes Diff", ColumnInt64},
					{"Slice Label", ColumnString},
					{"To Event", ColumnString},
					{"To Status", ColumnString},
					{"To Step N", ColumnInt64},
					{"To Task Name", ColumnString},
					{"To Task Page ID", ColumnString},
					{"To Time", ColumnDouble},
					{"To Workflow Step", ColumnString},
					{"Workflow Definition", ColumnString},
					{"Workflow Record", ColumnString},
					{"Workflow Type", ColumnString},
					{"To DateTime", ColumnDateTime},
					{"To Date", ColumnDateTime},
					{"from_stage_key", ColumnString},
					{"to_stage_key", ColumnString},
				},
			},
			{
				Name: TableDimWorkflow,
				Columns: []ColumnSpec{
					{"workflow_definition_key", ColumnString},
					{"workflow_definition", ColumnString},
				},
			},
			{
				Name: TableDimStage,
				Columns: []ColumnSpec{
					{"stage_key", ColumnString},
					{"color_hex", ColumnString},
					{"workflow_definition_key", ColumnString},
					{"workflow_definition", ColumnString},
					{"stage", ColumnString},
					{"stage_n", ColumnInt64},
					{"Stage Label", ColumnString},
				},
			},
			{
				Name: TableDimDate,
				Columns: []ColumnSpec{
					{"Date", ColumnDateTime},
					{"date_key", ColumnInt64},
					{"year", ColumnInt64},
					{"month_num", ColumnInt64},
					{"month_name", ColumnString},
					{"day_of_month", ColumnInt64},
					{"day_name", ColumnString},
				},
			},
			{
				Name: TableDimPlaybackFrame,
				Columns: []ColumnSpec{
					{"frame_n", ColumnInt64},
					{"frame_datetime", ColumnDateTime},
					{"frame_date", ColumnDateTime},
				},
			},
			{
				Name: TableStageOccupancyHourly,
				Columns: []ColumnSpec{
					{"frame_n", ColumnInt64},
					{"snapshot_dt", ColumnDateTime},
					{"snapshot_day", ColumnDateTime},
					{"snapshot_label", ColumnString},
					{"workflow_definition", ColumnString},
					{"stage", ColumnString},
					{"stage_n", ColumnInt64},
					{"stage_key", ColumnString},
					{"item_count", ColumnInt64},
					{"Objective Count", ColumnInt64},
				},
			},
			{
				Name: TableStageThroughputDaily,
				Columns: []ColumnSpec{
					{"bucket_day", ColumnDateTime},
					{"bucket_n", ColumnInt64},
					{"workflow_definition", ColumnString},
					{"stage", ColumnString},
					{"stage_n", ColumnInt64},
					{"stage_key", ColumnString},
					{"entry_count", ColumnInt64},
					{"exit_count", ColumnInt64},
					{"occupancy_peak", ColumnInt64},
					{"occupancy_avg", ColumnDouble},
				},
			},
		},
		Relationships: []RelationshipSpec{
			relationship(TableStageOccupancyHourly, "frame_n", TableDimPlaybackFrame, "frame_n"),
			relationship(TableStageOccupancyHourly, "stage_key", TableDimStage, "stage_key"),
			relationship(TableFactTimeslices, "from_stage_key", TableDimStage, "stage_key"),
			relationship(TableStageThroughputDaily, "stage_key", TableDimStage, "stage_key"),
			relationship(TableStageThroughputDaily, "bucket_day", TableDimDate, "Date"),
			relationship(TableDimPlaybackFrame, "frame_date", TableDimDate, "Date"),
			relationship(TableFactTimeslices, "To Date", TableDimDate, "Date"),
			relationship(TableDimStage, "workflow_definition_key", TableDimWorkflow, "workflow_definition_key"),
		},
	}

	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func relationship(fromTable, fromColumn, toTable, toColumn string) RelationshipSpec {
	return RelationshipSpec{
		Name:                   fmt.Sprintf("%s.%s__to__%s.%s", fromTable, fromColumn, toTable, toColumn),
		FromTable:              fromTable,
		FromColumn:             fromColumn,
		ToTable:                toTable,
		ToColumn:               toColumn,
		CrossFilteringBehavior: "OneDirection",
	}
}

var validCrossFiltering = map[string]bool{
	"OneDirection":   true,
	"BothDirections": true,
	"Automatic":      true,
}

// ValidateSpec проверяет спецификацию на соответствие ограничениям приемника
func ValidateSpec(spec *DatasetSpec) error {
	if spec == nil {
		return fmt.Errorf("некорректная спецификация: спецификация не задана")
	}
	if len(spec.Tables) > MaxTables {
		return fmt.Errorf("превышен лимит приемника: таблиц %d > %d", len(spec.Tables), MaxTables)
	}

	tableNames := make(map[string]bool)
	for _, table := range spec.Tables {
		if err := validateName("таблица", table.Name, ""); err != nil {
			return err
		}
		lower := strings.ToLower(table.Name)
		if tableNames[lower] {
			return fmt.Errorf("некорректная спецификация: дублируется таблица %q", table.Name)
		}
		tableNames[lower] = true

		if len(table.Columns) > MaxColumnsPerTable {
			return fmt.Errorf("превышен лимит приемника: колонок в %q %d > %d",
				table.Name, len(table.Columns), MaxColumnsPerTable)
		}

		columnNames := make(map[string]bool)
		for _, column := range table.Columns {
			if err := validateName("колонка", column.Name, table.Name); err != nil {
				return err
			}
			lowerColumn := strings.ToLower(column.Name)
			if columnNames[lowerColumn] {
				return fmt.Errorf("некорректная спецификация: дублируется колонка %q в таблице %q", column.Name, table.Name)
			}
			columnNames[lowerColumn] = true
		}
	}

	if len(spec.Relationships) > MaxRelationships {
		return fmt.Errorf("превышен лимит приемника: связей %d > %d", len(spec.Relationships), MaxRelationships)
	}

	for _, rel := range spec.Relationships {
		if rel.CrossFilteringBehavior != "" && !validCrossFiltering[rel.CrossFilteringBehavior] {
			return fmt.Errorf("некорректная спецификация: связь %s.%s -> %s.%s имеет неверный crossFilteringBehavior %q",
				rel.FromTable, rel.FromColumn, rel.ToTable, rel.ToColumn, rel.CrossFilteringBehavior)
		}

		fromTable, ok := spec.Table(rel.FromTable)
		if !ok {
			return fmt.Errorf("некорректная спецификация: связь ссылается на отсутствующую таблицу %q", rel.FromTable)
		}
		toTable, ok := spec.Table(rel.ToTable)
		if !ok {
			return fmt.Errorf("некорректная спецификация: связь ссылается на отсутствующую таблицу %q", rel.ToTable)
		}
		if !hasColumn(fromTable, rel.FromColumn) {
			return fmt.Errorf("некорректная спецификация: связь ссылается на отсутствующую колонку %q таблицы %q",
				rel.FromColumn, rel.FromTable)
		}
		if !hasColumn(toTable, rel.ToColumn) {
			return fmt.Errorf("некорректная спецификация: связь ссылается на отсутствующую колонку %q таблицы %q",
				rel.ToColumn, rel.ToTable)
		}
	}

	return nil
}

func validateName(kind, name, table string) error {
	context := ""
	if table != "" {
		context = fmt.Sprintf(" (таблица %q)", table)
	}
	if name == "" {
		return fmt.Errorf("некорректная спецификация: пустое имя (%s)%s", kind, context)
	}
	if name != strings.TrimSpace(name) {
		return fmt.Errorf("некорректная спецификация: имя %q (%s) содержит пробелы по краям%s", name, kind, context)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("некорректная спецификация: имя %q (%s) содержит управляющие символы%s", name, kind, context)
		}
	}
	if len([]rune(name)) > MaxNameLength {
		return fmt.Errorf("некорректная спецификация: имя %q (%s) длиннее %d символов%s", name, kind, MaxNameLength, context)
	}
	return nil
}

func hasColumn(table TableSpec, column string) bool {
	for _, c := range table.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}
