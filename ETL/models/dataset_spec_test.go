package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildModelSpec(t *testing.T) {
	spec, err := BuildModelSpec("Workflow Analytics")
	require.NoError(t, err)

	assert.Equal(t, "Workflow Analytics", spec.Name)
	assert.Equal(t, []string{
		TableFactTimeslices,
		TableDimWorkflow,
		TableDimStage,
		TableDimDate,
		TableDimPlaybackFrame,
		TableStageOccupancyHourly,
		TableStageThroughputDaily,
	}, spec.TableNames())
	assert.Len(t, spec.Relationships, 8)

	fact, ok := spec.Table("facttimeslices")
	require.True(t, ok)
	assert.Len(t, fact.Columns, 24)

	for _, rel := range spec.Relationships {
		assert.Equal(t, "OneDirection", rel.CrossFilteringBehavior)
		assert.Contains(t, rel.Name, "__to__")
	}
}

func TestBuildModelSpecMatchesRowColumns(t *testing.T) {
	spec, err := BuildModelSpec("ds")
	require.NoError(t, err)

	samples := map[string]Row{
		TableFactTimeslices:       FactTimesliceRow{}.Row(),
		TableDimWorkflow:          DimWorkflowRow{}.Row(),
		TableDimStage:             DimStageRow{}.Row(),
		TableDimDate:              DimDateRow{}.Row(),
		TableDimPlaybackFrame:     DimPlaybackFrameRow{}.Row(),
		TableStageOccupancyHourly: StageOccupancyHourlyRow{}.Row(),
		TableStageThroughputDaily: StageThroughputDailyRow{}.Row(),
	}

	for _, table := range spec.Tables {
		row, ok := samples[table.Name]
		require.True(t, ok, table.Name)
		assert.Len(t, row, len(table.Columns), table.Name)
		for _, column := range table.Columns {
			_, present := row[column.Name]
			assert.True(t, present, "%s.%s", table.Name, column.Name)
		}
	}
}

func TestValidateSpec(t *testing.T) {
	valid := func() *DatasetSpec {
		return &DatasetSpec{
			Name: "ds",
			Tables: []TableSpec{
				{Name: "A", Columns: []ColumnSpec{{"id", ColumnString}}},
				{Name: "B", Columns: []ColumnSpec{{"a_id", ColumnString}}},
			},
			Relationships: []RelationshipSpec{relationship("B", "a_id", "A", "id")},
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *DatasetSpec)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(s *DatasetSpec) {},
		},
		{
			name:    "duplicate table case-insensitive",
			mutate:  func(s *DatasetSpec) { s.Tables[1].Name = "a" },
			wantErr: "дублируется таблица",
		},
		{
			name: "duplicate column",
			mutate: func(s *DatasetSpec) {
				s.Tables[0].Columns = append(s.Tables[0].Columns, ColumnSpec{"ID", ColumnInt64})
			},
			wantErr: "дублируется колонка",
		},
		{
			name:    "leading whitespace",
			mutate:  func(s *DatasetSpec) { s.Tables[0].Name = " A" },
			wantErr: "пробелы",
		},
		{
			name:    "control character",
			mutate:  func(s *DatasetSpec) { s.Tables[0].Columns[0].Name = "i\td" },
			wantErr: "управляющие",
		},
		{
			name:    "name too long",
			mutate:  func(s *DatasetSpec) { s.Tables[0].Name = strings.Repeat("x", MaxNameLength+1) },
			wantErr: "длиннее",
		},
		{
			name:    "missing relationship table",
			mutate:  func(s *DatasetSpec) { s.Relationships[0].ToTable = "C" },
			wantErr: "отсутствующую таблицу",
		},
		{
			name:    "missing relationship column",
			mutate:  func(s *DatasetSpec) { s.Relationships[0].FromColumn = "nope" },
			wantErr: "отсутствующую колонку",
		},
		{
			name:    "bad cross filtering",
			mutate:  func(s *DatasetSpec) { s.Relationships[0].CrossFilteringBehavior = "Sideways" },
			wantErr: "crossFilteringBehavior",
		},
		{
			name: "too many tables",
			mutate: func(s *DatasetSpec) {
				for i := 0; i < MaxTables; i++ {
					s.Tables = append(s.Tables, TableSpec{Name: "T" + strings.Repeat("t", i)})
				}
			},
			wantErr: "таблиц",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid()
			tt.mutate(spec)
			err := ValidateSpec(spec)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
