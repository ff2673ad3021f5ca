package processor

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
)

func TestWriteWorkbookWritesSheetPerTableInSpecOrder(t *testing.T) {
	spec := &models.DatasetSpec{
		Name: "Workflow Analytics Test",
		Tables: []models.TableSpec{
			{Name: models.TableDimStage, Columns: []models.ColumnSpec{
				{Name: "stage_key", DataType: models.ColumnString},
				{Name: "Stage Number", DataType: models.ColumnInt64},
				{Name: "workflow_definition_key", DataType: models.ColumnString},
			}},
			{Name: models.TableFactTimeslices, Columns: []models.ColumnSpec{
				{Name: "Minutes Diff", DataType: models.ColumnInt64},
				{Name: "From Time", DataType: models.ColumnDouble},
			}},
			{Name: models.TableDimDate, Columns: []models.ColumnSpec{
				{Name: "date_key", DataType: models.ColumnInt64},
			}},
		},
	}
	tables := map[string][]models.Row{
		models.TableDimStage: {
			{"stage_key": "s1", "Stage Number": 1, "workflow_definition_key": nil},
			{"stage_key": "s2", "Stage Number": json.Number("2"), "workflow_definition_key": "wf"},
		},
		models.TableFactTimeslices: {
			{"Minutes Diff": json.Number("15"), "From Time": json.Number("45663.375")},
		},
	}

	path := filepath.Join(t.TempDir(), "tables.xlsx")
	require.NoError(t, WriteWorkbook(path, spec, tables))

	book, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{models.TableDimStage, models.TableFactTimeslices, models.TableDimDate}, book.GetSheetList())

	stages, err := book.GetRows(models.TableDimStage)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"stage_key", "Stage Number", "workflow_definition_key"},
		{"s1", "1"},
		{"s2", "2", "wf"},
	}, stages)

	facts, err := book.GetRows(models.TableFactTimeslices)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Minutes Diff", "From Time"}, {"15", "45663.375"}}, facts)

	// таблица без строк получает только заголовок
	dates, err := book.GetRows(models.TableDimDate)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"date_key"}}, dates)
}

func TestWriteWorkbookFailsOnMissingDirectory(t *testing.T) {
	spec := &models.DatasetSpec{Tables: []models.TableSpec{{Name: "A"}}}

	err := WriteWorkbook(filepath.Join(t.TempDir(), "missing", "tables.xlsx"), spec, nil)
	assert.ErrorContains(t, err, "ошибка сохранения книги")
}
