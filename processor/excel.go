package processor

import (
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
)

const (
	defaultSheetName = "Sheet1"
	excelColumnWidth = 15
)

// WriteWorkbook сохраняет таблицы в книгу Excel: лист на таблицу в порядке описания набора,
// первая строка листа - имена колонок. Пустые значения записываются пустыми ячейками.
func WriteWorkbook(path string, spec *models.DatasetSpec, tables map[string][]models.Row) (err error) {
	book := excelize.NewFile()
	defer func() {
		if closeErr := book.Close(); err == nil {
			err = closeErr
		}
	}()

	headerStyle, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E0E0E0"}},
	})
	if err != nil {
		return fmt.Errorf("ошибка создания стиля заголовка: %w", err)
	}

	keepDefault := false
	for _, table := range spec.Tables {
		if table.Name == defaultSheetName {
			keepDefault = true
		}
		if err := writeSheet(book, table, tables[table.Name], headerStyle); err != nil {
			return fmt.Errorf("ошибка записи листа %s: %w", table.Name, err)
		}
	}

	if !keepDefault && len(spec.Tables) > 0 {
		if err := book.DeleteSheet(defaultSheetName); err != nil {
			return fmt.Errorf("ошибка удаления листа по умолчанию: %w", err)
		}
		book.SetActiveSheet(0)
	}

	if err := book.SaveAs(path); err != nil {
		return fmt.Errorf("ошибка сохранения книги %s: %w", path, err)
	}
	return nil
}

func writeSheet(book *excelize.File, table models.TableSpec, rows []models.Row, headerStyle int) error {
	if _, err := book.NewSheet(table.Name); err != nil {
		return err
	}
	if len(table.Columns) == 0 {
		return nil
	}

	header := make([]any, len(table.Columns))
	for i, column := range table.Columns {
		header[i] = column.Name
	}
	if err := book.SetSheetRow(table.Name, "A1", &header); err != nil {
		return err
	}
	if err := book.SetRowStyle(table.Name, 1, 1, headerStyle); err != nil {
		return err
	}

	lastColumn, err := excelize.ColumnNumberToName(len(table.Columns))
	if err != nil {
		return err
	}
	if err := book.SetColWidth(table.Name, "A", lastColumn, excelColumnWidth); err != nil {
		return err
	}

	for i, row := range rows {
		values := make([]any, len(table.Columns))
		for j, column := range table.Columns {
			values[j] = cellValue(row[column.Name])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(table.Name, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// cellValue приводит значение строки к типу, который Excel хранит как число или текст
func cellValue(value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return v
	}
}
