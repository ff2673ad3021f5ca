package models

// TransformedData содержит трансформированные данные для загрузки в приемник
type TransformedData struct {
	// Измерения
	Workflows      []DimWorkflowRow
	Stages         []DimStageRow
	Dates          []DimDateRow
	PlaybackFrames []DimPlaybackFrameRow

	// Факты
	Timeslices []FactTimesliceRow

	// Агрегаты
	StageOccupancy  []StageOccupancyHourlyRow
	StageThroughput []StageThroughputDailyRow
}

// TableRows возвращает строки всех таблиц, сгруппированные по имени таблицы
func (d *TransformedData) TableRows() map[string][]Row {
	return map[string][]Row{
		TableFactTimeslices:       toRows(d.Timeslices),
		TableDimWorkflow:          toRows(d.Workflows),
		TableDimStage:             toRows(d.Stages),
		TableDimDate:              toRows(d.Dates),
		TableDimPlaybackFrame:     toRows(d.PlaybackFrames),
		TableStageOccupancyHourly: toRows(d.StageOccupancy),
		TableStageThroughputDaily: toRows(d.StageThroughput),
	}
}

type rowSource interface {
	Row() Row
}

func toRows[T rowSource](items []T) []Row {
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, item.Row())
	}
	return rows
}
