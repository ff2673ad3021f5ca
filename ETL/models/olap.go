package models

// Row представляет строку таблицы приемника: имя колонки -> скалярное значение (или nil)
type Row map[string]any

// DimWorkflowRow представляет измерение процессов
type DimWorkflowRow struct {
	WorkflowDefinitionKey string
	WorkflowDefinition    string
}

func (r DimWorkflowRow) Row() Row {
	return Row{
		"workflow_definition_key": r.WorkflowDefinitionKey,
		"workflow_definition":     r.WorkflowDefinition,
	}
}

// DimStageRow представляет измерение этапов
type DimStageRow struct {
	StageKey              string
	ColorHex              string
	WorkflowDefinitionKey *string
	WorkflowDefinition    string
	Stage                 string
	StageN                int
	StageLabel            string
}

func (r DimStageRow) Row() Row {
	return Row{
		"stage_key":               r.StageKey,
		"color_hex":               r.ColorHex,
		"workflow_definition_key": nullableString(r.WorkflowDefinitionKey),
		"workflow_definition":     r.WorkflowDefinition,
		"stage":                   r.Stage,
		"stage_n":                 r.StageN,
		"Stage Label":             r.StageLabel,
	}
}

// DimDateRow представляет календарное измерение (один день в опорном часовом поясе)
type DimDateRow struct {
	Date       string
	DateKey    int
	Year       int
	MonthNum   int
	MonthName  string
	DayOfMonth int
	DayName    string
}

func (r DimDateRow) Row() Row {
	return Row{
		"Date":         r.Date,
		"date_key":     r.DateKey,
		"year":         r.Year,
		"month_num":    r.MonthNum,
		"month_name":   r.MonthName,
		"day_of_month": r.DayOfMonth,
		"day_name":     r.DayName,
	}
}

// DimPlaybackFrameRow представляет почасовой кадр воспроизведения
type DimPlaybackFrameRow struct {
	FrameN        int
	FrameDatetime string
	FrameDate     string
}

func (r DimPlaybackFrameRow) Row() Row {
	return Row{
		"frame_n":        r.FrameN,
		"frame_datetime": r.FrameDatetime,
		"frame_date":     r.FrameDate,
	}
}

// FactTimesliceRow представляет факт интервала (одна строка на канонический Timeslice)
type FactTimesliceRow struct {
	Name               *string
	FromStepN          *int
	FromTime           *float64
	FromWorkflowStep   *string
	MinutesDiff        *int
	SliceLabel         *string
	ToStepN            *int
	ToTime             *float64
	ToWorkflowStep     *string
	WorkflowDefinition string
	WorkflowRecord     string
	ToDateTime         *string
	ToDate             *string
	FromStageKey       *string
	ToStageKey         *string

	// Ключ процесса не выгружается, но участвует в проверке ссылочной целостности
	WorkflowDefinitionKey *string
}

func (r FactTimesliceRow) Row() Row {
	return Row{
		"Name":                nullableString(r.Name),
		"From Event":          nil,
		"From Status":         nil,
		"From Step N":         nullableInt(r.FromStepN),
		"From Task Name":      nil,
		"From Task Page ID":   nil,
		"From Time":           nullableFloat(r.FromTime),
		"From Workflow Step":  nullableString(r.FromWorkflowStep),
		"Minutes Diff":        nullableInt(r.MinutesDiff),
		"Slice Label":         nullableString(r.SliceLabel),
		"To Event":            nil,
		"To Status":           nil,
		"To Step N":           nullableInt(r.ToStepN),
		"To Task Name":        nil,
		"To Task Page ID":     nil,
		"To Time":             nullableFloat(r.ToTime),
		"To Workflow Step":    nullableString(r.ToWorkflowStep),
		"Workflow Definition": r.WorkflowDefinition,
		"Workflow Record":     r.WorkflowRecord,
		"Workflow Type":       nil,
		"To DateTime":         nullableString(r.ToDateTime),
		"To Date":             nullableString(r.ToDate),
		"from_stage_key":      nullableString(r.FromStageKey),
		"to_stage_key":        nullableString(r.ToStageKey),
	}
}

// StageOccupancyHourlyRow представляет заполненность этапа в почасовом кадре
type StageOccupancyHourlyRow struct {
	FrameN             int
	SnapshotDT         string
	SnapshotDay        string
	SnapshotLabel      string
	WorkflowDefinition string
	Stage              string
	StageN             int
	StageKey           string
	ItemCount          int
}

func (r StageOccupancyHourlyRow) Row() Row {
	return Row{
		"frame_n":             r.FrameN,
		"snapshot_dt":         r.SnapshotDT,
		"snapshot_day":        r.SnapshotDay,
		"snapshot_label":      r.SnapshotLabel,
		"workflow_definition": r.WorkflowDefinition,
		"stage":               r.Stage,
		"stage_n":             r.StageN,
		"stage_key":           r.StageKey,
		"item_count":          r.ItemCount,
		"Objective Count":     r.ItemCount,
	}
}

// StageThroughputDailyRow представляет дневную пропускную способность этапа
type StageThroughputDailyRow struct {
	BucketDay          string
	BucketN            int
	WorkflowDefinition string
	Stage              string
	StageN             int
	StageKey           string
	EntryCount         int
	ExitCount          int
	OccupancyPeak      int
	OccupancyAvg       float64
}

func (r StageThroughputDailyRow) Row() Row {
	return Row{
		"bucket_day":          r.BucketDay,
		"bucket_n":            r.BucketN,
		"workflow_definition": r.WorkflowDefinition,
		"stage":               r.Stage,
		"stage_n":             r.StageN,
		"stage_key":           r.StageKey,
		"entry_count":         r.EntryCount,
		"exit_count":          r.ExitCount,
		"occupancy_peak":      r.OccupancyPeak,
		"occupancy_avg":       r.OccupancyAvg,
	}
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
