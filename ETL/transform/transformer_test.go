package transform

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

func ptr[T any](v T) *T {
	return &v
}

const (
	workflowSourceID = "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0"
	reviewSourceID   = "11111111-2222-3333-4444-555555555555"
	intakeSourceID   = "66666666-7777-8888-9999-000000000000"
)

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	spec, err := models.BuildModelSpec("test")
	require.NoError(t, err)
	loc, err := LoadReferenceLocation("")
	require.NoError(t, err)
	return NewTransformer(spec, loc, utils.NewDiscardLogger())
}

const testWorkflowID = "workflow_definition_" + workflowSourceID

func timeslice(id, record string, from, to, started, ended *string) models.Timeslice {
	return models.Timeslice{
		ID:                   id,
		WorkflowDefinitionID: ptr(testWorkflowID),
		SourceID:             record,
		FromStageID:          from,
		ToStageID:            to,
		StartedAt:            started,
		EndedAt:              ended,
	}
}

func withDuration(ts models.Timeslice, seconds float64) models.Timeslice {
	ts.DurationSeconds = &seconds
	return ts
}

// reviewScenario - три интервала на этапе Review в течение одного дня
func reviewScenario() *models.CanonicalData {
	workflowID := testWorkflowID
	return &models.CanonicalData{
		WorkflowDefinitions: []models.WorkflowDefinition{
			{ID: workflowID, SourceID: workflowSourceID, Title: ptr("Content Pipeline")},
		},
		WorkflowStages: []models.WorkflowStage{
			{ID: "workflow_stage_intake", WorkflowDefinitionID: ptr(workflowID), SourceID: intakeSourceID, StageNumber: ptr(1.0), StageLabel: ptr("Intake")},
			{ID: "workflow_stage_review", WorkflowDefinitionID: ptr(workflowID), SourceID: reviewSourceID, StageNumber: ptr(2.0), StageLabel: ptr("Review")},
		},
		Timeslices: []models.Timeslice{
			withDuration(timeslice("ts-1", "record-1", ptr("workflow_stage_review"), nil, ptr("2025-01-06T09:00:00Z"), ptr("2025-01-06T10:30:00Z")), 5400),
			timeslice("ts-2", "record-2", ptr("workflow_stage_review"), nil, ptr("2025-01-06T09:45:00Z"), ptr("2025-01-06T11:00:00Z")),
			timeslice("ts-3", "record-3", ptr("workflow_stage_review"), nil, ptr("2025-01-06T11:15:00Z"), ptr("2025-01-06T12:00:00Z")),
		},
	}
}

func TestTransformReviewScenarioOccupancy(t *testing.T) {
	transformer := newTestTransformer(t)

	data, stats, err := transformer.Transform(reviewScenario())
	require.NoError(t, err)
	require.NotNil(t, stats)

	require.Len(t, data.PlaybackFrames, 4)
	assert.Equal(t, "2025-01-06T09:00:00.000Z", data.PlaybackFrames[0].FrameDatetime)
	assert.Equal(t, "2025-01-06T12:00:00.000Z", data.PlaybackFrames[3].FrameDatetime)

	counts := make([]int, 0, len(data.StageOccupancy))
	for _, row := range data.StageOccupancy {
		assert.Equal(t, reviewSourceID, row.StageKey)
		assert.Equal(t, "Review", row.Stage)
		counts = append(counts, row.ItemCount)
	}
	assert.Equal(t, []int{1, 2, 1, 1}, counts)

	first := data.StageOccupancy[0]
	assert.Equal(t, 0, first.FrameN)
	assert.Equal(t, "2025-01-06T00:00:00.000Z", first.SnapshotDay)
	assert.Equal(t, "2025-01-06 01:00", first.SnapshotLabel)
	assert.Equal(t, first.ItemCount, first.Row()["Objective Count"])

	require.Len(t, data.StageThroughput, 1)
	throughput := data.StageThroughput[0]
	assert.Equal(t, "2025-01-06T00:00:00.000Z", throughput.BucketDay)
	assert.Equal(t, 20250106, throughput.BucketN)
	assert.Equal(t, 3, throughput.EntryCount)
	assert.Equal(t, 3, throughput.ExitCount)
	assert.Equal(t, 2, throughput.OccupancyPeak)
	assert.InDelta(t, 1.25, throughput.OccupancyAvg, 1e-9)
}

func TestTransformDimensions(t *testing.T) {
	transformer := newTestTransformer(t)

	data, _, err := transformer.Transform(reviewScenario())
	require.NoError(t, err)

	require.Len(t, data.Workflows, 1)
	assert.Equal(t, models.DimWorkflowRow{WorkflowDefinitionKey: workflowSourceID, WorkflowDefinition: "Content Pipeline"}, data.Workflows[0])

	require.Len(t, data.Stages, 2)
	assert.Equal(t, reviewSourceID, data.Stages[0].StageKey)
	assert.Equal(t, "02. Review", data.Stages[0].StageLabel)
	assert.Equal(t, intakeSourceID, data.Stages[1].StageKey)
	assert.Equal(t, "01. Intake", data.Stages[1].StageLabel)
	require.NotNil(t, data.Stages[0].WorkflowDefinitionKey)
	assert.Equal(t, workflowSourceID, *data.Stages[0].WorkflowDefinitionKey)
	assert.Contains(t, stageColorPalette, data.Stages[0].ColorHex)

	require.Len(t, data.Dates, 1)
	assert.Equal(t, models.DimDateRow{
		Date:       "2025-01-06T00:00:00.000Z",
		DateKey:    20250106,
		Year:       2025,
		MonthNum:   1,
		MonthName:  "Jan",
		DayOfMonth: 6,
		DayName:    "Mon",
	}, data.Dates[0])

	require.Len(t, data.Timeslices, 3)
	fact := data.Timeslices[0]
	assert.Equal(t, "ts-1", *fact.Name)
	assert.Equal(t, 90, *fact.MinutesDiff)
	assert.Equal(t, 2, *fact.FromStepN)
	assert.Nil(t, fact.ToStepN)
	assert.Nil(t, fact.ToStageKey)
	assert.Equal(t, "Review", *fact.FromWorkflowStep)
	assert.Equal(t, "2025-01-06T10:30:00.000Z", *fact.ToDateTime)
	assert.Equal(t, "2025-01-06T00:00:00.000Z", *fact.ToDate)
	assert.Equal(t, "record-1", fact.WorkflowRecord)
	assert.Equal(t, "Content Pipeline", fact.WorkflowDefinition)
	// 06.01.2025 09:00 UTC = 45663 дней + 0.375
	assert.InDelta(t, 45663.375, *fact.FromTime, 1e-9)
}

func TestTransformIsIdempotent(t *testing.T) {
	transformer := newTestTransformer(t)

	first, _, err := transformer.Transform(reviewScenario())
	require.NoError(t, err)
	second, _, err := transformer.Transform(reviewScenario())
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first.TableRows())
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second.TableRows())
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))

	// Порядок этапов во входных данных не влияет на измерения
	reversed := reviewScenario()
	reversed.WorkflowStages[0], reversed.WorkflowStages[1] = reversed.WorkflowStages[1], reversed.WorkflowStages[0]
	third, _, err := transformer.Transform(reversed)
	require.NoError(t, err)
	assert.Equal(t, first.Stages, third.Stages)
	assert.Equal(t, first.StageOccupancy, third.StageOccupancy)
}

func TestTransformUnresolvedStageIsFatal(t *testing.T) {
	transformer := newTestTransformer(t)

	input := reviewScenario()
	input.Timeslices[1].ToStageID = ptr("workflow_stage_missing")

	data, _, err := transformer.Transform(input)
	require.Error(t, err)
	assert.Nil(t, data)

	var integrityErr *IntegrityError
	require.True(t, errors.As(err, &integrityErr))
	require.NotEmpty(t, integrityErr.Violations)
	assert.Equal(t, []string{"workflow_stage_missing"}, integrityErr.Violations[0].Missing)
}

func TestTransformUnknownWorkflowIsFatal(t *testing.T) {
	transformer := newTestTransformer(t)

	input := reviewScenario()
	input.WorkflowStages[0].WorkflowDefinitionID = ptr("workflow_definition_deleted")

	_, _, err := transformer.Transform(input)
	var integrityErr *IntegrityError
	require.True(t, errors.As(err, &integrityErr))
	assert.Equal(t, models.TableDimStage, integrityErr.Violations[0].Table)
	assert.Equal(t, []string{UnknownWorkflowLabel}, integrityErr.Violations[0].Missing)
}

func TestTransformStageWithoutWorkflow(t *testing.T) {
	transformer := newTestTransformer(t)

	input := reviewScenario()
	input.WorkflowStages[0].WorkflowDefinitionID = nil

	data, _, err := transformer.Transform(input)
	require.NoError(t, err)

	for _, stage := range data.Stages {
		if stage.StageKey == intakeSourceID {
			assert.Nil(t, stage.WorkflowDefinitionKey)
			assert.Equal(t, UnknownWorkflowLabel, stage.WorkflowDefinition)
		}
	}
}

func TestTransformEntryEdges(t *testing.T) {
	transformer := newTestTransformer(t)

	input := reviewScenario()
	input.Timeslices = append(input.Timeslices,
		// Вход в процесс на этап 1
		timeslice("edge-1", "record-1", nil, ptr("workflow_stage_intake"), ptr("2025-01-06T08:00:00Z"), nil),
		// Переход без этапа "откуда" на этап 2
		timeslice("edge-2", "record-2", nil, ptr("workflow_stage_review"), ptr("2025-01-06T09:45:00Z"), nil),
		// Вход на этап 1 без меток времени
		timeslice("edge-3", "record-3", nil, ptr("workflow_stage_intake"), nil, nil),
		// Интервал без окончания
		timeslice("open", "record-4", ptr("workflow_stage_intake"), nil, ptr("2025-01-06T09:30:00Z"), nil),
	)

	data, stats, err := transformer.Transform(input)
	require.NoError(t, err)

	assert.Equal(t, DerivationStats{
		OccupancySkippedInvalidInterval:  1,
		EntryEdgeCounted:                 1,
		EntryEdgeSkippedMissingTimestamp: 1,
		NonStage1EntryEdgeObserved:       1,
	}, *stats)

	var intake *models.StageThroughputDailyRow
	for i := range data.StageThroughput {
		if data.StageThroughput[i].StageKey == intakeSourceID {
			intake = &data.StageThroughput[i]
		}
	}
	require.NotNil(t, intake)
	// Вход по ребру плюс вход по началу открытого интервала
	assert.Equal(t, 2, intake.EntryCount)
	assert.Equal(t, 0, intake.ExitCount)
	assert.Equal(t, 0, intake.OccupancyPeak)
}

func TestTransformEmptyInput(t *testing.T) {
	transformer := newTestTransformer(t)

	data, stats, err := transformer.Transform(&models.CanonicalData{})
	require.NoError(t, err)
	assert.Equal(t, DerivationStats{}, *stats)

	rows := data.TableRows()
	assert.Len(t, rows, 7)
	for name, tableRows := range rows {
		assert.Empty(t, tableRows, name)
	}
}

func TestDateDimensionUsesReferenceZone(t *testing.T) {
	loc, err := LoadReferenceLocation("America/Los_Angeles")
	require.NoError(t, err)
	proc := NewTimeDimensionProcessor(loc, utils.NewDiscardLogger())

	// 07:30 UTC 6 января - это еще 5 января в Лос-Анджелесе
	span := computeActivitySpan([]models.Timeslice{
		{StartedAt: ptr("2025-01-06T07:30:00Z"), EndedAt: ptr("2025-01-07T09:00:00Z")},
	})

	dates := proc.ProcessDateDimension(span)
	require.Len(t, dates, 3)
	assert.Equal(t, "2025-01-05T00:00:00.000Z", dates[0].Date)
	assert.Equal(t, "Sun", dates[0].DayName)
	assert.Equal(t, "2025-01-07T00:00:00.000Z", dates[2].Date)

	frames := proc.ProcessPlaybackFrames(span)
	assert.Len(t, frames, 27)
	assert.Equal(t, "2025-01-05T00:00:00.000Z", frames[0].FrameDate)
	assert.Equal(t, time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC).Format(isoMillisLayout), frames[0].FrameDatetime)
}

func TestTransformRejectsTableSetMismatch(t *testing.T) {
	spec, err := models.BuildModelSpec("test")
	require.NoError(t, err)
	spec.Tables = append(spec.Tables[:0:0], spec.Tables[1:]...)
	spec.Tables = append(spec.Tables, models.TableSpec{Name: "Extra"})

	transformer := NewTransformer(spec, time.UTC, utils.NewDiscardLogger())
	_, _, err = transformer.Transform(reviewScenario())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "отсутствуют [Extra]")
	assert.Contains(t, err.Error(), "лишние ["+models.TableFactTimeslices+"]")
}
