package transform

import (
	"container/heap"
	"sort"
	"time"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// stageInterval - интервал пребывания записи на этапе, границы включительно (мс Unix)
type stageInterval struct {
	record string
	start  int64
	end    int64
}

// endHeap - min-куча активных интервалов по времени окончания
type endHeap []stageInterval

func (h endHeap) Len() int           { return len(h) }
func (h endHeap) Less(i, j int) bool { return h[i].end < h[j].end }
func (h endHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *endHeap) Push(x any) {
	*h = append(*h, x.(stageInterval))
}

func (h *endHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// sweepOccupancy считает для каждого момента frames (по возрастанию) число различных записей,
// интервалы которых покрывают момент. Интервалы сортируются на месте.
func sweepOccupancy(intervals []stageInterval, frames []int64) []int {
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].start != intervals[j].start {
			return intervals[i].start < intervals[j].start
		}
		return intervals[i].end < intervals[j].end
	})

	counts := make([]int, len(frames))
	active := &endHeap{}
	refs := make(map[string]int)
	next := 0

	for i, frame := range frames {
		// Открываем интервалы, начавшиеся не позже кадра
		for next < len(intervals) && intervals[next].start <= frame {
			heap.Push(active, intervals[next])
			refs[intervals[next].record]++
			next++
		}

		// Закрываем интервалы, закончившиеся строго до кадра
		for active.Len() > 0 && (*active)[0].end < frame {
			closed := heap.Pop(active).(stageInterval)
			refs[closed.record]--
			if refs[closed.record] == 0 {
				delete(refs, closed.record)
			}
		}

		counts[i] = len(refs)
	}

	return counts
}

// StageOccupancyProcessor отвечает за построение почасовой заполненности этапов
type StageOccupancyProcessor struct {
	location *time.Location
	logger   *utils.ETLLogger
}

// NewStageOccupancyProcessor создает новый экземпляр StageOccupancyProcessor
func NewStageOccupancyProcessor(location *time.Location, logger *utils.ETLLogger) *StageOccupancyProcessor {
	return &StageOccupancyProcessor{
		location: location,
		logger:   logger,
	}
}

// ProcessStageOccupancy строит строки заполненности для пар (кадр, этап) с ненулевым числом записей.
// Интервал относится к этапу "откуда"; интервалы без границ или с концом раньше начала пропускаются и учитываются в stats.
func (p *StageOccupancyProcessor) ProcessStageOccupancy(
	timeslices []models.Timeslice,
	frames []models.DimPlaybackFrameRow,
	stages []models.DimStageRow,
	c *catalog,
	stats *DerivationStats,
) []models.StageOccupancyHourlyRow {
	// 1. Группируем интервалы по этапам
	intervalsByStage := make(map[string][]stageInterval)
	for _, ts := range timeslices {
		stageKey, ok := c.resolveStage(ts.FromStageID)
		if !ok || stageKey == nil {
			continue
		}

		start, okStart := parseTimestamp(ts.StartedAt)
		end, okEnd := parseTimestamp(ts.EndedAt)
		if !okStart || !okEnd || end.Before(start) {
			stats.OccupancySkippedInvalidInterval++
			continue
		}

		intervalsByStage[*stageKey] = append(intervalsByStage[*stageKey], stageInterval{
			record: ts.SourceID,
			start:  start.UnixMilli(),
			end:    end.UnixMilli(),
		})
	}

	// 2. Моменты кадров по возрастанию
	instants := make([]int64, 0, len(frames))
	frameTimes := make([]time.Time, 0, len(frames))
	sweepFrames := make([]models.DimPlaybackFrameRow, 0, len(frames))
	for _, frame := range frames {
		t, ok := parseTimestamp(&frame.FrameDatetime)
		if !ok {
			continue
		}
		instants = append(instants, t.UnixMilli())
		frameTimes = append(frameTimes, t)
		sweepFrames = append(sweepFrames, frame)
	}

	// 3. Проход по каждому этапу в порядке измерения
	rows := make([]models.StageOccupancyHourlyRow, 0)
	for _, stage := range stages {
		intervals, ok := intervalsByStage[stage.StageKey]
		if !ok {
			continue
		}

		counts := sweepOccupancy(intervals, instants)
		for i, count := range counts {
			if count == 0 {
				continue
			}
			rows = append(rows, models.StageOccupancyHourlyRow{
				FrameN:             sweepFrames[i].FrameN,
				SnapshotDT:         sweepFrames[i].FrameDatetime,
				SnapshotDay:        sweepFrames[i].FrameDate,
				SnapshotLabel:      snapshotLabel(frameTimes[i], p.location),
				WorkflowDefinition: stage.WorkflowDefinition,
				Stage:              stage.Stage,
				StageN:             stage.StageN,
				StageKey:           stage.StageKey,
				ItemCount:          count,
			})
		}
	}

	// 4. Порядок: по кадру, затем по ключу этапа
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].FrameN != rows[j].FrameN {
			return rows[i].FrameN < rows[j].FrameN
		}
		return rows[i].StageKey < rows[j].StageKey
	})

	p.logger.Debug("Почасовая заполненность: %d строк", len(rows))
	return rows
}
