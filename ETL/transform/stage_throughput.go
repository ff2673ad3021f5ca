package transform

import (
	"sort"
	"time"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// DerivationStats содержит счетчики аномалий данных; они логируются и никогда не прерывают построение
type DerivationStats struct {
	OccupancySkippedInvalidInterval  int `json:"occupancy_skipped_missing_or_invalid_interval"`
	EntryEdgeCounted                 int `json:"entry_edge_counted"`
	EntryEdgeSkippedMissingTimestamp int `json:"entry_edge_skipped_missing_timestamp"`
	NonStage1EntryEdgeObserved       int `json:"non_stage1_entry_edge_observed"`
}

type dayStageKey struct {
	day      string
	stageKey string
}

type dailyCounts struct {
	entries int
	exits   int
}

type dailyOccupancy struct {
	peak  int
	total int
	count int
}

// StageThroughputProcessor отвечает за построение дневной пропускной способности этапов
type StageThroughputProcessor struct {
	location *time.Location
	logger   *utils.ETLLogger
}

// NewStageThroughputProcessor создает новый экземпляр StageThroughputProcessor
func NewStageThroughputProcessor(location *time.Location, logger *utils.ETLLogger) *StageThroughputProcessor {
	return &StageThroughputProcessor{
		location: location,
		logger:   logger,
	}
}

// ProcessStageThroughput считает входы и выходы по дням и этапам и сворачивает почасовую заполненность
// в дневные пик и среднее. Выдаются только строки с ненулевой метрикой, по возрастанию (день, этап).
func (p *StageThroughputProcessor) ProcessStageThroughput(
	timeslices []models.Timeslice,
	occupancy []models.StageOccupancyHourlyRow,
	stages []models.DimStageRow,
	c *catalog,
	stats *DerivationStats,
) []models.StageThroughputDailyRow {
	counts := make(map[dayStageKey]*dailyCounts)
	increment := func(day, stageKey string, entry bool) {
		key := dayStageKey{day: day, stageKey: stageKey}
		current, ok := counts[key]
		if !ok {
			current = &dailyCounts{}
			counts[key] = current
		}
		if entry {
			current.entries++
		} else {
			current.exits++
		}
	}

	// 1. Вход и выход по границам интервала этапа "откуда", каждая граница независимо
	for _, ts := range timeslices {
		fromKey, ok := c.resolveStage(ts.FromStageID)
		if ok && fromKey != nil {
			if start, ok := parseTimestamp(ts.StartedAt); ok {
				increment(dayLabel(start, p.location), *fromKey, true)
			}
			if end, ok := parseTimestamp(ts.EndedAt); ok {
				increment(dayLabel(end, p.location), *fromKey, false)
			}
		}

		// 2. Вход в процесс: переход без этапа "откуда" на этап с номером 1
		if ts.FromStageID != nil || ts.ToStageID == nil {
			continue
		}
		toKey, ok := c.resolveStage(ts.ToStageID)
		if !ok || toKey == nil {
			continue
		}
		toNumber := c.stageNumberOrNil(toKey)
		if toNumber == nil || *toNumber != 1 {
			stats.NonStage1EntryEdgeObserved++
			continue
		}
		eventTime, ok := firstParseable(ts.EndedAt, ts.StartedAt, ts.LastEditedTime, ts.CreatedTime)
		if !ok {
			stats.EntryEdgeSkippedMissingTimestamp++
			continue
		}
		increment(dayLabel(eventTime, p.location), *toKey, true)
		stats.EntryEdgeCounted++
	}

	// 3. Свертка почасовой заполненности по дням
	occupancyByDay := make(map[dayStageKey]*dailyOccupancy)
	for _, row := range occupancy {
		key := dayStageKey{day: row.SnapshotDay, stageKey: row.StageKey}
		current, ok := occupancyByDay[key]
		if !ok {
			current = &dailyOccupancy{}
			occupancyByDay[key] = current
		}
		if row.ItemCount > current.peak {
			current.peak = row.ItemCount
		}
		current.total += row.ItemCount
		current.count++
	}

	// 4. Объединяем ключи и сортируем
	keySet := make(map[dayStageKey]bool, len(counts)+len(occupancyByDay))
	for key := range counts {
		keySet[key] = true
	}
	for key := range occupancyByDay {
		keySet[key] = true
	}
	keys := make([]dayStageKey, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].stageKey < keys[j].stageKey
	})

	stageByKey := make(map[string]models.DimStageRow, len(stages))
	for _, stage := range stages {
		stageByKey[stage.StageKey] = stage
	}

	// 5. Формируем строки
	rows := make([]models.StageThroughputDailyRow, 0, len(keys))
	for _, key := range keys {
		stage, ok := stageByKey[key.stageKey]
		if !ok {
			continue
		}
		day, err := time.Parse("2006-01-02", key.day[:min(len(key.day), 10)])
		if err != nil {
			continue
		}

		row := models.StageThroughputDailyRow{
			BucketDay:          key.day,
			BucketN:            dateKey(day),
			WorkflowDefinition: stage.WorkflowDefinition,
			Stage:              stage.Stage,
			StageN:             stage.StageN,
			StageKey:           stage.StageKey,
		}
		if dc, ok := counts[key]; ok {
			row.EntryCount = dc.entries
			row.ExitCount = dc.exits
		}
		if o, ok := occupancyByDay[key]; ok && o.count > 0 {
			row.OccupancyPeak = o.peak
			row.OccupancyAvg = float64(o.total) / float64(o.count)
		}

		if row.EntryCount == 0 && row.ExitCount == 0 && row.OccupancyPeak == 0 && row.OccupancyAvg == 0 {
			continue
		}
		rows = append(rows, row)
	}

	p.logger.Debug("Дневная пропускная способность: %d строк", len(rows))
	return rows
}
