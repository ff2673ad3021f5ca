package transform

import (
	"time"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// activitySpan - минимальная и максимальная метки активности по всем интервалам
type activitySpan struct {
	min, max time.Time
	ok       bool
}

func computeActivitySpan(timeslices []models.Timeslice) activitySpan {
	var span activitySpan
	for _, ts := range timeslices {
		for _, candidate := range []*string{ts.StartedAt, ts.EndedAt, ts.LastEditedTime, ts.CreatedTime} {
			t, ok := parseTimestamp(candidate)
			if !ok {
				continue
			}
			if !span.ok || t.Before(span.min) {
				span.min = t
			}
			if !span.ok || t.After(span.max) {
				span.max = t
			}
			span.ok = true
		}
	}
	return span
}

// TimeDimensionProcessor отвечает за построение календарного измерения и почасовых кадров
type TimeDimensionProcessor struct {
	location *time.Location
	logger   *utils.ETLLogger
}

// NewTimeDimensionProcessor создает новый экземпляр TimeDimensionProcessor
func NewTimeDimensionProcessor(location *time.Location, logger *utils.ETLLogger) *TimeDimensionProcessor {
	return &TimeDimensionProcessor{
		location: location,
		logger:   logger,
	}
}

// ProcessDateDimension строит по одной строке на календарный день опорного пояса
// от первого до последнего дня активности включительно
func (p *TimeDimensionProcessor) ProcessDateDimension(span activitySpan) []models.DimDateRow {
	if !span.ok {
		return []models.DimDateRow{}
	}

	// Кадры начинаются с начала часа, поэтому первый день считаем от него
	first := civilDay(span.min.Truncate(time.Hour), p.location)
	last := civilDay(span.max, p.location)

	rows := make([]models.DimDateRow, 0)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		rows = append(rows, models.DimDateRow{
			Date:       day.Format(dayLabelLayout),
			DateKey:    dateKey(day),
			Year:       day.Year(),
			MonthNum:   int(day.Month()),
			MonthName:  day.Month().String()[:3],
			DayOfMonth: day.Day(),
			DayName:    day.Weekday().String()[:3],
		})
	}

	p.logger.Debug("Календарное измерение: %d дней (%s - %s)", len(rows), first.Format("2006-01-02"), last.Format("2006-01-02"))
	return rows
}

// ProcessPlaybackFrames строит почасовые кадры от начала часа минимальной метки до начала часа максимальной
func (p *TimeDimensionProcessor) ProcessPlaybackFrames(span activitySpan) []models.DimPlaybackFrameRow {
	if !span.ok {
		return []models.DimPlaybackFrameRow{}
	}

	first := span.min.Truncate(time.Hour)
	last := span.max.Truncate(time.Hour)

	rows := make([]models.DimPlaybackFrameRow, 0, int(last.Sub(first)/time.Hour)+1)
	frameN := 0
	for frame := first; !frame.After(last); frame = frame.Add(time.Hour) {
		rows = append(rows, models.DimPlaybackFrameRow{
			FrameN:        frameN,
			FrameDatetime: isoTimestamp(frame),
			FrameDate:     dayLabel(frame, p.location),
		})
		frameN++
	}

	p.logger.Debug("Измерение кадров: %d часов", len(rows))
	return rows
}
