package transform

import (
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata" // опорный часовой пояс не должен зависеть от базы зон хоста
)

// DefaultReferenceTimeZone - часовой пояс, в котором считаются календарные дни
const DefaultReferenceTimeZone = "America/Los_Angeles"

const (
	isoMillisLayout    = "2006-01-02T15:04:05.000Z"
	dayLabelLayout     = "2006-01-02T00:00:00.000Z"
	snapshotLabelShape = "2006-01-02 15:04"
)

// Дата начала отсчета OLE Automation (30.12.1899, UTC)
var oleAutomationEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadReferenceLocation загружает опорный часовой пояс (пустое имя - пояс по умолчанию)
func LoadReferenceLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultReferenceTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("ошибка при загрузке часового пояса %q: %w", name, err)
	}
	return loc, nil
}

// parseTimestamp разбирает ISO-8601 строку; пустые и некорректные значения считаются отсутствующими.
// Значения без смещения трактуются как UTC.
func parseTimestamp(value *string) (time.Time, bool) {
	if value == nil {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(*value)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// firstPresent возвращает первое непустое значение (без проверки формата)
func firstPresent(values ...*string) *string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return v
		}
	}
	return nil
}

// firstParseable возвращает первую успешно разобранную метку времени
func firstParseable(values ...*string) (time.Time, bool) {
	for _, v := range values {
		if t, ok := parseTimestamp(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func isoTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillisLayout)
}

// dayLabel возвращает календарный день метки в опорном поясе в виде YYYY-MM-DDT00:00:00.000Z
func dayLabel(t time.Time, loc *time.Location) string {
	return civilDay(t, loc).Format(dayLabelLayout)
}

// civilDay возвращает полночь UTC календарного дня метки в опорном поясе
func civilDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateKey(day time.Time) int {
	return day.Year()*10000 + int(day.Month())*100 + day.Day()
}

func snapshotLabel(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(snapshotLabelShape)
}

// oleSerial переводит метку в дробное число дней от эпохи OLE Automation
func oleSerial(t time.Time) float64 {
	return float64(t.Sub(oleAutomationEpoch).Milliseconds()) / float64((24 * time.Hour).Milliseconds())
}

// roundHalfUp округляет половины в сторону +∞
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func pad2(n int) string {
	return fmt.Sprintf("%02d", n)
}
