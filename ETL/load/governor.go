package load

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Лимиты push-набора данных Power BI по умолчанию
const (
	DefaultMaxRowsPerHour       = 1_000_000
	DefaultMaxRequestsPerMinute = 120
	DefaultMaxRequestsPerHour   = 1_200
)

// QuotaLimits задает потолки скользящих окон
type QuotaLimits struct {
	MaxRowsPerHour       int
	MaxRequestsPerMinute int
	MaxRequestsPerHour   int
}

// DefaultQuotaLimits возвращает лимиты приемника по умолчанию
func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{
		MaxRowsPerHour:       DefaultMaxRowsPerHour,
		MaxRequestsPerMinute: DefaultMaxRequestsPerMinute,
		MaxRequestsPerHour:   DefaultMaxRequestsPerHour,
	}
}

// Validate проверяет, что все лимиты положительны
func (l QuotaLimits) Validate() error {
	if l.MaxRowsPerHour <= 0 || l.MaxRequestsPerMinute <= 0 || l.MaxRequestsPerHour <= 0 {
		return fmt.Errorf("лимиты квот должны быть положительными: %+v", l)
	}
	return nil
}

// QuotaUsage - потребление в текущих окнах
type QuotaUsage struct {
	RowsLastHour       int `json:"rows_last_hour"`
	RequestsLastMinute int `json:"requests_last_minute"`
	RequestsLastHour   int `json:"requests_last_hour"`
}

type quotaEvent struct {
	at     time.Time
	amount int
}

// slidingWindow - монотонная очередь событий с индексом головы; события старше окна выталкиваются с головы
type slidingWindow struct {
	width  time.Duration
	events []quotaEvent
	head   int
	used   int
}

func (w *slidingWindow) push(at time.Time, amount int) {
	if amount <= 0 {
		return
	}
	w.events = append(w.events, quotaEvent{at: at, amount: amount})
	w.used += amount
}

// prune удаляет события, которые были не позже now-width
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.width)
	for w.head < len(w.events) && !w.events[w.head].at.After(cutoff) {
		w.used -= w.events[w.head].amount
		w.head++
	}

	// Уплотняем, когда голова ушла дальше половины
	if w.head > 0 && w.head*2 >= len(w.events) {
		w.events = append(w.events[:0], w.events[w.head:]...)
		w.head = 0
	}
}

// releaseDelay возвращает, через сколько освободится самое старое событие окна
func (w *slidingWindow) releaseDelay(now time.Time) (time.Duration, bool) {
	if w.head >= len(w.events) {
		return 0, false
	}
	return w.events[w.head].at.Add(w.width).Sub(now), true
}

// QuotaGovernor ограничивает объем строк и число запросов в скользящих окнах минуты и часа.
// Потребление учитывается после фактического вызова приемника через Record.
type QuotaGovernor struct {
	limits QuotaLimits
	clock  quartz.Clock

	mu             sync.Mutex
	rowsHour       slidingWindow
	requestsMinute slidingWindow
	requestsHour   slidingWindow
}

// NewQuotaGovernor создает новый экземпляр QuotaGovernor; nil-часы заменяются реальными
func NewQuotaGovernor(limits QuotaLimits, clock quartz.Clock) *QuotaGovernor {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &QuotaGovernor{
		limits:         limits,
		clock:          clock,
		rowsHour:       slidingWindow{width: time.Hour},
		requestsMinute: slidingWindow{width: time.Minute},
		requestsHour:   slidingWindow{width: time.Hour},
	}
}

func (g *QuotaGovernor) validate(rows, requests int) error {
	if rows < 0 || requests < 0 {
		return fmt.Errorf("некорректный запрос квоты: отрицательные значения (строк %d, запросов %d)", rows, requests)
	}
	if rows > g.limits.MaxRowsPerHour {
		return fmt.Errorf("запрошено строк (%d) больше лимита в час (%d)", rows, g.limits.MaxRowsPerHour)
	}
	if requests > g.limits.MaxRequestsPerMinute {
		return fmt.Errorf("запрошено запросов (%d) больше лимита в минуту (%d)", requests, g.limits.MaxRequestsPerMinute)
	}
	if requests > g.limits.MaxRequestsPerHour {
		return fmt.Errorf("запрошено запросов (%d) больше лимита в час (%d)", requests, g.limits.MaxRequestsPerHour)
	}
	return nil
}

func (g *QuotaGovernor) pruneLocked(now time.Time) {
	g.rowsHour.prune(now)
	g.requestsMinute.prune(now)
	g.requestsHour.prune(now)
}

// delayLocked возвращает минимальное ожидание, после которого хотя бы один превышенный потолок освободится
func (g *QuotaGovernor) delayLocked(now time.Time, rows, requests int) (time.Duration, error) {
	type check struct {
		window *slidingWindow
		need   int
		limit  int
	}
	checks := []check{
		{&g.rowsHour, rows, g.limits.MaxRowsPerHour},
		{&g.requestsMinute, requests, g.limits.MaxRequestsPerMinute},
		{&g.requestsHour, requests, g.limits.MaxRequestsPerHour},
	}

	exceeded := false
	var wait time.Duration
	found := false
	for _, c := range checks {
		if c.window.used+c.need <= c.limit {
			continue
		}
		exceeded = true
		d, ok := c.window.releaseDelay(now)
		if !ok {
			continue
		}
		d = max(ceilMillis(d), 0)
		if !found || d < wait {
			wait = d
			found = true
		}
	}

	if !exceeded {
		return 0, nil
	}
	if !found {
		return 0, fmt.Errorf("невозможно вычислить ожидание для превышенных лимитов")
	}
	return max(wait, time.Millisecond), nil
}

func ceilMillis(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return ((d + time.Millisecond - 1) / time.Millisecond) * time.Millisecond
}

// Delay возвращает, сколько нужно подождать перед отправкой rows строк за requests запросов (0 - можно сразу)
func (g *QuotaGovernor) Delay(rows, requests int) (time.Duration, error) {
	if err := g.validate(rows, requests); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now("governor", "delay")
	g.pruneLocked(now)
	return g.delayLocked(now, rows, requests)
}

// WaitForBudget блокируется, пока отправка не уложится во все окна.
// Запрос, который не уложится никогда, отклоняется сразу; отмена ctx прерывает ожидание.
func (g *QuotaGovernor) WaitForBudget(ctx context.Context, rows, requests int) error {
	for {
		wait, err := g.Delay(rows, requests)
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}

		timer := g.clock.NewTimer(wait, "governor", "wait")
		select {
		case <-ctx.Done():
			timer.Stop("governor", "wait")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Record учитывает отправленные строки и запросы в текущий момент
func (g *QuotaGovernor) Record(rows, requests int) error {
	if err := g.validate(rows, requests); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now("governor", "record")
	g.rowsHour.push(now, rows)
	g.requestsMinute.push(now, requests)
	g.requestsHour.push(now, requests)
	g.pruneLocked(now)
	return nil
}

// Usage возвращает текущее потребление в окнах
func (g *QuotaGovernor) Usage() QuotaUsage {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneLocked(g.clock.Now("governor", "usage"))
	return QuotaUsage{
		RowsLastHour:       g.rowsHour.used,
		RequestsLastMinute: g.requestsMinute.used,
		RequestsLastHour:   g.requestsHour.used,
	}
}

// Limits возвращает настроенные лимиты
func (g *QuotaGovernor) Limits() QuotaLimits {
	return g.limits
}
