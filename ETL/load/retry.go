package load

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"
)

// Параметры повторов по умолчанию
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second

	maxJitter = 200 * time.Millisecond
)

// RetryDecision - решение о повторе неуспешного вызова
type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// RetryPolicy повторяет вызовы приемника, завершившиеся 429 или 5xx.
// Для 429 учитывается заголовок Retry-After, для 5xx используется экспоненциальная задержка с джиттером.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Clock      quartz.Clock

	// Jitter возвращает случайную добавку к задержке 5xx; nil означает равномерную в [0, 200ms]
	Jitter func() time.Duration

	// Notify вызывается перед каждым ожиданием повтора
	Notify func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy возвращает политику с параметрами по умолчанию
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Clock:      quartz.NewReal(),
	}
}

func (p *RetryPolicy) clock() quartz.Clock {
	if p.Clock == nil {
		return quartz.NewReal()
	}
	return p.Clock
}

// backoff возвращает min(base*2^attempt, max)
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	exp := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if exp >= float64(p.MaxDelay) || math.IsInf(exp, 1) {
		return p.MaxDelay
	}
	return time.Duration(exp)
}

func (p *RetryPolicy) jitter() time.Duration {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return time.Duration(math.Round(rand.Float64()*float64(maxJitter/time.Millisecond))) * time.Millisecond
}

// Decide решает, повторять ли вызов после ошибки err на попытке attempt (с нуля)
func (p *RetryPolicy) Decide(err error, attempt int) RetryDecision {
	status := StatusCode(err)

	switch {
	case status == http.StatusTooManyRequests:
		var retryAfter string
		if sinkErr, ok := asSinkError(err); ok {
			retryAfter = sinkErr.RetryAfter
		}
		if delay, ok := parseRetryAfter(retryAfter, p.clock().Now("retry", "retry_after")); ok {
			return RetryDecision{Retry: true, Delay: delay}
		}
		return RetryDecision{Retry: true, Delay: p.backoff(attempt)}

	case status >= 500 && status <= 599:
		return RetryDecision{Retry: true, Delay: p.backoff(attempt) + p.jitter()}

	default:
		return RetryDecision{Retry: false}
	}
}

// Do выполняет op, повторяя его согласно политике.
// Возвращает последнюю ошибку, если повторы исчерпаны или ошибка не повторяемая.
func (p *RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries {
			return err
		}

		decision := p.Decide(err, attempt)
		if !decision.Retry {
			return err
		}

		if p.Notify != nil {
			p.Notify(err, attempt+1, decision.Delay)
		}
		if decision.Delay > 0 {
			timer := p.clock().NewTimer(decision.Delay, "retry", "sleep")
			select {
			case <-ctx.Done():
				timer.Stop("retry", "sleep")
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// parseRetryAfter разбирает Retry-After как число секунд или как HTTP-дату
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(seconds) && !math.IsInf(seconds, 0) {
		ms := math.Round(seconds * 1000)
		return max(time.Duration(ms)*time.Millisecond, 0), true
	}

	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0), true
	}

	return 0, false
}

func asSinkError(err error) (*SinkError, bool) {
	var sinkErr *SinkError
	ok := errors.As(err, &sinkErr)
	return sinkErr, ok
}
