package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/assist-by/sentinel/internal/metrics"
)

// Limiter는 슬라이딩 윈도우 방식의 요청 속도 제한기입니다
// 최근 timeWindow 안의 요청 수가 maxRequests를 넘지 않도록 호출자를 지연시킵니다
// 에러를 반환하는 경우는 컨텍스트 취소뿐이며, 그 외에는 기다릴 뿐 실패하지 않습니다
type Limiter struct {
	maxRequests int
	timeWindow  time.Duration

	mu  sync.Mutex
	log []time.Time // 윈도우 안의 요청 시각 (오래된 것부터)
}

// NewLimiter는 새로운 속도 제한기를 생성합니다
func NewLimiter(maxRequests int, timeWindow time.Duration) *Limiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	if timeWindow <= 0 {
		timeWindow = time.Minute
	}

	return &Limiter{
		maxRequests: maxRequests,
		timeWindow:  timeWindow,
		log:         make([]time.Time, 0, maxRequests),
	}
}

// Acquire는 요청 슬롯을 확보할 때까지 대기합니다
// 슬롯이 확보되면 요청 시각을 기록하고 nil을 반환합니다
func (l *Limiter) Acquire(ctx context.Context) error {
	waited := time.Duration(0)

	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)

		if len(l.log) < l.maxRequests {
			l.log = append(l.log, now)
			l.mu.Unlock()

			if waited > 0 {
				metrics.RateLimitWaits.Inc()
				metrics.RateLimitWaitSeconds.Observe(waited.Seconds())
			}
			return nil
		}

		// 가장 오래된 요청이 윈도우를 벗어날 때까지 대기
		wait := l.log[0].Add(l.timeWindow).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			waited += wait
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// InFlight는 현재 윈도우 안에 기록된 요청 수를 반환합니다
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(time.Now())
	return len(l.log)
}

// prune은 윈도우를 벗어난 오래된 요청 기록을 제거합니다
// 호출자가 락을 잡은 상태에서 호출해야 합니다
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.timeWindow)
	i := 0
	for i < len(l.log) && !l.log[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.log = append(l.log[:0], l.log[i:]...)
	}
}
