package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/metrics"
)

// State는 서킷 브레이커의 단계별 상태를 정의합니다
type State int

const (
	StateClosed    State = iota // 정상 동작
	StateWarning                // 실패 누적 경고
	StateThrottled              // 요청마다 고정 지연 주입
	StateBlocked                // 요청 차단 (우회 경로 제외)
)

// String은 State의 문자열 표현을 반환합니다
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateWarning:
		return "WARNING"
	case StateThrottled:
		return "THROTTLED"
	case StateBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// OpenError는 차단 상태의 브레이커가 요청을 거부했음을 나타냅니다
type OpenError struct {
	RetryAfter time.Duration // 재시도까지 남은 시간
}

// Error는 error 인터페이스를 구현합니다
func (e *OpenError) Error() string {
	return fmt.Sprintf("서킷 브레이커 차단 중 (재시도까지 %v)", e.RetryAfter.Round(time.Second))
}

// Config는 브레이커 설정을 정의합니다
type Config struct {
	WarningThreshold  int                    // WARNING 진입 실패 횟수
	ThrottleThreshold int                    // THROTTLED 진입 실패 횟수
	BlockThreshold    int                    // BLOCKED 진입 실패 횟수
	ThrottleDelay     time.Duration          // THROTTLED 상태의 요청 지연
	OpenTimeout       time.Duration          // BLOCKED에서 복구 시도까지의 시간
	Whitelist         []domain.OperationType // 차단 상태에서도 허용할 작업 유형
}

// DefaultConfig는 기본 브레이커 설정을 반환합니다
// 포지션 청산은 기본적으로 화이트리스트에 포함됩니다
func DefaultConfig() Config {
	return Config{
		WarningThreshold:  3,
		ThrottleThreshold: 5,
		BlockThreshold:    8,
		ThrottleDelay:     2 * time.Second,
		OpenTimeout:       60 * time.Second,
		Whitelist:         []domain.OperationType{domain.OpClosePosition},
	}
}

// Breaker는 단계별 서킷 브레이커입니다
// 실패가 누적되면 CLOSED → WARNING → THROTTLED → BLOCKED 순서로만 악화되고,
// OpenTimeout이 지나야 복구를 시도합니다. 차단 상태에서도 CRITICAL 우선순위
// 요청과 화이트리스트 작업은 항상 실행됩니다. 브레이커가 손실 포지션의
// 청산을 막는 일이 없도록 하기 위한 장치입니다.
type Breaker struct {
	cfg       Config
	whitelist map[domain.OperationType]struct{}
	logger    zerolog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// New는 새로운 브레이커를 생성합니다
func New(cfg Config, logger zerolog.Logger) *Breaker {
	whitelist := make(map[domain.OperationType]struct{}, len(cfg.Whitelist))
	for _, op := range cfg.Whitelist {
		whitelist[op] = struct{}{}
	}

	return &Breaker{
		cfg:       cfg,
		whitelist: whitelist,
		logger:    logger,
		state:     StateClosed,
	}
}

// Call은 fn을 브레이커를 거쳐 실행합니다
// 차단 상태에서 우회 대상이 아닌 요청은 *OpenError로 즉시 실패합니다
func (b *Breaker) Call(ctx context.Context, priority domain.Priority, op domain.OperationType, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	state := b.state

	switch state {
	case StateBlocked:
		if b.canBypass(priority, op) {
			b.mu.Unlock()
			metrics.BreakerBypasses.Inc()
			b.logger.Warn().
				Str("priority", priority.String()).
				Str("operation", string(op)).
				Msg("차단 상태에서 우회 실행")
			break
		}

		// 타임아웃이 지났으면 복구 확인을 위해 한 건을 통과시킵니다
		elapsed := time.Since(b.lastFailure)
		if elapsed < b.cfg.OpenTimeout {
			retryAfter := b.cfg.OpenTimeout - elapsed
			b.mu.Unlock()
			metrics.BreakerRejections.Inc()
			return &OpenError{RetryAfter: retryAfter}
		}
		b.mu.Unlock()
		b.logger.Info().Msg("차단 타임아웃 경과, 복구 확인 요청 실행")

	case StateThrottled:
		b.mu.Unlock()
		// 고정 지연을 주입해 거래소의 부하를 줄입니다
		timer := time.NewTimer(b.cfg.ThrottleDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

	default:
		b.mu.Unlock()
	}

	err := fn(ctx)
	if err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess(state)
	return nil
}

// State는 현재 브레이커 상태를 반환합니다
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures는 현재 누적 실패 횟수를 반환합니다
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// ForceReset은 브레이커를 CLOSED 상태로 강제 복구합니다 (운영자 개입용)
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	b.state = StateClosed
	b.failures = 0
	b.mu.Unlock()

	metrics.BreakerState.Set(float64(StateClosed))
	b.logger.Info().Msg("브레이커 수동 초기화")
}

// canBypass는 차단 상태에서 요청을 통과시킬 수 있는지 판별합니다
// 호출자가 락을 잡은 상태에서 호출해야 합니다
func (b *Breaker) canBypass(priority domain.Priority, op domain.OperationType) bool {
	if priority == domain.PriorityCritical {
		return true
	}
	_, ok := b.whitelist[op]
	return ok
}

// recordFailure는 실패를 기록하고 상태를 재계산합니다
// 상태는 실패 윈도우 안에서 단조 악화만 합니다
func (b *Breaker) recordFailure() {
	b.mu.Lock()
	b.failures++
	b.lastFailure = time.Now()

	next := b.stateForFailures()
	if next > b.state {
		b.logger.Warn().
			Str("from", b.state.String()).
			Str("to", next.String()).
			Int("failures", b.failures).
			Msg("브레이커 상태 악화")
		b.state = next
	}
	state := b.state
	b.mu.Unlock()

	metrics.BreakerState.Set(float64(state))
}

// recordSuccess는 성공을 기록합니다
// CLOSED/WARNING에서는 실패 카운터를 0으로 되돌리고,
// BLOCKED 복구 확인이 성공하면 CLOSED로 돌아갑니다
func (b *Breaker) recordSuccess(stateAtEntry State) {
	b.mu.Lock()

	switch {
	case b.state <= StateWarning:
		b.failures = 0
		b.state = StateClosed

	case b.state == StateThrottled:
		// 점진적으로만 완화하되, 타임아웃이 지났으면 완전히 복구합니다
		if b.failures > 0 {
			b.failures--
		}
		if time.Since(b.lastFailure) >= b.cfg.OpenTimeout {
			b.failures = 0
			b.state = StateClosed
		}

	case b.state == StateBlocked:
		// 우회 성공은 복구 근거가 아니며, 타임아웃 이후의 확인 성공만 복구합니다
		if stateAtEntry == StateBlocked && time.Since(b.lastFailure) >= b.cfg.OpenTimeout {
			b.failures = 0
			b.state = StateClosed
			b.logger.Info().Msg("브레이커 복구 확인 성공, CLOSED 전환")
		}
	}

	state := b.state
	b.mu.Unlock()

	metrics.BreakerState.Set(float64(state))
}

// stateForFailures는 누적 실패 횟수에 해당하는 상태를 반환합니다
// 호출자가 락을 잡은 상태에서 호출해야 합니다
func (b *Breaker) stateForFailures() State {
	switch {
	case b.failures >= b.cfg.BlockThreshold:
		return StateBlocked
	case b.failures >= b.cfg.ThrottleThreshold:
		return StateThrottled
	case b.failures >= b.cfg.WarningThreshold:
		return StateWarning
	default:
		return StateClosed
	}
}
