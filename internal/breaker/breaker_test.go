package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/domain"
)

var errBoom = errors.New("거래소 응답 실패")

func testConfig() Config {
	return Config{
		WarningThreshold:  2,
		ThrottleThreshold: 4,
		BlockThreshold:    6,
		ThrottleDelay:     time.Millisecond,
		OpenTimeout:       100 * time.Millisecond,
		Whitelist:         []domain.OperationType{domain.OpClosePosition},
	}
}

func fail(ctx context.Context) error { return errBoom }
func ok(ctx context.Context) error   { return nil }

func failTimes(b *Breaker, n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		_ = b.Call(ctx, domain.PriorityNormal, domain.OpQueryMarket, fail)
	}
}

func TestStateEscalationOrder(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())

	tests := []struct {
		failures int
		want     State
	}{
		{1, StateClosed},
		{2, StateWarning},
		{4, StateThrottled},
		{6, StateBlocked},
	}

	total := 0
	for _, tt := range tests {
		failTimes(b, tt.failures-total)
		total = tt.failures
		if got := b.State(); got != tt.want {
			t.Errorf("실패 %d회 후 상태 = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestBlockedRejectsWithRetryAfter(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())
	failTimes(b, 6)

	err := b.Call(context.Background(), domain.PriorityNormal, domain.OpQueryMarket, ok)

	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("차단 상태에서 err = %v, want *OpenError", err)
	}
	if openErr.RetryAfter <= 0 || openErr.RetryAfter > 100*time.Millisecond {
		t.Errorf("RetryAfter = %v, (0, 100ms] 범위여야 함", openErr.RetryAfter)
	}
}

func TestBlockedAllowsCriticalPriority(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())
	failTimes(b, 6)

	executed := false
	err := b.Call(context.Background(), domain.PriorityCritical, domain.OpQueryMarket, func(ctx context.Context) error {
		executed = true
		return nil
	})

	if err != nil {
		t.Fatalf("CRITICAL 요청이 차단됨: %v", err)
	}
	if !executed {
		t.Error("CRITICAL 요청의 fn이 실행되지 않음")
	}

	// 우회 성공은 복구 근거가 아닙니다
	if got := b.State(); got != StateBlocked {
		t.Errorf("우회 성공 후 상태 = %v, want BLOCKED 유지", got)
	}
}

func TestBlockedAllowsWhitelistedOperation(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())
	failTimes(b, 6)

	executed := false
	err := b.Call(context.Background(), domain.PriorityNormal, domain.OpClosePosition, func(ctx context.Context) error {
		executed = true
		return nil
	})

	if err != nil {
		t.Fatalf("화이트리스트 작업이 차단됨: %v", err)
	}
	if !executed {
		t.Error("화이트리스트 작업의 fn이 실행되지 않음")
	}
}

func TestSuccessResetsCounterWhileWarning(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())
	failTimes(b, 2)

	if got := b.State(); got != StateWarning {
		t.Fatalf("사전 조건 실패: 상태 = %v, want WARNING", got)
	}

	if err := b.Call(context.Background(), domain.PriorityNormal, domain.OpQueryMarket, ok); err != nil {
		t.Fatalf("Call 실패: %v", err)
	}

	if got := b.State(); got != StateClosed {
		t.Errorf("성공 후 상태 = %v, want CLOSED", got)
	}
	if got := b.Failures(); got != 0 {
		t.Errorf("성공 후 실패 카운터 = %d, want 0", got)
	}
}

func TestBlockedRecoversAfterTimeout(t *testing.T) {
	cfg := testConfig()
	b := New(cfg, zerolog.Nop())
	failTimes(b, 6)

	// 타임아웃 경과 후 복구 확인 요청이 통과하고, 성공하면 CLOSED로 돌아갑니다
	time.Sleep(cfg.OpenTimeout + 10*time.Millisecond)

	if err := b.Call(context.Background(), domain.PriorityNormal, domain.OpQueryMarket, ok); err != nil {
		t.Fatalf("복구 확인 요청이 거부됨: %v", err)
	}

	if got := b.State(); got != StateClosed {
		t.Errorf("복구 확인 성공 후 상태 = %v, want CLOSED", got)
	}
}

func TestMonotonicWithinFailureWindow(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())
	failTimes(b, 4)

	if got := b.State(); got != StateThrottled {
		t.Fatalf("사전 조건 실패: 상태 = %v, want THROTTLED", got)
	}

	// THROTTLED에서 성공 한 번으로는 CLOSED로 돌아가지 않습니다
	if err := b.Call(context.Background(), domain.PriorityNormal, domain.OpQueryMarket, ok); err != nil {
		t.Fatalf("Call 실패: %v", err)
	}
	if got := b.State(); got != StateThrottled {
		t.Errorf("성공 1회 후 상태 = %v, want THROTTLED 유지", got)
	}
}

func TestForceReset(t *testing.T) {
	b := New(testConfig(), zerolog.Nop())
	failTimes(b, 6)

	b.ForceReset()

	if got := b.State(); got != StateClosed {
		t.Errorf("ForceReset 후 상태 = %v, want CLOSED", got)
	}
	if got := b.Failures(); got != 0 {
		t.Errorf("ForceReset 후 실패 카운터 = %d, want 0", got)
	}
}

func TestThrottledInjectsDelay(t *testing.T) {
	cfg := testConfig()
	cfg.ThrottleDelay = 50 * time.Millisecond
	b := New(cfg, zerolog.Nop())
	failTimes(b, 4)

	start := time.Now()
	if err := b.Call(context.Background(), domain.PriorityNormal, domain.OpQueryMarket, ok); err != nil {
		t.Fatalf("Call 실패: %v", err)
	}

	if elapsed := time.Since(start); elapsed < cfg.ThrottleDelay {
		t.Errorf("THROTTLED 요청이 %v만에 실행됨, 최소 %v 지연 필요", elapsed, cfg.ThrottleDelay)
	}
}
