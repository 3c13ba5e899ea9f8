// internal/safety/controller.go
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
	"github.com/assist-by/sentinel/internal/feed"
	"github.com/assist-by/sentinel/internal/metrics"
	"github.com/assist-by/sentinel/internal/notification"
	"github.com/assist-by/sentinel/internal/position"
	"github.com/assist-by/sentinel/internal/store"
	"github.com/assist-by/sentinel/internal/strategy"
)

// 보호 청산 사유
const (
	ReasonCrossMargin = "cross_margin"
	ReasonTimeStop    = "time_stop"
	ReasonStrategy    = "strategy"
)

// Config는 안전 모니터 설정을 정의합니다
type Config struct {
	CheckInterval      time.Duration // 점검 주기
	MarginRatioLimit   float64       // 교차 마진 보호 발동 비율
	MarginCooldown     time.Duration // 교차 마진 보호 재발동 금지 시간
	MaxHoldingDuration time.Duration // 포지션 최대 보유 시간
	CloseMaxRetries    int           // 긴급 청산 재시도 횟수
	CloseBaseDelay     time.Duration // 긴급 청산 재시도 초기 대기
	SnapshotStaleAfter time.Duration // 스냅샷 신선도 기준
}

// DefaultConfig는 기본 안전 모니터 설정을 반환합니다
func DefaultConfig() Config {
	return Config{
		CheckInterval:      60 * time.Second,
		MarginRatioLimit:   0.85,
		MarginCooldown:     5 * time.Minute,
		MaxHoldingDuration: 24 * time.Hour,
		CloseMaxRetries:    3,
		CloseBaseDelay:     time.Second,
		SnapshotStaleAfter: 30 * time.Second,
	}
}

// Stats는 안전 모니터의 누적 통계입니다
type Stats struct {
	Checks                 int64 // 총 점검 횟수
	Closes                 int64 // 총 청산 횟수
	EmergencyCloses        int64 // 긴급 청산 횟수
	CrossMarginProtections int64 // 교차 마진 보호 발동 횟수
	TimeStops              int64 // 시간 기반 손절 횟수
}

// Controller는 보유 포지션을 주기적으로 점검하고 보호 규칙을 집행합니다
//
// 점검 순서:
//  1. 포지션 조회 (신선한 스냅샷 우선, 아니면 REST)
//  2. 진입 시각 장부 동기화
//  3. 교차 마진 보호: 마진 사용률 초과 시 최대 손실 포지션 청산
//  4. 시간 기반 손절: 보유 시간 초과 포지션 무조건 청산
//  5. 나머지 포지션은 전략 판단에 위임
//
// 긴급 청산은 독립 고루틴에서 실행되어 모니터가 중지되어도 완료까지 진행됩니다
type Controller struct {
	cfg      Config
	exch     exchange.Exchange
	executor position.Executor
	eval     strategy.Evaluator
	store    store.Store
	snapshot *feed.Snapshot
	notifier notification.Notifier
	logger   zerolog.Logger

	mu               sync.Mutex
	entryTimes       map[string]time.Time
	liquidating      map[string]struct{}
	states           map[string]domain.PositionState
	lastMarginAction time.Time
	stats            Stats

	stopCh  chan struct{}
	loopWG  sync.WaitGroup
	closeWG sync.WaitGroup
	started bool
}

// NewController는 새로운 안전 모니터를 생성합니다
// snapshot은 nil일 수 있으며, 이 경우 항상 REST 조회를 사용합니다
func NewController(cfg Config, exch exchange.Exchange, executor position.Executor, eval strategy.Evaluator, st store.Store, snapshot *feed.Snapshot, notifier notification.Notifier, logger zerolog.Logger) *Controller {
	if eval == nil {
		eval = strategy.HoldAll{}
	}
	if notifier == nil {
		notifier = notification.Noop{}
	}

	return &Controller{
		cfg:         cfg,
		exch:        exch,
		executor:    executor,
		eval:        eval,
		store:       st,
		snapshot:    snapshot,
		notifier:    notifier,
		logger:      logger,
		entryTimes:  make(map[string]time.Time),
		liquidating: make(map[string]struct{}),
		states:      make(map[string]domain.PositionState),
		stopCh:      make(chan struct{}),
	}
}

// Start는 점검 루프를 시작합니다
// 재시작 후에도 시간 기반 손절이 올바르게 동작하도록 저장된 장부를 먼저 복원합니다
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("안전 모니터가 이미 실행 중입니다")
	}
	c.started = true
	c.mu.Unlock()

	if c.store != nil {
		saved, err := c.store.LoadEntryTimes(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("진입 시각 장부 복원 실패, 빈 장부로 시작")
		} else if len(saved) > 0 {
			c.mu.Lock()
			for key, ts := range saved {
				c.entryTimes[key] = ts
			}
			c.mu.Unlock()
			c.logger.Info().Int("count", len(saved)).Msg("진입 시각 장부 복원 완료")
		}
	}

	c.loopWG.Add(1)
	go func() {
		defer c.loopWG.Done()
		c.run(ctx)
	}()

	c.logger.Info().Dur("interval", c.cfg.CheckInterval).Msg("안전 모니터 시작")
	return nil
}

// Stop은 점검 루프를 중지합니다
// 진행 중인 긴급 청산은 중단하지 않고 완료까지 계속 실행됩니다
func (c *Controller) Stop() {
	close(c.stopCh)
	c.loopWG.Wait()
	c.logger.Info().Msg("안전 모니터 중지")
}

// WaitEmergencyCloses는 분리 실행 중인 긴급 청산이 모두 끝날 때까지 대기합니다
func (c *Controller) WaitEmergencyCloses() {
	c.closeWG.Wait()
}

// GetStats는 누적 통계의 복사본을 반환합니다
func (c *Controller) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// run은 고정 주기로 점검을 반복합니다
func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	// 시작 직후 한 번 점검합니다
	c.check(ctx)

	for {
		select {
		case <-ticker.C:
			c.check(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// check는 단일 점검 사이클을 수행합니다
func (c *Controller) check(ctx context.Context) {
	c.mu.Lock()
	c.stats.Checks++
	c.mu.Unlock()
	metrics.SafetyChecks.Inc()

	// 1. 포지션 조회
	positions, err := c.fetchPositions(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("포지션 조회 실패, 이번 점검 건너뜀")
		return
	}

	// 2. 진입 시각 장부 동기화 후 보유 시간을 포지션에 부여합니다
	positions = c.syncEntryTimes(ctx, positions)

	if len(positions) == 0 {
		return
	}

	// 3. 교차 마진 보호
	handled := c.checkCrossMargin(ctx, positions)

	// 4. 시간 기반 손절
	remaining := make([]domain.Position, 0, len(positions))
	for _, pos := range positions {
		if _, ok := handled[pos.Key()]; ok {
			continue
		}

		if c.cfg.MaxHoldingDuration > 0 && pos.HoldingDuration(time.Now()) >= c.cfg.MaxHoldingDuration {
			if c.beginLiquidation(pos.Key()) {
				c.mu.Lock()
				c.stats.TimeStops++
				c.mu.Unlock()

				c.logger.Warn().
					Str("symbol", pos.Symbol).
					Dur("holding", pos.HoldingDuration(time.Now())).
					Float64("pnl", pos.UnrealizedPnL).
					Msg("보유 시간 초과, 무조건 청산 시작")

				c.spawnEmergencyClose(pos, ReasonTimeStop)
			}
			continue
		}

		remaining = append(remaining, pos)
	}

	// 5. 나머지는 전략 판단에 위임합니다
	c.delegateToStrategy(ctx, remaining)
}

// fetchPositions는 신선한 스냅샷이 있으면 사용하고 아니면 REST로 조회합니다
func (c *Controller) fetchPositions(ctx context.Context) ([]domain.Position, error) {
	if c.snapshot != nil && c.snapshot.Fresh(c.cfg.SnapshotStaleAfter) {
		return c.snapshot.Positions(), nil
	}

	positions, err := c.executor.GetActivePositions(ctx)
	if err != nil {
		return nil, err
	}

	// REST 결과로 스냅샷도 갱신해 둡니다
	if c.snapshot != nil {
		c.snapshot.Replace(positions)
	}
	return positions, nil
}

// syncEntryTimes는 장부를 현재 포지션 목록에 맞추고 보유 시작 시각을 부여합니다
func (c *Controller) syncEntryTimes(ctx context.Context, positions []domain.Position) []domain.Position {
	now := time.Now()
	current := make(map[string]struct{}, len(positions))

	c.mu.Lock()
	for i := range positions {
		key := positions[i].Key()
		current[key] = struct{}{}

		if _, tracked := c.states[key]; !tracked {
			c.states[key] = domain.PositionOpen
		}

		ts, ok := c.entryTimes[key]
		if !ok {
			// 이번 점검에서 처음 본 포지션은 지금을 진입 시각으로 기록합니다
			ts = now
			c.entryTimes[key] = ts
			if c.store != nil {
				if err := c.store.PersistEntryTime(ctx, key, ts); err != nil {
					c.logger.Warn().Err(err).Str("key", key).Msg("진입 시각 저장 실패")
				}
			}
		}
		positions[i].OpenTime = ts
	}

	// 사라진 포지션의 장부 정리 (청산 진행 중인 항목은 완료 시점에 정리됩니다)
	var gone []string
	for key := range c.entryTimes {
		if _, ok := current[key]; ok {
			continue
		}
		if _, busy := c.liquidating[key]; busy {
			continue
		}
		gone = append(gone, key)
	}
	for _, key := range gone {
		delete(c.entryTimes, key)
	}

	// 상태 장부는 진입 시각보다 오래 남을 수 있어(CLOSED) 따로 정리합니다
	for key := range c.states {
		if _, ok := current[key]; ok {
			continue
		}
		if _, busy := c.liquidating[key]; busy {
			continue
		}
		delete(c.states, key)
	}
	c.mu.Unlock()

	for _, key := range gone {
		if c.store != nil {
			if err := c.store.DeleteEntryTime(ctx, key); err != nil {
				c.logger.Warn().Err(err).Str("key", key).Msg("진입 시각 삭제 실패")
			}
		}
	}

	return positions
}

// checkCrossMargin은 마진 사용률이 한도를 넘으면 최대 손실 포지션을 청산합니다
// 발동 후에는 쿨다운 동안 이 규칙이 다시 발동하지 않습니다
// 반환값은 이 규칙이 처리한 포지션 키의 집합입니다
func (c *Controller) checkCrossMargin(ctx context.Context, positions []domain.Position) map[string]struct{} {
	handled := make(map[string]struct{})

	c.mu.Lock()
	inCooldown := !c.lastMarginAction.IsZero() && time.Since(c.lastMarginAction) < c.cfg.MarginCooldown
	c.mu.Unlock()
	if inCooldown {
		return handled
	}

	summary, err := c.exch.GetAccountSummary(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("계정 요약 조회 실패, 교차 마진 점검 건너뜀")
		return handled
	}

	ratio := summary.MarginRatio()
	if ratio <= c.cfg.MarginRatioLimit {
		return handled
	}

	// 손실 중인 포지션 중 손실이 가장 큰 것을 찾습니다
	// 마진 압박 아래의 손실 포지션은 모두 위험 상태로 표시해 둡니다
	var worst *domain.Position
	for i := range positions {
		pos := &positions[i]
		if pos.UnrealizedPnL >= 0 {
			continue
		}
		c.markState(pos.Key(), domain.PositionAtRisk)
		if worst == nil || pos.UnrealizedPnL < worst.UnrealizedPnL {
			worst = pos
		}
	}

	if worst == nil {
		c.logger.Warn().Float64("margin_ratio", ratio).Msg("마진 사용률 초과지만 손실 포지션 없음")
		return handled
	}

	if !c.beginLiquidation(worst.Key()) {
		return handled
	}

	c.mu.Lock()
	c.lastMarginAction = time.Now()
	c.stats.CrossMarginProtections++
	c.mu.Unlock()

	c.logger.Warn().
		Float64("margin_ratio", ratio).
		Float64("limit", c.cfg.MarginRatioLimit).
		Str("symbol", worst.Symbol).
		Float64("pnl", worst.UnrealizedPnL).
		Msg("교차 마진 보호 발동, 최대 손실 포지션 청산 시작")

	c.spawnEmergencyClose(*worst, ReasonCrossMargin)
	handled[worst.Key()] = struct{}{}
	return handled
}

// delegateToStrategy는 전략의 판단을 받아 실행합니다
func (c *Controller) delegateToStrategy(ctx context.Context, positions []domain.Position) {
	if len(positions) == 0 {
		return
	}

	// 청산 진행 중인 포지션은 평가 대상에서 제외합니다
	c.mu.Lock()
	eligible := make([]domain.Position, 0, len(positions))
	for _, pos := range positions {
		if _, busy := c.liquidating[pos.Key()]; !busy {
			eligible = append(eligible, pos)
		}
	}
	c.mu.Unlock()

	if len(eligible) == 0 {
		return
	}

	decisions, err := c.eval.EvaluatePositions(ctx, eligible)
	if err != nil {
		c.logger.Error().Err(err).Msg("전략 평가 실패")
		return
	}

	for _, pos := range eligible {
		decision, ok := decisions[pos.Key()]
		if !ok {
			continue
		}

		switch decision.Type {
		case strategy.Hold:
			// 유지

		case strategy.Close:
			if c.beginLiquidation(pos.Key()) {
				result, err := c.executor.ClosePosition(ctx, pos, false)
				c.finishLiquidation(pos.Key())
				if err != nil {
					c.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("전략 청산 실패")
					continue
				}
				result.Reason = ReasonStrategy
				c.recordClose(ctx, *result, ReasonStrategy)
			}

		case strategy.AdjustStopLoss:
			if err := c.executor.AdjustStopLoss(ctx, pos, decision.Price); err != nil {
				c.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("스탑로스 조정 실패")
				continue
			}
			c.markState(pos.Key(), domain.PositionProtected)

		case strategy.AdjustTakeProfit:
			if err := c.executor.AdjustTakeProfit(ctx, pos, decision.Price); err != nil {
				c.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("테이크프로핏 조정 실패")
				continue
			}
			c.markState(pos.Key(), domain.PositionProtected)
		}
	}
}

// spawnEmergencyClose는 긴급 청산을 독립 고루틴으로 실행합니다
// 모니터 중지와 무관하게 재시도 예산을 소진할 때까지 계속됩니다
func (c *Controller) spawnEmergencyClose(pos domain.Position, reason string) {
	c.mu.Lock()
	c.stats.EmergencyCloses++
	c.mu.Unlock()

	c.closeWG.Add(1)
	go func() {
		defer c.closeWG.Done()
		defer c.finishLiquidation(pos.Key())

		// 소유 루프의 ctx가 아닌 독립 컨텍스트를 사용합니다
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		c.emergencyClose(ctx, pos, reason)
	}()
}

// emergencyClose는 제한된 재시도 예산 안에서 포지션을 청산합니다
// 예산을 소진하면 운영자에게 반드시 보이도록 치명 수준으로 기록합니다
func (c *Controller) emergencyClose(ctx context.Context, pos domain.Position, reason string) {
	var result *domain.TradeResult

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.CloseBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		closed, err := c.executor.ClosePosition(ctx, pos, true)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("symbol", pos.Symbol).
				Str("reason", reason).
				Int("attempt", attempt).
				Msg("긴급 청산 시도 실패")
			return err
		}
		result = closed
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.cfg.CloseMaxRetries-1)), ctx))

	if err != nil {
		metrics.ProtectiveCloseFailures.Inc()

		// 보호받지 못한 포지션이 남는 것이 이 시스템의 최악의 결과입니다
		c.logger.WithLevel(zerolog.FatalLevel).
			Err(err).
			Str("symbol", pos.Symbol).
			Str("reason", reason).
			Int("attempts", attempt).
			Msg("긴급 청산 재시도 예산 소진, 수동 개입 필요")

		notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if nerr := c.notifier.SendError(notifyCtx, fmt.Errorf("긴급 청산 실패 [%s, %s]: %w", pos.Symbol, reason, err)); nerr != nil {
			c.logger.Error().Err(nerr).Msg("긴급 청산 실패 알림 전송 실패")
		}
		return
	}

	result.Reason = reason
	c.recordClose(ctx, *result, reason)
}

// recordClose는 청산 확정을 장부/저장소/알림에 반영합니다
func (c *Controller) recordClose(ctx context.Context, result domain.TradeResult, reason string) {
	key := result.Symbol + "/" + string(result.PositionSide)

	c.mu.Lock()
	delete(c.entryTimes, key)
	c.states[key] = domain.PositionClosed // 다음 점검의 장부 동기화에서 제거됩니다
	c.stats.Closes++
	c.mu.Unlock()

	metrics.ProtectiveCloses.WithLabelValues(reason).Inc()

	if c.store != nil {
		if err := c.store.DeleteEntryTime(ctx, key); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("진입 시각 삭제 실패")
		}
		if err := c.store.RecordClose(ctx, result); err != nil {
			c.logger.Warn().Err(err).Str("symbol", result.Symbol).Msg("청산 기록 저장 실패")
		}
	}

	c.logger.Info().
		Str("symbol", result.Symbol).
		Str("reason", reason).
		Float64("pnl", result.RealizedPnL).
		Msg("보호 청산 완료")

	if err := c.notifier.SendTradeInfo(ctx, result); err != nil {
		c.logger.Warn().Err(err).Msg("청산 알림 전송 실패")
	}
}

// beginLiquidation은 포지션을 청산 진행 집합에 등록합니다
// 이미 진행 중이면 false를 반환해 중복 청산을 막습니다
func (c *Controller) beginLiquidation(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.liquidating[key]; busy {
		return false
	}
	c.liquidating[key] = struct{}{}
	c.states[key] = domain.PositionClosing
	return true
}

// finishLiquidation은 청산 진행 집합에서 포지션을 제거합니다
func (c *Controller) finishLiquidation(key string) {
	c.mu.Lock()
	delete(c.liquidating, key)
	c.mu.Unlock()
}

// markState는 포지션 수명주기 상태를 기록합니다
// 청산이 시작되었거나 끝난 포지션의 상태는 되돌리지 않습니다
func (c *Controller) markState(key string, state domain.PositionState) {
	c.mu.Lock()
	cur := c.states[key]
	if cur != domain.PositionClosing && cur != domain.PositionClosed {
		c.states[key] = state
	}
	c.mu.Unlock()
}

// PositionStates는 추적 중인 포지션 수명주기 상태의 복사본을 반환합니다
func (c *Controller) PositionStates() map[string]domain.PositionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]domain.PositionState, len(c.states))
	for key, state := range c.states {
		out[key] = state
	}
	return out
}
