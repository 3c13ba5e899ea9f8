// internal/position/binance/executor.go
package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
	"github.com/assist-by/sentinel/internal/position"
)

// Executor는 바이낸스 선물에서 포지션 청산과 보호 주문을 담당합니다
type Executor struct {
	client exchange.Exchange
	logger zerolog.Logger

	confirmRetries int           // 청산 확인 재시도 횟수
	confirmDelay   time.Duration // 청산 확인 간격
}

// NewExecutor는 새로운 포지션 실행기를 생성합니다
func NewExecutor(client exchange.Exchange, logger zerolog.Logger) *Executor {
	return &Executor{
		client:         client,
		logger:         logger,
		confirmRetries: 5,
		confirmDelay:   500 * time.Millisecond,
	}
}

// GetActivePositions는 현재 활성 포지션 목록을 조회합니다
func (e *Executor) GetActivePositions(ctx context.Context) ([]domain.Position, error) {
	positions, err := e.client.GetPositions(ctx)
	if err != nil {
		return nil, position.NewPositionError("", "query", err)
	}
	return positions, nil
}

// ClosePosition은 포지션을 시장가로 청산하고 체결을 확인합니다
// 1. 보호 주문 취소 → 2. 시장가 청산 제출 → 3. 포지션 소멸 확인
func (e *Executor) ClosePosition(ctx context.Context, pos domain.Position, critical bool) (*domain.TradeResult, error) {
	// 청산 흐름의 보조 요청(주문 취소, 체결 확인)까지 차단된 브레이커를
	// 우회해야 합니다. 브레이커가 청산을 막으면 손실 포지션이 방치됩니다
	ctx = exchange.WithPriority(ctx, domain.PriorityCritical)

	// 1. 기존 보호 주문을 먼저 취소합니다 (체결 잔량과의 충돌 방지)
	if err := e.CancelAllOrders(ctx, pos.Symbol); err != nil {
		// 취소 실패가 청산을 막아서는 안 됩니다
		e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("청산 전 보호 주문 취소 실패, 청산 계속 진행")
	}

	priority := domain.PriorityHigh
	if critical {
		priority = domain.PriorityCritical
	}

	// 2. 시장가 청산 주문 제출
	order := domain.OrderRequest{
		Symbol:       pos.Symbol,
		Side:         position.ExitOrderSide(pos),
		PositionSide: pos.PositionSide,
		Type:         domain.Market,
		Quantity:     position.ExitQuantity(pos),
		ReduceOnly:   true,
		Priority:     priority,
		Operation:    domain.OpClosePosition,
	}

	resp, err := e.client.PlaceOrder(ctx, order)
	if err != nil {
		return nil, position.NewPositionError(pos.Symbol, "close", err)
	}

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(order.Side)).
		Float64("quantity", order.Quantity).
		Int64("order_id", resp.OrderID).
		Bool("critical", critical).
		Msg("청산 주문 제출 완료")

	// 3. 포지션이 실제로 사라졌는지 확인합니다
	exitPrice := resp.AvgPrice
	if err := e.confirmClosed(ctx, pos); err != nil {
		return nil, position.NewPositionError(pos.Symbol, "close_confirm", err)
	}

	if exitPrice <= 0 {
		exitPrice = pos.MarkPrice
	}

	return &domain.TradeResult{
		Symbol:       pos.Symbol,
		PositionSide: pos.PositionSide,
		Quantity:     position.ExitQuantity(pos),
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		RealizedPnL:  position.RealizedPnL(pos, exitPrice),
		OpenedAt:     pos.OpenTime,
		ClosedAt:     time.Now(),
	}, nil
}

// confirmClosed는 포지션이 조회에서 사라질 때까지 재시도하며 확인합니다
// 조회가 전부 실패한 경우와 포지션이 실제로 남아 있는 경우는 구분해서 보고합니다
func (e *Executor) confirmClosed(ctx context.Context, pos domain.Position) error {
	var lastErr error
	checked := 0

	for attempt := 0; attempt < e.confirmRetries; attempt++ {
		select {
		case <-time.After(e.confirmDelay):
		case <-ctx.Done():
			return ctx.Err()
		}

		positions, err := e.client.GetPositions(ctx)
		if err != nil {
			lastErr = err
			e.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("청산 확인 조회 실패")
			continue
		}
		checked++

		found := false
		for _, p := range positions {
			if p.Key() == pos.Key() {
				found = true
				break
			}
		}

		if !found {
			e.logger.Info().Str("symbol", pos.Symbol).Msg("포지션 청산 확인 완료")
			return nil
		}
	}

	if checked == 0 {
		return fmt.Errorf("청산 확인 조회가 %d회 모두 실패: %w", e.confirmRetries, lastErr)
	}
	return fmt.Errorf("%d회 확인에도 포지션이 남아 있음: %s", e.confirmRetries, pos.Symbol)
}

// EnsureProtection은 포지션에 스탑로스/테이크프로핏 주문을 설정합니다
// 가격이 0이면 해당 보호 주문은 생략합니다
func (e *Executor) EnsureProtection(ctx context.Context, pos domain.Position, stopLoss, takeProfit float64) error {
	exitSide := position.ExitOrderSide(pos)

	if stopLoss > 0 {
		if err := e.placeProtective(ctx, pos, exitSide, domain.StopMarket, stopLoss); err != nil {
			return position.NewPositionError(pos.Symbol, "protect_sl", err)
		}
	}

	if takeProfit > 0 {
		if err := e.placeProtective(ctx, pos, exitSide, domain.TakeProfitMarket, takeProfit); err != nil {
			return position.NewPositionError(pos.Symbol, "protect_tp", err)
		}
	}

	return nil
}

// AdjustStopLoss는 기존 스탑로스 주문을 취소하고 새 가격으로 다시 설정합니다
func (e *Executor) AdjustStopLoss(ctx context.Context, pos domain.Position, stopPrice float64) error {
	if err := e.cancelByType(ctx, pos.Symbol, domain.StopMarket); err != nil {
		return position.NewPositionError(pos.Symbol, "adjust_sl", err)
	}

	exitSide := position.ExitOrderSide(pos)
	if err := e.placeProtective(ctx, pos, exitSide, domain.StopMarket, stopPrice); err != nil {
		return position.NewPositionError(pos.Symbol, "adjust_sl", err)
	}

	e.logger.Info().Str("symbol", pos.Symbol).Float64("stop_price", stopPrice).Msg("스탑로스 조정 완료")
	return nil
}

// AdjustTakeProfit은 기존 테이크프로핏 주문을 취소하고 새 가격으로 다시 설정합니다
func (e *Executor) AdjustTakeProfit(ctx context.Context, pos domain.Position, takeProfit float64) error {
	if err := e.cancelByType(ctx, pos.Symbol, domain.TakeProfitMarket); err != nil {
		return position.NewPositionError(pos.Symbol, "adjust_tp", err)
	}

	exitSide := position.ExitOrderSide(pos)
	if err := e.placeProtective(ctx, pos, exitSide, domain.TakeProfitMarket, takeProfit); err != nil {
		return position.NewPositionError(pos.Symbol, "adjust_tp", err)
	}

	e.logger.Info().Str("symbol", pos.Symbol).Float64("take_profit", takeProfit).Msg("테이크프로핏 조정 완료")
	return nil
}

// placeProtective는 전량 청산 조건부 주문을 제출합니다
func (e *Executor) placeProtective(ctx context.Context, pos domain.Position, side domain.OrderSide, orderType domain.OrderType, triggerPrice float64) error {
	order := domain.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          side,
		PositionSide:  pos.PositionSide,
		Type:          orderType,
		StopPrice:     triggerPrice,
		ClosePosition: true,
		Priority:      domain.PriorityHigh,
	}

	_, err := e.client.PlaceOrder(ctx, order)
	return err
}

// cancelByType은 심볼의 열린 주문 중 지정한 유형만 취소합니다
func (e *Executor) cancelByType(ctx context.Context, symbol string, orderType domain.OrderType) error {
	orders, err := e.client.GetOpenOrders(ctx, symbol)
	if err != nil {
		return err
	}

	for _, o := range orders {
		if o.Type != orderType {
			continue
		}
		if err := e.client.CancelOrder(ctx, symbol, o.OrderID); err != nil {
			return err
		}
	}

	return nil
}

// CancelAllOrders는 심볼의 모든 열린 주문을 취소합니다
func (e *Executor) CancelAllOrders(ctx context.Context, symbol string) error {
	orders, err := e.client.GetOpenOrders(ctx, symbol)
	if err != nil {
		return position.NewPositionError(symbol, "cancel", err)
	}

	for _, o := range orders {
		if err := e.client.CancelOrder(ctx, symbol, o.OrderID); err != nil {
			return position.NewPositionError(symbol, "cancel", err)
		}
	}

	return nil
}
