// internal/position/position.go
package position

import (
	"context"

	"github.com/assist-by/sentinel/internal/domain"
)

// Executor는 포지션 청산과 보호 주문 관리를 위한 인터페이스입니다
type Executor interface {
	// GetActivePositions는 현재 활성 포지션 목록을 조회합니다
	GetActivePositions(ctx context.Context) ([]domain.Position, error)

	// ClosePosition은 포지션을 시장가로 청산하고 체결을 확인합니다
	// 보호 규칙에 의한 청산은 CRITICAL 우선순위로 제출됩니다
	ClosePosition(ctx context.Context, pos domain.Position, critical bool) (*domain.TradeResult, error)

	// EnsureProtection은 포지션에 스탑로스/테이크프로핏 주문을 설정합니다
	EnsureProtection(ctx context.Context, pos domain.Position, stopLoss, takeProfit float64) error

	// AdjustStopLoss는 기존 스탑로스 주문을 새 가격으로 교체합니다
	AdjustStopLoss(ctx context.Context, pos domain.Position, stopPrice float64) error

	// AdjustTakeProfit은 기존 테이크프로핏 주문을 새 가격으로 교체합니다
	AdjustTakeProfit(ctx context.Context, pos domain.Position, takeProfit float64) error

	// CancelAllOrders는 심볼의 모든 열린 주문을 취소합니다
	CancelAllOrders(ctx context.Context, symbol string) error
}
