// internal/position/utils.go
package position

import (
	"math"

	"github.com/assist-by/sentinel/internal/domain"
)

// ExitOrderSide는 포지션 청산에 필요한 주문 방향을 반환합니다
// 롱 포지션은 매도로, 숏 포지션은 매수로 청산합니다
func ExitOrderSide(pos domain.Position) domain.OrderSide {
	if pos.PositionSide == domain.ShortPosition || pos.Quantity < 0 {
		return domain.Buy
	}
	return domain.Sell
}

// ExitQuantity는 청산 주문에 사용할 절대 수량을 반환합니다
func ExitQuantity(pos domain.Position) float64 {
	return math.Abs(pos.Quantity)
}

// IsLong은 포지션이 롱 방향인지 반환합니다
// 원웨이 모드(BOTH)에서는 수량 부호로 판별합니다
func IsLong(pos domain.Position) bool {
	if pos.PositionSide == domain.BothPosition {
		return pos.Quantity > 0
	}
	return pos.PositionSide == domain.LongPosition
}

// RealizedPnL은 청산가 기준 실현 손익을 계산합니다
func RealizedPnL(pos domain.Position, exitPrice float64) float64 {
	qty := math.Abs(pos.Quantity)
	if IsLong(pos) {
		return (exitPrice - pos.EntryPrice) * qty
	}
	return (pos.EntryPrice - exitPrice) * qty
}
