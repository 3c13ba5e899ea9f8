package domain

import "math"

// SymbolInfo는 심볼의 거래 제약 정보를 나타냅니다
type SymbolInfo struct {
	Symbol            string  // 심볼 이름 (예: BTCUSDT)
	StepSize          float64 // 수량 최소 단위 (예: 0.001 BTC)
	TickSize          float64 // 가격 최소 단위 (예: 0.01 USDT)
	MinQuantity       float64 // 최소 주문 수량
	MaxQuantity       float64 // 최대 주문 수량
	MinNotional       float64 // 최소 주문 가치 (예: 10 USDT)
	PricePrecision    int     // 가격 소수점 자릿수
	QuantityPrecision int     // 수량 소수점 자릿수
}

// AdjustQuantity는 수량을 stepSize의 배수로 내림하고 소수점 자릿수를 보정합니다
// 거래소의 LOT_SIZE 필터 거부를 막기 위해 항상 내림으로 조정합니다
func AdjustQuantity(quantity, stepSize float64, precision int) float64 {
	if stepSize <= 0 {
		return quantity
	}

	// 나눗셈의 부동소수점 오차로 한 스텝 아래로 떨어지는 것을 방지
	steps := math.Floor(quantity / stepSize * (1 + 1e-9))
	adjusted := steps * stepSize

	// 스텝 배수를 자릿수에 맞게 정리
	scale := math.Pow(10, float64(precision))
	return math.Round(adjusted*scale) / scale
}

// AdjustPrice는 가격을 tickSize의 배수로 내림하고 소수점 자릿수를 보정합니다
func AdjustPrice(price, tickSize float64, precision int) float64 {
	if tickSize <= 0 {
		return price
	}

	ticks := math.Floor(price / tickSize * (1 + 1e-9))
	adjusted := ticks * tickSize

	scale := math.Pow(10, float64(precision))
	return math.Round(adjusted*scale) / scale
}

// ClampQuantity는 수량을 [MinQuantity, MaxQuantity] 범위로 제한합니다
// 상한/하한이 0이면 해당 방향의 제한을 적용하지 않습니다
func (s SymbolInfo) ClampQuantity(quantity float64) float64 {
	if s.MaxQuantity > 0 && quantity > s.MaxQuantity {
		quantity = s.MaxQuantity
	}
	if s.MinQuantity > 0 && quantity < s.MinQuantity {
		quantity = s.MinQuantity
	}
	return quantity
}

// NormalizeQuantity는 수량을 stepSize로 내림한 뒤 허용 범위로 제한합니다
// 주문 제출 전 반드시 이 함수를 거쳐야 정밀도 거부를 피할 수 있습니다
func (s SymbolInfo) NormalizeQuantity(quantity float64) float64 {
	adjusted := AdjustQuantity(quantity, s.StepSize, s.QuantityPrecision)
	return s.ClampQuantity(adjusted)
}

// NormalizePrice는 가격을 tickSize로 내림합니다
func (s SymbolInfo) NormalizePrice(price float64) float64 {
	return AdjustPrice(price, s.TickSize, s.PricePrecision)
}
