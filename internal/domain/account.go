package domain

import (
	"math"
	"time"
)

// Balance는 계정 잔고 정보를 표현합니다
type Balance struct {
	Asset              string  // 자산 심볼 (예: USDT, BTC)
	Available          float64 // 사용 가능한 잔고
	Locked             float64 // 주문 등에 잠긴 잔고
	CrossWalletBalance float64 // 교차 마진 지갑 잔고
}

// AccountSummary는 마진 사용률 판정에 필요한 계정 요약 정보를 표현합니다
type AccountSummary struct {
	TotalWalletBalance    float64 // 총 지갑 잔고 (USDT)
	TotalMarginBalance    float64 // 총 마진 잔고
	TotalInitialMargin    float64 // 총 초기 마진 (사용 중인 마진)
	TotalMaintMargin      float64 // 총 유지 마진
	TotalUnrealizedProfit float64 // 총 미실현 손익
	AvailableBalance      float64 // 사용 가능한 잔고
}

// MarginRatio는 총 잔고 대비 사용 중인 마진의 비율을 반환합니다
// 잔고가 0이면 0을 반환합니다
func (a AccountSummary) MarginRatio() float64 {
	if a.TotalWalletBalance <= 0 {
		return 0
	}
	return a.TotalInitialMargin / a.TotalWalletBalance
}

// Position은 포지션 정보를 표현합니다
type Position struct {
	Symbol        string       // 심볼 (예: BTCUSDT)
	PositionSide  PositionSide // 롱/숏 포지션
	Quantity      float64      // 포지션 수량 (양수: 롱, 음수: 숏)
	EntryPrice    float64      // 평균 진입가
	Leverage      int          // 레버리지
	MarkPrice     float64      // 마크 가격
	UnrealizedPnL float64      // 미실현 손익 (USDT)
	InitialMargin float64      // 초기 마진
	MaintMargin   float64      // 유지 마진
	OpenTime      time.Time    // 진입 시각 (안전 모니터가 기록)
}

// Notional은 포지션의 명목 가치를 반환합니다
func (p Position) Notional() float64 {
	return math.Abs(p.Quantity) * p.MarkPrice
}

// PnLPercent는 초기 마진 대비 미실현 손익의 비율(%)을 반환합니다
func (p Position) PnLPercent() float64 {
	if p.InitialMargin <= 0 {
		return 0
	}
	return p.UnrealizedPnL / p.InitialMargin * 100
}

// HoldingDuration은 진입 이후 보유 시간을 반환합니다
// OpenTime이 기록되지 않은 포지션은 0을 반환합니다
func (p Position) HoldingDuration(now time.Time) time.Duration {
	if p.OpenTime.IsZero() {
		return 0
	}
	return now.Sub(p.OpenTime)
}

// Key는 심볼과 포지션 사이드를 조합한 포지션 식별자를 반환합니다
func (p Position) Key() string {
	return p.Symbol + "/" + string(p.PositionSide)
}

// TradeResult는 청산이 확정된 거래의 기록을 표현합니다
type TradeResult struct {
	Symbol       string       // 심볼
	PositionSide PositionSide // 포지션 방향
	Quantity     float64      // 청산 수량
	EntryPrice   float64      // 진입가
	ExitPrice    float64      // 청산가
	RealizedPnL  float64      // 실현 손익 (USDT)
	Reason       string       // 청산 사유 (cross_margin, time_stop, strategy, manual)
	OpenedAt     time.Time    // 진입 시각
	ClosedAt     time.Time    // 청산 시각
}
