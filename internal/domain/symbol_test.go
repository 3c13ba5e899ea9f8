package domain

import (
	"math"
	"testing"
)

func TestNormalizeQuantity(t *testing.T) {
	info := SymbolInfo{
		Symbol:            "BTCUSDT",
		StepSize:          0.001,
		MinQuantity:       0.001,
		MaxQuantity:       1000,
		QuantityPrecision: 3,
	}

	tests := []struct {
		name     string
		quantity float64
		want     float64
	}{
		{
			name:     "스텝 배수는 그대로 유지",
			quantity: 0.123,
			want:     0.123,
		},
		{
			name:     "스텝 중간값은 내림",
			quantity: 0.1234567,
			want:     0.123,
		},
		{
			name:     "최소 수량 미만은 최소로 올림",
			quantity: 0.0004,
			want:     0.001,
		},
		{
			name:     "최대 수량 초과는 최대로 제한",
			quantity: 5000,
			want:     1000,
		},
		{
			name:     "부동소수점 오차 수량 보정",
			quantity: 0.1 + 0.2, // 0.30000000000000004
			want:     0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := info.NormalizeQuantity(tt.quantity)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("NormalizeQuantity(%v) = %v, want %v", tt.quantity, got, tt.want)
			}
		})
	}
}

func TestNormalizeQuantityFloorsToStep(t *testing.T) {
	info := SymbolInfo{StepSize: 0.01, QuantityPrecision: 2, MaxQuantity: 100}

	// 임의의 수량도 항상 스텝의 배수가 되어야 합니다
	for _, q := range []float64{0.015, 0.999, 1.004, 33.337, 99.996} {
		got := info.NormalizeQuantity(q)
		steps := got / info.StepSize
		if math.Abs(steps-math.Round(steps)) > 1e-6 {
			t.Errorf("NormalizeQuantity(%v) = %v, 스텝의 배수가 아님", q, got)
		}
		if got > q {
			t.Errorf("NormalizeQuantity(%v) = %v, 내림이 아닌 올림 발생", q, got)
		}
	}
}

func TestNormalizePrice(t *testing.T) {
	info := SymbolInfo{TickSize: 0.1, PricePrecision: 1}

	tests := []struct {
		name  string
		price float64
		want  float64
	}{
		{"틱 배수는 유지", 43210.5, 43210.5},
		{"틱 중간값은 내림", 43210.57, 43210.5},
		{"소수점 자릿수 보정", 99.99999, 99.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := info.NormalizePrice(tt.price)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("NormalizePrice(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestPositionKey(t *testing.T) {
	p := Position{Symbol: "ETHUSDT", PositionSide: LongPosition}
	if p.Key() != "ETHUSDT/LONG" {
		t.Errorf("Key() = %s, want ETHUSDT/LONG", p.Key())
	}
}

func TestMarginRatio(t *testing.T) {
	tests := []struct {
		name    string
		summary AccountSummary
		want    float64
	}{
		{
			name:    "정상 비율",
			summary: AccountSummary{TotalWalletBalance: 10000, TotalInitialMargin: 9000},
			want:    0.9,
		},
		{
			name:    "잔고 0이면 0",
			summary: AccountSummary{TotalWalletBalance: 0, TotalInitialMargin: 100},
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.summary.MarginRatio(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("MarginRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}
