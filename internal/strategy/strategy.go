// internal/strategy/strategy.go
package strategy

import (
	"context"

	"github.com/assist-by/sentinel/internal/domain"
)

// DecisionType은 보유 포지션에 대한 전략 판단을 정의합니다
type DecisionType string

const (
	Hold             DecisionType = "HOLD"      // 유지
	Close            DecisionType = "CLOSE"     // 청산
	AdjustStopLoss   DecisionType = "ADJUST_SL" // 스탑로스 조정
	AdjustTakeProfit DecisionType = "ADJUST_TP" // 테이크프로핏 조정
)

// Decision은 단일 포지션에 대한 전략 판단과 부가 정보를 표현합니다
type Decision struct {
	Type  DecisionType // 판단 유형
	Price float64      // 조정 대상 가격 (ADJUST_SL/ADJUST_TP에서만 사용)
}

// Evaluator는 보유 포지션 평가를 위한 인터페이스입니다
// 반환 맵의 키는 Position.Key()입니다
type Evaluator interface {
	EvaluatePositions(ctx context.Context, positions []domain.Position) (map[string]Decision, error)
}

// HoldAll은 모든 포지션을 유지하는 기본 전략입니다
// 외부 전략이 연결되지 않은 상태에서 안전 모니터만 동작시킬 때 사용합니다
type HoldAll struct{}

// EvaluatePositions는 모든 포지션에 대해 HOLD를 반환합니다
func (HoldAll) EvaluatePositions(ctx context.Context, positions []domain.Position) (map[string]Decision, error) {
	decisions := make(map[string]Decision, len(positions))
	for _, pos := range positions {
		decisions[pos.Key()] = Decision{Type: Hold}
	}
	return decisions, nil
}
