// internal/position/errors.go
package position

import "fmt"

// PositionError는 포지션 작업 실패를 표현합니다
type PositionError struct {
	Symbol string // 대상 심볼
	Op     string // 수행하던 작업 (close, protect, adjust_sl, adjust_tp, cancel)
	Err    error  // 원인 에러
}

// Error는 error 인터페이스를 구현합니다
func (e *PositionError) Error() string {
	return fmt.Sprintf("포지션 작업 실패 [%s, %s]: %v", e.Symbol, e.Op, e.Err)
}

// Unwrap은 원인 에러를 반환합니다
func (e *PositionError) Unwrap() error {
	return e.Err
}

// NewPositionError는 새로운 PositionError를 생성합니다
func NewPositionError(symbol, op string, err error) *PositionError {
	return &PositionError{Symbol: symbol, Op: op, Err: err}
}
