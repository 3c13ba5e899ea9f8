// internal/notification/types.go
package notification

import (
	"context"

	"github.com/assist-by/sentinel/internal/domain"
)

// Notifier는 운영자 알림을 위한 인터페이스입니다
type Notifier interface {
	// SendInfo는 일반 정보 알림을 전송합니다
	SendInfo(ctx context.Context, message string) error

	// SendError는 에러 알림을 전송합니다
	SendError(ctx context.Context, err error) error

	// SendTradeInfo는 청산 거래 알림을 전송합니다
	SendTradeInfo(ctx context.Context, result domain.TradeResult) error
}

// Noop은 아무것도 전송하지 않는 알림기입니다
// 웹훅이 설정되지 않은 환경에서 사용합니다
type Noop struct{}

// SendInfo는 아무 작업도 하지 않습니다
func (Noop) SendInfo(ctx context.Context, message string) error { return nil }

// SendError는 아무 작업도 하지 않습니다
func (Noop) SendError(ctx context.Context, err error) error { return nil }

// SendTradeInfo는 아무 작업도 하지 않습니다
func (Noop) SendTradeInfo(ctx context.Context, result domain.TradeResult) error { return nil }
