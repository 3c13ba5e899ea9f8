// internal/exchange/exchange.go
package exchange

import (
	"context"
	"time"

	"github.com/assist-by/sentinel/internal/domain"
)

// Exchange는 거래소와의 상호작용을 위한 인터페이스입니다.
// 모든 구현은 실패 시 *APIError를 반환해야 합니다.
type Exchange interface {
	// 시장/심볼 데이터 조회
	GetServerTime(ctx context.Context) (time.Time, error)
	GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error)

	// 계정 데이터 조회
	GetBalance(ctx context.Context) (map[string]domain.Balance, error)
	GetAccountSummary(ctx context.Context) (*domain.AccountSummary, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]domain.OrderResponse, error)

	// 거래 기능
	PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResponse, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	// 시간 동기화
	SyncTime(ctx context.Context) error
}
