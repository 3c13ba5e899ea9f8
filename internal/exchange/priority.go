// internal/exchange/priority.go
package exchange

import (
	"context"

	"github.com/assist-by/sentinel/internal/domain"
)

type priorityKey struct{}

// WithPriority는 컨텍스트에 요청 우선순위 하한을 부여합니다
// 청산처럼 한 흐름의 보조 요청(주문 취소, 체결 확인)까지 같은 우선순위로
// 취급되어야 할 때 사용합니다
func WithPriority(ctx context.Context, p domain.Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFromContext는 컨텍스트에 부여된 우선순위 하한을 반환합니다
func PriorityFromContext(ctx context.Context) (domain.Priority, bool) {
	p, ok := ctx.Value(priorityKey{}).(domain.Priority)
	return p, ok
}
