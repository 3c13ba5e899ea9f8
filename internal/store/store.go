// internal/store/store.go
package store

import (
	"context"
	"time"

	"github.com/assist-by/sentinel/internal/domain"
)

// Store는 안전 모니터의 장부를 재시작 이후에도 유지하기 위한 인터페이스입니다
// 진입 시각이 날아가면 시간 기반 손절의 기준이 사라지므로 반드시 영속화해야 합니다
type Store interface {
	// PersistEntryTime은 포지션 진입 시각을 저장합니다
	PersistEntryTime(ctx context.Context, key string, ts time.Time) error

	// DeleteEntryTime은 청산된 포지션의 진입 시각을 삭제합니다
	DeleteEntryTime(ctx context.Context, key string) error

	// LoadEntryTimes는 저장된 모든 진입 시각을 불러옵니다
	LoadEntryTimes(ctx context.Context) (map[string]time.Time, error)

	// RecordClose는 청산 확정 기록을 저장합니다
	RecordClose(ctx context.Context, result domain.TradeResult) error

	// Close는 저장소 연결을 정리합니다
	Close() error
}
