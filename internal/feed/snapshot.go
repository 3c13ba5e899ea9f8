// internal/feed/snapshot.go
package feed

import (
	"sync"
	"time"

	"github.com/assist-by/sentinel/internal/domain"
)

// Snapshot은 실시간 스트림이 갱신하는 포지션 캐시입니다
// 스트림 한 곳만 쓰기를 수행하고 나머지 컴포넌트는 읽기만 합니다
type Snapshot struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
	updatedAt time.Time
}

// NewSnapshot은 새로운 포지션 스냅샷을 생성합니다
func NewSnapshot() *Snapshot {
	return &Snapshot{
		positions: make(map[string]domain.Position),
	}
}

// Apply는 스트림 이벤트의 포지션 정보를 반영합니다
// 수량이 0이 된 포지션은 캐시에서 제거합니다
func (s *Snapshot) Apply(positions []domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pos := range positions {
		if pos.Quantity == 0 {
			delete(s.positions, pos.Key())
			continue
		}

		// 스트림이 주지 않는 필드(진입 시각 등)는 기존 값을 유지합니다
		if prev, ok := s.positions[pos.Key()]; ok {
			if pos.OpenTime.IsZero() {
				pos.OpenTime = prev.OpenTime
			}
			if pos.MarkPrice == 0 {
				pos.MarkPrice = prev.MarkPrice
			}
			if pos.InitialMargin == 0 {
				pos.InitialMargin = prev.InitialMargin
			}
		}
		s.positions[pos.Key()] = pos
	}
	s.updatedAt = time.Now()
}

// Replace는 캐시 전체를 새 포지션 목록으로 교체합니다 (REST 동기화용)
func (s *Snapshot) Replace(positions []domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions = make(map[string]domain.Position, len(positions))
	for _, pos := range positions {
		s.positions[pos.Key()] = pos
	}
	s.updatedAt = time.Now()
}

// Positions는 캐시된 포지션 목록의 복사본을 반환합니다
func (s *Snapshot) Positions() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos)
	}
	return out
}

// Fresh는 캐시가 staleAfter 이내에 갱신되었는지 반환합니다
// 한 번도 갱신되지 않은 캐시는 항상 오래된 것으로 판정합니다
func (s *Snapshot) Fresh(staleAfter time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.updatedAt.IsZero() {
		return false
	}
	return time.Since(s.updatedAt) < staleAfter
}
