// internal/store/memory.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/assist-by/sentinel/internal/domain"
)

// Memory는 프로세스 수명 동안만 유지되는 인메모리 저장소입니다
// 레디스 연결 실패 시의 폴백과 테스트에 사용합니다
type Memory struct {
	mu         sync.RWMutex
	entryTimes map[string]time.Time
	closes     []domain.TradeResult
}

// NewMemory는 새로운 인메모리 저장소를 생성합니다
func NewMemory() *Memory {
	return &Memory{
		entryTimes: make(map[string]time.Time),
	}
}

// PersistEntryTime은 포지션 진입 시각을 저장합니다
func (m *Memory) PersistEntryTime(ctx context.Context, key string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryTimes[key] = ts
	return nil
}

// DeleteEntryTime은 저장된 진입 시각을 삭제합니다
func (m *Memory) DeleteEntryTime(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entryTimes, key)
	return nil
}

// LoadEntryTimes는 저장된 모든 진입 시각을 반환합니다
func (m *Memory) LoadEntryTimes(ctx context.Context) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]time.Time, len(m.entryTimes))
	for k, v := range m.entryTimes {
		out[k] = v
	}
	return out, nil
}

// RecordClose는 청산 기록을 보관합니다 (최근 1000건)
func (m *Memory) RecordClose(ctx context.Context, result domain.TradeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closes = append(m.closes, result)
	if len(m.closes) > 1000 {
		m.closes = m.closes[len(m.closes)-1000:]
	}
	return nil
}

// Closes는 보관 중인 청산 기록을 반환합니다
func (m *Memory) Closes() []domain.TradeResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.TradeResult, len(m.closes))
	copy(out, m.closes)
	return out
}

// Close는 아무 작업도 하지 않습니다
func (m *Memory) Close() error {
	return nil
}
