package feed

import (
	"testing"
	"time"

	"github.com/assist-by/sentinel/internal/domain"
)

func TestSnapshotApplyAndRemove(t *testing.T) {
	s := NewSnapshot()

	s.Apply([]domain.Position{
		{Symbol: "BTCUSDT", PositionSide: domain.LongPosition, Quantity: 0.5, EntryPrice: 42000},
	})

	if got := len(s.Positions()); got != 1 {
		t.Fatalf("포지션 수 = %d, want 1", got)
	}

	// 수량 0 이벤트는 포지션 제거를 의미합니다
	s.Apply([]domain.Position{
		{Symbol: "BTCUSDT", PositionSide: domain.LongPosition, Quantity: 0},
	})

	if got := len(s.Positions()); got != 0 {
		t.Errorf("수량 0 반영 후 포지션 수 = %d, want 0", got)
	}
}

func TestSnapshotKeepsFieldsStreamOmits(t *testing.T) {
	s := NewSnapshot()
	opened := time.Now().Add(-time.Hour)

	s.Apply([]domain.Position{
		{Symbol: "BTCUSDT", PositionSide: domain.LongPosition, Quantity: 0.5, MarkPrice: 43000, OpenTime: opened},
	})

	// 스트림 이벤트에는 마크 가격과 진입 시각이 없습니다
	s.Apply([]domain.Position{
		{Symbol: "BTCUSDT", PositionSide: domain.LongPosition, Quantity: 0.6, UnrealizedPnL: 100},
	})

	positions := s.Positions()
	if len(positions) != 1 {
		t.Fatalf("포지션 수 = %d, want 1", len(positions))
	}

	pos := positions[0]
	if pos.Quantity != 0.6 {
		t.Errorf("수량 = %v, want 0.6", pos.Quantity)
	}
	if pos.MarkPrice != 43000 {
		t.Errorf("마크 가격 = %v, 기존 값이 유지되어야 함", pos.MarkPrice)
	}
	if !pos.OpenTime.Equal(opened) {
		t.Errorf("진입 시각이 유지되지 않음: %v", pos.OpenTime)
	}
}

func TestSnapshotFreshness(t *testing.T) {
	s := NewSnapshot()

	// 갱신 전에는 항상 오래된 것으로 판정합니다
	if s.Fresh(time.Hour) {
		t.Error("갱신 전 Fresh() = true")
	}

	s.Replace([]domain.Position{})
	if !s.Fresh(time.Hour) {
		t.Error("갱신 직후 Fresh() = false")
	}
	if s.Fresh(0) {
		t.Error("기준 0에서 Fresh() = true")
	}
}
