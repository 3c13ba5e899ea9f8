// internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/domain"
)

const (
	entryTimeKey    = "sentinel:entry_times"   // 해시: 포지션 키 → 진입 시각(ms)
	tradeHistoryKey = "sentinel:trade_history" // 리스트: 청산 기록 JSON
	tradeHistoryMax = 1000                     // 보관할 최대 청산 기록 수
)

// Redis는 레디스 기반 영속 저장소입니다
// 연결에 실패하면 인메모리 폴백으로 동작하며, 이 경우 재시작 시 장부가 초기화됩니다
type Redis struct {
	client   *redis.Client
	fallback *Memory
	logger   zerolog.Logger
	useRedis bool
}

// NewRedis는 레디스 저장소를 생성합니다
// 연결 확인에 실패해도 에러를 반환하지 않고 인메모리 폴백으로 전환합니다
func NewRedis(addr, password string, db int, logger zerolog.Logger) *Redis {
	s := &Redis{
		fallback: NewMemory(),
		logger:   logger,
	}

	if addr == "" {
		logger.Info().Msg("레디스 주소 미설정, 인메모리 저장소로 동작")
		return s
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("레디스 연결 실패, 인메모리 폴백으로 전환")
		_ = client.Close()
		return s
	}

	s.client = client
	s.useRedis = true
	logger.Info().Str("addr", addr).Msg("레디스 저장소 연결 완료")
	return s
}

// PersistEntryTime은 포지션 진입 시각을 저장합니다
func (s *Redis) PersistEntryTime(ctx context.Context, key string, ts time.Time) error {
	if !s.useRedis {
		return s.fallback.PersistEntryTime(ctx, key, ts)
	}

	if err := s.client.HSet(ctx, entryTimeKey, key, ts.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("진입 시각 저장 실패: %w", err)
	}
	return nil
}

// DeleteEntryTime은 저장된 진입 시각을 삭제합니다
func (s *Redis) DeleteEntryTime(ctx context.Context, key string) error {
	if !s.useRedis {
		return s.fallback.DeleteEntryTime(ctx, key)
	}

	if err := s.client.HDel(ctx, entryTimeKey, key).Err(); err != nil {
		return fmt.Errorf("진입 시각 삭제 실패: %w", err)
	}
	return nil
}

// LoadEntryTimes는 저장된 모든 진입 시각을 불러옵니다
func (s *Redis) LoadEntryTimes(ctx context.Context) (map[string]time.Time, error) {
	if !s.useRedis {
		return s.fallback.LoadEntryTimes(ctx)
	}

	raw, err := s.client.HGetAll(ctx, entryTimeKey).Result()
	if err != nil {
		return nil, fmt.Errorf("진입 시각 조회 실패: %w", err)
	}

	out := make(map[string]time.Time, len(raw))
	for key, val := range raw {
		ms, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			s.logger.Warn().Str("key", key).Str("value", val).Msg("손상된 진입 시각 기록 무시")
			continue
		}
		out[key] = time.UnixMilli(ms)
	}
	return out, nil
}

// RecordClose는 청산 기록을 리스트 앞에 추가하고 보관 한도를 유지합니다
func (s *Redis) RecordClose(ctx context.Context, result domain.TradeResult) error {
	if !s.useRedis {
		return s.fallback.RecordClose(ctx, result)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("청산 기록 직렬화 실패: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, tradeHistoryKey, data)
	pipe.LTrim(ctx, tradeHistoryKey, 0, tradeHistoryMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("청산 기록 저장 실패: %w", err)
	}
	return nil
}

// Close는 레디스 연결을 정리합니다
func (s *Redis) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
