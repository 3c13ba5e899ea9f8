// internal/feed/stream.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/domain"
)

// ListenKeyProvider는 유저 데이터 스트림 연결에 필요한 기능을 정의합니다
type ListenKeyProvider interface {
	CreateListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context) error
	StreamBaseURL() string
}

// Config는 스트림 동작 설정을 정의합니다
type Config struct {
	InitialReconnectWait time.Duration // 재연결 초기 대기 시간
	MaxReconnectWait     time.Duration // 재연결 최대 대기 시간
	KeepAliveInterval    time.Duration // 리슨키 연장 주기
}

// DefaultConfig는 기본 스트림 설정을 반환합니다
func DefaultConfig() Config {
	return Config{
		InitialReconnectWait: time.Second,
		MaxReconnectWait:     time.Minute,
		KeepAliveInterval:    30 * time.Minute,
	}
}

// Stream은 바이낸스 유저 데이터 스트림을 구독해 포지션 스냅샷을 갱신합니다
// 연결이 끊어지면 지수 백오프로 재연결을 반복합니다
type Stream struct {
	provider ListenKeyProvider
	snapshot *Snapshot
	cfg      Config
	logger   zerolog.Logger

	wg sync.WaitGroup
}

// NewStream은 새로운 유저 데이터 스트림을 생성합니다
func NewStream(provider ListenKeyProvider, snapshot *Snapshot, cfg Config, logger zerolog.Logger) *Stream {
	return &Stream{
		provider: provider,
		snapshot: snapshot,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start는 스트림 처리 루프를 시작합니다
// ctx가 취소될 때까지 연결/수신/재연결을 반복합니다
func (s *Stream) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Wait는 스트림 루프가 종료될 때까지 대기합니다
func (s *Stream) Wait() {
	s.wg.Wait()
}

// run은 연결 수명주기를 관리합니다
func (s *Stream) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialReconnectWait
	bo.MaxInterval = s.cfg.MaxReconnectWait
	bo.MaxElapsedTime = 0 // 프로세스가 살아 있는 한 재연결을 포기하지 않습니다

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.connectAndListen(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			wait := bo.NextBackOff()
			s.logger.Warn().Err(err).Dur("retry_in", wait).Msg("스트림 연결 끊김, 재연결 대기")

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}

		bo.Reset()
	}
}

// connectAndListen은 리슨키를 발급받아 웹소켓을 연결하고 이벤트를 수신합니다
func (s *Stream) connectAndListen(ctx context.Context) error {
	listenKey, err := s.provider.CreateListenKey(ctx)
	if err != nil {
		return fmt.Errorf("리슨키 발급 실패: %w", err)
	}

	wsURL := s.provider.StreamBaseURL() + "/ws/" + listenKey
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("웹소켓 연결 실패: %w", err)
	}
	defer conn.Close()

	s.logger.Info().Msg("유저 데이터 스트림 연결 완료")

	// ctx 취소 시 읽기 블록을 깨기 위해 연결을 닫습니다
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// 리슨키 주기적 연장
	keepAlive := time.NewTicker(s.cfg.KeepAliveInterval)
	defer keepAlive.Stop()
	go func() {
		for {
			select {
			case <-keepAlive.C:
				if err := s.provider.KeepAliveListenKey(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("리슨키 연장 실패")
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("스트림 수신 실패: %w", err)
		}

		s.handleMessage(message)
	}
}

// accountUpdateEvent는 ACCOUNT_UPDATE 이벤트의 포지션 부분입니다
// 바이낸스 스트림은 축약된 필드명을 사용합니다
type accountUpdateEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Update    struct {
		Positions []struct {
			Symbol         string `json:"s"`
			PositionAmount string `json:"pa"`
			EntryPrice     string `json:"ep"`
			UnrealizedPnL  string `json:"up"`
			PositionSide   string `json:"ps"`
		} `json:"P"`
	} `json:"a"`
}

// handleMessage는 수신한 이벤트를 스냅샷에 반영합니다
func (s *Stream) handleMessage(message []byte) {
	var probe struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(message, &probe); err != nil {
		s.logger.Debug().Err(err).Msg("스트림 메시지 파싱 실패, 무시")
		return
	}

	if probe.EventType != "ACCOUNT_UPDATE" {
		return
	}

	var event accountUpdateEvent
	if err := json.Unmarshal(message, &event); err != nil {
		s.logger.Warn().Err(err).Msg("ACCOUNT_UPDATE 파싱 실패")
		return
	}

	positions := make([]domain.Position, 0, len(event.Update.Positions))
	for _, p := range event.Update.Positions {
		amount, err := strconv.ParseFloat(p.PositionAmount, 64)
		if err != nil {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		upnl, _ := strconv.ParseFloat(p.UnrealizedPnL, 64)

		positions = append(positions, domain.Position{
			Symbol:        p.Symbol,
			PositionSide:  domain.PositionSide(p.PositionSide),
			Quantity:      amount,
			EntryPrice:    entry,
			UnrealizedPnL: upnl,
		})
	}

	if len(positions) > 0 {
		s.snapshot.Apply(positions)
		s.logger.Debug().Int("positions", len(positions)).Msg("스냅샷 갱신")
	}
}
