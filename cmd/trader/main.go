package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/breaker"
	"github.com/assist-by/sentinel/internal/config"
	"github.com/assist-by/sentinel/internal/domain"
	eBinance "github.com/assist-by/sentinel/internal/exchange/binance"
	"github.com/assist-by/sentinel/internal/feed"
	"github.com/assist-by/sentinel/internal/logging"
	"github.com/assist-by/sentinel/internal/notification"
	"github.com/assist-by/sentinel/internal/notification/discord"
	pBinance "github.com/assist-by/sentinel/internal/position/binance"
	"github.com/assist-by/sentinel/internal/ratelimit"
	"github.com/assist-by/sentinel/internal/risk"
	"github.com/assist-by/sentinel/internal/safety"
	"github.com/assist-by/sentinel/internal/scheduler"
	"github.com/assist-by/sentinel/internal/store"
	"github.com/assist-by/sentinel/internal/strategy"
)

// riskAwareStore는 청산 기록을 저장하면서 리스크 상태 머신을 갱신합니다
type riskAwareStore struct {
	store.Store
	machine *risk.Machine
	exch    *eBinance.Client
	logger  zerolog.Logger
}

// RecordClose는 청산 기록 저장 후 현재 자산 기준으로 리스크 상태를 갱신합니다
func (s *riskAwareStore) RecordClose(ctx context.Context, result domain.TradeResult) error {
	err := s.Store.RecordClose(ctx, result)

	summary, serr := s.exch.GetAccountSummary(ctx)
	if serr != nil {
		s.logger.Warn().Err(serr).Msg("리스크 갱신용 계정 조회 실패, 손익만 반영")
		if s.machine.UpdatePnL(result.RealizedPnL) {
			s.logger.Warn().
				Str("state", s.machine.State().String()).
				Msg("청산 결과로 리스크 상태 변경")
		}
		return err
	}

	if s.machine.Update(summary.TotalMarginBalance, result.RealizedPnL) {
		s.logger.Warn().
			Str("state", s.machine.State().String()).
			Msg("청산 결과로 리스크 상태 변경")
	}
	return err
}

func main() {
	// 명령줄 플래그 정의
	testAlertFlag := flag.Bool("testalert", false, "디스코드 알림 테스트 후 종료")
	flag.Parse()

	// 컨텍스트 생성
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 설정 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "설정 로드 실패: %v\n", err)
		os.Exit(1)
	}

	// 로거 설정
	logger := logging.New(cfg.App.LogLevel, cfg.App.LogFormat)
	logger.Info().Msg("포지션 안전 모니터 시작...")

	// Discord 알림 클라이언트 생성
	var notifier notification.Notifier = notification.Noop{}
	if cfg.Discord.InfoWebhook != "" || cfg.Discord.ErrorWebhook != "" || cfg.Discord.TradeWebhook != "" {
		notifier = discord.NewClient(
			cfg.Discord.InfoWebhook,
			cfg.Discord.ErrorWebhook,
			cfg.Discord.TradeWebhook,
			discord.WithTimeout(10*time.Second),
		)
	}

	if *testAlertFlag {
		if err := notifier.SendInfo(ctx, "🛡️ 알림 테스트입니다."); err != nil {
			logger.Fatal().Err(err).Msg("알림 테스트 실패")
		}
		logger.Info().Msg("알림 테스트 완료")
		return
	}

	// 시작 알림 전송
	if err := notifier.SendInfo(ctx, "🛡️ 포지션 안전 모니터가 시작되었습니다."); err != nil {
		logger.Warn().Err(err).Msg("시작 알림 전송 실패")
	}

	// API 키 선택
	apiKey := cfg.Binance.APIKey
	secretKey := cfg.Binance.SecretKey
	if cfg.Binance.UseTestnet {
		apiKey = cfg.Binance.TestAPIKey
		secretKey = cfg.Binance.TestSecretKey
		notifier.SendInfo(ctx, "⚠️ 테스트넷 모드로 실행 중입니다. 실제 자산은 사용되지 않습니다.")
	} else {
		notifier.SendInfo(ctx, "⚠️ 메인넷 모드로 실행 중입니다. 실제 자산이 사용됩니다!")
	}

	// 요청 속도 제한기와 서킷 브레이커 생성
	limiter := ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.TimeWindow)

	brk := breaker.New(breaker.Config{
		WarningThreshold:  cfg.Breaker.WarningThreshold,
		ThrottleThreshold: cfg.Breaker.ThrottleThreshold,
		BlockThreshold:    cfg.Breaker.BlockThreshold,
		ThrottleDelay:     cfg.Breaker.ThrottleDelay,
		OpenTimeout:       cfg.Breaker.OpenTimeout,
		Whitelist:         []domain.OperationType{domain.OpClosePosition},
	}, logging.Component(logger, "breaker"))

	// 바이낸스 클라이언트 생성
	binanceClient := eBinance.NewClient(
		apiKey,
		secretKey,
		limiter,
		brk,
		logging.Component(logger, "binance"),
		eBinance.WithTimeout(cfg.Binance.Timeout),
		eBinance.WithTestnet(cfg.Binance.UseTestnet),
	)

	// 바이낸스 서버와 시간 동기화
	if err := binanceClient.SyncTime(ctx); err != nil {
		logger.Error().Err(err).Msg("바이낸스 서버 시간 동기화 실패")
		if nerr := notifier.SendError(ctx, fmt.Errorf("바이낸스 서버 시간 동기화 실패: %w", err)); nerr != nil {
			logger.Warn().Err(nerr).Msg("에러 알림 전송 실패")
		}
		os.Exit(1)
	}

	// 설정이 포지션 모드를 강제하면 시작 시 맞춰 둡니다
	if cfg.Binance.PositionMode != "" {
		hedge := cfg.Binance.PositionMode == "hedge"
		if err := binanceClient.SetPositionMode(ctx, hedge); err != nil {
			logger.Fatal().Err(err).Str("mode", cfg.Binance.PositionMode).Msg("포지션 모드 설정 실패")
		}
	}

	// 영속 저장소 생성
	baseStore := store.NewRedis(
		cfg.Store.RedisAddr,
		cfg.Store.RedisPassword,
		cfg.Store.RedisDB,
		logging.Component(logger, "store"),
	)
	defer baseStore.Close()

	// 리스크 상태 머신 생성
	riskMachine := risk.NewMachine(risk.Config{
		CautiousDrawdown:     cfg.Risk.CautionDrawdown,
		RiskAverseDrawdown:   cfg.Risk.AverseDrawdown,
		ShutdownDrawdown:     cfg.Risk.ShutdownDrawdown,
		CautiousLossStreak:   cfg.Risk.CautionLossStreak,
		RiskAverseLossStreak: cfg.Risk.AverseLossStreak,
		ShutdownLossStreak:   cfg.Risk.ShutdownLossStreak,
		RecoveryWinStreak:    cfg.Risk.RecoveryWinStreak,
	}, logging.Component(logger, "risk"))

	// 청산 기록이 리스크 상태에 반영되도록 저장소를 감쌉니다
	sentinelStore := &riskAwareStore{
		Store:   baseStore,
		machine: riskMachine,
		exch:    binanceClient,
		logger:  logging.Component(logger, "risk"),
	}

	// 실시간 포지션 스냅샷과 유저 데이터 스트림 생성
	var snapshot *feed.Snapshot
	var stream *feed.Stream
	if cfg.Feed.Enabled {
		snapshot = feed.NewSnapshot()
		stream = feed.NewStream(binanceClient, snapshot, feed.Config{
			InitialReconnectWait: cfg.Feed.ReconnectBaseWait,
			MaxReconnectWait:     cfg.Feed.ReconnectMaxWait,
			KeepAliveInterval:    30 * time.Minute,
		}, logging.Component(logger, "feed"))
		stream.Start(ctx)
	}

	// 포지션 실행기 생성
	executor := pBinance.NewExecutor(binanceClient, logging.Component(logger, "position"))

	// 안전 모니터 생성 및 시작
	controller := safety.NewController(safety.Config{
		CheckInterval:      cfg.Safety.CheckInterval,
		MarginRatioLimit:   cfg.Safety.MarginRatioLimit,
		MarginCooldown:     cfg.Safety.MarginCooldown,
		MaxHoldingDuration: cfg.Safety.MaxHoldingDuration,
		CloseMaxRetries:    cfg.Safety.CloseMaxRetries,
		CloseBaseDelay:     cfg.Safety.CloseBaseDelay,
		SnapshotStaleAfter: cfg.Feed.StaleAfter,
	}, binanceClient, executor, strategy.HoldAll{}, sentinelStore, snapshot, notifier, logging.Component(logger, "safety"))

	if err := controller.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("안전 모니터 시작 실패")
	}

	// 주기적 시간 재동기화 (드리프트 누적 방지)
	syncScheduler := scheduler.NewScheduler(time.Hour, scheduler.TaskFunc(func(ctx context.Context) error {
		return binanceClient.SyncTime(ctx)
	}), logging.Component(logger, "scheduler"))
	go func() {
		if err := syncScheduler.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("시간 동기화 스케줄러 종료")
		}
	}()

	// 지표 서버 시작
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.App.MetricsAddr, mux); err != nil {
			logger.Error().Err(err).Str("addr", cfg.App.MetricsAddr).Msg("지표 서버 종료")
		}
	}()

	// 종료 시그널 대기
	sigChan := make(chan os.Signal, 1)
	osSignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("종료 시그널 수신, 정리 시작")

	// 점검 루프를 먼저 멈추고, 진행 중인 긴급 청산은 완료를 기다립니다
	controller.Stop()
	syncScheduler.Stop()
	cancel()
	controller.WaitEmergencyCloses()
	if stream != nil {
		stream.Wait()
	}

	stats := controller.GetStats()
	logger.Info().
		Int64("checks", stats.Checks).
		Int64("closes", stats.Closes).
		Int64("emergency_closes", stats.EmergencyCloses).
		Msg("안전 모니터 종료 완료")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := notifier.SendInfo(shutdownCtx, "🛑 포지션 안전 모니터가 종료되었습니다."); err != nil {
		logger.Warn().Err(err).Msg("종료 알림 전송 실패")
	}
}
