package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// 바이낸스 API 설정
	Binance struct {
		APIKey        string        `envconfig:"BINANCE_API_KEY" required:"true"`
		SecretKey     string        `envconfig:"BINANCE_SECRET_KEY" required:"true"`
		TestAPIKey    string        `envconfig:"BINANCE_TEST_API_KEY"`
		TestSecretKey string        `envconfig:"BINANCE_TEST_SECRET_KEY"`
		UseTestnet    bool          `envconfig:"USE_TESTNET" default:"false"`
		Timeout       time.Duration `envconfig:"BINANCE_TIMEOUT" default:"10s"`
		// 시작 시 강제할 포지션 모드 (hedge/oneway, 비어 있으면 계정 설정 유지)
		PositionMode string `envconfig:"BINANCE_POSITION_MODE"`
	}

	// 디스코드 웹훅 설정
	Discord struct {
		ErrorWebhook string `envconfig:"DISCORD_ERROR_WEBHOOK"`
		InfoWebhook  string `envconfig:"DISCORD_INFO_WEBHOOK"`
		TradeWebhook string `envconfig:"DISCORD_TRADE_WEBHOOK"`
	}

	// 요청 속도 제한 설정
	RateLimit struct {
		MaxRequests int           `envconfig:"RATE_MAX_REQUESTS" default:"1100"`
		TimeWindow  time.Duration `envconfig:"RATE_TIME_WINDOW" default:"1m"`
	}

	// 서킷 브레이커 설정
	Breaker struct {
		WarningThreshold  int           `envconfig:"BREAKER_WARNING_THRESHOLD" default:"3"`
		ThrottleThreshold int           `envconfig:"BREAKER_THROTTLE_THRESHOLD" default:"5"`
		BlockThreshold    int           `envconfig:"BREAKER_BLOCK_THRESHOLD" default:"8"`
		ThrottleDelay     time.Duration `envconfig:"BREAKER_THROTTLE_DELAY" default:"2s"`
		OpenTimeout       time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"60s"`
	}

	// 포지션 안전 모니터 설정
	Safety struct {
		CheckInterval      time.Duration `envconfig:"SAFETY_CHECK_INTERVAL" default:"60s"`
		MarginRatioLimit   float64       `envconfig:"SAFETY_MARGIN_RATIO_LIMIT" default:"0.85"`
		MarginCooldown     time.Duration `envconfig:"SAFETY_MARGIN_COOLDOWN" default:"5m"`
		MaxHoldingDuration time.Duration `envconfig:"SAFETY_MAX_HOLDING" default:"24h"`
		CloseMaxRetries    int           `envconfig:"SAFETY_CLOSE_MAX_RETRIES" default:"3"`
		CloseBaseDelay     time.Duration `envconfig:"SAFETY_CLOSE_BASE_DELAY" default:"1s"`
	}

	// 리스크 상태 머신 설정
	Risk struct {
		CautionDrawdown    float64 `envconfig:"RISK_CAUTION_DRAWDOWN" default:"0.05"`
		AverseDrawdown     float64 `envconfig:"RISK_AVERSE_DRAWDOWN" default:"0.10"`
		ShutdownDrawdown   float64 `envconfig:"RISK_SHUTDOWN_DRAWDOWN" default:"0.15"`
		CautionLossStreak  int     `envconfig:"RISK_CAUTION_LOSSES" default:"3"`
		AverseLossStreak   int     `envconfig:"RISK_AVERSE_LOSSES" default:"5"`
		ShutdownLossStreak int     `envconfig:"RISK_SHUTDOWN_LOSSES" default:"7"`
		RecoveryWinStreak  int     `envconfig:"RISK_RECOVERY_WINS" default:"2"`
	}

	// 영속 저장소 설정 (비어 있으면 메모리 저장소 사용)
	Store struct {
		RedisAddr     string        `envconfig:"REDIS_ADDR"`
		RedisPassword string        `envconfig:"REDIS_PASSWORD"`
		RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
		Timeout       time.Duration `envconfig:"REDIS_TIMEOUT" default:"2s"`
	}

	// 실시간 포지션 피드 설정
	Feed struct {
		Enabled           bool          `envconfig:"FEED_ENABLED" default:"true"`
		ReconnectBaseWait time.Duration `envconfig:"FEED_RECONNECT_BASE_WAIT" default:"1s"`
		ReconnectMaxWait  time.Duration `envconfig:"FEED_RECONNECT_MAX_WAIT" default:"1m"`
		StaleAfter        time.Duration `envconfig:"FEED_STALE_AFTER" default:"30s"`
	}

	// 애플리케이션 설정
	App struct {
		LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
		LogFormat   string `envconfig:"LOG_FORMAT" default:"console"`
		MetricsAddr string `envconfig:"METRICS_ADDR" default:":9100"`
	}
}

// ValidateConfig는 설정이 유효한지 확인합니다.
func ValidateConfig(cfg *Config) error {
	if cfg.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("RATE_MAX_REQUESTS는 1 이상이어야 합니다")
	}

	if cfg.RateLimit.TimeWindow < time.Second {
		return fmt.Errorf("RATE_TIME_WINDOW는 1초 이상이어야 합니다")
	}

	if cfg.Breaker.WarningThreshold >= cfg.Breaker.ThrottleThreshold ||
		cfg.Breaker.ThrottleThreshold >= cfg.Breaker.BlockThreshold {
		return fmt.Errorf("브레이커 임계값은 warning < throttle < block 순이어야 합니다")
	}

	switch cfg.Binance.PositionMode {
	case "", "hedge", "oneway":
	default:
		return fmt.Errorf("BINANCE_POSITION_MODE는 hedge 또는 oneway여야 합니다")
	}

	if cfg.Safety.MarginRatioLimit <= 0 || cfg.Safety.MarginRatioLimit >= 1 {
		return fmt.Errorf("SAFETY_MARGIN_RATIO_LIMIT은 0과 1 사이여야 합니다")
	}

	if cfg.Safety.CheckInterval < time.Second {
		return fmt.Errorf("SAFETY_CHECK_INTERVAL은 1초 이상이어야 합니다")
	}

	if cfg.Safety.CloseMaxRetries < 1 {
		return fmt.Errorf("SAFETY_CLOSE_MAX_RETRIES는 1 이상이어야 합니다")
	}

	if !(cfg.Risk.CautionDrawdown < cfg.Risk.AverseDrawdown &&
		cfg.Risk.AverseDrawdown < cfg.Risk.ShutdownDrawdown) {
		return fmt.Errorf("리스크 드로다운 임계값은 caution < averse < shutdown 순이어야 합니다")
	}

	if !(cfg.Risk.CautionLossStreak < cfg.Risk.AverseLossStreak &&
		cfg.Risk.AverseLossStreak < cfg.Risk.ShutdownLossStreak) {
		return fmt.Errorf("리스크 연속 손실 임계값은 caution < averse < shutdown 순이어야 합니다")
	}

	return nil
}

// LoadConfig는 환경변수에서 설정을 로드합니다.
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (없으면 환경변수만 사용)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf(".env 파일 로드 실패: %w", err)
	}

	var cfg Config
	// 환경변수를 구조체로 파싱
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("환경변수 처리 실패: %w", err)
	}

	// 설정값 검증
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("설정값 검증 실패: %w", err)
	}

	return &cfg, nil
}
