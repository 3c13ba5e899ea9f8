// internal/risk/machine.go
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/metrics"
)

// State는 계정의 위험 상태를 정의합니다
type State int

const (
	StateNormal     State = iota // 정상 거래
	StateCautious                // 주의 (포지션 축소)
	StateRiskAverse              // 위험 회피 (최소 거래)
	StateShutdown                // 신규 진입 금지
)

// String은 State의 문자열 표현을 반환합니다
func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateCautious:
		return "CAUTIOUS"
	case StateRiskAverse:
		return "RISK_AVERSE"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Profile은 위험 상태별 거래 제한을 정의합니다
type Profile struct {
	RiskMultiplier float64 // 포지션 크기 배율
	MaxPositions   int     // 동시 보유 가능 포지션 수
	MinConfidence  float64 // 진입에 요구되는 최소 신호 확신도
	AllowedToOpen  bool    // 신규 진입 허용 여부
}

// 상태별 프로파일 정의
// SHUTDOWN은 진입을 완전히 차단합니다
var profiles = map[State]Profile{
	StateNormal:     {RiskMultiplier: 1.0, MaxPositions: 3, MinConfidence: 0.6, AllowedToOpen: true},
	StateCautious:   {RiskMultiplier: 0.5, MaxPositions: 2, MinConfidence: 0.7, AllowedToOpen: true},
	StateRiskAverse: {RiskMultiplier: 0.25, MaxPositions: 1, MinConfidence: 0.85, AllowedToOpen: true},
	StateShutdown:   {RiskMultiplier: 0, MaxPositions: 0, MinConfidence: 1.0, AllowedToOpen: false},
}

// Config는 상태 전이 기준을 정의합니다
type Config struct {
	CautiousDrawdown   float64 // CAUTIOUS 진입 낙폭 비율
	RiskAverseDrawdown float64 // RISK_AVERSE 진입 낙폭 비율
	ShutdownDrawdown   float64 // SHUTDOWN 진입 낙폭 비율

	CautiousLossStreak   int // CAUTIOUS 진입 연속 손실 횟수
	RiskAverseLossStreak int // RISK_AVERSE 진입 연속 손실 횟수
	ShutdownLossStreak   int // SHUTDOWN 진입 연속 손실 횟수

	RecoveryWinStreak int // NORMAL 복귀에 필요한 연속 수익 횟수
}

// DefaultConfig는 기본 전이 기준을 반환합니다
func DefaultConfig() Config {
	return Config{
		CautiousDrawdown:     0.05,
		RiskAverseDrawdown:   0.10,
		ShutdownDrawdown:     0.15,
		CautiousLossStreak:   3,
		RiskAverseLossStreak: 5,
		ShutdownLossStreak:   7,
		RecoveryWinStreak:    2,
	}
}

// Machine은 거래 결과에 따라 위험 상태를 관리하는 상태 머신입니다
// 상태는 낙폭/연속 손실 기준으로만 악화되고, 연속 수익이 쌓여야 복귀합니다.
// 단일 데이터 포인트로 상태가 흔들리지 않도록 하기 위한 구조입니다.
type Machine struct {
	cfg    Config
	logger zerolog.Logger

	mu          sync.Mutex
	state       State
	peakEquity  float64
	lastEquity  float64
	lossStreak  int
	winStreak   int
	lastChange  time.Time
	transitions int
}

// NewMachine은 새로운 위험 상태 머신을 생성합니다
func NewMachine(cfg Config, logger zerolog.Logger) *Machine {
	return &Machine{
		cfg:    cfg,
		logger: logger,
		state:  StateNormal,
	}
}

// Update는 청산된 거래의 결과를 반영하고 상태 변경 여부를 반환합니다
// 악화 조건은 심각한 순서대로 먼저 검사하고, 해당 없으면 복귀 조건을 검사합니다.
// 자산이 0 이하로 보고되면 조회 실패로 간주하여 낙폭 평가에서 제외합니다
func (m *Machine) Update(currentEquity, lastTradePnL float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if currentEquity > m.peakEquity {
		m.peakEquity = currentEquity
	}
	if currentEquity > 0 {
		m.lastEquity = currentEquity
	}

	return m.apply(lastTradePnL)
}

// UpdatePnL은 자산 조회에 실패했을 때 거래 손익만 반영합니다
// 낙폭은 마지막으로 알려진 자산 기준으로 평가되므로 일시적인 조회 실패가
// 낙폭을 과장해 상태를 악화시키지 않습니다
func (m *Machine) UpdatePnL(lastTradePnL float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apply(lastTradePnL)
}

// apply는 손익을 반영하고 상태를 재계산합니다 (락 보유 상태에서 호출)
func (m *Machine) apply(lastTradePnL float64) bool {
	// 1. 마지막으로 알려진 자산 기준 낙폭 계산
	drawdown := 0.0
	if m.peakEquity > 0 && m.lastEquity > 0 {
		drawdown = (m.peakEquity - m.lastEquity) / m.peakEquity
	}

	// 2. 연속 손익 카운터 갱신
	if lastTradePnL < 0 {
		m.lossStreak++
		m.winStreak = 0
	} else if lastTradePnL > 0 {
		m.winStreak++
		m.lossStreak = 0
	}

	// 3. 악화 조건을 심각한 순서대로 검사
	next := m.state
	switch {
	case drawdown >= m.cfg.ShutdownDrawdown || m.lossStreak >= m.cfg.ShutdownLossStreak:
		next = StateShutdown
	case drawdown >= m.cfg.RiskAverseDrawdown || m.lossStreak >= m.cfg.RiskAverseLossStreak:
		next = StateRiskAverse
	case drawdown >= m.cfg.CautiousDrawdown || m.lossStreak >= m.cfg.CautiousLossStreak:
		next = StateCautious
	default:
		// 4. 악화 조건이 없을 때만 복귀를 허용합니다
		if m.winStreak >= m.cfg.RecoveryWinStreak {
			next = StateNormal
		}
	}

	// 악화 조건이 현재보다 완화된 상태를 가리켜도 내려가지 않습니다
	if next < m.state && m.winStreak < m.cfg.RecoveryWinStreak {
		next = m.state
	}

	if next == m.state {
		return false
	}

	m.logger.Warn().
		Str("from", m.state.String()).
		Str("to", next.String()).
		Float64("drawdown", drawdown).
		Int("loss_streak", m.lossStreak).
		Int("win_streak", m.winStreak).
		Msg("위험 상태 전환")

	m.state = next
	m.lastChange = time.Now()
	m.transitions++
	metrics.RiskState.Set(float64(next))

	return true
}

// State는 현재 위험 상태를 반환합니다
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Profile은 현재 상태의 거래 제한 프로파일을 반환합니다
func (m *Machine) Profile() Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return profiles[m.state]
}

// GetRiskMultiplier는 현재 상태의 포지션 크기 배율을 반환합니다
func (m *Machine) GetRiskMultiplier() float64 {
	return m.Profile().RiskMultiplier
}

// GetMinConfidence는 진입에 요구되는 최소 신호 확신도를 반환합니다
func (m *Machine) GetMinConfidence() float64 {
	return m.Profile().MinConfidence
}

// CanOpenPosition은 신규 진입이 허용되는지 반환합니다
func (m *Machine) CanOpenPosition() bool {
	return m.Profile().AllowedToOpen
}

// Drawdown은 최고 자산 대비 현재 낙폭 비율을 반환합니다
func (m *Machine) Drawdown(currentEquity float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peakEquity <= 0 {
		return 0
	}
	return (m.peakEquity - currentEquity) / m.peakEquity
}

// ForceReset은 상태 머신을 NORMAL로 강제 복구합니다 (운영자 개입용)
func (m *Machine) ForceReset() {
	m.mu.Lock()
	m.state = StateNormal
	m.lossStreak = 0
	m.winStreak = 0
	m.peakEquity = 0
	m.lastEquity = 0
	m.lastChange = time.Now()
	m.mu.Unlock()

	metrics.RiskState.Set(float64(StateNormal))
	m.logger.Info().Msg("위험 상태 수동 초기화")
}
