package safety

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/store"
	"github.com/assist-by/sentinel/internal/strategy"
)

// fakeExchange는 계정 요약만 제어하는 거래소 스텁입니다
type fakeExchange struct {
	summary domain.AccountSummary
}

func (f *fakeExchange) GetServerTime(ctx context.Context) (time.Time, error) { return time.Now(), nil }
func (f *fakeExchange) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	return &domain.SymbolInfo{Symbol: symbol}, nil
}
func (f *fakeExchange) GetBalance(ctx context.Context) (map[string]domain.Balance, error) {
	return nil, nil
}
func (f *fakeExchange) GetAccountSummary(ctx context.Context) (*domain.AccountSummary, error) {
	s := f.summary
	return &s, nil
}
func (f *fakeExchange) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}
func (f *fakeExchange) GetOpenOrders(ctx context.Context, symbol string) ([]domain.OrderResponse, error) {
	return nil, nil
}
func (f *fakeExchange) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResponse, error) {
	return &domain.OrderResponse{}, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return nil
}
func (f *fakeExchange) SyncTime(ctx context.Context) error { return nil }

// fakeExecutor는 청산/보호 주문 호출을 기록하는 실행기입니다
type fakeExecutor struct {
	mu         sync.Mutex
	positions  []domain.Position
	closeDelay time.Duration
	failAll    bool

	closed     []string
	attempts   int
	adjustedSL map[string]float64
	adjustedTP map[string]float64
}

func newFakeExecutor(positions ...domain.Position) *fakeExecutor {
	return &fakeExecutor{
		positions:  positions,
		adjustedSL: make(map[string]float64),
		adjustedTP: make(map[string]float64),
	}
}

func (f *fakeExecutor) GetActivePositions(ctx context.Context) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeExecutor) ClosePosition(ctx context.Context, pos domain.Position, critical bool) (*domain.TradeResult, error) {
	if f.closeDelay > 0 {
		time.Sleep(f.closeDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++

	if f.failAll {
		return nil, errors.New("청산 주문 거부")
	}

	f.closed = append(f.closed, pos.Key())
	return &domain.TradeResult{
		Symbol:       pos.Symbol,
		PositionSide: pos.PositionSide,
		Quantity:     pos.Quantity,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    pos.MarkPrice,
		RealizedPnL:  pos.UnrealizedPnL,
		OpenedAt:     pos.OpenTime,
		ClosedAt:     time.Now(),
	}, nil
}

func (f *fakeExecutor) EnsureProtection(ctx context.Context, pos domain.Position, sl, tp float64) error {
	return nil
}

func (f *fakeExecutor) AdjustStopLoss(ctx context.Context, pos domain.Position, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adjustedSL[pos.Key()] = price
	return nil
}

func (f *fakeExecutor) AdjustTakeProfit(ctx context.Context, pos domain.Position, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adjustedTP[pos.Key()] = price
	return nil
}

func (f *fakeExecutor) CancelAllOrders(ctx context.Context, symbol string) error { return nil }

func (f *fakeExecutor) closedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.closed))
	copy(out, f.closed)
	return out
}

func (f *fakeExecutor) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// fakeNotifier는 전송된 알림을 기록합니다
type fakeNotifier struct {
	mu     sync.Mutex
	errs   []error
	infos  []string
	trades []domain.TradeResult
}

func (f *fakeNotifier) SendInfo(ctx context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos = append(f.infos, msg)
	return nil
}

func (f *fakeNotifier) SendError(ctx context.Context, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	return nil
}

func (f *fakeNotifier) SendTradeInfo(ctx context.Context, result domain.TradeResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, result)
	return nil
}

func (f *fakeNotifier) errorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

func testSafetyConfig() Config {
	return Config{
		CheckInterval:      time.Hour, // 테스트는 check를 직접 호출합니다
		MarginRatioLimit:   0.85,
		MarginCooldown:     5 * time.Minute,
		MaxHoldingDuration: 24 * time.Hour,
		CloseMaxRetries:    3,
		CloseBaseDelay:     time.Millisecond,
		SnapshotStaleAfter: 30 * time.Second,
	}
}

func lowMarginExchange() *fakeExchange {
	return &fakeExchange{summary: domain.AccountSummary{
		TotalWalletBalance: 10000,
		TotalInitialMargin: 1000,
	}}
}

func TestTimeStopClosesExactlyOnce(t *testing.T) {
	pos := domain.Position{
		Symbol:        "BTCUSDT",
		PositionSide:  domain.LongPosition,
		Quantity:      0.5,
		EntryPrice:    42000,
		MarkPrice:     43000,
		UnrealizedPnL: 500, // 수익 중이어도 시간 초과면 청산해야 합니다
	}
	exec := newFakeExecutor(pos)
	exec.closeDelay = 50 * time.Millisecond

	c := NewController(testSafetyConfig(), lowMarginExchange(), exec, nil, store.NewMemory(), nil, &fakeNotifier{}, zerolog.Nop())
	c.entryTimes[pos.Key()] = time.Now().Add(-48 * time.Hour)

	ctx := context.Background()

	// 청산이 진행 중인 동안 두 번째 점검이 와도 중복 청산이 없어야 합니다
	c.check(ctx)
	c.check(ctx)
	c.WaitEmergencyCloses()

	closed := exec.closedKeys()
	if len(closed) != 1 {
		t.Fatalf("청산 횟수 = %d, want 1 (중복 청산 금지)", len(closed))
	}
	if closed[0] != "BTCUSDT/LONG" {
		t.Errorf("청산 대상 = %s, want BTCUSDT/LONG", closed[0])
	}

	stats := c.GetStats()
	if stats.TimeStops != 1 {
		t.Errorf("TimeStops = %d, want 1", stats.TimeStops)
	}
	if stats.Closes != 1 {
		t.Errorf("Closes = %d, want 1", stats.Closes)
	}
}

func TestTimeStopRetriesThenEscalates(t *testing.T) {
	pos := domain.Position{
		Symbol:       "BTCUSDT",
		PositionSide: domain.LongPosition,
		Quantity:     0.5,
	}
	exec := newFakeExecutor(pos)
	exec.failAll = true
	notifier := &fakeNotifier{}

	c := NewController(testSafetyConfig(), lowMarginExchange(), exec, nil, store.NewMemory(), nil, notifier, zerolog.Nop())
	c.entryTimes[pos.Key()] = time.Now().Add(-48 * time.Hour)

	c.check(context.Background())
	c.WaitEmergencyCloses()

	if got := exec.attemptCount(); got != 3 {
		t.Errorf("청산 시도 횟수 = %d, want 3 (재시도 예산)", got)
	}
	if got := notifier.errorCount(); got != 1 {
		t.Errorf("에러 알림 수 = %d, want 1 (예산 소진 시 반드시 알림)", got)
	}
}

func TestCrossMarginClosesWorstLoserOnly(t *testing.T) {
	losing := domain.Position{
		Symbol: "BTCUSDT", PositionSide: domain.LongPosition,
		Quantity: 0.5, UnrealizedPnL: -50,
	}
	winning := domain.Position{
		Symbol: "ETHUSDT", PositionSide: domain.LongPosition,
		Quantity: 2, UnrealizedPnL: 20,
	}
	exec := newFakeExecutor(losing, winning)

	// 마진 사용률 90% > 한도 85%
	exch := &fakeExchange{summary: domain.AccountSummary{
		TotalWalletBalance: 10000,
		TotalInitialMargin: 9000,
	}}

	c := NewController(testSafetyConfig(), exch, exec, nil, store.NewMemory(), nil, &fakeNotifier{}, zerolog.Nop())

	ctx := context.Background()
	c.check(ctx)
	c.WaitEmergencyCloses()

	closed := exec.closedKeys()
	if len(closed) != 1 {
		t.Fatalf("청산 횟수 = %d, want 1", len(closed))
	}
	if closed[0] != "BTCUSDT/LONG" {
		t.Errorf("청산 대상 = %s, want 최대 손실 포지션 BTCUSDT/LONG", closed[0])
	}

	// 쿨다운 중에는 사용률이 여전히 초과여도 다시 발동하지 않아야 합니다
	c.check(ctx)
	c.WaitEmergencyCloses()

	if got := len(exec.closedKeys()); got != 1 {
		t.Errorf("쿨다운 중 추가 청산 발생: 총 %d회, want 1회", got)
	}

	stats := c.GetStats()
	if stats.CrossMarginProtections != 1 {
		t.Errorf("CrossMarginProtections = %d, want 1", stats.CrossMarginProtections)
	}
}

func TestCrossMarginSkipsWhenNoLoser(t *testing.T) {
	winning := domain.Position{
		Symbol: "ETHUSDT", PositionSide: domain.LongPosition,
		Quantity: 2, UnrealizedPnL: 20,
	}
	exec := newFakeExecutor(winning)
	exch := &fakeExchange{summary: domain.AccountSummary{
		TotalWalletBalance: 10000,
		TotalInitialMargin: 9000,
	}}

	c := NewController(testSafetyConfig(), exch, exec, nil, store.NewMemory(), nil, &fakeNotifier{}, zerolog.Nop())
	c.check(context.Background())
	c.WaitEmergencyCloses()

	if got := len(exec.closedKeys()); got != 0 {
		t.Errorf("손실 포지션이 없는데 %d회 청산됨", got)
	}
}

// mapEvaluator는 고정된 판단을 반환하는 전략입니다
type mapEvaluator struct {
	decisions map[string]strategy.Decision
}

func (m mapEvaluator) EvaluatePositions(ctx context.Context, positions []domain.Position) (map[string]strategy.Decision, error) {
	return m.decisions, nil
}

func TestStrategyDecisionsExecuted(t *testing.T) {
	closeMe := domain.Position{
		Symbol: "BTCUSDT", PositionSide: domain.LongPosition,
		Quantity: 0.5, UnrealizedPnL: 10,
	}
	adjustMe := domain.Position{
		Symbol: "ETHUSDT", PositionSide: domain.ShortPosition,
		Quantity: -2, UnrealizedPnL: 5,
	}
	exec := newFakeExecutor(closeMe, adjustMe)

	eval := mapEvaluator{decisions: map[string]strategy.Decision{
		"BTCUSDT/LONG":  {Type: strategy.Close},
		"ETHUSDT/SHORT": {Type: strategy.AdjustStopLoss, Price: 2600},
	}}

	c := NewController(testSafetyConfig(), lowMarginExchange(), exec, eval, store.NewMemory(), nil, &fakeNotifier{}, zerolog.Nop())
	c.check(context.Background())
	c.WaitEmergencyCloses()

	closed := exec.closedKeys()
	if len(closed) != 1 || closed[0] != "BTCUSDT/LONG" {
		t.Errorf("전략 청산 대상 = %v, want [BTCUSDT/LONG]", closed)
	}

	exec.mu.Lock()
	slPrice, ok := exec.adjustedSL["ETHUSDT/SHORT"]
	exec.mu.Unlock()
	if !ok || slPrice != 2600 {
		t.Errorf("스탑로스 조정 = (%v, %v), want 2600 적용", slPrice, ok)
	}
}

func TestPositionLifecycleStates(t *testing.T) {
	held := domain.Position{
		Symbol: "BTCUSDT", PositionSide: domain.LongPosition,
		Quantity: 0.5, UnrealizedPnL: -30,
	}
	fresh := domain.Position{
		Symbol: "ETHUSDT", PositionSide: domain.ShortPosition,
		Quantity: -2, UnrealizedPnL: 5,
	}
	exec := newFakeExecutor(held, fresh)
	exec.closeDelay = 50 * time.Millisecond

	eval := mapEvaluator{decisions: map[string]strategy.Decision{
		"ETHUSDT/SHORT": {Type: strategy.AdjustStopLoss, Price: 2600},
	}}

	c := NewController(testSafetyConfig(), lowMarginExchange(), exec, eval, store.NewMemory(), nil, &fakeNotifier{}, zerolog.Nop())
	c.entryTimes[held.Key()] = time.Now().Add(-48 * time.Hour)

	ctx := context.Background()
	c.check(ctx)

	// 시간 초과 포지션은 청산 진행, 보호 주문이 설정된 포지션은 보호 상태여야 합니다
	states := c.PositionStates()
	if got := states["BTCUSDT/LONG"]; got != domain.PositionClosing {
		t.Errorf("청산 중 상태 = %v, want CLOSING", got)
	}
	if got := states["ETHUSDT/SHORT"]; got != domain.PositionProtected {
		t.Errorf("보호 주문 후 상태 = %v, want PROTECTED", got)
	}

	c.WaitEmergencyCloses()
	if got := c.PositionStates()["BTCUSDT/LONG"]; got != domain.PositionClosed {
		t.Errorf("청산 완료 상태 = %v, want CLOSED", got)
	}

	// 포지션이 사라지면 다음 점검에서 상태 장부도 정리되어야 합니다
	exec.mu.Lock()
	exec.positions = nil
	exec.mu.Unlock()
	c.check(ctx)

	if got := len(c.PositionStates()); got != 0 {
		t.Errorf("정리 후 추적 상태 수 = %d, want 0", got)
	}
}

func TestEntryTimeBookkeeping(t *testing.T) {
	pos := domain.Position{
		Symbol: "BTCUSDT", PositionSide: domain.LongPosition,
		Quantity: 0.5,
	}
	exec := newFakeExecutor(pos)
	mem := store.NewMemory()

	c := NewController(testSafetyConfig(), lowMarginExchange(), exec, nil, mem, nil, &fakeNotifier{}, zerolog.Nop())

	ctx := context.Background()
	c.check(ctx)

	// 처음 본 포지션의 진입 시각이 저장소에 기록되어야 합니다
	saved, err := mem.LoadEntryTimes(ctx)
	if err != nil {
		t.Fatalf("LoadEntryTimes 실패: %v", err)
	}
	if _, ok := saved["BTCUSDT/LONG"]; !ok {
		t.Error("진입 시각이 저장소에 기록되지 않음")
	}

	// 포지션이 사라지면 장부에서도 정리되어야 합니다
	exec.mu.Lock()
	exec.positions = nil
	exec.mu.Unlock()

	c.check(ctx)

	saved, _ = mem.LoadEntryTimes(ctx)
	if _, ok := saved["BTCUSDT/LONG"]; ok {
		t.Error("사라진 포지션의 진입 시각이 정리되지 않음")
	}
}
