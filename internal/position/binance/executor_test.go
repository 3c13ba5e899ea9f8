package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assist-by/sentinel/internal/breaker"
	"github.com/assist-by/sentinel/internal/domain"
	exBinance "github.com/assist-by/sentinel/internal/exchange/binance"
	"github.com/assist-by/sentinel/internal/ratelimit"
)

// blockedBreaker는 실패를 누적시켜 차단 상태에 도달한 브레이커를 반환합니다
func blockedBreaker(t *testing.T) *breaker.Breaker {
	t.Helper()

	b := breaker.New(breaker.Config{
		WarningThreshold:  1,
		ThrottleThreshold: 2,
		BlockThreshold:    3,
		ThrottleDelay:     time.Millisecond,
		OpenTimeout:       time.Hour,
		Whitelist:         []domain.OperationType{domain.OpClosePosition},
	}, zerolog.Nop())

	fail := func(ctx context.Context) error { return errors.New("거래소 응답 없음") }
	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), domain.PriorityNormal, domain.OpQueryMarket, fail)
	}

	require.Equal(t, breaker.StateBlocked, b.State(), "사전 조건: 브레이커가 차단 상태여야 함")
	return b
}

// closeTestServer는 청산 흐름 검증용 모의 서버입니다
// 주문은 즉시 체결되고 포지션 조회는 빈 목록을 반환합니다
type closeTestServer struct {
	mu            sync.Mutex
	orderCalls    int
	positionCalls int
	positionFail  bool
}

func (ts *closeTestServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbols":[{"symbol":"BTCUSDT","pricePrecision":2,"quantityPrecision":3,"filters":[
			{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"1000"},
			{"filterType":"PRICE_FILTER","tickSize":"0.10"}]}]}`)
	})

	mux.HandleFunc("/fapi/v1/positionSide/dual", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"dualSidePosition":false}`)
	})

	mux.HandleFunc("/fapi/v1/openOrders", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	mux.HandleFunc("/fapi/v1/order", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.orderCalls++
		ts.mu.Unlock()
		fmt.Fprint(w, `{"orderId":777,"symbol":"BTCUSDT","status":"FILLED","clientOrderId":"x",
			"price":"0","avgPrice":"43000.50","origQty":"0.5","executedQty":"0.5","stopPrice":"0",
			"side":"SELL","positionSide":"BOTH","type":"MARKET","reduceOnly":true,"updateTime":1700000000000}`)
	})

	mux.HandleFunc("/fapi/v2/positionRisk", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.positionCalls++
		fail := ts.positionFail
		ts.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"code":-1001,"msg":"Internal error."}`)
			return
		}
		fmt.Fprint(w, `[]`)
	})

	return mux
}

func newCloseExecutor(t *testing.T, baseURL string, brk *breaker.Breaker) *Executor {
	t.Helper()

	client := exBinance.NewClient(
		"test-key",
		"test-secret",
		ratelimit.NewLimiter(100, time.Minute),
		brk,
		zerolog.Nop(),
		exBinance.WithBaseURL(baseURL),
	)

	e := NewExecutor(client, zerolog.Nop())
	e.confirmDelay = time.Millisecond
	return e
}

func TestClosePositionSucceedsWhileBreakerBlocked(t *testing.T) {
	pos := domain.Position{
		Symbol:       "BTCUSDT",
		PositionSide: domain.LongPosition,
		Quantity:     0.5,
		EntryPrice:   42000,
		MarkPrice:    43000,
	}

	// 차단된 브레이커가 청산의 보조 요청(주문 취소, 체결 확인)을 막으면
	// 체결된 청산이 실패로 보고되고 중복 청산으로 이어집니다
	for _, critical := range []bool{true, false} {
		t.Run(fmt.Sprintf("critical=%v", critical), func(t *testing.T) {
			ts := &closeTestServer{}
			server := httptest.NewServer(ts.handler())
			defer server.Close()

			brk := blockedBreaker(t)
			exec := newCloseExecutor(t, server.URL, brk)

			result, err := exec.ClosePosition(context.Background(), pos, critical)
			require.NoError(t, err, "차단 상태에서 청산이 실패로 보고됨")

			ts.mu.Lock()
			defer ts.mu.Unlock()
			assert.Equal(t, 1, ts.orderCalls, "청산 주문은 정확히 한 번만 제출되어야 함")
			assert.GreaterOrEqual(t, ts.positionCalls, 1, "체결 확인 조회가 브레이커를 통과해야 함")

			assert.Equal(t, "BTCUSDT", result.Symbol)
			assert.Equal(t, 43000.50, result.ExitPrice)

			// 우회 성공은 복구 근거가 아니므로 브레이커는 차단 상태를 유지합니다
			assert.Equal(t, breaker.StateBlocked, brk.State())
		})
	}
}

func TestConfirmReportsQueryFailureDistinctly(t *testing.T) {
	ts := &closeTestServer{positionFail: true}
	server := httptest.NewServer(ts.handler())
	defer server.Close()

	exec := newCloseExecutor(t, server.URL, blockedBreaker(t))

	pos := domain.Position{
		Symbol:       "BTCUSDT",
		PositionSide: domain.LongPosition,
		Quantity:     0.5,
		EntryPrice:   42000,
		MarkPrice:    43000,
	}

	_, err := exec.ClosePosition(context.Background(), pos, true)
	require.Error(t, err)

	// 확인 조회가 전부 실패한 것이지 포지션이 남아 있다고 단정해서는 안 됩니다
	assert.Contains(t, err.Error(), "모두 실패")
	assert.NotContains(t, err.Error(), "남아 있음")
}
