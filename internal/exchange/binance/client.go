// internal/exchange/binance/client.go
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/assist-by/sentinel/internal/breaker"
	"github.com/assist-by/sentinel/internal/domain"
	"github.com/assist-by/sentinel/internal/exchange"
	"github.com/assist-by/sentinel/internal/metrics"
	"github.com/assist-by/sentinel/internal/ratelimit"
)

// Client는 바이낸스 선물 API 클라이언트를 구현합니다
// 모든 요청은 레이트 리미터와 서킷 브레이커를 순서대로 통과합니다
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	wsBaseURL  string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *breaker.Breaker
	logger     zerolog.Logger

	serverTimeOffset int64 // 서버 시간과의 차이를 저장
	mu               sync.RWMutex

	// 헤지/원웨이 모드 캐시
	// 성공한 조회만 캐시하고, 실패 시에는 다음 호출이 다시 조회합니다
	modeMu    sync.Mutex
	modeKnown bool
	hedgeMode bool

	// 심볼 필터 캐시
	symbolMu    sync.RWMutex
	symbolCache map[string]*domain.SymbolInfo
}

// ClientOption은 클라이언트 생성 옵션을 정의합니다
type ClientOption func(*Client)

// WithTimeout은 HTTP 클라이언트의 타임아웃을 설정합니다
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL은 기본 URL을 설정합니다
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTestnet은 테스트넷 사용 여부를 설정합니다
func WithTestnet(useTestnet bool) ClientOption {
	return func(c *Client) {
		if useTestnet {
			c.baseURL = "https://testnet.binancefuture.com"
			c.wsBaseURL = "wss://stream.binancefuture.com"
		} else {
			c.baseURL = "https://fapi.binance.com"
			c.wsBaseURL = "wss://fstream.binance.com"
		}
	}
}

// NewClient는 새로운 바이낸스 API 클라이언트를 생성합니다
func NewClient(apiKey, secretKey string, limiter *ratelimit.Limiter, brk *breaker.Breaker, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:      apiKey,
		secretKey:   secretKey,
		baseURL:     "https://fapi.binance.com", // 기본값은 선물 거래소
		wsBaseURL:   "wss://fstream.binance.com",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     limiter,
		breaker:     brk,
		logger:      logger,
		symbolCache: make(map[string]*domain.SymbolInfo),
	}

	// 옵션 적용
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// doRequest는 리미터와 브레이커를 거쳐 HTTP 요청을 실행하고 결과를 반환합니다
// 실패는 항상 *exchange.APIError로 반환됩니다
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values, needSign bool, priority domain.Priority, op domain.OperationType) ([]byte, error) {
	// 컨텍스트가 더 높은 우선순위 하한을 지정하면 그쪽을 따릅니다
	if p, ok := exchange.PriorityFromContext(ctx); ok && p > priority {
		priority = p
	}

	// 리미터는 슬롯이 날 때까지 기다릴 뿐 실패하지 않습니다
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, exchange.NewTransportError(endpoint, err)
	}

	var body []byte
	err := c.breaker.Call(ctx, priority, op, func(ctx context.Context) error {
		var execErr error
		body, execErr = c.execute(ctx, method, endpoint, params, needSign)
		return execErr
	})

	if err != nil {
		var openErr *breaker.OpenError
		if errors.As(err, &openErr) {
			metrics.ExchangeRequests.WithLabelValues(endpoint, "circuit_open").Inc()
			return nil, exchange.NewCircuitOpenError(endpoint, openErr.RetryAfter)
		}

		metrics.ExchangeRequests.WithLabelValues(endpoint, "error").Inc()

		var apiErr *exchange.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, exchange.NewTransportError(endpoint, err)
	}

	metrics.ExchangeRequests.WithLabelValues(endpoint, "ok").Inc()
	return body, nil
}

// execute는 단일 HTTP 요청을 수행합니다
func (c *Client) execute(ctx context.Context, method, endpoint string, params url.Values, needSign bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	// URL 생성
	reqURL, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, exchange.NewTransportError(endpoint, fmt.Errorf("URL 파싱 실패: %w", err))
	}

	// 타임스탬프 추가
	if needSign {
		timestamp := strconv.FormatInt(c.getServerTime(), 10)
		params.Set("timestamp", timestamp)
		params.Set("recvWindow", "5000")
	}

	// 파라미터는 사전순으로 정렬되어 인코딩됩니다
	reqURL.RawQuery = params.Encode()

	// 서명은 항상 마지막에 붙습니다
	if needSign {
		signature := Sign(c.secretKey, params.Encode())
		reqURL.RawQuery = reqURL.RawQuery + "&signature=" + signature
	}

	// 요청 생성
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, exchange.NewTransportError(endpoint, fmt.Errorf("요청 생성 실패: %w", err))
	}

	// 헤더 설정
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	// 요청 실행
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, exchange.NewTransportError(endpoint, fmt.Errorf("API 요청 실패: %w", err))
	}
	defer resp.Body.Close()

	// 응답 읽기
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, exchange.NewTransportError(endpoint, fmt.Errorf("응답 읽기 실패: %w", err))
	}

	// 상태 코드 확인
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"msg"`
		}
		if err := json.Unmarshal(body, &apiErr); err != nil {
			return nil, exchange.ClassifyResponse(endpoint, resp.StatusCode, 0, string(body))
		}
		return nil, exchange.ClassifyResponse(endpoint, resp.StatusCode, apiErr.Code, apiErr.Message)
	}

	return body, nil
}

// Sign은 파라미터 문자열에 대한 HMAC-SHA256 서명을 생성합니다
func Sign(secretKey, payload string) string {
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// getServerTime은 보정된 현재 서버 시간(ms)을 반환합니다
func (c *Client) getServerTime() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().UnixMilli() + c.serverTimeOffset
}

// GetServerTime은 서버 시간을 조회합니다
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/time", nil, false, domain.PriorityLow, domain.OpQueryMarket)
	if err != nil {
		return time.Time{}, err
	}

	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return time.Time{}, fmt.Errorf("서버 시간 파싱 실패: %w", err)
	}

	return time.UnixMilli(result.ServerTime), nil
}

// SyncTime은 바이낸스 서버와 시간을 동기화합니다
// 서명된 요청의 타임스탬프 검증 실패를 막기 위해 시작 시 호출해야 합니다
func (c *Client) SyncTime(ctx context.Context) error {
	serverTime, err := c.GetServerTime(ctx)
	if err != nil {
		return fmt.Errorf("서버 시간 조회 실패: %w", err)
	}

	c.mu.Lock()
	c.serverTimeOffset = serverTime.UnixMilli() - time.Now().UnixMilli()
	c.mu.Unlock()

	return nil
}

// GetSymbolInfo는 심볼의 거래 제약 정보를 조회합니다
// 조회 결과는 캐시되어 이후 주문의 정밀도 보정에 재사용됩니다
func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	c.symbolMu.RLock()
	if info, ok := c.symbolCache[symbol]; ok {
		c.symbolMu.RUnlock()
		return info, nil
	}
	c.symbolMu.RUnlock()

	params := url.Values{}
	params.Add("symbol", symbol)

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", params, false, domain.PriorityNormal, domain.OpQueryMarket)
	if err != nil {
		return nil, err
	}

	var exchangeInfo struct {
		Symbols []struct {
			Symbol            string `json:"symbol"`
			PricePrecision    int    `json:"pricePrecision"`
			QuantityPrecision int    `json:"quantityPrecision"`
			Filters           []struct {
				FilterType  string `json:"filterType"`
				StepSize    string `json:"stepSize,omitempty"`
				TickSize    string `json:"tickSize,omitempty"`
				MinQty      string `json:"minQty,omitempty"`
				MaxQty      string `json:"maxQty,omitempty"`
				MinNotional string `json:"notional,omitempty"`
			} `json:"filters"`
		} `json:"symbols"`
	}

	if err := json.Unmarshal(resp, &exchangeInfo); err != nil {
		return nil, fmt.Errorf("심볼 정보 파싱 실패: %w", err)
	}

	if len(exchangeInfo.Symbols) == 0 {
		return nil, fmt.Errorf("심볼 정보를 찾을 수 없음: %s", symbol)
	}

	s := exchangeInfo.Symbols[0]
	info := &domain.SymbolInfo{
		Symbol:            symbol,
		PricePrecision:    s.PricePrecision,
		QuantityPrecision: s.QuantityPrecision,
	}

	// 필터 정보 추출
	for _, filter := range s.Filters {
		switch filter.FilterType {
		case "LOT_SIZE":
			if v, err := strconv.ParseFloat(filter.StepSize, 64); err == nil {
				info.StepSize = v
			}
			if v, err := strconv.ParseFloat(filter.MinQty, 64); err == nil {
				info.MinQuantity = v
			}
			if v, err := strconv.ParseFloat(filter.MaxQty, 64); err == nil {
				info.MaxQuantity = v
			}
		case "PRICE_FILTER":
			if v, err := strconv.ParseFloat(filter.TickSize, 64); err == nil {
				info.TickSize = v
			}
		case "MIN_NOTIONAL":
			if v, err := strconv.ParseFloat(filter.MinNotional, 64); err == nil {
				info.MinNotional = v
			}
		}
	}

	c.symbolMu.Lock()
	c.symbolCache[symbol] = info
	c.symbolMu.Unlock()

	return info, nil
}

// GetBalance는 계정의 잔고를 조회합니다
func (c *Client) GetBalance(ctx context.Context) (map[string]domain.Balance, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/account", nil, true, domain.PriorityHigh, domain.OpQueryAccount)
	if err != nil {
		return nil, err
	}

	var result struct {
		Assets []struct {
			Asset              string  `json:"asset"`
			WalletBalance      float64 `json:"walletBalance,string"`
			AvailableBalance   float64 `json:"availableBalance,string"`
			CrossWalletBalance float64 `json:"crossWalletBalance,string"`
		} `json:"assets"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("잔고 응답 파싱 실패: %w", err)
	}

	balances := make(map[string]domain.Balance)
	for _, asset := range result.Assets {
		if asset.WalletBalance > 0 {
			balances[asset.Asset] = domain.Balance{
				Asset:              asset.Asset,
				Available:          asset.AvailableBalance,
				Locked:             asset.WalletBalance - asset.AvailableBalance,
				CrossWalletBalance: asset.CrossWalletBalance,
			}
		}
	}

	return balances, nil
}

// GetAccountSummary는 마진 사용률 판정에 필요한 계정 요약을 조회합니다
func (c *Client) GetAccountSummary(ctx context.Context) (*domain.AccountSummary, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/account", nil, true, domain.PriorityHigh, domain.OpQueryAccount)
	if err != nil {
		return nil, err
	}

	var result struct {
		TotalWalletBalance    float64 `json:"totalWalletBalance,string"`
		TotalMarginBalance    float64 `json:"totalMarginBalance,string"`
		TotalInitialMargin    float64 `json:"totalInitialMargin,string"`
		TotalMaintMargin      float64 `json:"totalMaintMargin,string"`
		TotalUnrealizedProfit float64 `json:"totalUnrealizedProfit,string"`
		AvailableBalance      float64 `json:"availableBalance,string"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("계정 요약 파싱 실패: %w", err)
	}

	return &domain.AccountSummary{
		TotalWalletBalance:    result.TotalWalletBalance,
		TotalMarginBalance:    result.TotalMarginBalance,
		TotalInitialMargin:    result.TotalInitialMargin,
		TotalMaintMargin:      result.TotalMaintMargin,
		TotalUnrealizedProfit: result.TotalUnrealizedProfit,
		AvailableBalance:      result.AvailableBalance,
	}, nil
}

// GetPositions는 현재 열린 포지션을 조회합니다
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, true, domain.PriorityHigh, domain.OpQueryPosition)
	if err != nil {
		return nil, err
	}

	var positionsRaw []struct {
		Symbol           string  `json:"symbol"`
		PositionAmt      float64 `json:"positionAmt,string"`
		EntryPrice       float64 `json:"entryPrice,string"`
		MarkPrice        float64 `json:"markPrice,string"`
		UnrealizedProfit float64 `json:"unRealizedProfit,string"`
		Leverage         float64 `json:"leverage,string"`
		PositionSide     string  `json:"positionSide"`
		InitialMargin    float64 `json:"initialMargin,string"`
		MaintMargin      float64 `json:"maintMargin,string"`
		UpdateTime       int64   `json:"updateTime"`
	}

	if err := json.Unmarshal(resp, &positionsRaw); err != nil {
		return nil, fmt.Errorf("포지션 데이터 파싱 실패: %w", err)
	}

	// 활성 포지션만 필터링 (수량이 0이 아닌 포지션)
	var positions []domain.Position
	for _, p := range positionsRaw {
		if p.PositionAmt != 0 {
			positions = append(positions, domain.Position{
				Symbol:        p.Symbol,
				PositionSide:  domain.PositionSide(p.PositionSide),
				Quantity:      p.PositionAmt,
				EntryPrice:    p.EntryPrice,
				MarkPrice:     p.MarkPrice,
				UnrealizedPnL: p.UnrealizedProfit,
				InitialMargin: p.InitialMargin,
				MaintMargin:   p.MaintMargin,
				Leverage:      int(p.Leverage),
			})
		}
	}

	return positions, nil
}

// GetOpenOrders는 현재 열린 주문 목록을 조회합니다
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]domain.OrderResponse, error) {
	params := url.Values{}
	if symbol != "" {
		params.Add("symbol", symbol)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/openOrders", params, true, domain.PriorityHigh, domain.OpQueryPosition)
	if err != nil {
		return nil, err
	}

	var ordersRaw []struct {
		OrderID       int64   `json:"orderId"`
		Symbol        string  `json:"symbol"`
		Status        string  `json:"status"`
		ClientOrderID string  `json:"clientOrderId"`
		Price         float64 `json:"price,string"`
		AvgPrice      float64 `json:"avgPrice,string"`
		OrigQty       float64 `json:"origQty,string"`
		ExecutedQty   float64 `json:"executedQty,string"`
		StopPrice     float64 `json:"stopPrice,string"`
		Type          string  `json:"type"`
		ReduceOnly    bool    `json:"reduceOnly"`
		Side          string  `json:"side"`
		PositionSide  string  `json:"positionSide"`
		Time          int64   `json:"time"`
	}

	if err := json.Unmarshal(resp, &ordersRaw); err != nil {
		return nil, fmt.Errorf("주문 데이터 파싱 실패: %w", err)
	}

	orders := make([]domain.OrderResponse, len(ordersRaw))
	for i, o := range ordersRaw {
		orders[i] = domain.OrderResponse{
			OrderID:          o.OrderID,
			Symbol:           o.Symbol,
			Status:           o.Status,
			ClientOrderID:    o.ClientOrderID,
			Price:            o.Price,
			AvgPrice:         o.AvgPrice,
			OrigQuantity:     o.OrigQty,
			ExecutedQuantity: o.ExecutedQty,
			StopPrice:        o.StopPrice,
			Side:             domain.OrderSide(o.Side),
			PositionSide:     domain.PositionSide(o.PositionSide),
			Type:             domain.OrderType(o.Type),
			ReduceOnly:       o.ReduceOnly,
			CreateTime:       time.UnixMilli(o.Time),
		}
	}

	return orders, nil
}

// PlaceOrder는 새로운 주문을 생성합니다
// 수량/가격은 심볼 필터에 맞춰 보정되고, 포지션 모드 파라미터는 자동으로 붙습니다
// 포지션 사이드 불일치 에러가 발생하면 모드 가정을 뒤집고 정확히 한 번만 재시도합니다
func (c *Client) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResponse, error) {
	if order.Operation == "" {
		order.Operation = domain.OpPlaceOrder
	}

	// 심볼 필터에 맞춰 수량과 가격을 보정합니다
	info, err := c.GetSymbolInfo(ctx, order.Symbol)
	if err != nil {
		return nil, fmt.Errorf("주문 전 심볼 정보 조회 실패: %w", err)
	}

	if !order.ClosePosition {
		order.Quantity = info.NormalizeQuantity(order.Quantity)
	}
	if order.Price > 0 {
		order.Price = info.NormalizePrice(order.Price)
	}
	if order.StopPrice > 0 {
		order.StopPrice = info.NormalizePrice(order.StopPrice)
	}

	// 계정 모드 확인 (성공한 결과만 캐시됨)
	hedge, err := c.detectPositionMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("포지션 모드 확인 실패: %w", err)
	}

	resp, err := c.submitOrder(ctx, order, hedge)
	if err == nil {
		return resp, nil
	}

	// 모드 불일치면 캐시를 뒤집고 정확히 한 번만 재시도합니다
	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) && apiErr.Kind == exchange.KindPositionModeMismatch {
		c.modeMu.Lock()
		c.hedgeMode = !hedge
		c.modeKnown = true
		c.modeMu.Unlock()

		c.logger.Warn().
			Bool("hedge_mode", !hedge).
			Str("symbol", order.Symbol).
			Msg("포지션 모드 불일치 감지, 모드 가정을 뒤집고 재시도")

		return c.submitOrder(ctx, order, !hedge)
	}

	return nil, err
}

// submitOrder는 지정한 모드 가정으로 주문을 한 번 제출합니다
func (c *Client) submitOrder(ctx context.Context, order domain.OrderRequest, hedge bool) (*domain.OrderResponse, error) {
	params := buildOrderParams(order, hedge)

	resp, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true, order.Priority, order.Operation)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID       int64   `json:"orderId"`
		Symbol        string  `json:"symbol"`
		Status        string  `json:"status"`
		ClientOrderID string  `json:"clientOrderId"`
		Price         float64 `json:"price,string"`
		AvgPrice      float64 `json:"avgPrice,string"`
		OrigQty       float64 `json:"origQty,string"`
		ExecutedQty   float64 `json:"executedQty,string"`
		StopPrice     float64 `json:"stopPrice,string"`
		Side          string  `json:"side"`
		PositionSide  string  `json:"positionSide"`
		Type          string  `json:"type"`
		ReduceOnly    bool    `json:"reduceOnly"`
		UpdateTime    int64   `json:"updateTime"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("주문 응답 파싱 실패: %w", err)
	}

	return &domain.OrderResponse{
		OrderID:          result.OrderID,
		Symbol:           result.Symbol,
		Status:           result.Status,
		ClientOrderID:    result.ClientOrderID,
		Price:            result.Price,
		AvgPrice:         result.AvgPrice,
		OrigQuantity:     result.OrigQty,
		ExecutedQuantity: result.ExecutedQty,
		StopPrice:        result.StopPrice,
		Side:             domain.OrderSide(result.Side),
		PositionSide:     domain.PositionSide(result.PositionSide),
		Type:             domain.OrderType(result.Type),
		ReduceOnly:       result.ReduceOnly,
		CreateTime:       time.UnixMilli(result.UpdateTime),
	}, nil
}

// buildOrderParams는 모드 가정에 맞는 주문 파라미터를 구성합니다
// 헤지 모드는 positionSide를 요구하고 reduceOnly를 거부하며, 원웨이 모드는 그 반대입니다
func buildOrderParams(order domain.OrderRequest, hedge bool) url.Values {
	params := url.Values{}
	params.Add("symbol", order.Symbol)
	params.Add("side", string(order.Side))
	params.Add("type", string(order.Type))

	if hedge {
		side := order.PositionSide
		if side == "" || side == domain.BothPosition {
			// 헤지 모드에서 사이드 미지정이면 주문 방향으로 유추
			if order.Side == domain.Buy {
				side = domain.LongPosition
			} else {
				side = domain.ShortPosition
			}
			if order.ReduceOnly || order.ClosePosition {
				// 청산 주문은 주문 방향의 반대 포지션을 줄입니다
				if order.Side == domain.Buy {
					side = domain.ShortPosition
				} else {
					side = domain.LongPosition
				}
			}
		}
		params.Add("positionSide", string(side))
	} else {
		if order.ReduceOnly {
			params.Add("reduceOnly", "true")
		}
	}

	switch order.Type {
	case domain.Market:
		params.Add("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))

	case domain.Limit:
		tif := order.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		params.Add("timeInForce", tif)
		params.Add("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
		params.Add("price", strconv.FormatFloat(order.Price, 'f', -1, 64))

	case domain.StopMarket, domain.TakeProfitMarket:
		params.Add("stopPrice", strconv.FormatFloat(order.StopPrice, 'f', -1, 64))
		if order.ClosePosition {
			params.Add("closePosition", "true")
		} else {
			params.Add("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
		}
	}

	if order.ClientOrderID != "" {
		params.Add("newClientOrderId", order.ClientOrderID)
	}

	return params
}

// CancelOrder는 주문을 취소합니다
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("orderId", strconv.FormatInt(orderID, 10))

	_, err := c.doRequest(ctx, http.MethodDelete, "/fapi/v1/order", params, true, domain.PriorityHigh, domain.OpCancelOrder)
	if err != nil {
		return fmt.Errorf("주문 취소 실패: %w", err)
	}

	return nil
}

// detectPositionMode는 계정의 헤지/원웨이 모드를 확인합니다
// 성공한 조회만 캐시하므로 실패 후에는 다음 호출이 다시 조회합니다
func (c *Client) detectPositionMode(ctx context.Context) (bool, error) {
	c.modeMu.Lock()
	if c.modeKnown {
		hedge := c.hedgeMode
		c.modeMu.Unlock()
		return hedge, nil
	}
	c.modeMu.Unlock()

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/positionSide/dual", nil, true, domain.PriorityHigh, domain.OpAccountConfig)
	if err != nil {
		return false, err
	}

	var result struct {
		DualSidePosition bool `json:"dualSidePosition"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return false, fmt.Errorf("포지션 모드 응답 파싱 실패: %w", err)
	}

	c.modeMu.Lock()
	c.hedgeMode = result.DualSidePosition
	c.modeKnown = true
	c.modeMu.Unlock()

	c.logger.Info().Bool("hedge_mode", result.DualSidePosition).Msg("포지션 모드 확인 완료")
	return result.DualSidePosition, nil
}

// SetPositionMode는 계정의 헤지/원웨이 모드를 변경합니다
// 이미 원하는 모드라는 응답(-4059)은 성공으로 취급하고 캐시만 갱신합니다
func (c *Client) SetPositionMode(ctx context.Context, hedge bool) error {
	params := url.Values{}
	params.Add("dualSidePosition", strconv.FormatBool(hedge))

	_, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", params, true, domain.PriorityHigh, domain.OpAccountConfig)
	if err != nil {
		var apiErr *exchange.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != domain.ErrCodePositionModeNoChange {
			return fmt.Errorf("포지션 모드 변경 실패: %w", err)
		}
	}

	c.modeMu.Lock()
	c.hedgeMode = hedge
	c.modeKnown = true
	c.modeMu.Unlock()

	c.logger.Info().Bool("hedge_mode", hedge).Msg("포지션 모드 설정 완료")
	return nil
}

// CreateListenKey는 유저 데이터 스트림용 리슨키를 발급합니다
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/listenKey", nil, false, domain.PriorityNormal, domain.OpQueryAccount)
	if err != nil {
		return "", err
	}

	var result struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("리슨키 응답 파싱 실패: %w", err)
	}

	return result.ListenKey, nil
}

// KeepAliveListenKey는 리슨키의 만료를 연장합니다
func (c *Client) KeepAliveListenKey(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/fapi/v1/listenKey", nil, false, domain.PriorityNormal, domain.OpQueryAccount)
	return err
}

// StreamBaseURL은 웹소켓 스트림의 기본 URL을 반환합니다
func (c *Client) StreamBaseURL() string {
	return c.wsBaseURL
}
