package domain

import "time"

// OrderRequest는 주문 요청 정보를 표현합니다
type OrderRequest struct {
	Symbol        string        // 심볼 (예: BTCUSDT)
	Side          OrderSide     // 매수/매도
	PositionSide  PositionSide  // 롱/숏 포지션 (헤지 모드에서만 의미)
	Type          OrderType     // 주문 유형 (시장가, 지정가 등)
	Quantity      float64       // 수량
	Price         float64       // 지정가 (Limit 주문 시)
	StopPrice     float64       // 스탑 가격 (Stop/TakeProfit 주문 시)
	TimeInForce   string        // 주문 유효 기간 (GTC, IOC 등)
	ReduceOnly    bool          // 포지션 감소 전용 여부
	ClosePosition bool          // 전량 청산 여부 (TP/SL 주문 시)
	ClientOrderID string        // 클라이언트 측 주문 ID
	Priority      Priority      // 요청 우선순위 (미지정 시 LOW)
	Operation     OperationType // 작업 유형 (미지정 시 place_order)
}

// OrderResponse는 주문 응답을 표현합니다
type OrderResponse struct {
	OrderID          int64        // 주문 ID
	Symbol           string       // 심볼
	Status           string       // 주문 상태
	ClientOrderID    string       // 클라이언트 측 주문 ID
	Price            float64      // 주문 가격
	AvgPrice         float64      // 평균 체결 가격
	OrigQuantity     float64      // 원래 주문 수량
	ExecutedQuantity float64      // 체결된 수량
	StopPrice        float64      // 스탑 가격
	Side             OrderSide    // 매수/매도
	PositionSide     PositionSide // 롱/숏 포지션
	Type             OrderType    // 주문 유형
	ReduceOnly       bool         // 포지션 감소 전용 여부
	CreateTime       time.Time    // 주문 생성 시간
}
