package domain

// OrderSide는 주문 방향을 정의합니다
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide는 포지션 방향을 정의합니다
type PositionSide string

const (
	LongPosition  PositionSide = "LONG"
	ShortPosition PositionSide = "SHORT"
	BothPosition  PositionSide = "BOTH" // 원웨이 모드인 경우
)

// OrderType은 주문 유형을 정의합니다
type OrderType string

const (
	Market           OrderType = "MARKET"
	Limit            OrderType = "LIMIT"
	StopMarket       OrderType = "STOP_MARKET"
	TakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// Priority는 거래소 요청의 우선순위를 정의합니다
// 낮은 순위부터 오름차순으로 정의되어 값 비교가 서열 비교와 일치합니다.
// CRITICAL 요청은 서킷 브레이커가 차단 상태여도 항상 통과합니다
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String은 Priority의 문자열 표현을 반환합니다
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// OperationType은 거래소 요청의 작업 유형을 정의합니다
// 서킷 브레이커의 우회 화이트리스트 판별에 사용됩니다
type OperationType string

const (
	OpPlaceOrder    OperationType = "place_order"
	OpCancelOrder   OperationType = "cancel_order"
	OpClosePosition OperationType = "close_position"
	OpQueryPosition OperationType = "query_position"
	OpQueryAccount  OperationType = "query_account"
	OpQueryMarket   OperationType = "query_market"
	OpAccountConfig OperationType = "account_config"
)

// PositionState는 안전 모니터가 추적하는 포지션 수명주기 상태를 정의합니다
type PositionState string

const (
	PositionOpen      PositionState = "OPEN"
	PositionProtected PositionState = "PROTECTED"
	PositionAtRisk    PositionState = "AT_RISK"
	PositionClosing   PositionState = "CLOSING"
	PositionClosed    PositionState = "CLOSED"
)

// 바이낸스 API 에러 코드를 정의합니다
const (
	ErrCodePositionModeNoChange = -4059 // 포지션 모드 변경 불필요
	ErrCodePositionSideMismatch = -4061 // 주문의 포지션 사이드가 계정 설정과 불일치
	ErrCodeTooManyRequests      = -1003 // 요청 한도 초과 (IP 밴 가능)
	ErrCodeTimeout              = -1007 // 거래소 내부 타임아웃
)
