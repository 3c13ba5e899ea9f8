package exchange

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/assist-by/sentinel/internal/domain"
)

// ErrorKind는 거래소 에러의 분류를 정의합니다
// 호출자는 문자열 매칭 없이 이 분류만으로 재시도 여부를 결정합니다
type ErrorKind int

const (
	KindTransient            ErrorKind = iota // 일시적 장애 (백오프 후 재시도 가능)
	KindRejected                              // 잘못된 요청 (정밀도/수량 보정 전 재시도 금지)
	KindCircuitOpen                           // 브레이커 차단 (RetryAfter 이후 재시도)
	KindRateLimit                             // 요청 한도 초과 (리미터가 흡수, 외부 노출 없음)
	KindPositionModeMismatch                  // 포지션 모드 불일치 (1회 자동 보정)
)

// String은 ErrorKind의 문자열 표현을 반환합니다
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	case KindCircuitOpen:
		return "circuit_open"
	case KindRateLimit:
		return "rate_limit"
	case KindPositionModeMismatch:
		return "position_mode_mismatch"
	default:
		return "unknown"
	}
}

// APIError는 거래소 호출 실패를 표현하는 단일 에러 타입입니다
// 호출자가 재시도/중단을 판단할 수 있는 메타데이터를 담습니다
type APIError struct {
	Kind             ErrorKind     // 에러 분류
	Code             int           // 거래소 에러 코드 (없으면 0)
	Message          string        // 거래소가 반환한 메시지
	Endpoint         string        // 호출한 엔드포인트
	RetryAfter       time.Duration // 재시도까지 권장 대기 시간 (파싱된 경우)
	IsCircuitBreaker bool          // 브레이커 차단으로 인한 실패 여부
}

// Error는 error 인터페이스를 구현합니다
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("거래소 에러 [%s, 코드: %d, 분류: %s]: %s", e.Endpoint, e.Code, e.Kind, e.Message)
	}
	return fmt.Sprintf("거래소 에러 [%s, 분류: %s]: %s", e.Endpoint, e.Kind, e.Message)
}

// Retryable은 백오프 후 재시도가 안전한 에러인지 반환합니다
func (e *APIError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindCircuitOpen || e.Kind == KindRateLimit
}

// retry after 파싱용 패턴들
// 바이낸스는 "banned until 1766824120342" 또는 "retry after 3 seconds" 형태를 사용합니다
var (
	bannedUntilPattern = regexp.MustCompile(`banned until (\d{13})`)
	retryAfterPattern  = regexp.MustCompile(`retry after (\d+)`)
)

// ParseRetryAfter는 에러 메시지에서 재시도 대기 시간을 추출합니다
// 추출할 수 없으면 0을 반환합니다
func ParseRetryAfter(message string, now time.Time) time.Duration {
	if m := bannedUntilPattern.FindStringSubmatch(message); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			until := time.UnixMilli(ms)
			if until.After(now) {
				return until.Sub(now)
			}
		}
		return 0
	}

	if m := retryAfterPattern.FindStringSubmatch(message); m != nil {
		sec, err := strconv.Atoi(m[1])
		if err == nil {
			return time.Duration(sec) * time.Second
		}
	}

	return 0
}

// ClassifyResponse는 HTTP 상태와 거래소 에러 코드를 APIError로 변환합니다
// 에러 분류는 이 한 곳에서만 수행됩니다
func ClassifyResponse(endpoint string, statusCode, code int, message string) *APIError {
	apiErr := &APIError{
		Code:       code,
		Message:    message,
		Endpoint:   endpoint,
		RetryAfter: ParseRetryAfter(message, time.Now()),
	}

	switch {
	case code == domain.ErrCodePositionSideMismatch:
		apiErr.Kind = KindPositionModeMismatch

	case code == domain.ErrCodeTooManyRequests,
		statusCode == http.StatusTooManyRequests,
		statusCode == 418: // IP 밴
		apiErr.Kind = KindRateLimit

	case code == domain.ErrCodeTimeout, statusCode >= http.StatusInternalServerError:
		apiErr.Kind = KindTransient

	default:
		apiErr.Kind = KindRejected
	}

	return apiErr
}

// NewTransportError는 네트워크 계층 실패를 APIError로 감쌉니다
func NewTransportError(endpoint string, err error) *APIError {
	return &APIError{
		Kind:     KindTransient,
		Message:  err.Error(),
		Endpoint: endpoint,
	}
}

// NewCircuitOpenError는 브레이커 차단을 APIError로 감쌉니다
func NewCircuitOpenError(endpoint string, retryAfter time.Duration) *APIError {
	return &APIError{
		Kind:             KindCircuitOpen,
		Message:          "서킷 브레이커 차단 중",
		Endpoint:         endpoint,
		RetryAfter:       retryAfter,
		IsCircuitBreaker: true,
	}
}
