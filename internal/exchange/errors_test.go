package exchange

import (
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	tests := []struct {
		name    string
		message string
		want    time.Duration
	}{
		{
			name:    "banned until 형식",
			message: "Way too many requests; IP banned until 1700000005000.",
			want:    5 * time.Second,
		},
		{
			name:    "retry after 형식",
			message: "Too many requests; retry after 3 seconds",
			want:    3 * time.Second,
		},
		{
			name:    "이미 지난 밴 시각은 0",
			message: "IP banned until 1600000000000.",
			want:    0,
		},
		{
			name:    "대기 시간 정보 없음",
			message: "Invalid symbol.",
			want:    0,
		},
		{
			name:    "13자리가 아닌 숫자는 무시",
			message: "banned until 12345",
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryAfter(tt.message, now); got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		code       int
		want       ErrorKind
	}{
		{"포지션 사이드 불일치", 400, -4061, KindPositionModeMismatch},
		{"요청 한도 초과 코드", 429, -1003, KindRateLimit},
		{"HTTP 429", 429, 0, KindRateLimit},
		{"IP 밴 418", 418, 0, KindRateLimit},
		{"거래소 내부 타임아웃", 500, -1007, KindTransient},
		{"서버 에러", 503, 0, KindTransient},
		{"잘못된 파라미터", 400, -1111, KindRejected},
		{"알 수 없는 400", 400, 0, KindRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyResponse("/fapi/v1/order", tt.statusCode, tt.code, "")
			if got.Kind != tt.want {
				t.Errorf("ClassifyResponse(status=%d, code=%d).Kind = %v, want %v",
					tt.statusCode, tt.code, got.Kind, tt.want)
			}
		})
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindTransient, true},
		{KindCircuitOpen, true},
		{KindRateLimit, true},
		{KindRejected, false},
		{KindPositionModeMismatch, false},
	}

	for _, tt := range tests {
		err := &APIError{Kind: tt.kind}
		if got := err.Retryable(); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestCircuitOpenErrorCarriesMetadata(t *testing.T) {
	err := NewCircuitOpenError("/fapi/v1/order", 30*time.Second)

	if !err.IsCircuitBreaker {
		t.Error("IsCircuitBreaker = false, want true")
	}
	if err.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", err.RetryAfter)
	}
	if err.Kind != KindCircuitOpen {
		t.Errorf("Kind = %v, want KindCircuitOpen", err.Kind)
	}
}
