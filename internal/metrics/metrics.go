package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 안전 계층의 핵심 지표들입니다
// 레이트 리미터 대기, 브레이커 상태 전이, 보호 청산 결과를 추적합니다

// RateLimitWaits는 레이트 리미터가 요청을 지연시킨 횟수입니다
var RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sentinel",
	Subsystem: "ratelimit",
	Name:      "waits_total",
	Help:      "Number of requests delayed by the rate limiter",
})

// RateLimitWaitSeconds는 레이트 리미터 대기 시간의 분포입니다
var RateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "sentinel",
	Subsystem: "ratelimit",
	Name:      "wait_seconds",
	Help:      "Time spent waiting for a rate limit slot",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
})

// BreakerState는 서킷 브레이커의 현재 상태입니다 (0=CLOSED 3=BLOCKED)
var BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sentinel",
	Subsystem: "breaker",
	Name:      "state",
	Help:      "Current circuit breaker state (0=closed 1=warning 2=throttled 3=blocked)",
})

// BreakerRejections는 브레이커가 즉시 거부한 요청 수입니다
var BreakerRejections = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sentinel",
	Subsystem: "breaker",
	Name:      "rejections_total",
	Help:      "Requests rejected while the breaker was blocked",
})

// BreakerBypasses는 차단 상태에서 우선순위/화이트리스트로 통과한 요청 수입니다
var BreakerBypasses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sentinel",
	Subsystem: "breaker",
	Name:      "bypasses_total",
	Help:      "Requests allowed through a blocked breaker by priority or whitelist",
})

// ExchangeRequests는 거래소 요청 수입니다 (결과별)
var ExchangeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentinel",
	Subsystem: "exchange",
	Name:      "requests_total",
	Help:      "Exchange API requests by endpoint and result",
}, []string{"endpoint", "result"})

// SafetyChecks는 안전 모니터의 점검 횟수입니다
var SafetyChecks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sentinel",
	Subsystem: "safety",
	Name:      "checks_total",
	Help:      "Position safety monitoring passes",
})

// ProtectiveCloses는 보호 규칙이 발동한 청산 수입니다 (규칙별)
var ProtectiveCloses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sentinel",
	Subsystem: "safety",
	Name:      "protective_closes_total",
	Help:      "Protective closes by rule (cross_margin, time_stop, strategy)",
}, []string{"rule"})

// ProtectiveCloseFailures는 재시도를 모두 소진한 보호 청산 수입니다
var ProtectiveCloseFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sentinel",
	Subsystem: "safety",
	Name:      "protective_close_failures_total",
	Help:      "Protective closes that exhausted their retry budget",
})

// RiskState는 리스크 상태 머신의 현재 상태입니다 (0=NORMAL 3=SHUTDOWN)
var RiskState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "sentinel",
	Subsystem: "risk",
	Name:      "state",
	Help:      "Current risk state (0=normal 1=cautious 2=risk_averse 3=shutdown)",
})
