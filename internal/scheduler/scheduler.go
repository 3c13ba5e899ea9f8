// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Task는 스케줄러가 실행할 작업을 정의하는 인터페이스입니다
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc는 함수를 Task로 사용할 수 있게 합니다
type TaskFunc func(ctx context.Context) error

// Execute는 Task 인터페이스를 구현합니다
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Scheduler는 주기 경계에 맞춰 작업을 반복 실행합니다
type Scheduler struct {
	interval time.Duration
	task     Task
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewScheduler는 새로운 스케줄러를 생성합니다
func NewScheduler(interval time.Duration, task Task, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		task:     task,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start는 스케줄러 루프를 실행합니다
// 작업 실패는 기록만 하고 다음 주기를 계속 진행합니다
func (s *Scheduler) Start(ctx context.Context) error {
	// 다음 실행 시간을 주기 경계에 맞춥니다
	now := time.Now()
	nextRun := now.Truncate(s.interval).Add(s.interval)
	waitDuration := nextRun.Sub(now)

	s.logger.Debug().
		Dur("wait", waitDuration.Round(time.Second)).
		Str("next_run", nextRun.Format("15:04:05")).
		Msg("다음 실행 대기")

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.stopCh:
			return nil

		case <-timer.C:
			if err := s.task.Execute(ctx); err != nil {
				// 에러가 발생해도 계속 실행
				s.logger.Error().Err(err).Msg("작업 실행 실패")
			}

			now := time.Now()
			nextRun = now.Truncate(s.interval).Add(s.interval)
			timer.Reset(nextRun.Sub(now))
		}
	}
}

// Stop은 스케줄러를 중지합니다
func (s *Scheduler) Stop() {
	close(s.stopCh)
}
