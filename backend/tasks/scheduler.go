package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"momsvpn/backend/domain"
	"momsvpn/backend/logging"
	"momsvpn/backend/service/syncer"
)

// SyncRunner 执行一次全量订阅同步
type SyncRunner interface {
	SyncAll(ctx context.Context, opts syncer.Options) (domain.SyncStats, error)
}

type Scheduler struct {
	sync     SyncRunner
	interval time.Duration
	notify   bool
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewScheduler 创建后台任务调度器；interval<=0 时不启用周期同步
func NewScheduler(runner SyncRunner, interval time.Duration, notify bool) *Scheduler {
	return &Scheduler{
		sync:     runner,
		interval: interval,
		notify:   notify,
		logger:   logging.Component("tasks"),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.sync == nil || s.interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWithTicker(ctx, s.interval, "subscription sync", func(ctx context.Context) {
			if _, err := s.sync.SyncAll(ctx, syncer.Options{Notify: s.notify}); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("subscription sync failed")
			}
		})
	}()
	s.logger.Info().Dur("interval", s.interval).Bool("notify", s.notify).Msg("periodic sync enabled")
}

// Wait 等待所有任务在 ctx 取消后退出
func (s *Scheduler) Wait() {
	if s != nil {
		s.wg.Wait()
	}
}

func (s *Scheduler) runWithTicker(ctx context.Context, interval time.Duration, name string, fn func(context.Context)) {
	// 启动后先跑一次，避免“等待一个周期才生效”。
	s.safeRun(ctx, name, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeRun(ctx, name, fn)
		}
	}
}

func (s *Scheduler) safeRun(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("task", name).Interface("panic", r).Msg("task panicked")
		}
	}()
	fn(ctx)
}
