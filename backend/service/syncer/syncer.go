package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"momsvpn/backend/domain"
	"momsvpn/backend/logging"
	"momsvpn/backend/repository/events"
	"momsvpn/backend/service/panel"
)

// LocalSubscriptions 本地订阅查询
type LocalSubscriptions interface {
	HasLocalSubscription(ctx context.Context, telegramID int64) (bool, error)
}

// MembershipChecker 会员订阅查询
type MembershipChecker interface {
	Status(ctx context.Context, telegramID int64) domain.Membership
}

// Options 单次全量同步参数
type Options struct {
	DryRun bool
	// Notify 为 true 时状态变化事件带上通知标记
	Notify bool
}

// Syncer 根据订阅状态启用/停用面板用户
type Syncer struct {
	local      LocalSubscriptions
	membership MembershipChecker
	panel      panel.Client
	bus        *events.Bus
	limiter    *rate.Limiter
	logger     zerolog.Logger
	now        func() time.Time

	// 同一进程内不并发执行全量同步
	running sync.Mutex
}

// New 创建同步器；ratePerSec<=0 时不限速
func New(local LocalSubscriptions, membership MembershipChecker, client panel.Client, bus *events.Bus, ratePerSec float64) *Syncer {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Syncer{
		local:      local,
		membership: membership,
		panel:      client,
		bus:        bus,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logging.Component("syncer"),
		now:        time.Now,
	}
}

// HasAccess 先查本地订阅，再查会员服务
func (s *Syncer) HasAccess(ctx context.Context, telegramID int64) bool {
	if s.local != nil {
		ok, err := s.local.HasLocalSubscription(ctx, telegramID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("tg", telegramID).Msg("local subscription check failed")
		}
		if ok {
			return true
		}
	}
	if s.membership == nil {
		return false
	}
	return s.membership.Status(ctx, telegramID).Status == domain.MembershipActive
}

// plan 返回需要执行的动作；no_change 表示无需操作
func plan(hasAccess bool, status domain.PanelStatus) domain.SyncResult {
	switch {
	case hasAccess && status == domain.PanelStatusDisabled:
		return domain.SyncEnabled
	case !hasAccess && status == domain.PanelStatusActive:
		return domain.SyncDisabled
	default:
		return domain.SyncNoChange
	}
}

// SyncUser 同步单个用户的面板状态
func (s *Syncer) SyncUser(ctx context.Context, telegramID int64, status domain.PanelStatus) domain.SyncResult {
	return s.syncUser(ctx, telegramID, status, Options{})
}

func (s *Syncer) syncUser(ctx context.Context, telegramID int64, status domain.PanelStatus, opts Options) domain.SyncResult {
	if status == "" {
		status = domain.PanelStatusActive
	}
	action := plan(s.HasAccess(ctx, telegramID), status)
	if action == domain.SyncNoChange || opts.DryRun {
		return action
	}

	username := domain.PanelUsername(telegramID)
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.SyncError
	}

	var (
		err       error
		eventType events.EventType
	)
	if action == domain.SyncEnabled {
		err = s.panel.EnableUser(ctx, username)
		eventType = events.EventPanelUserEnabled
	} else {
		err = s.panel.DisableUser(ctx, username)
		eventType = events.EventPanelUserDisabled
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("tg", telegramID).Str("action", string(action)).Msg("sync user failed")
		return domain.SyncError
	}

	s.logger.Info().Int64("tg", telegramID).Str("action", string(action)).Msg("panel user status changed")
	if s.bus != nil {
		s.bus.Publish(events.PanelUserEvent{
			EventType:  eventType,
			TelegramID: telegramID,
			Username:   username,
			Notify:     opts.Notify,
		})
	}
	return action
}

// SyncAll 同步面板中所有 user_<id> 用户
func (s *Syncer) SyncAll(ctx context.Context, opts Options) (domain.SyncStats, error) {
	s.running.Lock()
	defer s.running.Unlock()

	stats := domain.SyncStats{DryRun: opts.DryRun, StartedAt: s.now()}
	s.logger.Info().Bool("dry_run", opts.DryRun).Bool("notify", opts.Notify).Msg("sync started")

	users, err := s.panel.ListUsers(ctx)
	if err != nil {
		return stats, err
	}
	if len(users) == 0 {
		s.logger.Warn().Msg("no users found in panel")
	}

	for _, u := range users {
		telegramID, ok := domain.ParsePanelUsername(u.Username)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		result := s.syncUser(ctx, telegramID, u.Status, opts)
		stats.Checked++
		switch {
		case opts.DryRun && result == domain.SyncEnabled:
			stats.WouldEnable++
			s.logger.Info().Str("user", u.Username).Msg("would enable: subscription active but VPN disabled")
		case opts.DryRun && result == domain.SyncDisabled:
			stats.WouldDisable++
			s.logger.Info().Str("user", u.Username).Msg("would disable: subscription expired but VPN active")
		case result == domain.SyncEnabled:
			stats.Enabled++
		case result == domain.SyncDisabled:
			stats.Disabled++
		case result == domain.SyncError:
			stats.Errors++
		default:
			stats.NoChange++
		}
	}

	stats.FinishedAt = s.now()
	s.logger.Info().
		Int("checked", stats.Checked).
		Int("enabled", stats.Enabled).
		Int("disabled", stats.Disabled).
		Int("no_change", stats.NoChange).
		Int("errors", stats.Errors).
		Int("would_enable", stats.WouldEnable).
		Int("would_disable", stats.WouldDisable).
		Msg("sync completed")
	if s.bus != nil {
		s.bus.Publish(events.SyncEvent{EventType: events.EventSyncCompleted, Stats: stats})
	}
	return stats, nil
}
