package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"momsvpn/backend/config"
	"momsvpn/backend/repository/events"
	"momsvpn/backend/repository/sqlstore"
	"momsvpn/backend/service"
	"momsvpn/backend/service/accounts"
	"momsvpn/backend/service/device"
	"momsvpn/backend/service/membership"
	"momsvpn/backend/service/notify"
	"momsvpn/backend/service/panel"
	"momsvpn/backend/service/subscription"
	"momsvpn/backend/service/syncer"
)

// App 进程内共享的服务组装结果（HTTP 服务与 vpnsync 共用）
type App struct {
	Config     config.Config
	Bus        *events.Bus
	Store      *sqlstore.Store
	Panel      panel.Client
	Membership *membership.Client
	Accounts   *accounts.Service
	Syncer     *syncer.Syncer
	Notifier   *notify.Notifier
	Facade     *service.Facade
}

// New 按配置组装仓储与服务
func New(cfg config.Config) (*App, error) {
	// 1. 事件总线与存储
	bus := events.NewBus()
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN, bus)
	if err != nil {
		return nil, err
	}
	repos := store.Repositories()

	// 2. 外部协作方
	panelClient, err := panel.New(cfg.Panel)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("panel: %w", err)
	}
	membershipClient := membership.NewClient(cfg.Membership.BaseURL, cfg.Membership.Timeout)

	// 3. 服务层
	subscriptionSvc := subscription.NewService(subscription.Options{
		BaseURL:   cfg.Upstream.BaseURL,
		VerifySSL: cfg.Upstream.VerifySSL,
		Timeout:   cfg.Upstream.Timeout,
		Fallback:  subscription.FallbackFromConfig(cfg.Fallback),
	})
	deviceSvc := device.NewService(repos.Devices(), nil)
	accountSvc := accounts.NewService(accounts.Options{
		Repos:         repos,
		Panel:         panelClient,
		Membership:    membershipClient,
		Devices:       deviceSvc,
		PublicBaseURL: cfg.Server.PublicBaseURL,
	})
	syncSvc := syncer.New(accountSvc, membershipClient, panelClient, bus, cfg.Sync.RateLimit)

	// 4. 通知（订阅面板用户状态事件）
	notifier := notify.FromToken(cfg.Telegram.BotToken)
	notifier.Attach(bus)

	facade := service.NewFacade(subscriptionSvc, deviceSvc, accountSvc, panelClient, syncSvc)
	facade.SetLogPath(cfg.Log.File)

	log.Info().
		Str("panel", cfg.Panel.Kind).
		Str("upstream", cfg.Upstream.BaseURL).
		Str("database", cfg.Database.Driver).
		Bool("notify", notifier.Enabled()).
		Msg("services initialized")

	return &App{
		Config:     cfg,
		Bus:        bus,
		Store:      store,
		Panel:      panelClient,
		Membership: membershipClient,
		Accounts:   accountSvc,
		Syncer:     syncSvc,
		Notifier:   notifier,
		Facade:     facade,
	}, nil
}

// Close 等待设备记录与异步事件处理完成并关闭数据库
func (a *App) Close() error {
	a.Facade.Close()
	a.Bus.Wait()
	return a.Store.Close()
}
