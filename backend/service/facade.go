package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"momsvpn/backend/domain"
	"momsvpn/backend/repository"
	"momsvpn/backend/service/accounts"
	"momsvpn/backend/service/device"
	"momsvpn/backend/service/panel"
	"momsvpn/backend/service/subscription"
	"momsvpn/backend/service/syncer"
)

const usersPerPage = 20

var ErrPanelUnavailable = errors.New("panel is not configured")

// Facade 服务门面（API 聚合层）
type Facade struct {
	subscription *subscription.Service
	devices      *device.Service
	accounts     *accounts.Service
	panel        panel.Client
	syncer       *syncer.Syncer

	logPath   string
	startedAt time.Time
}

// NewFacade 创建门面服务
func NewFacade(
	subscriptionSvc *subscription.Service,
	deviceSvc *device.Service,
	accountSvc *accounts.Service,
	panelClient panel.Client,
	syncSvc *syncer.Syncer,
) *Facade {
	return &Facade{
		subscription: subscriptionSvc,
		devices:      deviceSvc,
		accounts:     accountSvc,
		panel:        panelClient,
		syncer:       syncSvc,
		startedAt:    time.Now(),
	}
}

// Close 等待待写入的设备记录落库
func (f *Facade) Close() { f.devices.Close() }

func (f *Facade) SetLogPath(path string) { f.logPath = path }

// LogPath 返回日志文件路径与进程启动时间
func (f *Facade) LogPath() (string, time.Time) { return f.logPath, f.startedAt }

// ========== 订阅代理 ==========

// FetchSubscription 拉取并改写订阅；设备记录交给后台队列
func (f *Facade) FetchSubscription(ctx context.Context, token, ip string, info domain.DeviceInfo) (*subscription.Result, error) {
	res, err := f.subscription.Fetch(ctx, token, info.UserAgent)
	f.devices.ObserveAsync(token, ip, info)
	return res, err
}

func (f *Facade) RecentDevices(ctx context.Context, limit int) ([]domain.Device, error) {
	return f.devices.Recent(ctx, limit)
}

// ========== 用户 ==========

func (f *Facade) Accounts() *accounts.Service { return f.accounts }

func (f *Facade) RegisterUser(ctx context.Context, telegramID int64, username, fullName string) (domain.User, error) {
	return f.accounts.Register(ctx, telegramID, username, fullName)
}

func (f *Facade) GetUser(ctx context.Context, telegramID int64) (domain.User, error) {
	return f.accounts.Get(ctx, telegramID)
}

func (f *Facade) SubscriptionInfo(ctx context.Context, telegramID int64) (domain.SubscriptionInfo, error) {
	return f.accounts.SubscriptionInfo(ctx, telegramID)
}

func (f *Facade) AddSubscription(ctx context.Context, telegramID int64, days int) (time.Time, error) {
	return f.accounts.AddSubscription(ctx, telegramID, days, nil)
}

func (f *Facade) SetDevicesLimit(ctx context.Context, telegramID int64, limit int) error {
	return f.accounts.SetDevicesLimit(ctx, telegramID, limit)
}

// ========== 面板 ==========

func (f *Facade) ServerStatus(ctx context.Context) domain.ServerStatus {
	if f.panel == nil {
		return domain.ServerStatus{}
	}
	return f.panel.SystemStatus(ctx)
}

// Overview 管理后台统计；面板不可用时返回零值
func (f *Facade) Overview(ctx context.Context) (domain.Overview, error) {
	if f.panel == nil {
		return domain.Overview{}, ErrPanelUnavailable
	}
	users, err := f.panel.ListUsers(ctx)
	if err != nil {
		return domain.Overview{}, err
	}
	var out domain.Overview
	var traffic int64
	for _, u := range users {
		if u.Status == domain.PanelStatusActive {
			out.ActiveUsers++
		}
		traffic += u.UsedTraffic
	}
	out.TotalUsers = len(users)
	out.TotalTrafficGB = math.Round(float64(traffic)/(1<<30)*100) / 100

	server := f.panel.SystemStatus(ctx)
	out.ServerOnline = server.Online
	if server.Online {
		out.OnlineUsers = server.OnlineUsers
	}
	return out, nil
}

// PanelUsers 按用户名子串与状态过滤后分页（每页 20 条，page 从 1 开始）
func (f *Facade) PanelUsers(ctx context.Context, search, status string, page int) (domain.PanelUserPage, error) {
	if f.panel == nil {
		return domain.PanelUserPage{}, ErrPanelUnavailable
	}
	if page < 1 {
		page = 1
	}
	users, err := f.panel.ListUsers(ctx)
	if err != nil {
		return domain.PanelUserPage{}, err
	}
	search = strings.ToLower(strings.TrimSpace(search))
	filtered := users[:0:0]
	for _, u := range users {
		if search != "" && !strings.Contains(strings.ToLower(u.Username), search) {
			continue
		}
		if status != "" && string(u.Status) != status {
			continue
		}
		filtered = append(filtered, u)
	}

	out := domain.PanelUserPage{Items: []domain.PanelUser{}, Total: len(filtered), Page: page}
	start := (page - 1) * usersPerPage
	if start < len(filtered) {
		end := min(start+usersPerPage, len(filtered))
		out.Items = filtered[start:end]
	}
	return out, nil
}

func (f *Facade) EnableUser(ctx context.Context, telegramID int64) error {
	if f.panel == nil {
		return ErrPanelUnavailable
	}
	return f.panel.EnableUser(ctx, domain.PanelUsername(telegramID))
}

func (f *Facade) DisableUser(ctx context.Context, telegramID int64) error {
	if f.panel == nil {
		return ErrPanelUnavailable
	}
	return f.panel.DisableUser(ctx, domain.PanelUsername(telegramID))
}

// RevokeSubscription 重新生成订阅并返回新的公开链接
func (f *Facade) RevokeSubscription(ctx context.Context, telegramID int64) (string, error) {
	if f.panel == nil {
		return "", ErrPanelUnavailable
	}
	user, err := f.panel.RevokeSubscription(ctx, domain.PanelUsername(telegramID))
	if err != nil {
		return "", err
	}
	return f.accounts.PublicURL(user.SubscriptionURL), nil
}

// DeleteUser 删除面板账号与本地记录；本地不存在不视为错误
func (f *Facade) DeleteUser(ctx context.Context, telegramID int64) error {
	if f.panel != nil {
		if err := f.panel.DeleteUser(ctx, domain.PanelUsername(telegramID)); err != nil {
			return err
		}
	}
	if err := f.accounts.Delete(ctx, telegramID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// ========== 同步 ==========

func (f *Facade) Sync(ctx context.Context, opts syncer.Options) (domain.SyncStats, error) {
	if f.syncer == nil {
		return domain.SyncStats{}, ErrPanelUnavailable
	}
	return f.syncer.SyncAll(ctx, opts)
}
