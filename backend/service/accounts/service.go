package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"momsvpn/backend/domain"
	"momsvpn/backend/logging"
	"momsvpn/backend/repository"
	"momsvpn/backend/service/device"
	"momsvpn/backend/service/panel"
)

// forever days=0 时的本地订阅到期时间
var forever = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// MembershipLookup 会员服务中与注册相关的查询
type MembershipLookup interface {
	AdminInfo(ctx context.Context, telegramID int64) domain.AdminInfo
}

// Service 本地用户、订阅与面板账号
type Service struct {
	users      repository.UserRepository
	terms      repository.TermsRepository
	panel      panel.Client
	membership MembershipLookup
	devices    *device.Service
	publicBase string
	logger     zerolog.Logger
	now        func() time.Time
}

// Options 创建 Service 所需依赖；Panel/Membership/Devices 可为 nil
type Options struct {
	Repos         repository.Repositories
	Panel         panel.Client
	Membership    MembershipLookup
	Devices       *device.Service
	PublicBaseURL string
}

// NewService 创建账户服务
func NewService(opts Options) *Service {
	return &Service{
		users:      opts.Repos.Users(),
		terms:      opts.Repos.Terms(),
		panel:      opts.Panel,
		membership: opts.Membership,
		devices:    opts.Devices,
		publicBase: strings.TrimRight(opts.PublicBaseURL, "/"),
		logger:     logging.Component("accounts"),
		now:        time.Now,
	}
}

// Upsert 创建或更新本地用户
func (s *Service) Upsert(ctx context.Context, telegramID int64, username, fullName string, isMember bool) (domain.User, error) {
	return s.users.Upsert(ctx, domain.User{
		TelegramID: telegramID,
		Username:   strings.TrimPrefix(strings.TrimSpace(username), "@"),
		FullName:   strings.TrimSpace(fullName),
		IsMember:   isMember,
	})
}

func (s *Service) Get(ctx context.Context, telegramID int64) (domain.User, error) {
	return s.users.Get(ctx, telegramID)
}

// AddSubscription 延长本地订阅；days=0 表示永久
func (s *Service) AddSubscription(ctx context.Context, telegramID int64, days int, addedBy *int64) (time.Time, error) {
	if days < 0 {
		return time.Time{}, fmt.Errorf("days must be >= 0: %w", repository.ErrInvalidData)
	}
	user, err := s.users.Get(ctx, telegramID)
	if err != nil {
		return time.Time{}, err
	}

	expires := forever
	if days > 0 {
		base := s.now().UTC()
		if user.SubscriptionExpires != nil && user.SubscriptionExpires.After(base) {
			base = user.SubscriptionExpires.UTC()
		}
		expires = base.AddDate(0, 0, days)
	}
	if err := s.users.SetSubscription(ctx, telegramID, expires, addedBy); err != nil {
		return time.Time{}, err
	}
	s.logger.Info().Int64("tg", telegramID).Int("days", days).Time("expires", expires).Msg("local subscription extended")
	return expires, nil
}

func (s *Service) SetDevicesLimit(ctx context.Context, telegramID int64, limit int) error {
	return s.users.SetDevicesLimit(ctx, telegramID, limit)
}

// HasLocalSubscription 本地订阅是否有效；用户不存在视为无订阅
func (s *Service) HasLocalSubscription(ctx context.Context, telegramID int64) (bool, error) {
	user, err := s.users.Get(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.HasSubscriptionAt(s.now()), nil
}

func (s *Service) List(ctx context.Context, opts repository.UserListOptions) ([]domain.User, error) {
	return s.users.List(ctx, opts)
}

func (s *Service) Count(ctx context.Context, nonMembersOnly bool) (int64, error) {
	return s.users.Count(ctx, nonMembersOnly)
}

// Search 数字按 telegram ID 查找，否则按用户名（去掉 @，不区分大小写）
func (s *Service) Search(ctx context.Context, query string) (domain.User, error) {
	query = strings.TrimPrefix(strings.TrimSpace(query), "@")
	if query == "" {
		return domain.User{}, repository.ErrUserNotFound
	}
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		user, err := s.users.Get(ctx, id)
		if err == nil || !errors.Is(err, repository.ErrNotFound) {
			return user, err
		}
	}
	return s.users.FindByUsername(ctx, query)
}

// WithSubscription 本地订阅用户（按到期时间倒序）
func (s *Service) WithSubscription(ctx context.Context) ([]domain.User, error) {
	return s.users.ListWithSubscription(ctx)
}

func (s *Service) Delete(ctx context.Context, telegramID int64) error {
	return s.users.Delete(ctx, telegramID)
}

func (s *Service) AcceptTerms(ctx context.Context, telegramID int64) error {
	return s.terms.Accept(ctx, telegramID)
}

func (s *Service) TermsAccepted(ctx context.Context, telegramID int64) (bool, error) {
	return s.terms.IsAccepted(ctx, telegramID)
}

// Register 登记本地用户并在面板中开通账号；面板失败不影响注册结果
func (s *Service) Register(ctx context.Context, telegramID int64, username, fullName string) (domain.User, error) {
	if telegramID <= 0 {
		return domain.User{}, fmt.Errorf("telegram id %d: %w", telegramID, repository.ErrInvalidID)
	}
	user, err := s.Upsert(ctx, telegramID, username, fullName, false)
	if err != nil {
		return domain.User{}, err
	}
	if s.panel == nil {
		return user, nil
	}
	if _, err := s.panel.CreateUser(ctx, panel.CreateUserRequest{
		TelegramID:  telegramID,
		Username:    user.Username,
		DeviceLimit: s.deviceLimit(ctx, telegramID),
	}); err != nil {
		s.logger.Error().Err(err).Int64("tg", telegramID).Msg("create panel user failed")
	}
	return user, nil
}

// deviceLimit VIP 不限设备（0），其余取会员服务的上限
func (s *Service) deviceLimit(ctx context.Context, telegramID int64) int {
	if s.membership == nil {
		return domain.DefaultDevicesLimit
	}
	info := s.membership.AdminInfo(ctx, telegramID)
	if info.IsAdmin {
		return 0
	}
	if info.IPLimit > 0 {
		return info.IPLimit
	}
	return domain.DefaultDevicesLimit
}

// SubscriptionInfo 返回面板订阅详情；面板中没有该用户时自动创建
func (s *Service) SubscriptionInfo(ctx context.Context, telegramID int64) (domain.SubscriptionInfo, error) {
	if s.panel == nil {
		return domain.SubscriptionInfo{}, errors.New("panel is not configured")
	}
	username := domain.PanelUsername(telegramID)
	user, err := s.panel.GetUser(ctx, username)
	if errors.Is(err, panel.ErrUserNotFound) {
		s.logger.Info().Int64("tg", telegramID).Msg("panel user missing, creating")
		var local domain.User
		if u, lerr := s.users.Get(ctx, telegramID); lerr == nil {
			local = u
		}
		user, err = s.panel.CreateUser(ctx, panel.CreateUserRequest{
			TelegramID:  telegramID,
			Username:    local.Username,
			DeviceLimit: s.deviceLimit(ctx, telegramID),
		})
	}
	if err != nil {
		return domain.SubscriptionInfo{}, err
	}

	return domain.SubscriptionInfo{
		SubscriptionURL: s.PublicURL(user.SubscriptionURL),
		Status:          user.Status,
		DataLimit:       user.DataLimit,
		UsedTraffic:     user.UsedTraffic,
		Expire:          user.Expire,
		LastDevice:      s.devices.LastDevices(ctx, user.UUID, user.SubLastUserAgent),
		OnlineAt:        user.OnlineAt,
	}, nil
}

// PublicURL 把面板订阅链接改写为本服务的 /sub/{token}
func (s *Service) PublicURL(panelURL string) string {
	if s.publicBase == "" || panelURL == "" {
		return panelURL
	}
	path := panelURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	token := path[strings.LastIndex(path, "/")+1:]
	if token == "" {
		return panelURL
	}
	return s.publicBase + "/sub/" + token
}
