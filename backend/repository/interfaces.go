package repository

import (
	"context"
	"time"

	"momsvpn/backend/domain"
)

// UserListOptions 用户分页查询参数
type UserListOptions struct {
	Limit          int
	Offset         int
	NonMembersOnly bool
}

// UserRepository 本地用户仓储接口
type UserRepository interface {
	// 基础 CRUD
	Get(ctx context.Context, telegramID int64) (domain.User, error)
	List(ctx context.Context, opts UserListOptions) ([]domain.User, error)
	Count(ctx context.Context, nonMembersOnly bool) (int64, error)
	Upsert(ctx context.Context, user domain.User) (domain.User, error)
	Delete(ctx context.Context, telegramID int64) error

	// 订阅/设备限制
	SetSubscription(ctx context.Context, telegramID int64, expires time.Time, addedBy *int64) error
	SetDevicesLimit(ctx context.Context, telegramID int64, limit int) error

	// 查询
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	ListWithSubscription(ctx context.Context) ([]domain.User, error)
}

// DeviceRepository 订阅客户端设备仓储接口
type DeviceRepository interface {
	Get(ctx context.Context, id string) (domain.Device, error)
	List(ctx context.Context, limit int) ([]domain.Device, error)
	Touch(ctx context.Context, device domain.Device) (domain.Device, error)
}

// TermsRepository 用户协议（оферта）接受记录
type TermsRepository interface {
	Accept(ctx context.Context, telegramID int64) error
	IsAccepted(ctx context.Context, telegramID int64) (bool, error)
}

// Repositories 仓储集合接口
type Repositories interface {
	Users() UserRepository
	Devices() DeviceRepository
	Terms() TermsRepository
}

// RepositoriesImpl 仓储集合实现
type RepositoriesImpl struct {
	users   UserRepository
	devices DeviceRepository
	terms   TermsRepository
}

// NewRepositories 创建仓储集合
func NewRepositories(users UserRepository, devices DeviceRepository, terms TermsRepository) *RepositoriesImpl {
	return &RepositoriesImpl{
		users:   users,
		devices: devices,
		terms:   terms,
	}
}

func (r *RepositoriesImpl) Users() UserRepository     { return r.users }
func (r *RepositoriesImpl) Devices() DeviceRepository { return r.devices }
func (r *RepositoriesImpl) Terms() TermsRepository    { return r.terms }
