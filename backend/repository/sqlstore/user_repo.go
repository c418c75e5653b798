package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"momsvpn/backend/domain"
	"momsvpn/backend/repository"
	"momsvpn/backend/repository/events"
)

// UserRepo 本地用户仓储实现
type UserRepo struct {
	store *Store
}

// NewUserRepo 创建用户仓储
func NewUserRepo(store *Store) *UserRepo {
	return &UserRepo{store: store}
}

// Get 按 telegram ID 获取用户
func (r *UserRepo) Get(ctx context.Context, telegramID int64) (domain.User, error) {
	var row userRow
	err := r.store.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, repository.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return row.toDomain(), nil
}

// List 按创建时间倒序分页列出用户
func (r *UserRepo) List(ctx context.Context, opts repository.UserListOptions) ([]domain.User, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q := r.store.db.WithContext(ctx).Model(&userRow{})
	if opts.NonMembersOnly {
		q = q.Where("is_momsclub_member = ?", false)
	}
	var rows []userRow
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(opts.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toUsers(rows), nil
}

// Count 统计用户数
func (r *UserRepo) Count(ctx context.Context, nonMembersOnly bool) (int64, error) {
	q := r.store.db.WithContext(ctx).Model(&userRow{})
	if nonMembersOnly {
		q = q.Where("is_momsclub_member = ?", false)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// Upsert 创建或更新用户；为空的用户名/姓名不覆盖已有值
func (r *UserRepo) Upsert(ctx context.Context, user domain.User) (domain.User, error) {
	if user.TelegramID == 0 {
		return domain.User{}, repository.ErrInvalidID
	}

	var saved userRow
	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		err := tx.Where("telegram_id = ?", user.TelegramID).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = userRow{
				TelegramID:   user.TelegramID,
				Username:     user.Username,
				FullName:     user.FullName,
				IsAdmin:      user.IsAdmin,
				IsMember:     user.IsMember,
				DevicesLimit: user.DevicesLimit,
				Note:         user.Note,
			}
			if row.DevicesLimit <= 0 {
				row.DevicesLimit = domain.DefaultDevicesLimit
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			updates := map[string]any{
				"is_momsclub_member": user.IsMember,
				"updated_at":         time.Now().UTC(),
			}
			if user.Username != "" {
				updates["username"] = user.Username
			}
			if user.FullName != "" {
				updates["first_name"] = user.FullName
			}
			if user.IsAdmin {
				updates["is_admin"] = true
			}
			if err := tx.Model(&row).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.Where("telegram_id = ?", user.TelegramID).First(&saved).Error
	})
	if err != nil {
		return domain.User{}, err
	}

	out := saved.toDomain()
	r.store.PublishEvent(events.UserEvent{
		EventType:  events.EventUserUpserted,
		TelegramID: out.TelegramID,
		User:       out,
	})
	return out, nil
}

// Delete 删除用户
func (r *UserRepo) Delete(ctx context.Context, telegramID int64) error {
	res := r.store.db.WithContext(ctx).Where("telegram_id = ?", telegramID).Delete(&userRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}
	r.store.PublishEvent(events.UserEvent{EventType: events.EventUserDeleted, TelegramID: telegramID})
	return nil
}

// SetSubscription 设置本地订阅到期时间
func (r *UserRepo) SetSubscription(ctx context.Context, telegramID int64, expires time.Time, addedBy *int64) error {
	expires = expires.UTC()
	res := r.store.db.WithContext(ctx).Model(&userRow{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]any{
			"subscription_expires": expires,
			"added_by":             addedBy,
			"updated_at":           time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}
	r.store.PublishEvent(events.UserEvent{EventType: events.EventUserSubscriptionChanged, TelegramID: telegramID})
	return nil
}

// SetDevicesLimit 设置设备数上限
func (r *UserRepo) SetDevicesLimit(ctx context.Context, telegramID int64, limit int) error {
	if limit < 0 {
		return repository.ErrInvalidData
	}
	res := r.store.db.WithContext(ctx).Model(&userRow{}).
		Where("telegram_id = ?", telegramID).
		Updates(map[string]any{"devices_limit": limit, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrUserNotFound
	}
	return nil
}

// FindByUsername 按用户名（不区分大小写）查找
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return domain.User{}, repository.ErrUserNotFound
	}
	var row userRow
	err := r.store.db.WithContext(ctx).Where("LOWER(username) = ?", username).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, repository.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return row.toDomain(), nil
}

// ListWithSubscription 列出设置过本地订阅的用户（按到期时间倒序）
func (r *UserRepo) ListWithSubscription(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	err := r.store.db.WithContext(ctx).
		Where("subscription_expires IS NOT NULL").
		Order("subscription_expires DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toUsers(rows), nil
}

func toUsers(rows []userRow) []domain.User {
	items := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items
}
