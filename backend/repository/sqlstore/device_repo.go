package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"momsvpn/backend/domain"
	"momsvpn/backend/repository"
	"momsvpn/backend/repository/events"
)

// DeviceRepo 设备仓储实现
type DeviceRepo struct {
	store *Store
}

// NewDeviceRepo 创建设备仓储
func NewDeviceRepo(store *Store) *DeviceRepo {
	return &DeviceRepo{store: store}
}

// Get 获取设备
func (r *DeviceRepo) Get(ctx context.Context, id string) (domain.Device, error) {
	var row deviceRow
	err := r.store.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Device{}, repository.ErrDeviceNotFound
	}
	if err != nil {
		return domain.Device{}, err
	}
	return row.toDomain(), nil
}

// List 按最近活跃时间列出设备
func (r *DeviceRepo) List(ctx context.Context, limit int) ([]domain.Device, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []deviceRow
	if err := r.store.db.WithContext(ctx).Order("last_seen DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Device, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

// Touch 插入设备或刷新 last_seen 及解析字段
func (r *DeviceRepo) Touch(ctx context.Context, device domain.Device) (domain.Device, error) {
	if device.ID == "" {
		return domain.Device{}, repository.ErrInvalidID
	}
	now := time.Now().UTC()
	row := deviceRow{
		ID:         device.ID,
		TokenHint:  device.TokenHint,
		DeviceName: device.DeviceName,
		OSVersion:  device.OSVersion,
		AppName:    device.AppName,
		AppVersion: device.AppVersion,
		UserAgent:  device.UserAgent,
		IPAddress:  device.IPAddress,
		LastSeen:   now,
		CreatedAt:  now,
	}
	err := r.store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"device_name", "os_version", "app_name", "app_version", "user_agent", "ip_address", "last_seen",
		}),
	}).Create(&row).Error
	if err != nil {
		return domain.Device{}, err
	}

	saved, err := r.Get(ctx, device.ID)
	if err != nil {
		return domain.Device{}, err
	}
	r.store.PublishEvent(events.DeviceEvent{EventType: events.EventDeviceSeen, Device: saved})
	return saved, nil
}
