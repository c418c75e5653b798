package events

import "momsvpn/backend/domain"

// EventType 事件类型
type EventType string

const (
	// 本地用户事件
	EventUserUpserted            EventType = "user.upserted"
	EventUserSubscriptionChanged EventType = "user.subscription_changed"
	EventUserDeleted             EventType = "user.deleted"

	// 设备事件
	EventDeviceSeen EventType = "device.seen"

	// 面板用户状态事件（同步任务发布）
	EventPanelUserEnabled  EventType = "panel.user_enabled"
	EventPanelUserDisabled EventType = "panel.user_disabled"

	// 同步任务完成
	EventSyncCompleted EventType = "sync.completed"

	// 通配符事件（用于订阅所有事件）
	EventAll EventType = "*"
)

// Event 事件接口
type Event interface {
	Type() EventType
}

// UserEvent 本地用户事件
type UserEvent struct {
	EventType  EventType
	TelegramID int64
	User       domain.User
}

func (e UserEvent) Type() EventType { return e.EventType }

// DeviceEvent 设备事件
type DeviceEvent struct {
	EventType EventType
	Device    domain.Device
}

func (e DeviceEvent) Type() EventType { return e.EventType }

// PanelUserEvent 面板用户启用/停用事件
type PanelUserEvent struct {
	EventType  EventType
	TelegramID int64
	Username   string
	// Notify 是否需要通知用户
	Notify bool
}

func (e PanelUserEvent) Type() EventType { return e.EventType }

// SyncEvent 同步完成事件
type SyncEvent struct {
	EventType EventType
	Stats     domain.SyncStats
}

func (e SyncEvent) Type() EventType { return e.EventType }
