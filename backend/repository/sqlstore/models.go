package sqlstore

import (
	"time"

	"momsvpn/backend/domain"
)

type userRow struct {
	ID                  uint       `gorm:"primaryKey;autoIncrement"`
	TelegramID          int64      `gorm:"column:telegram_id;uniqueIndex;not null"`
	Username            string     `gorm:"column:username;size:128;index"`
	FullName            string     `gorm:"column:first_name;size:256"`
	IsAdmin             bool       `gorm:"column:is_admin;not null;default:false"`
	IsMember            bool       `gorm:"column:is_momsclub_member;not null;default:false"`
	SubscriptionExpires *time.Time `gorm:"column:subscription_expires"`
	DevicesLimit        int        `gorm:"column:devices_limit;not null;default:2"`
	AddedBy             *int64     `gorm:"column:added_by"`
	Note                string     `gorm:"column:note;type:text"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (userRow) TableName() string { return "users" }

func (r userRow) toDomain() domain.User {
	return domain.User{
		TelegramID:          r.TelegramID,
		Username:            r.Username,
		FullName:            r.FullName,
		IsAdmin:             r.IsAdmin,
		IsMember:            r.IsMember,
		SubscriptionExpires: r.SubscriptionExpires,
		DevicesLimit:        r.DevicesLimit,
		AddedBy:             r.AddedBy,
		Note:                r.Note,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

type deviceRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	TokenHint  string    `gorm:"column:token_hint;size:32;index"`
	DeviceName string    `gorm:"column:device_name;size:64"`
	OSVersion  string    `gorm:"column:os_version;size:64"`
	AppName    string    `gorm:"column:app_name;size:64"`
	AppVersion string    `gorm:"column:app_version;size:32"`
	UserAgent  string    `gorm:"column:user_agent;type:text"`
	IPAddress  string    `gorm:"column:ip_address;size:64"`
	LastSeen   time.Time `gorm:"column:last_seen;index"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (deviceRow) TableName() string { return "devices" }

func (r deviceRow) toDomain() domain.Device {
	return domain.Device{
		ID:         r.ID,
		TokenHint:  r.TokenHint,
		DeviceName: r.DeviceName,
		OSVersion:  r.OSVersion,
		AppName:    r.AppName,
		AppVersion: r.AppVersion,
		UserAgent:  r.UserAgent,
		IPAddress:  r.IPAddress,
		LastSeen:   r.LastSeen,
		CreatedAt:  r.CreatedAt,
	}
}

type termsRow struct {
	TelegramID int64     `gorm:"column:telegram_id;primaryKey;autoIncrement:false"`
	AcceptedAt time.Time `gorm:"column:accepted_at"`
}

func (termsRow) TableName() string { return "oferta_accepted" }
