package domain

import (
	"time"
)

type ProxyScheme string

const (
	SchemeVLESS       ProxyScheme = "vless"
	SchemeVMess       ProxyScheme = "vmess"
	SchemeTrojan      ProxyScheme = "trojan"
	SchemeShadowsocks ProxyScheme = "shadowsocks"
	SchemeHysteria2   ProxyScheme = "hysteria2"
)

// DeviceInfo 从请求头解析出的客户端信息（仅用于日志/统计）
type DeviceInfo struct {
	UserAgent  string `json:"userAgent"`
	DeviceName string `json:"deviceName,omitempty"`
	OSVersion  string `json:"osVersion,omitempty"`
	AppName    string `json:"appName,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// User 本地用户记录（telegram 用户 + 本地订阅）
type User struct {
	TelegramID          int64      `json:"telegramId"`
	Username            string     `json:"username,omitempty"`
	FullName            string     `json:"fullName,omitempty"`
	IsAdmin             bool       `json:"isAdmin"`
	IsMember            bool       `json:"isMember"`
	SubscriptionExpires *time.Time `json:"subscriptionExpires,omitempty"`
	DevicesLimit        int        `json:"devicesLimit"`
	AddedBy             *int64     `json:"addedBy,omitempty"`
	Note                string     `json:"note,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// HasSubscriptionAt reports whether the local subscription is valid at now.
func (u User) HasSubscriptionAt(now time.Time) bool {
	return u.SubscriptionExpires != nil && u.SubscriptionExpires.After(now)
}

const DefaultDevicesLimit = 2

// Device 订阅客户端设备（按 token + User-Agent 去重）
type Device struct {
	ID         string    `json:"id"`
	TokenHint  string    `json:"tokenHint"`
	DeviceName string    `json:"deviceName,omitempty"`
	OSVersion  string    `json:"osVersion,omitempty"`
	AppName    string    `json:"appName,omitempty"`
	AppVersion string    `json:"appVersion,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	LastSeen   time.Time `json:"lastSeen"`
	CreatedAt  time.Time `json:"createdAt"`
}

type PanelStatus string

const (
	PanelStatusActive   PanelStatus = "active"
	PanelStatusDisabled PanelStatus = "disabled"
	PanelStatusLimited  PanelStatus = "limited"
	PanelStatusExpired  PanelStatus = "expired"
)

// PanelUser VPN 面板中的用户（统一 Remnawave / Marzban 两种格式）
type PanelUser struct {
	UUID             string      `json:"uuid,omitempty"`
	Username         string      `json:"username"`
	Status           PanelStatus `json:"status"`
	DataLimit        int64       `json:"dataLimit"`
	UsedTraffic      int64       `json:"usedTraffic"`
	Expire           int64       `json:"expire"`
	SubscriptionURL  string      `json:"subscriptionUrl"`
	SubLastUserAgent string      `json:"subLastUserAgent,omitempty"`
	OnlineAt         string      `json:"onlineAt,omitempty"`
	Note             string      `json:"note,omitempty"`
	TelegramID       *int64      `json:"telegramId,omitempty"`
	ShortUUID        string      `json:"shortUuid,omitempty"`
	HWIDDeviceLimit  *int        `json:"hwidDeviceLimit,omitempty"`
}

// ServerStatus 面板服务器状态
type ServerStatus struct {
	Online      bool    `json:"online"`
	OnlineUsers int     `json:"online_users"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemUsage    float64 `json:"mem_usage"`
}

type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "active"
	MembershipExpired MembershipStatus = "expired"
	MembershipNone    MembershipStatus = "none"
	MembershipError   MembershipStatus = "error"
)

// Membership 外部会员服务返回的订阅状态
type Membership struct {
	Status  MembershipStatus `json:"status"`
	EndDate *string          `json:"end_date"`
	Level   *string          `json:"level"`
}

// AdminInfo 会员服务中的 VIP/设备上限信息
type AdminInfo struct {
	IsAdmin bool `json:"is_admin"`
	IPLimit int  `json:"ip_limit"`
}

// SubscriptionInfo 提供给 bot / API 的订阅详情
type SubscriptionInfo struct {
	SubscriptionURL string      `json:"subscription_url"`
	Status          PanelStatus `json:"status"`
	DataLimit       int64       `json:"data_limit"`
	UsedTraffic     int64       `json:"used_traffic"`
	Expire          int64       `json:"expire"`
	LastDevice      string      `json:"last_device,omitempty"`
	OnlineAt        string      `json:"online_at,omitempty"`
}

type SyncResult string

const (
	SyncEnabled  SyncResult = "enabled"
	SyncDisabled SyncResult = "disabled"
	SyncNoChange SyncResult = "no_change"
	SyncError    SyncResult = "error"
)

// SyncStats 一次全量同步的统计
type SyncStats struct {
	Checked      int       `json:"checked"`
	Enabled      int       `json:"enabled"`
	Disabled     int       `json:"disabled"`
	NoChange     int       `json:"no_change"`
	Errors       int       `json:"errors"`
	WouldEnable  int       `json:"would_enable,omitempty"`
	WouldDisable int       `json:"would_disable,omitempty"`
	DryRun       bool      `json:"dry_run"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Overview 管理后台首页统计
type Overview struct {
	TotalUsers     int     `json:"total_users"`
	ActiveUsers    int     `json:"active_users"`
	TotalTrafficGB float64 `json:"total_traffic_gb"`
	OnlineUsers    int     `json:"online_users"`
	ServerOnline   bool    `json:"server_online"`
}

// PanelUserPage 面板用户分页结果
type PanelUserPage struct {
	Items []PanelUser `json:"items"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
}
