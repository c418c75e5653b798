package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"momsvpn/backend/domain"
	"momsvpn/backend/logging"
)

const (
	remnawavePageSize  = 50
	remnawaveMaxOffset = 5000
	remnawaveUserTTL   = 3650 * 24 * time.Hour
)

// Remnawave Remnawave 面板客户端（API Key 认证）
type Remnawave struct {
	baseURL   string
	apiKey    string
	squadUUID string
	client    *http.Client
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRemnawave 创建 Remnawave 客户端
func NewRemnawave(baseURL, apiKey, squadUUID string, client *http.Client) *Remnawave {
	r := &Remnawave{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		squadUUID: squadUUID,
		client:    client,
		logger:    logging.Component("remnawave"),
		now:       time.Now,
	}
	if apiKey == "" {
		r.logger.Warn().Msg("REMNAWAVE_API_KEY not set")
	}
	return r
}

type remnawaveUser struct {
	UUID              string `json:"uuid"`
	Username          string `json:"username"`
	Status            string `json:"status"`
	TrafficLimitBytes int64  `json:"trafficLimitBytes"`
	ExpireAt          string `json:"expireAt"`
	SubscriptionURL   string `json:"subscriptionUrl"`
	SubLastUserAgent  string `json:"subLastUserAgent"`
	Description       string `json:"description"`
	TelegramID        *int64 `json:"telegramId"`
	ShortUUID         string `json:"shortUuid"`
	HWIDDeviceLimit   *int   `json:"hwidDeviceLimit"`
	UserTraffic       struct {
		UsedTrafficBytes int64   `json:"usedTrafficBytes"`
		OnlineAt         *string `json:"onlineAt"`
	} `json:"userTraffic"`
}

func (u remnawaveUser) toDomain() domain.PanelUser {
	status := strings.ToLower(u.Status)
	if status == "" {
		status = string(domain.PanelStatusActive)
	}
	out := domain.PanelUser{
		UUID:             u.UUID,
		Username:         u.Username,
		Status:           domain.PanelStatus(status),
		DataLimit:        u.TrafficLimitBytes,
		UsedTraffic:      u.UserTraffic.UsedTrafficBytes,
		SubscriptionURL:  u.SubscriptionURL,
		SubLastUserAgent: u.SubLastUserAgent,
		Note:             u.Description,
		TelegramID:       u.TelegramID,
		ShortUUID:        u.ShortUUID,
		HWIDDeviceLimit:  u.HWIDDeviceLimit,
	}
	if u.UserTraffic.OnlineAt != nil {
		out.OnlineAt = *u.UserTraffic.OnlineAt
	}
	if u.ExpireAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, u.ExpireAt); err == nil {
			out.Expire = t.Unix()
		}
	}
	return out
}

type envelope[T any] struct {
	Response T `json:"response"`
}

func (r *Remnawave) header() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + r.apiKey}}
}

func (r *Remnawave) call(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	return apiCall(ctx, r.client, method, r.baseURL+path, r.header(), payload)
}

// ListUsers 按实际返回条数推进 offset 分页拉取全部用户
func (r *Remnawave) ListUsers(ctx context.Context) ([]domain.PanelUser, error) {
	var all []domain.PanelUser
	offset := 0
	for {
		path := "/api/users?start=" + strconv.Itoa(offset) + "&limit=" + strconv.Itoa(remnawavePageSize)
		code, body, err := r.call(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("list users at offset %d: %w", offset, err)
		}
		if code != http.StatusOK {
			return nil, statusError("list users", code, body)
		}

		var page envelope[struct {
			Users []remnawaveUser `json:"users"`
		}]
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode users page: %w", err)
		}
		if len(page.Response.Users) == 0 {
			break
		}
		for _, u := range page.Response.Users {
			all = append(all, u.toDomain())
		}
		offset += len(page.Response.Users)
		if offset > remnawaveMaxOffset {
			r.logger.Warn().Int("offset", offset).Msg("pagination limit reached")
			break
		}
	}
	r.logger.Debug().Int("count", len(all)).Msg("users fetched")
	return all, nil
}

// GetUser 先按用户名精确匹配，user_<id> 形式再按 telegram ID 匹配
func (r *Remnawave) GetUser(ctx context.Context, username string) (domain.PanelUser, error) {
	users, err := r.ListUsers(ctx)
	if err != nil {
		return domain.PanelUser{}, err
	}
	return findUser(users, username)
}

func findUser(users []domain.PanelUser, username string) (domain.PanelUser, error) {
	for _, u := range users {
		if u.Username == username {
			return u, nil
		}
	}
	if tgID, ok := domain.ParsePanelUsername(username); ok {
		if u, ok := findByTelegramID(users, tgID); ok {
			return u, nil
		}
	}
	return domain.PanelUser{}, ErrUserNotFound
}

func findByTelegramID(users []domain.PanelUser, tgID int64) (domain.PanelUser, bool) {
	for _, u := range users {
		if u.TelegramID != nil && *u.TelegramID == tgID {
			return u, true
		}
	}
	return domain.PanelUser{}, false
}

// CreateUser 创建用户；已存在时直接返回
func (r *Remnawave) CreateUser(ctx context.Context, req CreateUserRequest) (domain.PanelUser, error) {
	displayName := strings.TrimSpace(req.Username)
	if displayName == "" {
		displayName = "User"
	}
	username := domain.PanelUsername(req.TelegramID)
	description := fmt.Sprintf("TG ID: %d", req.TelegramID)
	if displayName != "User" {
		username = displayName
		description = "TG: @" + displayName
	}

	existing, err := r.GetUser(ctx, username)
	if err == nil {
		r.logger.Info().Str("user", username).Msg("user already exists")
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return domain.PanelUser{}, err
	}

	payload := map[string]any{
		"username":             username,
		"telegramId":           req.TelegramID,
		"description":          description,
		"trafficLimitBytes":    0,
		"trafficLimitStrategy": "NO_RESET",
		"status":               "ACTIVE",
		"expireAt":             r.now().UTC().Add(remnawaveUserTTL).Format("2006-01-02T15:04:05.000Z"),
		"hwidDeviceLimit":      req.DeviceLimit,
	}
	if r.squadUUID != "" {
		payload["activeInternalSquads"] = []string{r.squadUUID}
	}

	code, body, err := r.call(ctx, http.MethodPost, "/api/users", payload)
	if err != nil {
		return domain.PanelUser{}, fmt.Errorf("create user %s: %w", username, err)
	}
	switch {
	case code == http.StatusOK || code == http.StatusCreated:
		u, err := decodeRemnawaveUser(body)
		if err != nil {
			return domain.PanelUser{}, err
		}
		r.logger.Info().Str("user", username).Msg("created user")
		return u, nil
	case code == http.StatusBadRequest && strings.Contains(string(body), "User username already exists"):
		r.logger.Warn().Str("user", username).Msg("user exists (400), looking up by telegram id")
		return r.recoverExisting(ctx, username, req.TelegramID, body)
	default:
		return domain.PanelUser{}, statusError("create user", code, body)
	}
}

func (r *Remnawave) recoverExisting(ctx context.Context, username string, tgID int64, createBody []byte) (domain.PanelUser, error) {
	if users, err := r.ListUsers(ctx); err == nil {
		if u, ok := findByTelegramID(users, tgID); ok {
			return u, nil
		}
	}
	code, body, err := r.call(ctx, http.MethodGet, "/api/users/"+url.PathEscape(username), nil)
	if err == nil && code == http.StatusOK {
		if u, err := decodeRemnawaveUser(body); err == nil {
			return u, nil
		}
	}
	r.logger.Error().Str("user", username).Msg("user reported as existing but not found")
	return domain.PanelUser{}, fmt.Errorf("%w: %s", ErrUserExists, strings.TrimSpace(string(createBody)))
}

// decodeRemnawaveUser 兼容 {response: {...}} 与裸对象两种返回
func decodeRemnawaveUser(body []byte) (domain.PanelUser, error) {
	var wrapped envelope[*remnawaveUser]
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Response != nil {
		return wrapped.Response.toDomain(), nil
	}
	var bare remnawaveUser
	if err := json.Unmarshal(body, &bare); err != nil {
		return domain.PanelUser{}, fmt.Errorf("decode user: %w", err)
	}
	return bare.toDomain(), nil
}

func (r *Remnawave) EnableUser(ctx context.Context, username string) error {
	return r.setStatus(ctx, username, "ACTIVE")
}

func (r *Remnawave) DisableUser(ctx context.Context, username string) error {
	return r.setStatus(ctx, username, "DISABLED")
}

func (r *Remnawave) setStatus(ctx context.Context, username, status string) error {
	user, err := r.GetUser(ctx, username)
	if err != nil {
		return err
	}
	if user.UUID == "" {
		return fmt.Errorf("user %s has no uuid", username)
	}
	code, body, err := r.call(ctx, http.MethodPut, "/api/users/"+url.PathEscape(user.UUID), map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("update status of %s: %w", username, err)
	}
	if code != http.StatusOK {
		return statusError("update status", code, body)
	}
	r.logger.Info().Str("user", username).Str("status", status).Msg("user status updated")
	return nil
}

// DeleteUser 删除用户；用户不存在视为成功
func (r *Remnawave) DeleteUser(ctx context.Context, username string) error {
	user, err := r.GetUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	code, body, err := r.call(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(user.UUID), nil)
	if err != nil {
		return fmt.Errorf("delete %s: %w", username, err)
	}
	if code != http.StatusOK && code != http.StatusNoContent {
		return statusError("delete user", code, body)
	}
	r.logger.Info().Str("user", username).Msg("user deleted")
	return nil
}

// RevokeSubscription 重新生成订阅链接
func (r *Remnawave) RevokeSubscription(ctx context.Context, username string) (domain.PanelUser, error) {
	user, err := r.GetUser(ctx, username)
	if err != nil {
		return domain.PanelUser{}, err
	}
	code, body, err := r.call(ctx, http.MethodPost, "/api/users/"+url.PathEscape(user.UUID)+"/revoke-subscription", nil)
	if err != nil {
		return domain.PanelUser{}, fmt.Errorf("revoke %s: %w", username, err)
	}
	if code != http.StatusOK {
		return domain.PanelUser{}, statusError("revoke subscription", code, body)
	}
	return decodeRemnawaveUser(body)
}

func (r *Remnawave) SystemStatus(ctx context.Context) domain.ServerStatus {
	code, body, err := r.call(ctx, http.MethodGet, "/api/system/stats", nil)
	if err != nil || code != http.StatusOK {
		r.logger.Error().Err(err).Int("status", code).Msg("check server status failed")
		return domain.ServerStatus{}
	}
	var stats envelope[struct {
		OnlineUsers int `json:"onlineUsers"`
		CPU         struct {
			Usage float64 `json:"usage"`
		} `json:"cpu"`
		Memory struct {
			UsagePercent float64 `json:"usagePercent"`
		} `json:"memory"`
	}]
	if err := json.Unmarshal(body, &stats); err != nil {
		r.logger.Error().Err(err).Msg("decode server status failed")
		return domain.ServerStatus{}
	}
	return domain.ServerStatus{
		Online:      true,
		OnlineUsers: stats.Response.OnlineUsers,
		CPUUsage:    stats.Response.CPU.Usage,
		MemUsage:    stats.Response.Memory.UsagePercent,
	}
}
