package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"momsvpn/backend/domain"
	"momsvpn/backend/logging"
)

const marzbanDataLimit = 300 << 30 // 300 GB

// Marzban Marzban 面板客户端（管理员 JWT 认证）
type Marzban struct {
	baseURL string
	client  *http.Client
	tokens  *TokenCache
	logger  zerolog.Logger
}

// NewMarzban 创建 Marzban 客户端；tokens 为 nil 时使用用户名/密码登录的缓存
func NewMarzban(baseURL, username, password string, client *http.Client, tokens *TokenCache) *Marzban {
	m := &Marzban{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logging.Component("marzban"),
	}
	if tokens == nil {
		tokens = NewTokenCache(m.login(username, password))
	}
	m.tokens = tokens
	return m
}

func (m *Marzban) login(username, password string) TokenFetcher {
	return func(ctx context.Context) (string, time.Duration, error) {
		form := url.Values{"username": {username}, "password": {password}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/admin/token", strings.NewReader(form.Encode()))
		if err != nil {
			return "", 0, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := m.client.Do(req)
		if err != nil {
			return "", 0, fmt.Errorf("authenticate: %w", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode != http.StatusOK {
			return "", 0, statusError("authenticate", resp.StatusCode, body)
		}
		var out struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
			return "", 0, errors.New("authenticate: empty access token")
		}
		m.logger.Info().Msg("authenticated with marzban")
		return out.AccessToken, 0, nil
	}
}

// call 带鉴权发送请求；401 时刷新 token 重试一次
func (m *Marzban) call(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := m.tokens.Token(ctx)
		if err != nil {
			return 0, nil, err
		}
		header := http.Header{"Authorization": []string{"Bearer " + token}}
		code, body, err := apiCall(ctx, m.client, method, m.baseURL+path, header, payload)
		if err != nil {
			return code, body, err
		}
		if code == http.StatusUnauthorized && attempt == 0 {
			m.logger.Info().Msg("token expired, re-authenticating")
			m.tokens.Invalidate()
			continue
		}
		return code, body, nil
	}
}

type marzbanUser struct {
	Username         string  `json:"username"`
	Status           string  `json:"status"`
	DataLimit        *int64  `json:"data_limit"`
	UsedTraffic      int64   `json:"used_traffic"`
	Expire           *int64  `json:"expire"`
	SubscriptionURL  string  `json:"subscription_url"`
	SubLastUserAgent *string `json:"sub_last_user_agent"`
	OnlineAt         *string `json:"online_at"`
	Note             *string `json:"note"`
}

func (u marzbanUser) toDomain() domain.PanelUser {
	out := domain.PanelUser{
		Username:        u.Username,
		Status:          domain.PanelStatus(strings.ToLower(u.Status)),
		UsedTraffic:     u.UsedTraffic,
		SubscriptionURL: u.SubscriptionURL,
	}
	if u.DataLimit != nil {
		out.DataLimit = *u.DataLimit
	}
	if u.Expire != nil {
		out.Expire = *u.Expire
	}
	if u.SubLastUserAgent != nil {
		out.SubLastUserAgent = *u.SubLastUserAgent
	}
	if u.OnlineAt != nil {
		out.OnlineAt = *u.OnlineAt
	}
	if u.Note != nil {
		out.Note = *u.Note
	}
	if id, ok := domain.ParsePanelUsername(u.Username); ok {
		out.TelegramID = &id
	}
	return out
}

func decodeMarzbanUser(body []byte) (domain.PanelUser, error) {
	var u marzbanUser
	if err := json.Unmarshal(body, &u); err != nil {
		return domain.PanelUser{}, fmt.Errorf("decode user: %w", err)
	}
	return u.toDomain(), nil
}

func userPath(username string) string {
	return "/api/user/" + url.PathEscape(username)
}

func (m *Marzban) ListUsers(ctx context.Context) ([]domain.PanelUser, error) {
	code, body, err := m.call(ctx, http.MethodGet, "/api/users", nil)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if code != http.StatusOK {
		return nil, statusError("list users", code, body)
	}
	var page struct {
		Users []marzbanUser `json:"users"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]domain.PanelUser, 0, len(page.Users))
	for _, u := range page.Users {
		users = append(users, u.toDomain())
	}
	return users, nil
}

func (m *Marzban) GetUser(ctx context.Context, username string) (domain.PanelUser, error) {
	code, body, err := m.call(ctx, http.MethodGet, userPath(username), nil)
	if err != nil {
		return domain.PanelUser{}, fmt.Errorf("get user %s: %w", username, err)
	}
	switch code {
	case http.StatusOK:
		return decodeMarzbanUser(body)
	case http.StatusNotFound:
		return domain.PanelUser{}, ErrUserNotFound
	default:
		return domain.PanelUser{}, statusError("get user", code, body)
	}
}

// CreateUser 以 user_<id> 创建用户并绑定全部 VLESS/Trojan 入站；已存在时直接返回
func (m *Marzban) CreateUser(ctx context.Context, req CreateUserRequest) (domain.PanelUser, error) {
	username := domain.PanelUsername(req.TelegramID)
	existing, err := m.GetUser(ctx, username)
	if err == nil {
		m.logger.Info().Str("user", username).Msg("user already exists")
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return domain.PanelUser{}, err
	}

	displayName := req.Username
	if displayName == "" {
		displayName = "User"
	}
	payload := map[string]any{
		"username": username,
		"proxies":  map[string]any{"vless": map[string]any{}},
		"inbounds": map[string][]string{
			"vless":  {"VLESS_TCP_REALITY", "VLESS_WS_TLS", "VLESS_XHTTP"},
			"trojan": {"TROJAN_WS_TLS"},
		},
		"expire":     0,
		"data_limit": marzbanDataLimit,
		"note":       fmt.Sprintf("TG ID: %d (%s)", req.TelegramID, displayName),
		"status":     "active",
	}
	code, body, err := m.call(ctx, http.MethodPost, "/api/user", payload)
	if err != nil {
		return domain.PanelUser{}, fmt.Errorf("create user %s: %w", username, err)
	}
	if code != http.StatusOK && code != http.StatusCreated {
		return domain.PanelUser{}, statusError("create user", code, body)
	}
	m.logger.Info().Str("user", username).Msg("created user")
	return decodeMarzbanUser(body)
}

func (m *Marzban) EnableUser(ctx context.Context, username string) error {
	return m.setStatus(ctx, username, domain.PanelStatusActive)
}

func (m *Marzban) DisableUser(ctx context.Context, username string) error {
	return m.setStatus(ctx, username, domain.PanelStatusDisabled)
}

func (m *Marzban) setStatus(ctx context.Context, username string, status domain.PanelStatus) error {
	code, body, err := m.call(ctx, http.MethodPut, userPath(username), map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("update status of %s: %w", username, err)
	}
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrUserNotFound
	default:
		return statusError("update status", code, body)
	}
}

func (m *Marzban) DeleteUser(ctx context.Context, username string) error {
	code, body, err := m.call(ctx, http.MethodDelete, userPath(username), nil)
	if err != nil {
		return fmt.Errorf("delete %s: %w", username, err)
	}
	if code == http.StatusOK || code == http.StatusNoContent || code == http.StatusNotFound {
		return nil
	}
	return statusError("delete user", code, body)
}

func (m *Marzban) RevokeSubscription(ctx context.Context, username string) (domain.PanelUser, error) {
	code, body, err := m.call(ctx, http.MethodPost, userPath(username)+"/revoke_sub", nil)
	if err != nil {
		return domain.PanelUser{}, fmt.Errorf("revoke %s: %w", username, err)
	}
	switch code {
	case http.StatusOK:
		return decodeMarzbanUser(body)
	case http.StatusNotFound:
		return domain.PanelUser{}, ErrUserNotFound
	default:
		return domain.PanelUser{}, statusError("revoke subscription", code, body)
	}
}

func (m *Marzban) SystemStatus(ctx context.Context) domain.ServerStatus {
	code, body, err := m.call(ctx, http.MethodGet, "/api/system", nil)
	if err != nil || code != http.StatusOK {
		m.logger.Error().Err(err).Int("status", code).Msg("check server status failed")
		return domain.ServerStatus{}
	}
	var stats struct {
		OnlineUsers int     `json:"online_users"`
		CPUUsage    float64 `json:"cpu_usage"`
		MemUsed     float64 `json:"mem_used"`
		MemTotal    float64 `json:"mem_total"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		m.logger.Error().Err(err).Msg("decode server status failed")
		return domain.ServerStatus{}
	}
	out := domain.ServerStatus{Online: true, OnlineUsers: stats.OnlineUsers, CPUUsage: stats.CPUUsage}
	if stats.MemTotal > 0 {
		out.MemUsage = math.Round(stats.MemUsed/stats.MemTotal*1000) / 10
	}
	return out
}
