package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"momsvpn/backend/config"
	"momsvpn/backend/domain"
	"momsvpn/backend/service/shared"
)

var (
	ErrUserNotFound = errors.New("panel user not found")
	ErrUserExists   = errors.New("panel user exists but cannot be retrieved")
)

// StatusError 面板返回了非预期的 HTTP 状态码
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("panel %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// CreateUserRequest 创建面板用户参数
type CreateUserRequest struct {
	TelegramID  int64
	Username    string
	DeviceLimit int
}

// Client VPN 面板客户端
type Client interface {
	ListUsers(ctx context.Context) ([]domain.PanelUser, error)
	GetUser(ctx context.Context, username string) (domain.PanelUser, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (domain.PanelUser, error)
	EnableUser(ctx context.Context, username string) error
	DisableUser(ctx context.Context, username string) error
	DeleteUser(ctx context.Context, username string) error
	RevokeSubscription(ctx context.Context, username string) (domain.PanelUser, error)
	// SystemStatus 不返回错误：面板不可达时 Online=false
	SystemStatus(ctx context.Context) domain.ServerStatus
}

// New 按配置创建面板客户端
func New(cfg config.PanelConf) (Client, error) {
	httpClient := shared.NewHTTPClient(cfg.VerifySSL, cfg.Timeout)
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "remnawave":
		return NewRemnawave(cfg.BaseURL, cfg.APIKey, cfg.SquadUUID, httpClient), nil
	case "marzban":
		return NewMarzban(cfg.BaseURL, cfg.Username, cfg.Password, httpClient, nil), nil
	default:
		return nil, fmt.Errorf("unsupported panel kind %q", cfg.Kind)
	}
}

// apiCall 发送请求并读取响应体；payload 非 nil 时按 JSON 编码
func apiCall(ctx context.Context, client *http.Client, method, url string, header http.Header, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, shared.MaxDownloadSize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func statusError(op string, code int, body []byte) error {
	return &StatusError{Op: op, StatusCode: code, Body: shared.TruncateBody(body)}
}
