package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"momsvpn/backend/domain"
	"momsvpn/backend/logging"
)

const defaultTimeout = 5 * time.Second

// Client Mom's Club 会员服务客户端
type Client struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewClient 创建会员服务客户端；timeout<=0 时使用 5s
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logging.Component("membership"),
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

// Status 查询会员订阅状态；任何失败都返回 status=error
func (c *Client) Status(ctx context.Context, telegramID int64) domain.Membership {
	var m domain.Membership
	if err := c.get(ctx, "/api/vpn/subscription/"+strconv.FormatInt(telegramID, 10), &m); err != nil {
		c.logger.Error().Err(err).Int64("tg", telegramID).Msg("check membership failed")
		return domain.Membership{Status: domain.MembershipError}
	}
	if m.Status == "" {
		m.Status = domain.MembershipNone
	}
	return m
}

// IsActive 会员订阅是否有效
func (c *Client) IsActive(ctx context.Context, telegramID int64) bool {
	return c.Status(ctx, telegramID).Status == domain.MembershipActive
}

// AdminInfo 查询 VIP 标记与设备上限；失败时返回默认上限
func (c *Client) AdminInfo(ctx context.Context, telegramID int64) domain.AdminInfo {
	var raw struct {
		IsAdmin bool `json:"is_admin"`
		IPLimit *int `json:"ip_limit"`
	}
	if err := c.get(ctx, "/api/vpn/is_admin/"+strconv.FormatInt(telegramID, 10), &raw); err != nil {
		c.logger.Warn().Err(err).Int64("tg", telegramID).Msg("check admin status failed")
		return domain.AdminInfo{IPLimit: domain.DefaultDevicesLimit}
	}
	info := domain.AdminInfo{IsAdmin: raw.IsAdmin, IPLimit: domain.DefaultDevicesLimit}
	if raw.IPLimit != nil && *raw.IPLimit > 0 {
		info.IPLimit = *raw.IPLimit
	}
	return info
}
