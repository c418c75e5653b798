package panel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenTTL    = 30 * time.Minute
	tokenRefreshMargin = 30 * time.Second
	tokenFetchTimeout  = 15 * time.Second
)

// TokenFetcher 获取新 token；ttl<=0 时由缓存从 JWT exp 推断
type TokenFetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenCache 带过期时间的管理员 token 缓存，并发刷新只触发一次请求
type TokenCache struct {
	fetch TokenFetcher
	now   func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenCache 创建 token 缓存
func NewTokenCache(fetch TokenFetcher) *TokenCache {
	return &TokenCache{fetch: fetch, now: time.Now}
}

// Token 返回未过期的 token，必要时刷新
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.RUnlock()
	if token != "" && c.now().Before(expiresAt.Add(-tokenRefreshMargin)) {
		return token, nil
	}

	// 刷新由多个调用方共享，不随第一个调用方取消
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
	defer cancel()
	v, err, _ := c.group.Do("token", func() (any, error) {
		token, ttl, err := c.fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		now := c.now()
		expiresAt := now.Add(defaultTokenTTL)
		if ttl > 0 {
			expiresAt = now.Add(ttl)
		} else if exp, ok := jwtExpiry(token); ok {
			expiresAt = exp
		}
		c.mu.Lock()
		c.token, c.expiresAt = token, expiresAt
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate 丢弃缓存（收到 401 时调用）
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// jwtExpiry 读取 JWT payload 中的 exp（不校验签名）
func jwtExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil || claims.Exp <= 0 {
		return time.Time{}, false
	}
	return time.Unix(claims.Exp, 0), true
}
