package shared

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// 常量定义
const (
	MaxDownloadSize = 50 << 20 // 50 MiB
	DefaultTimeout  = 30 * time.Second
	MaxErrorBody    = 4 << 10
)

// NewHTTPClient 创建出站 HTTP 客户端；verifySSL=false 用于自签名证书的面板
func NewHTTPClient(verifySSL bool, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	if !verifySSL {
		tr.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec // 面板使用自签名证书时由配置显式关闭
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
	}
}

// TruncateBody 截断错误响应体用于日志/错误信息
func TruncateBody(body []byte) string {
	if len(body) > MaxErrorBody {
		return string(body[:MaxErrorBody]) + "..."
	}
	return string(body)
}
