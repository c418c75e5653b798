package subscription

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"momsvpn/backend/config"
)

// Fallback 兜底链接的固定参数
type Fallback struct {
	TrojanHost        string
	TrojanPort        int
	TrojanPath        string
	TrojanSNI         string
	TrojanFingerprint string

	SSHost   string
	SSPort   int
	SSCipher string
	SSKey    string
}

// FallbackFromConfig 从配置构造兜底参数
func FallbackFromConfig(c config.FallbackConf) Fallback {
	return Fallback{
		TrojanHost:        c.TrojanHost,
		TrojanPort:        c.TrojanPort,
		TrojanPath:        c.TrojanPath,
		TrojanSNI:         c.TrojanSNI,
		TrojanFingerprint: c.TrojanFingerprint,
		SSHost:            c.SSHost,
		SSPort:            c.SSPort,
		SSCipher:          c.SSCipher,
		SSKey:             c.SSKey,
	}
}

// DefaultFallback 默认兜底参数
func DefaultFallback() Fallback {
	return FallbackFromConfig(config.Default().Fallback)
}

// TrojanLink 用 vless 凭据构造 Trojan-WS 兜底链接
func (f Fallback) TrojanLink(credential string, label string) string {
	q := []string{
		"security=tls",
		"type=ws",
		"path=" + url.QueryEscape(f.TrojanPath),
		"sni=" + f.TrojanSNI,
		"fp=" + f.TrojanFingerprint,
	}
	return fmt.Sprintf("trojan://%s@%s?%s#%s",
		credential, net.JoinHostPort(f.TrojanHost, strconv.Itoa(f.TrojanPort)), strings.Join(q, "&"), label)
}

// ShadowsocksLink 构造 SIP002 格式的 Shadowsocks 兜底链接
func (f Fallback) ShadowsocksLink(label string) string {
	userinfo := base64.StdEncoding.EncodeToString([]byte(f.SSCipher + ":" + f.SSKey))
	return fmt.Sprintf("ss://%s@%s#%s", userinfo, net.JoinHostPort(f.SSHost, strconv.Itoa(f.SSPort)), label)
}

// Synthesize 追加兜底链接：
// 有 vless 凭据且上游没有 trojan 时补一条 trojan；Shadowsocks 总是补一条。
func Synthesize(r Rewritten, f Fallback, labels Labels) []string {
	out := make([]string, 0, len(r.Links)+2)
	out = append(out, r.Links...)
	if r.Credential != "" && !r.HasTrojan {
		out = append(out, f.TrojanLink(r.Credential, labels.Alternative))
	}
	out = append(out, f.ShadowsocksLink(labels.Reserve))
	return out
}

// Transform 完整的正文处理：提取 → 分类改写 → 合成
func Transform(body string, f Fallback, labels Labels) []string {
	return Synthesize(Rewrite(Extract(body), labels), f, labels)
}

// Render 以换行拼接输出
func Render(links []string) string {
	return strings.Join(links, "\n")
}
