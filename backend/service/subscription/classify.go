package subscription

import "strings"

// LinkKind 链接的改写分类
type LinkKind int

const (
	KindOther LinkKind = iota
	KindReality
	KindVlessWS
	KindTrojan
	KindShadowsocks
)

func (k LinkKind) String() string {
	switch k {
	case KindReality:
		return "reality"
	case KindVlessWS:
		return "vless-ws"
	case KindTrojan:
		return "trojan"
	case KindShadowsocks:
		return "shadowsocks"
	default:
		return "other"
	}
}

// Link 分类后的链接。Base 为 '#' 之前的部分，Named 表示原链接带有显示名。
type Link struct {
	Raw   string
	Base  string
	Name  string
	Named bool
	Kind  LinkKind
}

// Classify 按 Reality > VLESS-WS > Trojan > Shadowsocks 的优先级分类
func Classify(raw string) Link {
	link := Link{Raw: raw, Base: raw}
	if i := strings.LastIndexByte(raw, '#'); i >= 0 {
		link.Base = raw[:i]
		link.Name = raw[i+1:]
		link.Named = true
	}

	switch {
	case strings.Contains(link.Base, "security=reality"):
		link.Kind = KindReality
	case strings.HasPrefix(raw, "vless://") && strings.Contains(link.Base, "type=ws"):
		link.Kind = KindVlessWS
	case strings.HasPrefix(raw, "trojan://"):
		link.Kind = KindTrojan
	case strings.HasPrefix(raw, "ss://"):
		link.Kind = KindShadowsocks
	default:
		link.Kind = KindOther
	}
	return link
}

// vlessCredential 取 vless:// 与第一个 '@' 之间的用户标识
func vlessCredential(raw string) string {
	if !strings.HasPrefix(raw, "vless://") {
		return ""
	}
	rest := strings.TrimPrefix(raw, "vless://")
	at := strings.IndexByte(rest, '@')
	if at <= 0 {
		return ""
	}
	return rest[:at]
}
