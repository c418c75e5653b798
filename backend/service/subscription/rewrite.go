package subscription

import "strings"

const fragmentParam = "fragment=3,1,tlshello"

// Labels 品牌化显示名
type Labels struct {
	Primary     string
	Backup      string
	Alternative string
	Reserve     string
}

var DefaultLabels = Labels{
	Primary:     "✅ Основной Moms",
	Backup:      "✅ Запасной Moms",
	Alternative: "✅ Альтернативный Moms",
	Reserve:     "✅ Резервный Moms",
}

// Rewritten 改写阶段的输出，Credential/HasTrojan 仅在本次请求内有效
type Rewritten struct {
	Links      []string
	Credential string
	HasTrojan  bool
}

// rewriteFunc 返回改写后的链接；keep=false 表示丢弃
type rewriteFunc func(link Link, labels Labels) (out string, keep bool)

var rewriters = map[LinkKind]rewriteFunc{
	KindReality:     rewriteReality,
	KindVlessWS:     rewriteNamed(func(l Labels) string { return l.Backup }),
	KindTrojan:      rewriteNamed(func(l Labels) string { return l.Alternative }),
	KindShadowsocks: dropLink,
	KindOther:       keepLink,
}

// Rewrite 依次分类并改写链接，同时收集 vless 凭据与 trojan 是否存在
func Rewrite(links []string, labels Labels) Rewritten {
	out := Rewritten{Links: make([]string, 0, len(links))}
	for _, raw := range links {
		if cred := vlessCredential(raw); cred != "" {
			out.Credential = cred
		}
		if strings.HasPrefix(raw, "trojan://") {
			out.HasTrojan = true
		}

		link := Classify(raw)
		rewritten, keep := rewriters[link.Kind](link, labels)
		if keep {
			out.Links = append(out.Links, rewritten)
		}
	}
	return out
}

// rewriteReality 追加分片参数并换成主线路名称（无名称的 Reality 链接同样处理）。
// 已带分片参数的链接不重复追加。
func rewriteReality(link Link, labels Labels) (string, bool) {
	base := link.Base
	if !hasQueryParam(base, fragmentParam) {
		base += "&" + fragmentParam
	}
	return base + "#" + labels.Primary, true
}

func rewriteNamed(label func(Labels) string) rewriteFunc {
	return func(link Link, labels Labels) (string, bool) {
		if !link.Named {
			return link.Raw, true
		}
		return link.Base + "#" + label(labels), true
	}
}

// 上游 Shadowsocks 一律丢弃，由 Synthesize 补一条受控的
func dropLink(Link, Labels) (string, bool) { return "", false }

func keepLink(link Link, _ Labels) (string, bool) { return link.Raw, true }

func hasQueryParam(base, param string) bool {
	q := strings.IndexByte(base, '?')
	if q < 0 {
		return false
	}
	for _, kv := range strings.Split(base[q+1:], "&") {
		if kv == param {
			return true
		}
	}
	return false
}
