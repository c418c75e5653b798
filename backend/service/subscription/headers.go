package subscription

import "net/http"

// RelayedHeaders 允许透传给客户端的上游响应头
var RelayedHeaders = []string{
	"subscription-userinfo",
	"profile-title",
	"profile-update-interval",
	"support-url",
	"profile-web-page-url",
	"content-disposition",
}

// RelayHeaders 按白名单原样复制响应头，其余全部丢弃
func RelayHeaders(src, dst http.Header) {
	for _, name := range RelayedHeaders {
		values := src.Values(name)
		if len(values) == 0 {
			continue
		}
		key := http.CanonicalHeaderKey(name)
		dst[key] = append([]string(nil), values...)
	}
}
