package subscription

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// schemePrefixes 可识别的分享链接前缀
var schemePrefixes = []string{
	"vless://",
	"vmess://",
	"trojan://",
	"ss://",
	"hysteria2://",
	"hy2://",
}

// isShareLink 检查是否是分享链接
func isShareLink(line string) bool {
	for _, prefix := range schemePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// Extract 把上游订阅正文展开成有序的分享链接列表。
// 每行要么是明文链接，要么是 base64 块（解码后可能包含多条链接）；
// 解码失败或解码后没有链接的行直接跳过。
func Extract(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	var links []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isShareLink(line) {
			links = append(links, line)
			continue
		}

		decoded, err := decodeBase64Flexible(line)
		if err != nil || !utf8.Valid(decoded) {
			continue
		}
		for _, decodedLine := range strings.Split(string(decoded), "\n") {
			decodedLine = strings.TrimSpace(decodedLine)
			if isShareLink(decodedLine) {
				links = append(links, decodedLine)
			}
		}
	}
	return links
}

// decodeBase64Flexible 兼容标准/URL 字母表以及缺失的 padding
func decodeBase64Flexible(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	switch len(value) % 4 {
	case 2:
		value += "=="
	case 3:
		value += "="
	}
	if data, err := base64.StdEncoding.DecodeString(value); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(value)
}
