package subscription

import (
	"math"
	"strconv"
	"strings"
)

// Usage subscription-userinfo 头中的流量信息
type Usage struct {
	Upload   int64 `json:"upload"`
	Download int64 `json:"download"`
	Total    int64 `json:"total"`
	Expire   int64 `json:"expire,omitempty"`
}

func (u Usage) Used() int64 { return u.Upload + u.Download }

// ParseUserinfo 解析 "upload=..; download=..; total=..; expire=.."；缺少流量字段时返回 false
func ParseUserinfo(value string) (Usage, bool) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return Usage{}, false
	}

	var (
		u         Usage
		hasUpload bool
		hasDown   bool
		hasTotal  bool
	)

	normalized := strings.ReplaceAll(raw, ",", ";")
	for _, part := range strings.Split(normalized, ";") {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq <= 0 || eq >= len(part)-1 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		num, err := strconv.ParseUint(strings.TrimSpace(part[eq+1:]), 10, 64)
		if err != nil || num > math.MaxInt64 {
			continue
		}
		switch key {
		case "upload":
			u.Upload, hasUpload = int64(num), true
		case "download":
			u.Download, hasDown = int64(num), true
		case "total":
			u.Total, hasTotal = int64(num), true
		case "expire":
			u.Expire = int64(num)
		}
	}

	if !hasUpload || !hasDown || !hasTotal {
		return Usage{}, false
	}
	if u.Upload > math.MaxInt64-u.Download {
		return Usage{}, false
	}
	return u, true
}
