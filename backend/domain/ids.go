package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	panelUsernamePrefix = "user_"
	tokenHintLen        = 20
)

// TokenHint 日志与设备记录中只保留 token 前 20 个字符
func TokenHint(token string) string {
	if len(token) > tokenHintLen {
		return token[:tokenHintLen] + "..."
	}
	return token
}

// StableDeviceID 基于订阅 token 与 User-Agent 生成稳定的设备 ID。
// 同一客户端反复拉取订阅时复用同一行记录。
func StableDeviceID(token, userAgent string) string {
	token = strings.TrimSpace(token)
	userAgent = strings.TrimSpace(userAgent)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(token+"|ua|"+userAgent)).String()
}

// PanelUsername 返回 telegram 用户在面板中的用户名
func PanelUsername(telegramID int64) string {
	return panelUsernamePrefix + strconv.FormatInt(telegramID, 10)
}

// ParsePanelUsername 从 user_<id> 形式的用户名中解析 telegram ID。
func ParsePanelUsername(username string) (int64, bool) {
	if !strings.HasPrefix(username, panelUsernamePrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(username, panelUsernamePrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
