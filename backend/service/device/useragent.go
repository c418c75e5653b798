package device

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"momsvpn/backend/domain"
)

var (
	appPattern     = regexp.MustCompile(`^(\w+)/([0-9.]+)`)
	darwinPattern  = regexp.MustCompile(`darwin/(\d+)\.(\d+)`)
	androidPattern = regexp.MustCompile(`android[/\s]*([\d.]+)`)
)

// darwinToIOS Darwin 主版本到 iOS 主版本的近似映射，只用于统计展示
var darwinToIOS = map[string]string{
	"25": "18",
	"24": "17",
	"23": "16",
	"22": "15",
	"21": "14",
}

// ParseUserAgent 从 User-Agent 解析客户端应用、系统版本与设备类型。
// 例如 "Happ/3.7.0/ios CFNetwork/3860.300.31 Darwin/25.2.0"。
func ParseUserAgent(userAgent string) domain.DeviceInfo {
	info := domain.DeviceInfo{UserAgent: userAgent}
	if userAgent == "" {
		return info
	}
	lower := strings.ToLower(userAgent)

	if m := appPattern.FindStringSubmatch(userAgent); m != nil {
		info.AppName = m[1]
		info.AppVersion = m[2]
	}

	if m := darwinPattern.FindStringSubmatch(lower); m != nil {
		if iosMajor, ok := darwinToIOS[m[1]]; ok {
			info.OSVersion = fmt.Sprintf("iOS %s.%s", iosMajor, iosMinor(m[2]))
		}
	}

	switch {
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "/ios"):
		info.DeviceName = "iPhone"
	case strings.Contains(lower, "ipad"):
		info.DeviceName = "iPad"
	case strings.Contains(lower, "android"):
		info.DeviceName = "Android"
		if m := androidPattern.FindStringSubmatch(lower); m != nil {
			info.OSVersion = "Android " + m[1]
		}
	case strings.Contains(lower, "windows"):
		info.DeviceName = "Windows PC"
		info.OSVersion = "Windows"
	case strings.Contains(lower, "mac"):
		info.DeviceName = "Mac"
		info.OSVersion = "macOS"
	}
	return info
}

// iosMinor 大于 10 的 Darwin 次版本按百位取整，否则原样保留
func iosMinor(minor string) string {
	n, err := strconv.Atoi(minor)
	if err != nil {
		return minor
	}
	if n > 10 {
		return strconv.Itoa(n / 100)
	}
	return minor
}

// Describe 给 bot 展示用的设备简述（HTML）
func Describe(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	if hasDevicePrefix(userAgent) {
		return userAgent
	}

	lower := strings.ToLower(userAgent)
	if strings.Contains(lower, "happ") {
		switch {
		case strings.Contains(lower, "ios") || strings.Contains(lower, "darwin"):
			return "🍎 <b>iPhone</b> (Happ)"
		case strings.Contains(lower, "android"):
			return "🤖 <b>Android</b> (Happ)"
		}
		return "📱 <b>Mobile</b>"
	}

	switch {
	case strings.Contains(lower, "ipad"):
		return "🍎 <b>iPad</b>"
	case strings.Contains(lower, "ios") || strings.Contains(lower, "iphone"):
		return "🍎 <b>iPhone</b>"
	case strings.Contains(lower, "android"):
		return "🤖 <b>Android</b>"
	case strings.Contains(lower, "windows"):
		return "💻 <b>Windows PC</b>"
	case strings.Contains(lower, "mac") || strings.Contains(lower, "darwin"):
		return "🍎 <b>Mac</b>"
	}
	return "📱 <b>Устройство</b>"
}

var devicePrefixes = []string{"📱", "🤖", "💻", "🍎"}

func hasDevicePrefix(s string) bool {
	for _, p := range devicePrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
