package device

import (
	"context"
	"fmt"
	"strings"
)

// Directory 远端设备目录（按面板用户 UUID 返回设备型号列表）
type Directory interface {
	Devices(ctx context.Context, panelUUID string) ([]string, error)
}

// FormatDeviceList 去重后输出带序号和图标的设备列表
//
//  1. 📱 iPhone 14 Pro Max
//  2. 🤖 Samsung Galaxy S21
func FormatDeviceList(models []string) string {
	seen := make(map[string]struct{}, len(models))
	lines := make([]string, 0, len(models))
	for _, model := range models {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		if _, ok := seen[model]; ok {
			continue
		}
		seen[model] = struct{}{}
		lines = append(lines, fmt.Sprintf("%d. %s%s", len(lines)+1, iconFor(model), model))
	}
	return strings.Join(lines, "\n")
}

func iconFor(model string) string {
	if hasDevicePrefix(model) {
		return ""
	}
	switch {
	case strings.Contains(model, "iPhone") || strings.Contains(model, "iPad"):
		return "📱 "
	case strings.Contains(model, "Android") || strings.Contains(model, "Samsung") ||
		strings.Contains(model, "Pixel") || strings.Contains(model, "Xiaomi"):
		return "🤖 "
	case strings.Contains(model, "Mac"):
		return "💻 "
	}
	return "📱 "
}
