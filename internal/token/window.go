package token

import (
	"fmt"
	"strings"
	"time"
)

// WindowMode 选择刷新窗口的计算方式。
type WindowMode int

const (
	// WindowFixed 在剩余有效期 ≤ Seconds 时刷新。
	WindowFixed WindowMode = iota
	// WindowPercentage 在剩余有效期 ≤ 总有效期 × Percent% 时刷新。
	WindowPercentage
	// WindowAuto 取两种阈值中较小的一个。
	WindowAuto
)

func (m WindowMode) String() string {
	switch m {
	case WindowPercentage:
		return "percentage"
	case WindowAuto:
		return "auto"
	default:
		return "fixed"
	}
}

// ParseWindowMode 解析配置中的模式名称，空字符串视为 auto。
func ParseWindowMode(name string) (WindowMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fixed":
		return WindowFixed, nil
	case "percentage":
		return WindowPercentage, nil
	case "", "auto":
		return WindowAuto, nil
	default:
		return WindowFixed, fmt.Errorf("unknown refresh window %q", name)
	}
}

// RefreshWindow 定义硬过期之前的提前续期区间。
type RefreshWindow struct {
	Mode    WindowMode
	Seconds time.Duration
	Percent float64
}

// FixedSeconds 构造固定秒数窗口。
func FixedSeconds(d time.Duration) RefreshWindow {
	return RefreshWindow{Mode: WindowFixed, Seconds: d}
}

// Percentage 构造百分比窗口，p 取 0~100。
func Percentage(p float64) RefreshWindow {
	return RefreshWindow{Mode: WindowPercentage, Percent: p}
}

// Auto 构造取较小阈值的窗口。
func Auto(d time.Duration, p float64) RefreshWindow {
	return RefreshWindow{Mode: WindowAuto, Seconds: d, Percent: p}
}

// Threshold 返回给定总有效期下的续期阈值。
func (w RefreshWindow) Threshold(lifetime time.Duration) time.Duration {
	byPercent := time.Duration(float64(lifetime) * w.Percent / 100)
	switch w.Mode {
	case WindowPercentage:
		return byPercent
	case WindowAuto:
		return min(w.Seconds, byPercent)
	default:
		return w.Seconds
	}
}

// Due 报告令牌是否已过期或进入续期窗口，两者对刷新决策等价。
func (w RefreshWindow) Due(r *Result, now time.Time) bool {
	if r.IsExpired(now) {
		return true
	}
	if r.ExpiresIn <= 0 {
		return false
	}
	return r.Remaining(now) <= w.Threshold(r.ExpiresIn)
}
