// Package reachability 提供网络可达性信号。拦截层只把它当作同步读取的布尔信号，
// 用于离线时直接返回缓存或在蜂窝网络下优先使用缓存。
package reachability

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Monitor 是拦截层消费的可达性接口。
type Monitor interface {
	IsWiFi() bool
	IsCellular() bool
	IsUnreachable() bool
	IsOK() bool
}

// Class 表示当前网络类别。
type Class int32

const (
	Unreachable Class = iota
	WiFi
	Cellular
)

func (c Class) String() string {
	switch c {
	case WiFi:
		return "wifi"
	case Cellular:
		return "cellular"
	default:
		return "unreachable"
	}
}

// ParseClass 解析配置中的 NetworkClass。
func ParseClass(raw string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "wifi":
		return WiFi, nil
	case "cellular":
		return Cellular, nil
	case "unreachable":
		return Unreachable, nil
	default:
		return Unreachable, fmt.Errorf("unknown network class %q", raw)
	}
}

// Static 是由调用方显式设置的监视器，零值表示不可达。
type Static struct {
	class atomic.Int32
}

// NewStatic 返回初始类别为 class 的监视器。
func NewStatic(class Class) *Static {
	s := &Static{}
	s.Set(class)
	return s
}

// Set 更新当前类别，可与读取并发调用。
func (s *Static) Set(class Class) {
	s.class.Store(int32(class))
}

// Class 返回当前类别。
func (s *Static) Class() Class {
	return Class(s.class.Load())
}

func (s *Static) IsWiFi() bool        { return s.Class() == WiFi }
func (s *Static) IsCellular() bool    { return s.Class() == Cellular }
func (s *Static) IsUnreachable() bool { return s.Class() == Unreachable }
func (s *Static) IsOK() bool          { return s.Class() != Unreachable }

// Describe 把任意 Monitor 的状态转换为诊断字符串。
func Describe(m Monitor) string {
	switch {
	case m == nil:
		return "unknown"
	case m.IsUnreachable():
		return Unreachable.String()
	case m.IsCellular():
		return Cellular.String()
	case m.IsWiFi():
		return WiFi.String()
	default:
		return "ok"
	}
}
