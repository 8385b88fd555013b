package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有规则与来源共享同一份参数。
type GlobalConfig struct {
	ListenPort            int      `mapstructure:"ListenPort"`
	LogLevel              string   `mapstructure:"LogLevel"`
	LogFilePath           string   `mapstructure:"LogFilePath"`
	LogMaxSize            int      `mapstructure:"LogMaxSize"`
	LogMaxBackups         int      `mapstructure:"LogMaxBackups"`
	LogCompress           bool     `mapstructure:"LogCompress"`
	StoragePath           string   `mapstructure:"StoragePath"`
	UpstreamTimeout       Duration `mapstructure:"UpstreamTimeout"`
	ServeStaleWhenOffline bool     `mapstructure:"ServeStaleWhenOffline"`
	PreferCacheOnCellular bool     `mapstructure:"PreferCacheOnCellular"`
	NetworkClass          string   `mapstructure:"NetworkClass"`
	ProbeAddress          string   `mapstructure:"ProbeAddress"`
	ProbeInterval         Duration `mapstructure:"ProbeInterval"`
}

// RuleConfig 对应一条 [[Rule]]：匹配方式 + 缓存路径布局 + 是否永不过期。
type RuleConfig struct {
	Folder    string `mapstructure:"Folder"`
	Match     string `mapstructure:"Match"`
	Pattern   string `mapstructure:"Pattern"`
	Layout    string `mapstructure:"Layout"`
	Permanent bool   `mapstructure:"Permanent"`
}

// OriginConfig 描述网关模式下 Host 到上游源站的映射。
type OriginConfig struct {
	Name     string `mapstructure:"Name"`
	Domain   string `mapstructure:"Domain"`
	Upstream string `mapstructure:"Upstream"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global        GlobalConfig      `mapstructure:",squash"`
	CustomHeaders map[string]string `mapstructure:"CustomHeaders"`
	Rules         []RuleConfig      `mapstructure:"Rule"`
	Origins       []OriginConfig    `mapstructure:"Origin"`
}

// RuleSummaries 返回所有规则的摘要，例如 images:suffix:permanent，供启动日志使用。
func RuleSummaries(rules []RuleConfig) []string {
	if len(rules) == 0 {
		return nil
	}
	result := make([]string, len(rules))
	for i, rule := range rules {
		mode := "expiring"
		if rule.Permanent {
			mode = "permanent"
		}
		result[i] = fmt.Sprintf("%s:%s:%s", rule.Folder, rule.Match, mode)
	}
	return result
}
