package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/any-hub/urlcache/internal/config"
)

// OriginRoute 聚合 [[Origin]] 配置与预先解析的上游地址，供网关直接复用。
type OriginRoute struct {
	// Config 是 config.toml 中声明字段的副本。
	Config config.OriginConfig
	// ListenPort 记录监听端口，用于 X-Forwarded-Port 与日志。
	ListenPort  int
	UpstreamURL *url.URL
}

// OriginRegistry 提供 Host/Host:port 到 OriginRoute 的查询，所有来源共享同一个监听端口。
type OriginRegistry struct {
	routes  map[string]*OriginRoute
	ordered []*OriginRoute
}

// NewOriginRegistry 根据配置构建 Host 映射，启动阶段创建一次并复用。
func NewOriginRegistry(cfg *config.Config) (*OriginRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &OriginRegistry{
		routes: make(map[string]*OriginRoute, len(cfg.Origins)),
	}
	for _, origin := range cfg.Origins {
		host, _ := normalizeHost(origin.Domain)
		if host == "" {
			return nil, fmt.Errorf("invalid domain for origin %s", origin.Name)
		}
		if _, exists := registry.routes[host]; exists {
			return nil, fmt.Errorf("duplicate domain mapping detected for %s", host)
		}

		upstream, err := url.Parse(origin.Upstream)
		if err != nil || upstream.Scheme == "" || upstream.Host == "" {
			return nil, fmt.Errorf("invalid upstream for origin %s: %q", origin.Name, origin.Upstream)
		}

		route := &OriginRoute{
			Config:      origin,
			ListenPort:  cfg.Global.ListenPort,
			UpstreamURL: upstream,
		}
		registry.routes[host] = route
		registry.ordered = append(registry.ordered, route)
	}
	return registry, nil
}

// Lookup 根据 Host 或 Host:port 查找路由，端口部分被忽略。
func (r *OriginRegistry) Lookup(host string) (*OriginRoute, bool) {
	if r == nil {
		return nil, false
	}
	normalized, _ := normalizeHost(host)
	if normalized == "" {
		return nil, false
	}
	route, ok := r.routes[normalized]
	return route, ok
}

// List 按配置顺序返回路由副本，供诊断接口输出。
func (r *OriginRegistry) List() []OriginRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	result := make([]OriginRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0
	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsed, err := strconv.Atoi(p); err == nil {
				port = parsed
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 {
			if parsed, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsed
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host), port
}
