package server

import (
	"net"
	"net/http"
	"time"

	"github.com/any-hub/urlcache/internal/config"
	"github.com/any-hub/urlcache/internal/intercept"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回共享 http.Client；interceptor 不为空时安装缓存拦截层，
// 其下层使用 defaultTransport 的副本执行真实网络请求。
func NewUpstreamClient(cfg *config.Config, interceptor *intercept.Transport) *http.Client {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
	if interceptor != nil {
		interceptor.Install(client)
	}
	return client
}

// CopyHeaders 将 src 中允许透传的头复制到 dst，自动忽略 hop-by-hop 字段。
func CopyHeaders(dst, src http.Header) {
	for key, values := range src {
		if intercept.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
