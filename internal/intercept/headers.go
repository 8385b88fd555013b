package intercept

import (
	"net/http"
	"net/textproto"
	"strings"
)

// 控制头与元数据头的线上名称。
const (
	HeaderRedirectURL        = "X-URLCache-Redirect-URL"
	HeaderFetchURL           = "X-URLCache-Fetch-URL"
	HeaderFetchDate          = "X-URLCache-Fetch-Date"
	HeaderNoCache            = "X-URLCache-No-Cache"
	HeaderIgnoreCacheControl = "X-URLCache-Ignore-Cache-Control"
	HeaderNoExpire           = "X-URLCache-No-Expire"
	HeaderCustomized         = "X-URLCache-Customized"
	HeaderHit                = "X-URLCache-Hit"
)

// requestControlHeaders 在请求发往上游前被移除。
var requestControlHeaders = []string{
	HeaderNoCache,
	HeaderIgnoreCacheControl,
	HeaderCustomized,
}

// cacheHeaders 只由本层合成，不会写入 sidecar。
var cacheHeaders = []string{
	HeaderRedirectURL,
	HeaderFetchURL,
	HeaderFetchDate,
	HeaderNoExpire,
	HeaderHit,
}

// hopByHopHeaders 定义 RFC 7230 中禁止代理转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {}, // 非标准字段，但部分代理仍使用
}

// IsHopByHopHeader reports whether the header should be stripped by proxies.
func IsHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// IsDirectiveSet 判断指令头是否开启：非空且不是 0/false。
func IsDirectiveSet(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v != "" && v != "0" && v != "false"
}

// StripControlHeaders 删除所有缓存控制指令头。
func StripControlHeaders(h http.Header) {
	for _, name := range requestControlHeaders {
		h.Del(name)
	}
}

// storableHeaders 复制需要落盘的响应头，去掉 hop-by-hop 与本层合成的头。
func storableHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, values := range src {
		if IsHopByHopHeader(key) {
			continue
		}
		dst[textproto.CanonicalMIMEHeaderKey(key)] = append([]string(nil), values...)
	}
	for _, name := range cacheHeaders {
		dst.Del(name)
	}
	return dst
}
