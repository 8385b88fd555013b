package intercept

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/any-hub/urlcache/internal/cache"
)

type cacheControl map[string]string

// parseCacheControl 解析 Cache-Control 指令，键统一为小写。
func parseCacheControl(h http.Header) cacheControl {
	cc := cacheControl{}
	for _, value := range h.Values("Cache-Control") {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, arg, _ := strings.Cut(part, "=")
			cc[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(arg), `"`)
		}
	}
	return cc
}

func (cc cacheControl) has(name string) bool {
	_, ok := cc[name]
	return ok
}

// forbidsStore 判断上游响应是否要求不缓存。
func forbidsStore(h http.Header) bool {
	cc := parseCacheControl(h)
	if cc.has("no-store") || cc.has("no-cache") {
		return true
	}
	for _, value := range h.Values("Pragma") {
		if strings.Contains(strings.ToLower(value), "no-cache") {
			return true
		}
	}
	return false
}

// isFresh 根据落盘的响应头判断非永久条目是否仍可直接使用。
// 只看 no-cache/no-store、max-age 与 Expires；没有任何过期信号的条目视为新鲜。
func isFresh(meta cache.Metadata, now time.Time) bool {
	cc := parseCacheControl(meta.Headers)
	if cc.has("no-store") || cc.has("no-cache") {
		return false
	}

	if raw, ok := cc["max-age"]; ok {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seconds < 0 || meta.FetchDate.IsZero() {
			return false
		}
		return now.Before(meta.FetchDate.Add(time.Duration(seconds) * time.Second))
	}

	if raw := meta.Headers.Get("Expires"); raw != "" {
		expires, err := http.ParseTime(raw)
		if err != nil {
			return false
		}
		return now.Before(expires)
	}

	return true
}
