package rules

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var globalLayouts = newLayoutRegistry()

type layoutRegistry struct {
	mu      sync.RWMutex
	layouts map[string]LayoutFunc
}

func newLayoutRegistry() *layoutRegistry {
	return &layoutRegistry{layouts: make(map[string]LayoutFunc)}
}

// RegisterLayout 按名称登记路径布局，重复名称返回错误。
func RegisterLayout(name string, fn LayoutFunc) error {
	return globalLayouts.register(name, fn)
}

// MustRegisterLayout 在注册失败时 panic，适合 init() 中调用。
func MustRegisterLayout(name string, fn LayoutFunc) {
	if err := RegisterLayout(name, fn); err != nil {
		panic(err)
	}
}

// ResolveLayout 返回指定名称的布局函数，名称大小写不敏感。
func ResolveLayout(name string) (LayoutFunc, bool) {
	return globalLayouts.resolve(name)
}

// Layouts 返回按名称排序的已注册布局。
func Layouts() []string {
	return globalLayouts.names()
}

func normalizeLayoutName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *layoutRegistry) register(name string, fn LayoutFunc) error {
	key := normalizeLayoutName(name)
	if key == "" {
		return fmt.Errorf("layout name is required")
	}
	if fn == nil {
		return fmt.Errorf("layout %s has no builder", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.layouts[key]; exists {
		return fmt.Errorf("layout %s already registered", key)
	}
	r.layouts[key] = fn
	return nil
}

func (r *layoutRegistry) resolve(name string) (LayoutFunc, bool) {
	key := normalizeLayoutName(name)
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.layouts[key]
	return fn, ok
}

func (r *layoutRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.layouts))
	for key := range r.layouts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	MustRegisterLayout("md5", MD5Layout)
	MustRegisterLayout("sha1", SHA1Layout)
	MustRegisterLayout("raw_path", RawPathLayout)
}

// MD5Layout 以完整 URL 的 md5 十六进制作为文件名：basePath/<md5>。
func MD5Layout(u *url.URL, basePath string) string {
	sum := md5.Sum([]byte(u.String()))
	return filepath.Join(basePath, hex.EncodeToString(sum[:]))
}

// SHA1Layout 与 MD5Layout 相同，只是换用 sha1。
func SHA1Layout(u *url.URL, basePath string) string {
	sum := sha1.Sum([]byte(u.String()))
	return filepath.Join(basePath, hex.EncodeToString(sum[:]))
}

// RawPathLayout 保留主机与路径结构：basePath/<host>/<path>，
// 带查询串时追加 /__qs/<sha1(query)>，避免不同查询互相覆盖。
func RawPathLayout(u *url.URL, basePath string) string {
	host := strings.ReplaceAll(strings.ToLower(u.Host), ":", "_")
	if host == "" {
		host = "_"
	}

	clean := path.Clean("/" + u.Path)
	if clean == "/" {
		clean = "/root"
	}
	if u.RawQuery != "" {
		sum := sha1.Sum([]byte(u.RawQuery))
		clean = fmt.Sprintf("%s/__qs/%s", clean, hex.EncodeToString(sum[:]))
	}
	return filepath.Join(basePath, host, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
}
