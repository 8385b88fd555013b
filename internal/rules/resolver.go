package rules

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/urlcache/internal/cache"
	"github.com/any-hub/urlcache/internal/metrics"
)

var (
	// ErrUncacheable 表示没有任何规则命中该 URL。
	ErrUncacheable = errors.New("url not cacheable")
	// ErrEscapedPath 表示规则生成的路径逃逸出缓存根目录，按不可缓存处理。
	ErrEscapedPath = errors.New("rule path escapes cache root")
)

// Resolver 在 Table 之上做路径规范化与越界校验，失败即关闭。
type Resolver struct {
	table  *Table
	logger *logrus.Logger
}

// NewResolver 构造路径解析器；logger 为空时使用 logrus 默认实例。
func NewResolver(table *Table, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Resolver{table: table, logger: logger}
}

// Table 返回底层规则表。
func (r *Resolver) Table() *Table {
	return r.table
}

// Resolve 返回规范化后的绝对缓存路径。
func (r *Resolver) Resolve(u *url.URL) (Resolution, error) {
	res, ok := r.table.Resolve(u)
	if !ok {
		return Resolution{}, ErrUncacheable
	}

	clean, err := r.canonicalize(res.Path, res.Folder)
	if err != nil {
		metrics.EscapedPaths.Inc()
		r.logger.WithFields(logrus.Fields{
			"action": "resolve_path",
			"folder": res.Folder,
			"url":    u.String(),
			"path":   res.Path,
		}).Warn("cache_path_escaped")
		return Resolution{}, err
	}
	res.Path = clean
	return res, nil
}

// IsPermanentPath 按路径所在的规则目录反查永久标记，路径不在任何规则目录下时返回 false。
func (r *Resolver) IsPermanentPath(p string) bool {
	return r.table.IsPermanentPath(p)
}

// canonicalize 相对路径挂到缓存根目录下；结果必须位于该规则自己的目录之内。
func (r *Resolver) canonicalize(p, folder string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty path", ErrEscapedPath)
	}
	root := r.table.Root()
	full := filepath.FromSlash(p)
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}
	full = filepath.Clean(full)

	if !within(filepath.Join(root, folder), full) {
		return "", fmt.Errorf("%w: %s outside folder %s", ErrEscapedPath, p, folder)
	}
	if strings.HasSuffix(full, cache.MetadataSuffix) {
		return "", fmt.Errorf("%w: %s collides with metadata sidecar", ErrEscapedPath, p)
	}
	return full, nil
}

// within 判断 p 是否严格位于 dir 之下（不含 dir 本身）。
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
