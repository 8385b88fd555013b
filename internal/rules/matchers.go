package rules

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Any 匹配所有 URL。
func Any() MatchFunc {
	return func(*url.URL) bool { return true }
}

// Prefix 以完整 URL 字符串前缀匹配，例如 https://api.example.com/v1/。
func Prefix(prefix string) MatchFunc {
	return func(u *url.URL) bool {
		return strings.HasPrefix(u.String(), prefix)
	}
}

// Suffix 以 URL 路径后缀匹配，例如 .png。
func Suffix(suffix string) MatchFunc {
	return func(u *url.URL) bool {
		return strings.HasSuffix(u.Path, suffix)
	}
}

// Host 忽略大小写匹配主机名；*.example.com 形式匹配所有子域。
func Host(pattern string) MatchFunc {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:]
		return func(u *url.URL) bool {
			return strings.HasSuffix(strings.ToLower(u.Hostname()), suffix)
		}
	}
	return func(u *url.URL) bool {
		return strings.EqualFold(u.Hostname(), pattern)
	}
}

// Glob 使用 path.Match 语义匹配 URL 路径。
func Glob(pattern string) MatchFunc {
	return func(u *url.URL) bool {
		p := u.Path
		if p == "" {
			p = "/"
		}
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	}
}

// Regexp 对完整 URL 字符串做正则匹配。
func Regexp(expr string) (MatchFunc, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile regexp %q: %w", expr, err)
	}
	return func(u *url.URL) bool {
		return re.MatchString(u.String())
	}, nil
}

// NewMatcher 按配置中的 Match 类型构造匹配器。
func NewMatcher(kind, pattern string) (MatchFunc, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "any":
		return Any(), nil
	case "prefix":
		return Prefix(pattern), nil
	case "suffix":
		return Suffix(pattern), nil
	case "host":
		return Host(pattern), nil
	case "glob":
		if _, err := path.Match(pattern, "/"); err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		return Glob(pattern), nil
	case "regexp":
		return Regexp(pattern)
	default:
		return nil, fmt.Errorf("unsupported match kind %q", kind)
	}
}
