package rules

import (
	"fmt"
	"net/url"

	"github.com/any-hub/urlcache/internal/config"
)

// configuredRule 是由 [[Rule]] 配置生成的规则，携带可读的描述供诊断接口展示。
type configuredRule struct {
	match       MatchFunc
	layout      LayoutFunc
	description string
}

func (r configuredRule) Match(u *url.URL) bool {
	return r.match(u)
}

func (r configuredRule) BuildPath(u *url.URL, basePath string) string {
	return r.layout(u, basePath)
}

func (r configuredRule) Describe() string {
	return r.description
}

// NewConfiguredRule 按 Match/Pattern/Layout 构造规则。
func NewConfiguredRule(kind, pattern, layout string) (Rule, error) {
	match, err := NewMatcher(kind, pattern)
	if err != nil {
		return nil, err
	}
	build, ok := ResolveLayout(layout)
	if !ok {
		return nil, fmt.Errorf("unknown layout %q", layout)
	}
	desc := kind
	if pattern != "" {
		desc = fmt.Sprintf("%s(%s)", kind, pattern)
	}
	return configuredRule{
		match:       match,
		layout:      build,
		description: fmt.Sprintf("%s -> %s", desc, normalizeLayoutName(layout)),
	}, nil
}

// FromConfig 依配置顺序把规则注册到 table。
func FromConfig(table *Table, rules []config.RuleConfig) error {
	for _, rc := range rules {
		rule, err := NewConfiguredRule(rc.Match, rc.Pattern, rc.Layout)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rc.Folder, err)
		}
		if err := table.AddRule(rc.Folder, rule, rc.Permanent); err != nil {
			return fmt.Errorf("rule %s: %w", rc.Folder, err)
		}
	}
	return nil
}
