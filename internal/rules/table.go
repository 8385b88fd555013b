package rules

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Rule 决定 URL 是否可缓存，以及缓存正文落在哪个路径。
type Rule interface {
	Match(u *url.URL) bool
	BuildPath(u *url.URL, basePath string) string
}

// MatchFunc 是单一谓词形式的匹配器。
type MatchFunc func(u *url.URL) bool

// LayoutFunc 根据 URL 与规则目录（缓存根目录/Folder）生成缓存路径。
type LayoutFunc func(u *url.URL, basePath string) string

// RuleFuncs 把两个普通函数适配为 Rule。
type RuleFuncs struct {
	MatchFn MatchFunc
	BuildFn LayoutFunc
}

func (r RuleFuncs) Match(u *url.URL) bool {
	return r.MatchFn != nil && r.MatchFn(u)
}

func (r RuleFuncs) BuildPath(u *url.URL, basePath string) string {
	if r.BuildFn == nil {
		return ""
	}
	return r.BuildFn(u, basePath)
}

// Resolution 是一次规则命中的结果。
type Resolution struct {
	Path      string
	Folder    string
	Permanent bool
}

// RuleInfo 是诊断接口展示的规则摘要。
type RuleInfo struct {
	Folder    string `json:"folder"`
	Permanent bool   `json:"permanent"`
	Kind      string `json:"kind"`
}

type registeredRule struct {
	folder    string
	rule      Rule
	permanent bool
}

// Table 是按注册顺序排列的规则集合，首个命中的规则生效。
// AddRule 在互斥锁下复制并替换切片，Resolve 只读取当前快照，匹配器执行期间不持有任何锁。
type Table struct {
	root string

	mu    sync.Mutex
	rules atomic.Pointer[[]registeredRule]
}

// NewTable 创建以 root 为缓存根目录的空规则表。
func NewTable(root string) *Table {
	t := &Table{root: filepath.Clean(root)}
	empty := []registeredRule{}
	t.rules.Store(&empty)
	return t
}

// Root 返回缓存根目录。
func (t *Table) Root() string {
	return t.root
}

// AddRule 追加一条规则。同一 Folder 可被多条规则共享，但永久标记必须一致。
func (t *Table) AddRule(folder string, rule Rule, permanent bool) error {
	if err := validateFolder(folder); err != nil {
		return err
	}
	if rule == nil {
		return errors.New("rule required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	current := *t.rules.Load()
	for _, existing := range current {
		if existing.folder == folder && existing.permanent != permanent {
			return fmt.Errorf("folder %q already registered with permanent=%t", folder, existing.permanent)
		}
	}

	next := make([]registeredRule, len(current), len(current)+1)
	copy(next, current)
	next = append(next, registeredRule{folder: folder, rule: rule, permanent: permanent})
	t.rules.Store(&next)
	return nil
}

// Resolve 按注册顺序评估规则，返回首个命中规则生成的原始路径。
func (t *Table) Resolve(u *url.URL) (Resolution, bool) {
	if u == nil {
		return Resolution{}, false
	}
	for _, r := range *t.rules.Load() {
		if !r.rule.Match(u) {
			continue
		}
		return Resolution{
			Path:      r.rule.BuildPath(u, filepath.Join(t.root, r.folder)),
			Folder:    r.folder,
			Permanent: r.permanent,
		}, true
	}
	return Resolution{}, false
}

// Rules 返回当前规则快照。
func (t *Table) Rules() []RuleInfo {
	snapshot := *t.rules.Load()
	result := make([]RuleInfo, len(snapshot))
	for i, r := range snapshot {
		result[i] = RuleInfo{
			Folder:    r.folder,
			Permanent: r.permanent,
			Kind:      describeRule(r.rule),
		}
	}
	return result
}

// IsPermanentPath 通过缓存路径的首级目录反查规则的永久标记。
func (t *Table) IsPermanentPath(p string) bool {
	clean := filepath.Clean(p)
	if !within(t.root, clean) {
		return false
	}
	rel, err := filepath.Rel(t.root, clean)
	if err != nil {
		return false
	}
	folder := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	for _, r := range *t.rules.Load() {
		if r.folder == folder {
			return r.permanent
		}
	}
	return false
}

func validateFolder(folder string) error {
	if strings.TrimSpace(folder) == "" {
		return errors.New("folder required")
	}
	if strings.ContainsAny(folder, `/\`) || folder == "." || folder == ".." {
		return fmt.Errorf("invalid folder %q", folder)
	}
	return nil
}

type describer interface {
	Describe() string
}

func describeRule(rule Rule) string {
	if d, ok := rule.(describer); ok {
		return d.Describe()
	}
	return "custom"
}
