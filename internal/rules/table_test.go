package rules

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/any-hub/urlcache/internal/config"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url %q: %v", raw, err)
	}
	return u
}

func fixedRule(match MatchFunc, rel string) Rule {
	return RuleFuncs{
		MatchFn: match,
		BuildFn: func(_ *url.URL, basePath string) string { return filepath.Join(basePath, rel) },
	}
}

func TestTableFirstMatchWins(t *testing.T) {
	root := t.TempDir()
	table := NewTable(root)
	if err := table.AddRule("first", fixedRule(Suffix(".png"), "one"), false); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if err := table.AddRule("unrelated", fixedRule(Host("other.example"), "x"), false); err != nil {
		t.Fatalf("add unrelated: %v", err)
	}
	if err := table.AddRule("second", fixedRule(Any(), "two"), true); err != nil {
		t.Fatalf("add second: %v", err)
	}

	res, ok := table.Resolve(mustURL(t, "http://x/a.png"))
	if !ok {
		t.Fatalf("expected match")
	}
	if res.Folder != "first" || res.Path != filepath.Join(root, "first", "one") || res.Permanent {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	res, ok = table.Resolve(mustURL(t, "http://x/a.jpg"))
	if !ok || res.Folder != "second" || !res.Permanent {
		t.Fatalf("expected fallback rule, got %+v ok=%v", res, ok)
	}
}

func TestTableNoMatch(t *testing.T) {
	table := NewTable(t.TempDir())
	if err := table.AddRule("images", fixedRule(Suffix(".png"), "x"), false); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, ok := table.Resolve(mustURL(t, "http://x/a.css")); ok {
		t.Fatalf("expected no match")
	}
}

func TestTableAddRuleValidation(t *testing.T) {
	table := NewTable(t.TempDir())
	if err := table.AddRule("", fixedRule(Any(), "x"), false); err == nil {
		t.Fatalf("empty folder should fail")
	}
	if err := table.AddRule("a/b", fixedRule(Any(), "x"), false); err == nil {
		t.Fatalf("folder with separator should fail")
	}
	if err := table.AddRule("..", fixedRule(Any(), "x"), false); err == nil {
		t.Fatalf("parent folder should fail")
	}
	if err := table.AddRule("nil", nil, false); err == nil {
		t.Fatalf("nil rule should fail")
	}
}

func TestTableSharedFolderPermanence(t *testing.T) {
	table := NewTable(t.TempDir())
	if err := table.AddRule("media", fixedRule(Suffix(".png"), "a"), false); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := table.AddRule("media", fixedRule(Suffix(".jpg"), "b"), false); err != nil {
		t.Fatalf("same permanence should share folder: %v", err)
	}
	if err := table.AddRule("media", fixedRule(Suffix(".gif"), "c"), true); err == nil {
		t.Fatalf("conflicting permanence should fail")
	}
	if got := len(table.Rules()); got != 2 {
		t.Fatalf("rejected rule must not be registered, have %d", got)
	}
}

func TestTableIsPermanentPath(t *testing.T) {
	root := t.TempDir()
	table := NewTable(root)
	if err := table.AddRule("articles", fixedRule(Any(), "x"), true); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !table.IsPermanentPath(filepath.Join(root, "articles", "abc")) {
		t.Fatalf("expected permanent path")
	}
	if table.IsPermanentPath(filepath.Join(root, "images", "abc")) {
		t.Fatalf("unknown folder should not be permanent")
	}
	if table.IsPermanentPath(filepath.Join(root, "..", "articles")) {
		t.Fatalf("outside root should not be permanent")
	}
	if table.IsPermanentPath(filepath.Join(root, "articles")) {
		t.Fatalf("folder directory itself is not an entry")
	}
}

func TestTableDotPrefixedFolder(t *testing.T) {
	root := t.TempDir()
	table := NewTable(root)
	if err := table.AddRule("..cache", fixedRule(Any(), "entry"), true); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !table.IsPermanentPath(filepath.Join(root, "..cache", "entry")) {
		t.Fatalf("folder named ..cache should be looked up like any other")
	}

	res, err := NewResolver(table, nil).Resolve(mustURL(t, "http://x/a.png"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Path != filepath.Join(root, "..cache", "entry") || !res.Permanent {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestTableConcurrentAddAndResolve(t *testing.T) {
	table := NewTable(t.TempDir())
	if err := table.AddRule("base", fixedRule(Suffix(".png"), "x"), false); err != nil {
		t.Fatalf("add: %v", err)
	}

	u := mustURL(t, "http://x/a.png")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = table.AddRule(fmt.Sprintf("extra%d", i), fixedRule(Suffix(".png"), "y"), false)
		}(i)
		go func() {
			defer wg.Done()
			res, ok := table.Resolve(u)
			if !ok || res.Folder != "base" {
				t.Errorf("first registered rule must win, got %+v", res)
			}
		}()
	}
	wg.Wait()
	if got := len(table.Rules()); got != 51 {
		t.Fatalf("expected 51 rules, got %d", got)
	}
}

func TestResolverRejectsEscapedPaths(t *testing.T) {
	root := t.TempDir()
	cases := map[string]string{
		"relative traversal": "../../etc/passwd",
		"absolute outside":   "/etc/passwd",
		"root itself":        root,
		"folder itself":      filepath.Join(root, "images"),
		"sibling folder":     filepath.Join(root, "images", "..", "articles", "stolen"),
		"relative sibling":   "images/../articles/stolen",
		"sidecar collision":  filepath.Join(root, "images", "a.meta"),
		"empty":              "",
	}
	for name, built := range cases {
		t.Run(name, func(t *testing.T) {
			table := NewTable(root)
			rule := RuleFuncs{
				MatchFn: Any(),
				BuildFn: func(*url.URL, string) string { return built },
			}
			if err := table.AddRule("images", rule, false); err != nil {
				t.Fatalf("add: %v", err)
			}
			_, err := NewResolver(table, nil).Resolve(mustURL(t, "http://x/a.png"))
			if !errors.Is(err, ErrEscapedPath) {
				t.Fatalf("expected ErrEscapedPath, got %v", err)
			}
		})
	}
}

func TestResolverUncacheable(t *testing.T) {
	table := NewTable(t.TempDir())
	_, err := NewResolver(table, nil).Resolve(mustURL(t, "http://x/a.png"))
	if !errors.Is(err, ErrUncacheable) {
		t.Fatalf("expected ErrUncacheable, got %v", err)
	}
}

func TestResolverJoinsRelativePaths(t *testing.T) {
	root := t.TempDir()
	table := NewTable(root)
	rule := RuleFuncs{
		MatchFn: Any(),
		BuildFn: func(*url.URL, string) string { return "images/./sub/../entry" },
	}
	if err := table.AddRule("images", rule, false); err != nil {
		t.Fatalf("add: %v", err)
	}
	res, err := NewResolver(table, nil).Resolve(mustURL(t, "http://x/a.png"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Path != filepath.Join(root, "images", "entry") {
		t.Fatalf("unexpected canonical path %s", res.Path)
	}
}

func TestMatchers(t *testing.T) {
	re, err := Regexp(`^https://img\d\.example\.com/`)
	if err != nil {
		t.Fatalf("regexp: %v", err)
	}
	cases := []struct {
		name  string
		match MatchFunc
		url   string
		want  bool
	}{
		{"prefix hit", Prefix("https://api.example.com/v1/"), "https://api.example.com/v1/users", true},
		{"prefix miss", Prefix("https://api.example.com/v1/"), "https://api.example.com/v2/users", false},
		{"suffix ignores query", Suffix(".png"), "http://x/a.png?size=2", true},
		{"host exact", Host("CDN.example.com"), "http://cdn.example.com:8080/a", true},
		{"host wildcard", Host("*.example.com"), "http://img.example.com/a", true},
		{"host wildcard apex miss", Host("*.example.com"), "http://example.com/a", false},
		{"glob", Glob("/articles/*"), "http://x/articles/home", true},
		{"glob nested miss", Glob("/articles/*"), "http://x/articles/a/b", false},
		{"regexp", re, "https://img3.example.com/a.png", true},
		{"any", Any(), "http://x/", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.match(mustURL(t, tc.url)); got != tc.want {
				t.Fatalf("match(%s) = %v, want %v", tc.url, got, tc.want)
			}
		})
	}
}

func TestLayouts(t *testing.T) {
	base := filepath.Join("/cache", "images")
	u := mustURL(t, "http://x/a.png")

	md5Path := MD5Layout(u, base)
	if filepath.Dir(md5Path) != base || len(filepath.Base(md5Path)) != 32 {
		t.Fatalf("unexpected md5 layout %s", md5Path)
	}
	if sha := SHA1Layout(u, base); len(filepath.Base(sha)) != 40 {
		t.Fatalf("unexpected sha1 layout %s", sha)
	}

	raw := RawPathLayout(mustURL(t, "http://Cdn.Example.com:8080/a/../b/c.js?v=1"), base)
	if !strings.HasPrefix(raw, filepath.Join(base, "cdn.example.com_8080", "b", "c.js", "__qs")) {
		t.Fatalf("unexpected raw_path layout %s", raw)
	}
	if got := RawPathLayout(mustURL(t, "http://x"), base); got != filepath.Join(base, "x", "root") {
		t.Fatalf("unexpected root layout %s", got)
	}
	if got := RawPathLayout(mustURL(t, "http://x/../../etc/passwd"), base); got != filepath.Join(base, "x", "etc", "passwd") {
		t.Fatalf("raw_path must stay under base, got %s", got)
	}
}

func TestLayoutRegistry(t *testing.T) {
	prev := globalLayouts
	globalLayouts = newLayoutRegistry()
	defer func() { globalLayouts = prev }()

	if err := RegisterLayout("Flat", MD5Layout); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterLayout("flat", MD5Layout); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
	if _, ok := ResolveLayout("FLAT"); !ok {
		t.Fatalf("resolve should be case-insensitive")
	}
	if got := Layouts(); len(got) != 1 || got[0] != "flat" {
		t.Fatalf("unexpected layouts %v", got)
	}
}

func TestFromConfig(t *testing.T) {
	root := t.TempDir()
	table := NewTable(root)
	err := FromConfig(table, []config.RuleConfig{
		{Folder: "images", Match: "suffix", Pattern: ".png", Layout: "md5"},
		{Folder: "articles", Match: "glob", Pattern: "/articles/*", Layout: "raw_path", Permanent: true},
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	res, ok := table.Resolve(mustURL(t, "http://x/articles/home"))
	if !ok || res.Folder != "articles" || !res.Permanent {
		t.Fatalf("unexpected resolution %+v", res)
	}
	if res.Path != filepath.Join(root, "articles", "x", "articles", "home") {
		t.Fatalf("unexpected path %s", res.Path)
	}

	infos := table.Rules()
	if infos[0].Kind != "suffix(.png) -> md5" {
		t.Fatalf("unexpected description %q", infos[0].Kind)
	}

	if err := FromConfig(NewTable(root), []config.RuleConfig{{Folder: "bad", Match: "any", Layout: "nope"}}); err == nil {
		t.Fatalf("unknown layout should fail")
	}
}
