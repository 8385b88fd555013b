package server

import (
	"net/url"
	"testing"

	"github.com/any-hub/urlcache/internal/config"
	"github.com/any-hub/urlcache/internal/reachability"
)

func runtimeConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Global: config.GlobalConfig{
			ListenPort:   5000,
			StoragePath:  t.TempDir(),
			NetworkClass: "wifi",
		},
		CustomHeaders: map[string]string{"x-app-version": "1.2.3"},
		Rules: []config.RuleConfig{
			{Folder: "images", Match: "suffix", Pattern: ".png", Layout: "md5"},
			{Folder: "articles", Match: "prefix", Pattern: "https://news.example.com/", Layout: "raw_path", Permanent: true},
		},
	}
}

func TestBuildRuntimeWiresComponents(t *testing.T) {
	cfg := runtimeConfig(t)
	rt, err := BuildRuntime(cfg, nil)
	if err != nil {
		t.Fatalf("BuildRuntime: %v", err)
	}

	if got := len(rt.Table.Rules()); got != 2 {
		t.Fatalf("expected 2 rules, got %d", got)
	}
	u, _ := url.Parse("https://news.example.com/home")
	res, err := rt.Resolver.Resolve(u)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Folder != "articles" || !res.Permanent {
		t.Fatalf("unexpected resolution %+v", res)
	}

	if rt.Prober != nil {
		t.Fatalf("prober should be nil without ProbeAddress")
	}
	if !rt.Monitor.IsWiFi() {
		t.Fatalf("expected wifi monitor")
	}
	if got := rt.Transport.CustomHeaders().Get("X-App-Version"); got != "1.2.3" {
		t.Fatalf("expected custom header, got %q", got)
	}
}

func TestBuildRuntimeUsesProber(t *testing.T) {
	cfg := runtimeConfig(t)
	cfg.Global.ProbeAddress = "127.0.0.1:1"
	cfg.Global.NetworkClass = "cellular"

	rt, err := BuildRuntime(cfg, nil)
	if err != nil {
		t.Fatalf("BuildRuntime: %v", err)
	}
	if rt.Prober == nil {
		t.Fatalf("expected prober")
	}
	if reachability.Describe(rt.Monitor) != "cellular" {
		t.Fatalf("prober should start from configured class, got %s", reachability.Describe(rt.Monitor))
	}
}

func TestBuildRuntimeRejectsBadInput(t *testing.T) {
	if _, err := BuildRuntime(nil, nil); err == nil {
		t.Fatalf("nil config should fail")
	}

	cfg := runtimeConfig(t)
	cfg.Global.NetworkClass = "satellite"
	if _, err := BuildRuntime(cfg, nil); err == nil {
		t.Fatalf("unknown network class should fail")
	}

	cfg = runtimeConfig(t)
	cfg.Rules = append(cfg.Rules, config.RuleConfig{Folder: "images", Match: "any", Layout: "md5", Permanent: true})
	if _, err := BuildRuntime(cfg, nil); err == nil {
		t.Fatalf("conflicting permanence should fail")
	}
}
