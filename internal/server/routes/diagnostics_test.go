package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/urlcache/internal/config"
	"github.com/any-hub/urlcache/internal/metrics"
	"github.com/any-hub/urlcache/internal/server"
)

func newDiagnosticsApp(t *testing.T) (*fiber.App, *server.Runtime) {
	t.Helper()

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:   5000,
			StoragePath:  t.TempDir(),
			NetworkClass: "cellular",
		},
		Rules: []config.RuleConfig{
			{Folder: "images", Match: "suffix", Pattern: ".png", Layout: "md5"},
			{Folder: "articles", Match: "glob", Pattern: "/articles/*", Layout: "raw_path", Permanent: true},
		},
		Origins: []config.OriginConfig{
			{Name: "cdn", Domain: "cdn.local", Upstream: "https://cdn.example.com"},
		},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	rt, err := server.BuildRuntime(cfg, logger)
	if err != nil {
		t.Fatalf("BuildRuntime: %v", err)
	}
	registry, err := server.NewOriginRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Registry: registry,
		Proxy: server.ProxyHandlerFunc(func(c fiber.Ctx, _ *server.OriginRoute) error {
			return c.SendStatus(fiber.StatusTeapot)
		}),
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	RegisterDiagnosticsRoutes(app, rt, registry, logger)
	return app, rt
}

func TestRulesEndpointListsRulesInOrder(t *testing.T) {
	app, rt := newDiagnosticsApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/-/rules", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload struct {
		StorageRoot string `json:"storage_root"`
		Rules       []struct {
			Folder    string `json:"folder"`
			Permanent bool   `json:"permanent"`
			Kind      string `json:"kind"`
		} `json:"rules"`
		Origins []originPayload `json:"origins"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.StorageRoot != rt.Store.Root() {
		t.Fatalf("unexpected storage root %s", payload.StorageRoot)
	}
	if len(payload.Rules) != 2 || payload.Rules[0].Folder != "images" || !payload.Rules[1].Permanent {
		t.Fatalf("unexpected rules %+v", payload.Rules)
	}
	if payload.Rules[1].Kind != "glob(/articles/*) -> raw_path" {
		t.Fatalf("unexpected rule kind %q", payload.Rules[1].Kind)
	}
	if len(payload.Origins) != 1 || payload.Origins[0].Upstream != "https://cdn.example.com" || payload.Origins[0].Port != 5000 {
		t.Fatalf("unexpected origins %+v", payload.Origins)
	}
}

func TestClearCacheEndpoint(t *testing.T) {
	app, rt := newDiagnosticsApp(t)

	entry := filepath.Join(rt.Store.Root(), "images", "abc")
	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(entry, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/-/cache", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if rt.Store.Exists(entry) {
		t.Fatalf("entry should be removed")
	}
	if _, err := os.Stat(rt.Store.Root()); err != nil {
		t.Fatalf("storage root should survive clear: %v", err)
	}
}

func TestReachabilityEndpoint(t *testing.T) {
	app, _ := newDiagnosticsApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/-/reachability", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"class":"cellular"`) || !strings.Contains(string(body), `"probing":false`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newDiagnosticsApp(t)
	metrics.Decisions.WithLabelValues("serve_cache").Inc()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "urlcache_decisions_total") {
		t.Fatalf("expected prometheus output, got %d", resp.StatusCode)
	}
}
