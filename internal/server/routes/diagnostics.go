package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/urlcache/internal/metrics"
	"github.com/any-hub/urlcache/internal/reachability"
	"github.com/any-hub/urlcache/internal/server"
)

// RegisterDiagnosticsRoutes 暴露 /-/ 下的诊断接口：规则与来源、缓存清理、可达性、指标。
// 必须在 server.NewApp 之后调用，Host 映射中间件会放行这些路径。
func RegisterDiagnosticsRoutes(app *fiber.App, rt *server.Runtime, registry *server.OriginRegistry, logger *logrus.Logger) {
	if app == nil || rt == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Get("/-/rules", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"storage_root": rt.Table.Root(),
			"rules":        rt.Table.Rules(),
			"origins":      encodeOrigins(registry.List()),
		})
	})

	app.Delete("/-/cache", func(c fiber.Ctx) error {
		if err := rt.Store.Clear(c.Context()); err != nil {
			metrics.StoreErrors.WithLabelValues("clear").Inc()
			logger.WithFields(logrus.Fields{"action": "clear_cache"}).WithError(err).Error("cache_clear_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_clear_failed"})
		}
		logger.WithFields(logrus.Fields{"action": "clear_cache", "root": rt.Store.Root()}).Info("cache_cleared")
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/-/reachability", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"class":   reachability.Describe(rt.Monitor),
			"probing": rt.Prober != nil,
		})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

type originPayload struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Upstream string `json:"upstream"`
	Port     int    `json:"port"`
}

func encodeOrigins(routes []server.OriginRoute) []originPayload {
	result := make([]originPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, originPayload{
			Name:     route.Config.Name,
			Domain:   route.Config.Domain,
			Upstream: route.UpstreamURL.String(),
			Port:     route.ListenPort,
		})
	}
	return result
}
