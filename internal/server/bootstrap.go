package server

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/urlcache/internal/cache"
	"github.com/any-hub/urlcache/internal/config"
	"github.com/any-hub/urlcache/internal/intercept"
	"github.com/any-hub/urlcache/internal/reachability"
	"github.com/any-hub/urlcache/internal/rules"
)

// Runtime 汇总进程级的缓存组件：启动时构造一次，通过依赖注入传给网关与诊断路由。
type Runtime struct {
	Store     cache.Store
	Table     *rules.Table
	Resolver  *rules.Resolver
	Monitor   reachability.Monitor
	Prober    *reachability.Prober // 仅在配置了 ProbeAddress 时存在，需要调用方 Run
	Decider   *intercept.Decider
	Transport *intercept.Transport
	Client    *http.Client
}

// BuildRuntime 根据配置装配存储、规则表、可达性监视器与拦截客户端。
func BuildRuntime(cfg *config.Config, logger *logrus.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return nil, err
	}

	table := rules.NewTable(store.Root())
	if err := rules.FromConfig(table, cfg.Rules); err != nil {
		return nil, err
	}
	resolver := rules.NewResolver(table, logger)

	class, err := reachability.ParseClass(cfg.Global.NetworkClass)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		Store:    store,
		Table:    table,
		Resolver: resolver,
	}
	if cfg.Global.ProbeAddress != "" {
		rt.Prober = reachability.NewProber(cfg.Global.ProbeAddress, cfg.Global.ProbeInterval.DurationValue(), class, logger)
		rt.Monitor = rt.Prober
	} else {
		rt.Monitor = reachability.NewStatic(class)
	}

	rt.Decider = intercept.NewDecider(resolver, store, intercept.Options{
		Monitor:               rt.Monitor,
		ServeStaleWhenOffline: cfg.Global.ServeStaleWhenOffline,
		PreferCacheOnCellular: cfg.Global.PreferCacheOnCellular,
	})
	rt.Transport = intercept.NewTransport(rt.Decider, store, nil, logger)
	rt.Transport.SetCustomHeaders(cfg.CustomHeaders)
	rt.Client = NewUpstreamClient(cfg, rt.Transport)
	return rt, nil
}
