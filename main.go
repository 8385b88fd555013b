package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/urlcache/internal/config"
	"github.com/any-hub/urlcache/internal/logging"
	"github.com/any-hub/urlcache/internal/proxy"
	"github.com/any-hub/urlcache/internal/rules"
	"github.com/any-hub/urlcache/internal/server"
	"github.com/any-hub/urlcache/internal/server/routes"
	"github.com/any-hub/urlcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	clearCache  bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据 CLI 选项执行业务流程并返回退出码。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		// 只在内存中构建规则表，不创建缓存目录。
		if err := rules.FromConfig(rules.NewTable(cfg.Global.StoragePath), cfg.Rules); err != nil {
			fmt.Fprintf(stdErr, "规则无效: %v\n", err)
			return 1
		}
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["rules"] = config.RuleSummaries(cfg.Rules)
		fields["origins"] = len(cfg.Origins)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 缓存运行时（存储/规则/可达性/拦截客户端）→ 来源注册表 → Fiber。
	rt, err := server.BuildRuntime(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}

	if opts.clearCache {
		if err := rt.Store.Clear(context.Background()); err != nil {
			fmt.Fprintf(stdErr, "清理缓存失败: %v\n", err)
			return 1
		}
		fields := logging.BaseFields("clear_cache", opts.configPath)
		fields["root"] = rt.Store.Root()
		logger.WithFields(fields).Info("缓存已清理")
		return 0
	}

	registry, err := server.NewOriginRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建来源注册表失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["rules"] = config.RuleSummaries(cfg.Rules)
	fields["origins"] = len(cfg.Origins)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rt.Prober != nil {
		go rt.Prober.Run(ctx)
	}

	if err := startHTTPServer(ctx, cfg, rt, registry, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("urlcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		clearCache bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 URLCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&clearCache, "clear-cache", false, "清空缓存目录后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("URLCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		clearCache:  clearCache,
	}, nil
}

func startHTTPServer(ctx context.Context, cfg *config.Config, rt *server.Runtime, registry *server.OriginRegistry, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      proxy.NewHandler(rt.Client, logger),
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticsRoutes(app, rt, registry, logger)

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("Fiber 服务停止")
		_ = app.Shutdown()
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
