package intercept

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/any-hub/urlcache/internal/cache"
	"github.com/any-hub/urlcache/internal/reachability"
	"github.com/any-hub/urlcache/internal/rules"
)

// Action 是决策结果：直接返回缓存或访问上游。
type Action int

const (
	FetchLive Action = iota
	ServeCache
)

func (a Action) String() string {
	if a == ServeCache {
		return "serve_cache"
	}
	return "fetch_live"
}

// 决策原因，会出现在日志与指标中。
const (
	ReasonMethod             = "method"
	ReasonNoCacheDirective   = "no_cache_directive"
	ReasonUncacheable        = "uncacheable"
	ReasonEscapedPath        = "escaped_path"
	ReasonMiss               = "miss"
	ReasonPermanent          = "permanent"
	ReasonIgnoreCacheControl = "ignore_cache_control"
	ReasonOffline            = "offline"
	ReasonCellular           = "cellular"
	ReasonFresh              = "fresh"
	ReasonStale              = "stale"
	ReasonCorrupt            = "corrupt"
)

// Plan 描述一次请求的处理方案。
type Plan struct {
	Action     Action
	Reason     string
	Directives Directives
	// Eligible 为 true 表示请求本身允许参与缓存（GET 且无 NoCache 指令）。
	Eligible bool
	// Cacheable 为 true 表示已解析出合法缓存路径，Resolution 有效。
	Cacheable  bool
	Resolution rules.Resolution
	// Exists 表示决策时缓存正文已存在。
	Exists bool
}

// PathResolver 是决策层依赖的路径解析能力。
type PathResolver interface {
	Resolve(u *url.URL) (rules.Resolution, error)
	IsPermanentPath(path string) bool
}

// Options 控制可达性相关的扩展策略。
type Options struct {
	Monitor               reachability.Monitor
	ServeStaleWhenOffline bool
	PreferCacheOnCellular bool
	Now                   func() time.Time
}

// Decider 在发起网络请求前同步做出决策，决策本身不会修改缓存。
type Decider struct {
	resolver PathResolver
	store    cache.Store
	opts     Options
}

// NewDecider 构造决策器。
func NewDecider(resolver PathResolver, store cache.Store, opts Options) *Decider {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Decider{resolver: resolver, store: store, opts: opts}
}

// Resolve 暴露路径解析，供重定向归属使用。
func (d *Decider) Resolve(u *url.URL) (rules.Resolution, error) {
	return d.resolver.Resolve(u)
}

// CachePath 返回 URL 对应的规范缓存路径，不关心条目是否已存在。
func (d *Decider) CachePath(u *url.URL) (string, error) {
	res, err := d.resolver.Resolve(u)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

// HasCache 报告 URL 是否已有缓存正文；无法解析的 URL 一律视为没有。
func (d *Decider) HasCache(u *url.URL) bool {
	p, err := d.CachePath(u)
	return err == nil && d.store.Exists(p)
}

// ReadCache 按 URL 读取缓存正文与元数据，不做新鲜度判断。
func (d *Decider) ReadCache(ctx context.Context, u *url.URL) (*cache.Entry, error) {
	p, err := d.CachePath(u)
	if err != nil {
		return nil, err
	}
	return d.store.Load(ctx, p)
}

// IsPermanentCachePath 按路径判断永久性：所属规则标记为永久，或条目自身写入了永久标记。
func (d *Decider) IsPermanentCachePath(path string) bool {
	return d.resolver.IsPermanentPath(path) || d.store.IsPermanent(path)
}

// Decide 依次检查：请求方法、NoCache 指令、规则解析、缓存是否存在及是否可直接使用。
func (d *Decider) Decide(req *http.Request) Plan {
	plan := Plan{Action: FetchLive, Directives: DirectivesFor(req)}

	if req.Method != "" && req.Method != http.MethodGet {
		plan.Reason = ReasonMethod
		return plan
	}
	if plan.Directives.NoCache {
		plan.Reason = ReasonNoCacheDirective
		return plan
	}
	plan.Eligible = true

	res, err := d.resolver.Resolve(req.URL)
	if err != nil {
		plan.Reason = ReasonUncacheable
		if errors.Is(err, rules.ErrEscapedPath) {
			plan.Reason = ReasonEscapedPath
		}
		return plan
	}
	plan.Cacheable = true
	plan.Resolution = res

	if !d.store.Exists(res.Path) {
		plan.Reason = ReasonMiss
		return plan
	}
	plan.Exists = true

	switch {
	case res.Permanent || d.IsPermanentCachePath(res.Path):
		plan.Action, plan.Reason = ServeCache, ReasonPermanent
	case plan.Directives.IgnoreCacheControl:
		plan.Action, plan.Reason = ServeCache, ReasonIgnoreCacheControl
	case d.offline():
		plan.Action, plan.Reason = ServeCache, ReasonOffline
	case d.opts.PreferCacheOnCellular && d.opts.Monitor != nil && d.opts.Monitor.IsCellular():
		plan.Action, plan.Reason = ServeCache, ReasonCellular
	default:
		meta, err := d.store.ReadMetadata(req.Context(), res.Path)
		switch {
		case errors.Is(err, cache.ErrNotFound):
			meta = cache.Metadata{Headers: http.Header{}}
		case err != nil:
			plan.Reason = ReasonCorrupt
			return plan
		}
		if isFresh(meta, d.opts.Now()) {
			plan.Action, plan.Reason = ServeCache, ReasonFresh
		} else {
			plan.Reason = ReasonStale
		}
	}
	return plan
}

func (d *Decider) offline() bool {
	return d.opts.ServeStaleWhenOffline && d.opts.Monitor != nil && d.opts.Monitor.IsUnreachable()
}

// Now 返回决策器使用的时钟。
func (d *Decider) Now() time.Time {
	return d.opts.Now()
}
