package intercept

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/urlcache/internal/cache"
	"github.com/any-hub/urlcache/internal/logging"
	"github.com/any-hub/urlcache/internal/metrics"
	"github.com/any-hub/urlcache/internal/rules"
)

// 写入指标与日志的最终结果标签。
const (
	outcomeServeCache   = "serve_cache"
	outcomePersist      = "persist"
	outcomeNoCache      = "no_cache"
	outcomeStaleIfError = "stale_if_error"
)

// Transport 是安装在 http.Client 上的拦截层，按 Decider 的方案返回缓存或转发给 base。
type Transport struct {
	decider *Decider
	store   cache.Store
	logger  *logrus.Logger

	installMu sync.Mutex
	base      http.RoundTripper

	custom atomic.Pointer[http.Header]
}

// NewTransport 构造拦截层；base 为空时在 Install 时取 client 原有的 Transport。
func NewTransport(decider *Decider, store cache.Store, base http.RoundTripper, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	t := &Transport{
		decider: decider,
		store:   store,
		base:    base,
		logger:  logger,
	}
	empty := http.Header{}
	t.custom.Store(&empty)
	return t
}

// Install 把拦截层装入 client，重复调用无副作用。
func (t *Transport) Install(client *http.Client) {
	t.installMu.Lock()
	defer t.installMu.Unlock()

	if _, ok := client.Transport.(*Transport); ok {
		return
	}
	if t.base == nil {
		t.base = client.Transport
	}
	client.Transport = t
}

// SetCustomHeaders 整体替换 Customized 指令下合并进请求的头部。
func (t *Transport) SetCustomHeaders(headers map[string]string) {
	next := make(http.Header, len(headers))
	for name, value := range headers {
		next.Set(name, value)
	}
	t.custom.Store(&next)
}

// CustomHeaders 返回当前自定义头部的副本。
func (t *Transport) CustomHeaders() http.Header {
	return t.custom.Load().Clone()
}

func (t *Transport) baseTransport() http.RoundTripper {
	t.installMu.Lock()
	defer t.installMu.Unlock()
	if t.base == nil {
		return http.DefaultTransport
	}
	return t.base
}

// RoundTrip 实现 http.RoundTripper。缓存层的任何错误都只会降级为直连上游。
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	plan := t.decider.Decide(req)

	if plan.Action == ServeCache {
		entry, err := t.store.Load(req.Context(), plan.Resolution.Path)
		if err == nil {
			t.record(req, plan, outcomeServeCache, true)
			return cachedResponse(req, entry), nil
		}
		metrics.StoreErrors.WithLabelValues("load").Inc()
		t.logger.WithFields(logging.RequestFields(plan.Resolution.Folder, req.URL.String(), plan.Reason, false)).
			WithError(err).Warn("cache_load_failed")
		plan.Action = FetchLive
		plan.Reason = ReasonCorrupt
	}

	resp, err := t.baseTransport().RoundTrip(t.prepare(req, plan.Directives))
	if err != nil {
		if plan.Cacheable && plan.Exists {
			if entry, loadErr := t.store.Load(req.Context(), plan.Resolution.Path); loadErr == nil {
				t.logger.WithFields(logging.RequestFields(plan.Resolution.Folder, req.URL.String(), plan.Reason, true)).
					WithError(err).Warn("upstream_failed_serving_cache")
				t.record(req, plan, outcomeStaleIfError, true)
				return cachedResponse(req, entry), nil
			}
		}
		return nil, err
	}

	outcome := t.persist(req, plan, resp)
	resp.Header.Set(HeaderHit, "false")
	t.record(req, plan, outcome, false)
	return resp, nil
}

// prepare 复制请求，去掉控制头，并在 Customized 指令下补充自定义头（请求自带的优先）。
func (t *Transport) prepare(req *http.Request, d Directives) *http.Request {
	out := req.Clone(req.Context())
	StripControlHeaders(out.Header)
	if d.Customized {
		for name, values := range *t.custom.Load() {
			if out.Header.Get(name) != "" {
				continue
			}
			out.Header[name] = append([]string(nil), values...)
		}
	}
	return out
}

type persistTarget struct {
	res         rules.Resolution
	requestURL  string
	redirectURL string
}

// persist 在满足条件时把响应写入缓存，并把 resp.Body 替换为已读取的字节。
func (t *Transport) persist(req *http.Request, plan Plan, resp *http.Response) string {
	if !plan.Eligible || resp.StatusCode != http.StatusOK {
		return outcomeNoCache
	}

	targets := t.persistTargets(req, plan)
	allowStore := plan.Directives.IgnoreCacheControl || !forbidsStore(resp.Header)
	kept := targets[:0]
	for _, target := range targets {
		if allowStore || target.res.Permanent {
			kept = append(kept, target)
		}
	}
	if len(kept) == 0 {
		return outcomeNoCache
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		resp.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), errReader{readErr}))
		return outcomeNoCache
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	headers := storableHeaders(resp.Header)
	fetchDate := t.decider.Now().UTC()
	outcome := outcomeNoCache
	for _, target := range kept {
		meta := cache.Metadata{
			RequestURL:  target.requestURL,
			RedirectURL: target.redirectURL,
			FetchDate:   fetchDate,
			Permanent:   target.res.Permanent,
			Headers:     headers,
		}
		if err := t.store.Write(context.WithoutCancel(req.Context()), target.res.Path, body, meta); err != nil {
			metrics.StoreErrors.WithLabelValues("write").Inc()
			t.logger.WithFields(logging.RequestFields(target.res.Folder, target.requestURL, plan.Reason, false)).
				WithError(err).Warn("cache_write_failed")
			continue
		}
		outcome = outcomePersist
	}
	return outcome
}

// persistTargets 返回需要写入的路径：客户端跟随重定向时，条目同时挂在原始 URL 下，
// 并记录本跳 URL 作为 redirect_url。
func (t *Transport) persistTargets(req *http.Request, plan Plan) []persistTarget {
	var targets []persistTarget

	origin := originalRequest(req)
	if origin != req && isGet(origin) && !sameURL(origin.URL, req.URL) {
		if res, err := t.decider.Resolve(origin.URL); err == nil {
			targets = append(targets, persistTarget{
				res:         res,
				requestURL:  origin.URL.String(),
				redirectURL: req.URL.String(),
			})
		}
	}

	if plan.Cacheable {
		for _, existing := range targets {
			if existing.res.Path == plan.Resolution.Path {
				return targets
			}
		}
		targets = append(targets, persistTarget{
			res:        plan.Resolution,
			requestURL: req.URL.String(),
		})
	}
	return targets
}

// originalRequest 沿 http.Client 的重定向链回溯到第一跳请求。
func originalRequest(req *http.Request) *http.Request {
	current := req
	for current.Response != nil && current.Response.Request != nil {
		current = current.Response.Request
	}
	return current
}

func isGet(req *http.Request) bool {
	return req.Method == "" || req.Method == http.MethodGet
}

func sameURL(a, b *url.URL) bool {
	return a != nil && b != nil && a.String() == b.String()
}

// cachedResponse 用缓存正文与落盘头部合成 200 响应。
func cachedResponse(req *http.Request, entry *cache.Entry) *http.Response {
	header := make(http.Header, len(entry.Metadata.Headers)+5)
	for key, values := range entry.Metadata.Headers {
		if IsHopByHopHeader(key) {
			continue
		}
		header[key] = append([]string(nil), values...)
	}
	header.Del("Content-Encoding")
	header.Del("Content-Length")
	header.Set("Content-Length", strconv.Itoa(len(entry.Body)))

	fetchURL := entry.Metadata.RequestURL
	if fetchURL == "" {
		fetchURL = req.URL.String()
	}
	header.Set(HeaderHit, "true")
	header.Set(HeaderFetchURL, fetchURL)
	if !entry.Metadata.FetchDate.IsZero() {
		header.Set(HeaderFetchDate, entry.Metadata.FetchDate.UTC().Format(http.TimeFormat))
	}
	if entry.Metadata.RedirectURL != "" {
		header.Set(HeaderRedirectURL, entry.Metadata.RedirectURL)
	}
	if entry.Metadata.Permanent {
		header.Set(HeaderNoExpire, "true")
	}

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}

func (t *Transport) record(req *http.Request, plan Plan, outcome string, hit bool) {
	metrics.Decisions.WithLabelValues(outcome).Inc()
	t.logger.WithFields(logging.RequestFields(plan.Resolution.Folder, req.URL.String(), outcome, hit)).
		WithField("reason", plan.Reason).
		Debug("intercept_complete")
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
