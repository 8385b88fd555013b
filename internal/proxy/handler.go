package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/urlcache/internal/intercept"
	"github.com/any-hub/urlcache/internal/logging"
	"github.com/any-hub/urlcache/internal/server"
)

// HeaderUpstream 回显本次请求实际访问的上游 URL。
const HeaderUpstream = "X-URLCache-Upstream"

// Handler 把网关请求改写为对源站的请求，并通过安装了拦截层的 http.Client 发出，
// 缓存命中与写入都发生在 client 内部，本层只负责转发与日志。
type Handler struct {
	client *http.Client
	logger *logrus.Logger
}

// NewHandler constructs a gateway handler around the intercepting client.
func NewHandler(client *http.Client, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{client: client, logger: logger}
}

// Handle 转发请求并把响应流式写回客户端。
func (h *Handler) Handle(c fiber.Ctx, route *server.OriginRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)
	upstreamURL := resolveUpstreamURL(route.UpstreamURL, c)

	req, err := h.buildUpstreamRequest(c, upstreamURL, route)
	if err != nil {
		h.logResult(route, upstreamURL.String(), requestID, 0, false, started, err)
		return h.writeError(c, fiber.StatusBadRequest, "invalid_request")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logResult(route, upstreamURL.String(), requestID, 0, false, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	hit := resp.Header.Get(intercept.HeaderHit) == "true"
	copyResponseHeaders(c, resp.Header)
	c.Set(HeaderUpstream, upstreamURL.String())
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		h.logResult(route, upstreamURL.String(), requestID, resp.StatusCode, hit, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logResult(route, upstreamURL.String(), requestID, resp.StatusCode, hit, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

// buildUpstreamRequest 复制客户端头部（含缓存指令头，由拦截层读取后剥离）并补充 X-Forwarded-*。
func (h *Handler) buildUpstreamRequest(c fiber.Ctx, upstream *url.URL, route *server.OriginRoute) (*http.Request, error) {
	var ctx context.Context = c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), upstream.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	// 交给 http.Transport 自行协商并解压，缓存落盘的是解码后的正文。
	req.Header.Del("Accept-Encoding")
	req.Header.Del("Host")
	req.Host = upstream.Host
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())
	req.Header.Set("X-Forwarded-Port", routePort(route))
	return req, nil
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	route *server.OriginRoute,
	upstream string,
	requestID string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(route.Config.Name, upstream, "gateway", cacheHit)
	fields["action"] = "proxy"
	fields["domain"] = route.Config.Domain
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

// resolveUpstreamURL 将清理后的请求路径与查询串拼接到源站基地址之后。
func resolveUpstreamURL(base *url.URL, c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	clean := path.Clean("/" + string(uri.Path()))

	joined := path.Join("/", base.Path, clean)
	if clean == "/" && base.Path != "" {
		joined = base.Path
	}
	out := *base
	out.Path = joined
	out.RawPath = ""
	out.RawQuery = string(uri.QueryString())
	return &out
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

// copyResponseHeaders 跳过 hop-by-hop 与 Content-Length，长度由 Fiber 按实际正文计算。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if intercept.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}

func routePort(route *server.OriginRoute) string {
	if route == nil || route.ListenPort <= 0 {
		return "0"
	}
	return fmt.Sprintf("%d", route.ListenPort)
}
