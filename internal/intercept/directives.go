package intercept

import (
	"context"
	"net/http"
)

// Directives 是调用方对单个请求的缓存指令，等价于对应的请求头。
type Directives struct {
	NoCache            bool
	IgnoreCacheControl bool
	Customized         bool
}

type directivesKey struct{}

// WithDirectives 把指令附加到 ctx，随请求一起传给拦截层。
func WithDirectives(ctx context.Context, d Directives) context.Context {
	return context.WithValue(ctx, directivesKey{}, d)
}

func directivesFromContext(ctx context.Context) Directives {
	if ctx == nil {
		return Directives{}
	}
	d, _ := ctx.Value(directivesKey{}).(Directives)
	return d
}

// DirectivesFor 合并请求头与 ctx 中的指令，任一来源开启即视为开启。
func DirectivesFor(req *http.Request) Directives {
	d := directivesFromContext(req.Context())
	d.NoCache = d.NoCache || IsDirectiveSet(req.Header.Get(HeaderNoCache))
	d.IgnoreCacheControl = d.IgnoreCacheControl || IsDirectiveSet(req.Header.Get(HeaderIgnoreCacheControl))
	d.Customized = d.Customized || IsDirectiveSet(req.Header.Get(HeaderCustomized))
	return d
}
