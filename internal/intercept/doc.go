// Package intercept is the per-request policy layer. Decider picks between
// serving a stored artifact and fetching live, and Transport is the
// http.RoundTripper that carries the decision out: it synthesizes cached
// responses, dispatches live requests to the wrapped transport and persists
// eligible 200 responses through the cache store.
//
// Callers steer a single request with the X-URLCache-* directive headers or,
// equivalently, with WithDirectives on the request context.
package intercept
