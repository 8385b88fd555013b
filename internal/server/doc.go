// Package server assembles the gateway: the Fiber application with request-ID
// and Host routing middleware, the origin registry, the upstream http.Client
// with the cache interceptor installed, and the Runtime that owns the store,
// rule table and reachability monitor for the life of the process.
package server
