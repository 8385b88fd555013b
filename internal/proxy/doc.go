// Package proxy 实现网关模式：按 Host 找到源站，经安装了缓存拦截层的 http.Client 转发。
package proxy
