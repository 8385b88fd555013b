// Package cache owns every file under the cache root. Each entry is a raw
// response body stored at a rule-derived path plus a JSON sidecar
// (<path>.meta) holding the response headers, the request and redirect URLs,
// the fetch date and the permanence flag. Writes go through temp file +
// rename so readers never observe partial data, and bodies recorded with a
// gzip/deflate/br Content-Encoding are decoded transparently on read.
package cache
