package intercept

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/any-hub/urlcache/internal/cache"
)

func TestIsFresh(t *testing.T) {
	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := fetched.Add(time.Minute)

	cases := []struct {
		name   string
		header http.Header
		fetch  time.Time
		want   bool
	}{
		{"no expiry signal", http.Header{}, fetched, true},
		{"no-cache", http.Header{"Cache-Control": {"no-cache"}}, fetched, false},
		{"no-store mixed case", http.Header{"Cache-Control": {"public, No-Store"}}, fetched, false},
		{"max-age valid", http.Header{"Cache-Control": {"max-age=3600"}}, fetched, true},
		{"max-age elapsed", http.Header{"Cache-Control": {"max-age=30"}}, fetched, false},
		{"max-age malformed", http.Header{"Cache-Control": {"max-age=soon"}}, fetched, false},
		{"max-age without fetch date", http.Header{"Cache-Control": {"max-age=3600"}}, time.Time{}, false},
		{"max-age wins over expires", http.Header{
			"Cache-Control": {"max-age=3600"},
			"Expires":       {"Thu, 01 Jan 1970 00:00:00 GMT"},
		}, fetched, true},
		{"expires future", http.Header{"Expires": {now.Add(time.Hour).Format(http.TimeFormat)}}, fetched, true},
		{"expires past", http.Header{"Expires": {"Thu, 01 Jan 1970 00:00:00 GMT"}}, fetched, false},
		{"expires invalid", http.Header{"Expires": {"0"}}, fetched, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := cache.Metadata{FetchDate: tc.fetch, Headers: tc.header}
			if got := isFresh(meta, now); got != tc.want {
				t.Fatalf("isFresh = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestForbidsStore(t *testing.T) {
	if forbidsStore(http.Header{"Cache-Control": {"max-age=60, public"}}) {
		t.Fatalf("cacheable response should be storable")
	}
	if !forbidsStore(http.Header{"Cache-Control": {`private, no-cache="Set-Cookie"`}}) {
		t.Fatalf("no-cache with field list should forbid store")
	}
	if !forbidsStore(http.Header{"Pragma": {"No-Cache"}}) {
		t.Fatalf("pragma no-cache should forbid store")
	}
}

func TestDirectivesFor(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://x/", nil)
	req.Header.Set(HeaderIgnoreCacheControl, "yes")
	req.Header.Set(HeaderNoCache, "0")
	req = req.WithContext(WithDirectives(context.Background(), Directives{Customized: true}))

	d := DirectivesFor(req)
	if d.NoCache || !d.IgnoreCacheControl || !d.Customized {
		t.Fatalf("unexpected directives %+v", d)
	}
}

func TestStorableHeadersDropsSyntheticHeaders(t *testing.T) {
	src := http.Header{}
	src.Set("Connection", "close")
	src.Set(HeaderHit, "false")
	src.Set("Content-Type", "text/plain")
	got := storableHeaders(src)
	if got.Get("Connection") != "" || got.Get(HeaderHit) != "" {
		t.Fatalf("unexpected stored headers %v", got)
	}
	if got.Get("Content-Type") != "text/plain" {
		t.Fatalf("content-type should be stored")
	}
}
