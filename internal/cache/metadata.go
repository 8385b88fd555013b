package cache

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

type sidecarHeader struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type sidecar struct {
	RequestURL  string          `json:"request_url"`
	RedirectURL string          `json:"redirect_url,omitempty"`
	FetchDate   string          `json:"fetch_date"`
	Permanent   bool            `json:"permanent"`
	Headers     []sidecarHeader `json:"headers"`
}

// encodeMetadata 按规范名排序头部，保证相同输入得到字节一致的 sidecar。
func encodeMetadata(meta Metadata) ([]byte, error) {
	names := make([]string, 0, len(meta.Headers))
	for name := range meta.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]sidecarHeader, 0, len(names))
	for _, name := range names {
		values := append([]string(nil), meta.Headers[name]...)
		headers = append(headers, sidecarHeader{
			Name:   http.CanonicalHeaderKey(name),
			Values: values,
		})
	}

	fetchDate := ""
	if !meta.FetchDate.IsZero() {
		fetchDate = meta.FetchDate.UTC().Format(time.RFC3339Nano)
	}

	return json.MarshalIndent(sidecar{
		RequestURL:  meta.RequestURL,
		RedirectURL: meta.RedirectURL,
		FetchDate:   fetchDate,
		Permanent:   meta.Permanent,
		Headers:     headers,
	}, "", "  ")
}

func decodeMetadata(data []byte) (Metadata, error) {
	var raw sidecar
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}

	meta := Metadata{
		RequestURL:  raw.RequestURL,
		RedirectURL: raw.RedirectURL,
		Permanent:   raw.Permanent,
		Headers:     make(http.Header, len(raw.Headers)),
	}
	if raw.FetchDate != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw.FetchDate)
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: fetch_date: %v", ErrCorruptArtifact, err)
		}
		meta.FetchDate = parsed
	}
	for _, h := range raw.Headers {
		if h.Name == "" {
			continue
		}
		for _, value := range h.Values {
			meta.Headers.Add(h.Name, value)
		}
	}
	return meta, nil
}
