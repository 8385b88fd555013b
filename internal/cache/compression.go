package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

var knownEncodings = map[string]struct{}{
	"gzip":    {},
	"x-gzip":  {},
	"deflate": {},
	"br":      {},
}

// IsResponseCompressed 判断响应头声明的 Content-Encoding 是否全部为可解压的已知编码。
// identity 会被忽略；出现未知编码时视为未压缩，避免尝试不支持的解码。
func IsResponseCompressed(header http.Header) bool {
	encodings := contentEncodings(header)
	if len(encodings) == 0 {
		return false
	}
	for _, enc := range encodings {
		if _, ok := knownEncodings[enc]; !ok {
			return false
		}
	}
	return true
}

func contentEncodings(header http.Header) []string {
	var result []string
	for _, value := range header.Values("Content-Encoding") {
		for _, token := range strings.Split(value, ",") {
			token = strings.ToLower(strings.TrimSpace(token))
			if token == "" || token == "identity" {
				continue
			}
			result = append(result, token)
		}
	}
	return result
}

// decodeBody 按 Content-Encoding 的逆序逐层解压。
func decodeBody(body []byte, header http.Header) ([]byte, error) {
	if !IsResponseCompressed(header) {
		return body, nil
	}
	encodings := contentEncodings(header)
	out := body
	for i := len(encodings) - 1; i >= 0; i-- {
		decoded, err := decodeLayer(out, encodings[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptArtifact, encodings[i], err)
		}
		out = decoded
	}
	return out, nil
}

func decodeLayer(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		// 规范的 deflate 是 zlib 封装，部分服务器直接发送裸 flate 流。
		if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
			decoded, readErr := io.ReadAll(zr)
			zr.Close()
			if readErr == nil {
				return decoded, nil
			}
		}
		fr := flate.NewReader(bytes.NewReader(data))
		defer fr.Close()
		return io.ReadAll(fr)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
