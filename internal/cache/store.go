package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// MetadataSuffix 是 sidecar 元数据文件追加在正文路径后的固定后缀。
const MetadataSuffix = ".meta"

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<Folder>/<rule 生成的路径>        # 原始正文（可能仍是压缩字节）
//	<StoragePath>/<Folder>/<rule 生成的路径>.meta   # JSON 元数据
//
// 条目是否存在只取决于正文文件；元数据缺失时按空头部处理。
type Store interface {
	// Exists 仅检查正文文件是否存在。
	Exists(path string) bool

	// Read 返回正文，若元数据声明了 gzip/deflate/br 编码则透明解压。
	// 条目不存在返回 ErrNotFound，解压失败返回 ErrCorruptArtifact。
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadMetadata 读取 sidecar；缺失返回 ErrNotFound，格式错误返回 ErrCorruptArtifact。
	ReadMetadata(ctx context.Context, path string) (Metadata, error)

	// Load 在同一把读锁内读取正文与元数据，保证二者来自同一次写入。
	Load(ctx context.Context, path string) (*Entry, error)

	// Write 先把正文与 sidecar 写入临时文件，再按 sidecar、正文的顺序 rename；任一步失败都不会留下错配的一对。
	Write(ctx context.Context, path string, body []byte, meta Metadata) error

	// WriteMetadata 只更新 sidecar，幂等且后写覆盖先写。
	WriteMetadata(ctx context.Context, path string, meta Metadata) error

	// IsPermanent 读取 sidecar 中记录的永久标记，读取失败视为 false。
	IsPermanent(path string) bool

	// Clear 尽力删除根目录下的全部内容，单个文件失败不会中断清理。
	Clear(ctx context.Context) error

	// Root 返回缓存根目录的绝对路径。
	Root() string
}

// Metadata 记录一次上游抓取的响应头与来源信息。
type Metadata struct {
	RequestURL  string
	RedirectURL string
	FetchDate   time.Time
	Permanent   bool
	Headers     http.Header
}

// Entry 组合解压后的正文与元数据，供拦截层直接合成响应。
type Entry struct {
	Path     string
	Body     []byte
	Metadata Metadata
}

var (
	// ErrNotFound 表示缓存不存在，属于正常的未命中。
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorruptArtifact 表示正文无法解压或 sidecar 无法解析，调用方应按未命中处理。
	ErrCorruptArtifact = errors.New("cache artifact corrupt")
	// ErrEscapedPath 表示路径落在缓存根目录之外。
	ErrEscapedPath = errors.New("cache path escapes storage root")
)
