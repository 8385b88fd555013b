package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// NewStore 以 root 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(root string) (Store, error) {
	if root == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		root:  abs,
		locks: make(map[string]*entryLock),
	}, nil
}

// fileStore 通过按路径引用计数的 entryLock 串行化同一路径的读写，不同路径互不阻塞。
type fileStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.RWMutex
	refs int
}

func (s *fileStore) Root() string {
	return s.root
}

func (s *fileStore) Exists(path string) bool {
	filePath, err := s.path(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(filePath)
	return err == nil && !info.IsDir()
}

func (s *fileStore) Read(ctx context.Context, path string) ([]byte, error) {
	entry, err := s.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return entry.Body, nil
}

func (s *fileStore) ReadMetadata(ctx context.Context, path string) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	filePath, err := s.path(path)
	if err != nil {
		return Metadata{}, err
	}

	unlock := s.lockEntry(filePath, false)
	defer unlock()

	return readSidecar(filePath)
}

func (s *fileStore) Load(ctx context.Context, path string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.path(path)
	if err != nil {
		return nil, err
	}

	unlock := s.lockEntry(filePath, false)
	defer unlock()

	raw, err := readBody(filePath)
	if err != nil {
		return nil, err
	}

	meta, err := readSidecar(filePath)
	switch {
	case errors.Is(err, ErrNotFound):
		meta = Metadata{Headers: http.Header{}}
	case err != nil:
		return nil, err
	}

	body, err := decodeBody(raw, meta.Headers)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Path:     filePath,
		Body:     body,
		Metadata: meta,
	}, nil
}

func (s *fileStore) Write(ctx context.Context, path string, body []byte, meta Metadata) error {
	filePath, err := s.path(path)
	if err != nil {
		return err
	}
	encoded, err := encodeMetadata(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	unlock := s.lockEntry(filePath, true)
	defer unlock()

	bodyTemp, err := stageTemp(ctx, filePath, body)
	if err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	metaTemp, err := stageTemp(ctx, filePath+MetadataSuffix, encoded)
	if err != nil {
		os.Remove(bodyTemp)
		return fmt.Errorf("write metadata: %w", err)
	}

	// sidecar 先落盘：失败时旧正文与旧 sidecar 仍然成对。
	if err := os.Rename(metaTemp, filePath+MetadataSuffix); err != nil {
		os.Remove(metaTemp)
		os.Remove(bodyTemp)
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(bodyTemp, filePath); err != nil {
		os.Remove(bodyTemp)
		dropEntry(filePath)
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// dropEntry 删除新 sidecar 与旧正文，避免二者错配；只删除普通文件，不碰目录。
func dropEntry(filePath string) {
	os.Remove(filePath + MetadataSuffix)
	if info, err := os.Lstat(filePath); err == nil && info.Mode().IsRegular() {
		os.Remove(filePath)
	}
}

func (s *fileStore) WriteMetadata(ctx context.Context, path string, meta Metadata) error {
	filePath, err := s.path(path)
	if err != nil {
		return err
	}
	encoded, err := encodeMetadata(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	unlock := s.lockEntry(filePath, true)
	defer unlock()

	if err := writeAtomic(ctx, filePath+MetadataSuffix, encoded); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (s *fileStore) IsPermanent(path string) bool {
	meta, err := s.ReadMetadata(context.Background(), path)
	if err != nil {
		return false
	}
	return meta.Permanent
}

func (s *fileStore) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("list storage root: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *fileStore) lockEntry(key string, write bool) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	if write {
		lock.mu.Lock()
	} else {
		lock.mu.RLock()
	}
	return func() {
		if write {
			lock.mu.Unlock()
		} else {
			lock.mu.RUnlock()
		}
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// path 把相对路径挂到根目录下并清理，拒绝根目录本身、根目录之外以及 sidecar 路径。
func (s *fileStore) path(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrEscapedPath)
	}
	filePath := filepath.FromSlash(p)
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(s.root, filePath)
	}
	filePath = filepath.Clean(filePath)

	rel, err := filepath.Rel(s.root, filePath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapedPath, p)
	}
	if strings.HasSuffix(filePath, MetadataSuffix) {
		return "", fmt.Errorf("%w: %s", ErrEscapedPath, p)
	}
	return filePath, nil
}

func readBody(filePath string) ([]byte, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func readSidecar(filePath string) (Metadata, error) {
	data, err := os.ReadFile(filePath + MetadataSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, err
	}
	return decodeMetadata(data)
}

// writeAtomic 先写同目录临时文件再 rename，读者永远看不到半截内容。
func writeAtomic(ctx context.Context, filePath string, data []byte) error {
	tempName, err := stageTemp(ctx, filePath, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// stageTemp 在 filePath 同目录写好临时文件并返回其路径，由调用方负责 rename 或清理。
func stageTemp(ctx context.Context, filePath string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return "", err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, bytes.NewReader(data))
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return "", err
	}
	return tempName, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
