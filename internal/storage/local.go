package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps artifacts on the local filesystem under a single base
// directory. Keys map to relative paths; resolvePath rejects anything that
// would escape the base.
type LocalStorage struct {
	basePath string
	logger   *slog.Logger
}

// NewLocalStorage roots a LocalStorage at cfg.BasePath, creating the
// directory if needed.
func NewLocalStorage(cfg LocalConfig, logger *slog.Logger) (*LocalStorage, error) {
	base, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	logger.Info("initialized local storage", "base_path", base)
	return &LocalStorage{basePath: base, logger: logger}, nil
}

func (s *LocalStorage) fail(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}

// Put writes data under key. Without opts.Overwrite an existing object is
// an ErrKeyExists failure.
func (s *LocalStorage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return s.fail("Put", key, err)
	}

	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return s.fail("Put", key, ErrKeyExists)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return s.fail("Put", key, fmt.Errorf("create directory: %w", err))
	}

	f, err := os.Create(path)
	if err != nil {
		return s.fail("Put", key, fmt.Errorf("create file: %w", err))
	}
	defer f.Close()

	n, err := io.Copy(f, data)
	if err != nil {
		// Partial writes are removed so a later Get cannot serve a
		// truncated artifact.
		os.Remove(path)
		return s.fail("Put", key, fmt.Errorf("write file: %w", err))
	}

	s.logger.Debug("stored artifact", "key", key, "size", n, "content_type", opts.ContentType)
	return nil
}

// Get opens the object at key. The content type is inferred from the key's
// extension since the filesystem does not record one.
func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return nil, ObjectInfo{}, s.fail("Get", key, err)
	}

	stat, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return nil, ObjectInfo{}, s.fail("Get", key, ErrNotFound)
	case err != nil:
		return nil, ObjectInfo{}, s.fail("Get", key, fmt.Errorf("stat file: %w", err))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ObjectInfo{}, s.fail("Get", key, fmt.Errorf("open file: %w", err))
	}

	return f, ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(key)),
		LastModified: stat.ModTime(),
	}, nil
}

// Delete removes the object at key. Deleting a missing object is not an
// error.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return s.fail("Delete", key, err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return s.fail("Delete", key, fmt.Errorf("delete file: %w", err))
	}
	return nil
}

// Exists reports whether an object is stored at key.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := s.resolvePath(key)
	if err != nil {
		return false, s.fail("Exists", key, err)
	}

	_, err = s.statPath(path)
	switch {
	case os.IsNotExist(err):
		return false, nil
	case err != nil:
		return false, s.fail("Exists", key, fmt.Errorf("stat file: %w", err))
	}
	return true, nil
}

func (s *LocalStorage) statPath(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// resolvePath maps a key to an absolute path under basePath. Empty keys
// and traversal attempts are rejected.
func (s *LocalStorage) resolvePath(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}

	clean := filepath.Clean(key)
	if strings.Contains(clean, "..") {
		return "", ErrInvalidKey
	}

	path := filepath.Join(s.basePath, clean)
	if !strings.HasPrefix(path, s.basePath) {
		return "", ErrInvalidKey
	}
	return path, nil
}
