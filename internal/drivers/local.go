package drivers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/FairForge/sal/internal/engine"
	"go.uber.org/zap"
)

// LocalDriver stores blobs as files under a base directory
type LocalDriver struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalDriver creates a new local filesystem driver
func NewLocalDriver(basePath string, logger *zap.Logger) (*LocalDriver, error) {
	if basePath == "" {
		return nil, errors.New("local driver: base path is required")
	}
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &LocalDriver{
		basePath: basePath,
		logger:   logger,
	}, nil
}

// Name returns the driver name
func (d *LocalDriver) Name() string {
	return "local"
}

// path maps a key into the base directory. Cleaning against a rooted
// path keeps ".." segments from escaping it.
func (d *LocalDriver) path(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty key")
	}
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(d.basePath, clean), nil
}

// Put writes the blob atomically: a temp file in the target directory
// is renamed over the destination, so readers never see partial data.
func (d *LocalDriver) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := d.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sal-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}

	for name, value := range metadata {
		if err := setXAttr(fullPath, metadataAttr(name), []byte(value)); err != nil {
			d.logger.Debug("metadata not stored",
				zap.String("key", key),
				zap.String("attr", name),
				zap.Error(err))
			break
		}
	}

	d.logger.Debug("LocalDriver.Put",
		zap.String("key", key),
		zap.Int("size", len(data)))
	return nil
}

// Get reads a blob
func (d *LocalDriver) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := d.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, key)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Metadata returns the metadata stored with key, where the filesystem
// supports extended attributes
func (d *LocalDriver) Metadata(ctx context.Context, key string) (map[string]string, error) {
	fullPath, err := d.path(key)
	if err != nil {
		return nil, err
	}
	names, err := listXAttrs(fullPath)
	if err != nil {
		return nil, err
	}
	md := make(map[string]string)
	for _, attr := range names {
		name, ok := strings.CutPrefix(attr, xattrPrefix)
		if !ok {
			continue
		}
		value, err := getXAttr(fullPath, attr)
		if err != nil {
			return nil, err
		}
		md[name] = string(value)
	}
	return md, nil
}

// HealthCheck verifies the base directory is writable
func (d *LocalDriver) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(d.basePath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("health check failed: %s is not a directory", d.basePath)
	}

	probe, err := os.CreateTemp(d.basePath, ".health-*")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
