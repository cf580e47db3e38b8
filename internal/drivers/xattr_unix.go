//go:build darwin || linux

package drivers

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const xattrPrefix = "user.sal."

func metadataAttr(name string) string {
	return xattrPrefix + name
}

func setXAttr(path, name string, value []byte) error {
	if err := unix.Setxattr(path, name, value, 0); err != nil {
		return fmt.Errorf("setxattr failed: %w", err)
	}
	return nil
}

func getXAttr(path, name string) ([]byte, error) {
	// Get size first
	size, err := unix.Getxattr(path, name, nil)
	if err != nil {
		return nil, fmt.Errorf("getxattr size failed: %w", err)
	}

	buf := make([]byte, size)
	n, err := unix.Getxattr(path, name, buf)
	if err != nil {
		return nil, fmt.Errorf("getxattr failed: %w", err)
	}
	return buf[:n], nil
}

func listXAttrs(path string) ([]string, error) {
	size, err := unix.Listxattr(path, nil)
	if err != nil {
		return nil, fmt.Errorf("listxattr size failed: %w", err)
	}
	if size == 0 {
		return []string{}, nil
	}

	buf := make([]byte, size)
	n, err := unix.Listxattr(path, buf)
	if err != nil {
		return nil, fmt.Errorf("listxattr failed: %w", err)
	}

	// Parse null-terminated strings
	var attrs []string
	start := 0
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			if i > start {
				attrs = append(attrs, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return attrs, nil
}
