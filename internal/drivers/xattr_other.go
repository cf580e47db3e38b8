//go:build !darwin && !linux

package drivers

import (
	"fmt"
)

const xattrPrefix = "user.sal."

func metadataAttr(name string) string {
	return xattrPrefix + name
}

func setXAttr(path, name string, value []byte) error {
	return fmt.Errorf("extended attributes not supported on this platform")
}

func getXAttr(path, name string) ([]byte, error) {
	return nil, fmt.Errorf("extended attributes not supported on this platform")
}

func listXAttrs(path string) ([]string, error) {
	return nil, fmt.Errorf("extended attributes not supported on this platform")
}
