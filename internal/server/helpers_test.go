package server

import (
	"os"
	"path/filepath"
)

func writeBytes(path string, n int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, make([]byte, n), 0644)
}
