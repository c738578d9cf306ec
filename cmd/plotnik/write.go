package main

import (
	"fmt"
	"os"
)

// writeModule writes module bytes atomically: temp file then rename.
func writeModule(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing module: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing module: %w", err)
	}
	return nil
}
