//go:build !windows

package atomicfile

import (
	"os"
	"path/filepath"
)

func replace(tmpPath, dest string) error {
	if err := os.Rename(tmpPath, dest); err != nil {
		return err
	}
	// Best effort: persist the rename itself.
	if d, err := os.Open(filepath.Dir(dest)); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
