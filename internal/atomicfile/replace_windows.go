//go:build windows

package atomicfile

import "os"

func replace(tmpPath, dest string) error {
	// os.Rename fails on Windows when dest exists.
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, dest)
}
