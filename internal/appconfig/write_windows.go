//go:build windows

package appconfig

import "os"

// WriteFileAtomic writes path in place; renameio has no Windows support.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}
