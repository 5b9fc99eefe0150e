// Package safefile provides atomic file replacement. State files that other
// operations read (index, refs, HEAD) are never updated in place: a crash
// mid-write must leave either the old record or the new one, not a torn file.
package safefile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteFile writes data to a uniquely named temp file in the destination's
// directory and renames it over path.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
