package hoststore

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

// writeFileAtomic writes data to path by creating a hidden
// .<name>.tmp.<pid>.<rand> file beside it, writing the bytes, fsyncing, and renaming over the target — the same
// Close()-error-checked write discipline this codebase already uses when
// copying files into an overlay, generalized so readers of path never
// observe a partially-written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%d.%d", filepath.Base(path), os.Getpid(), rand.Int63()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsyncing temp file for %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming temp file into %s: %w", path, err)
	}

	return nil
}
