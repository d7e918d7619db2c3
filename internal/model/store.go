package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/logging"
)

// DefaultFileName is the bundle file name under artifacts/model.
const DefaultFileName = "model.bundle"

// LockTimeout bounds how long Save waits for another writer.
var LockTimeout = 30 * time.Second

// Load reads and validates the bundle at path.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: model file not found: %s", errs.ErrNotFound, path)
		}
		return nil, fmt.Errorf("cannot open model %s: %w", path, err)
	}
	defer f.Close()

	b, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Save writes b to path. The bundle is encoded to a temp file next to path
// and swapped in under an exclusive file lock; an existing bundle is moved to
// path.bak for the duration of the swap and restored if the swap fails.
func Save(path string, b *Bundle) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create model dir %s: %w", dir, err)
	}

	unlock, err := acquireLock(path+".lock", LockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := Encode(tmp, b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cannot flush %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return installWithRollback(path, tmpPath, path+".bak")
}

// installWithRollback replaces currentPath with newPath, keeping the old file
// at backupPath until the new one is in place.
func installWithRollback(currentPath, newPath, backupPath string) error {
	hadCurrent := false
	if _, err := os.Stat(currentPath); err == nil {
		hadCurrent = true
		_ = removeBackup(backupPath)
		if err := os.Rename(currentPath, backupPath); err != nil {
			return fmt.Errorf("cannot back up %s: %w", currentPath, err)
		}
	}
	if err := os.Rename(newPath, currentPath); err != nil {
		if hadCurrent {
			_ = os.Rename(backupPath, currentPath)
		}
		return fmt.Errorf("cannot replace %s: %w", currentPath, err)
	}
	if hadCurrent {
		if err := removeBackup(backupPath); err != nil {
			logging.L().Warn("cannot remove bundle backup", zap.String("path", backupPath), zap.Error(err))
		}
	}
	return nil
}

// acquireLock polls for an exclusive lock on lockPath until timeout.
func acquireLock(lockPath string, timeout time.Duration) (func(), error) {
	l := flock.New(lockPath)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot acquire bundle lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return func() {}, fmt.Errorf("another training run is writing the bundle (lock: %s)", lockPath)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
