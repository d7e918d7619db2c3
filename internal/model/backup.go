package model

import (
	"errors"
	"os"
)

// removeBackup deletes the previous bundle parked at backupPath during Save.
// A backup that is already gone is fine. When the remove fails, the platform
// hook decides whether the failure can be worked around.
func removeBackup(backupPath string) error {
	if backupPath == "" {
		return nil
	}
	err := os.Remove(backupPath)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return releaseBackup(backupPath, err)
}
