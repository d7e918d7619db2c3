//go:build windows

package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/kamusis/catsdogs/internal/logging"
)

// releaseBackup retries the remove while a serving process still has the
// old bundle open (Load holds it only while decoding), then hands the file
// to the OS for deletion at the next reboot.
func releaseBackup(backupPath string, err error) error {
	lastErr := err
	b := retry.WithMaxRetries(5, retry.NewConstant(200*time.Millisecond))
	rerr := retry.Do(context.Background(), b, func(context.Context) error {
		e := os.Remove(backupPath)
		if e == nil || errors.Is(e, os.ErrNotExist) {
			return nil
		}
		lastErr = e
		return retry.RetryableError(e)
	})
	if rerr == nil {
		return nil
	}

	p, perr := windows.UTF16PtrFromString(backupPath)
	if perr != nil {
		return lastErr
	}
	if merr := windows.MoveFileEx(p, nil, windows.MOVEFILE_DELAY_UNTIL_REBOOT); merr != nil {
		return fmt.Errorf("%w (delete on reboot: %v)", lastErr, merr)
	}
	logging.L().Warn("bundle backup still in use, deletion deferred to reboot",
		zap.String("path", backupPath), zap.Error(lastErr))
	return nil
}
