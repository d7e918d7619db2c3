//go:build !windows

package model

// releaseBackup reports err unchanged: an open bundle never blocks unlink here.
func releaseBackup(_ string, err error) error { return err }
