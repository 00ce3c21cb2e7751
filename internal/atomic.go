package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteOutcome describes a completed atomic write.
type WriteOutcome struct {
	// TargetPath is the final destination path.
	TargetPath string
	// BackupPath is the .bak file holding the previous content when an
	// existing target was overwritten under force; empty otherwise.
	BackupPath string
}

// AtomicWrite makes content visible at targetPath atomically using
// temp-write + fsync + rename, or fails without leaving a partial file.
//
// If the target already exists and force is false, the existing file is
// left untouched and a ConflictError is returned. Under force the
// existing file is first renamed aside to a backup path, so at every
// observable instant the target holds either the old complete content or
// the new complete content.
func AtomicWrite(targetPath string, content []byte, force bool) (*WriteOutcome, error) {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &WriteError{Path: targetPath, Err: fmt.Errorf("failed to create parent directories: %w", err)}
	}

	tempPath := filepath.Join(dir, ".session-bridge-tmp-"+uuid.NewString())
	if err := writeAndSync(tempPath, content); err != nil {
		os.Remove(tempPath)
		return nil, &WriteError{Path: targetPath, Err: fmt.Errorf("failed to write temp file: %w", err)}
	}

	return installTemp(tempPath, targetPath, force)
}

// InstallFile moves an already-written temp file onto targetPath with the
// same conflict and backup semantics as AtomicWrite. Used by writers that
// render their output through something other than a byte slice (the
// cursor provider builds a sqlite database in the temp file).
func InstallFile(tempPath, targetPath string, force bool) (*WriteOutcome, error) {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		os.Remove(tempPath)
		return nil, &WriteError{Path: targetPath, Err: fmt.Errorf("failed to create parent directories: %w", err)}
	}
	if err := syncFile(tempPath); err != nil {
		os.Remove(tempPath)
		return nil, &WriteError{Path: targetPath, Err: fmt.Errorf("failed to sync temp file: %w", err)}
	}
	return installTemp(tempPath, targetPath, force)
}

// installTemp performs the existence check, optional backup rename, and
// the final rename. The rename is the atomicity boundary.
func installTemp(tempPath, targetPath string, force bool) (*WriteOutcome, error) {
	backupPath := ""
	if _, err := os.Lstat(targetPath); err == nil {
		if !force {
			os.Remove(tempPath)
			return nil, &ConflictError{ExistingPath: targetPath}
		}
		backupPath = FindBackupPath(targetPath)
		LogDebug("backing up existing file %s -> %s", targetPath, backupPath)
		if err := os.Rename(targetPath, backupPath); err != nil {
			os.Remove(tempPath)
			return nil, &WriteError{Path: targetPath, Err: fmt.Errorf("failed to create backup: %w", err)}
		}
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		if backupPath != "" {
			LogWarn("restoring backup %s after rename failure", backupPath)
			if restoreErr := os.Rename(backupPath, targetPath); restoreErr != nil {
				LogError("failed to restore backup %s: %v", backupPath, restoreErr)
			}
		}
		return nil, &WriteError{Path: targetPath, Err: fmt.Errorf("failed to rename temp file to target: %w", err)}
	}

	LogDebug("atomic write complete: %s", targetPath)
	return &WriteOutcome{TargetPath: targetPath, BackupPath: backupPath}, nil
}

func writeAndSync(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// FindBackupPath returns an available backup path next to target,
// deduplicating with .bak, .bak.1, .bak.2, and so on.
func FindBackupPath(target string) string {
	bak := target + ".bak"
	if _, err := os.Lstat(bak); os.IsNotExist(err) {
		return bak
	}
	for i := 1; i < 100; i++ {
		numbered := fmt.Sprintf("%s.bak.%d", target, i)
		if _, err := os.Lstat(numbered); os.IsNotExist(err) {
			return numbered
		}
	}
	return fmt.Sprintf("%s.bak.%s", target, uuid.NewString())
}
