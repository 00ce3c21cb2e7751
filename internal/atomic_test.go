package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWriteNewFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "session.jsonl")

	outcome, err := AtomicWrite(target, []byte("content\n"), false)
	if err != nil {
		t.Fatalf("AtomicWrite() failed: %v", err)
	}
	if outcome.TargetPath != target {
		t.Errorf("TargetPath = %q, want %q", outcome.TargetPath, target)
	}
	if outcome.BackupPath != "" {
		t.Errorf("BackupPath = %q, want empty for a fresh write", outcome.BackupPath)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(data) != "content\n" {
		t.Errorf("written content = %q, want %q", data, "content\n")
	}
}

func TestAtomicWriteNoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "session.jsonl")

	if _, err := AtomicWrite(target, []byte("x"), false); err != nil {
		t.Fatalf("AtomicWrite() failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".session-bridge-tmp-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestAtomicWriteConflict(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "session.jsonl")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := AtomicWrite(target, []byte("new"), false)
	if err == nil {
		t.Fatal("AtomicWrite() onto existing file without force should fail")
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %T, want *ConflictError", err)
	}
	if conflict.ErrorType() != "SessionConflict" {
		t.Errorf("ErrorType() = %q, want SessionConflict", conflict.ErrorType())
	}

	// Existing file untouched.
	data, _ := os.ReadFile(target)
	if string(data) != "old" {
		t.Errorf("existing file changed to %q", data)
	}
}

func TestAtomicWriteForceCreatesBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "session.jsonl")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	outcome, err := AtomicWrite(target, []byte("new"), true)
	if err != nil {
		t.Fatalf("AtomicWrite() with force failed: %v", err)
	}
	if outcome.BackupPath != target+".bak" {
		t.Errorf("BackupPath = %q, want %q", outcome.BackupPath, target+".bak")
	}

	// Exactly one file at the final path plus one backup, both readable.
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "new" {
		t.Errorf("target content = %q, err = %v, want %q", data, err, "new")
	}
	backup, err := os.ReadFile(outcome.BackupPath)
	if err != nil || string(backup) != "old" {
		t.Errorf("backup content = %q, err = %v, want %q", backup, err, "old")
	}
}

func TestAtomicWriteBackupDedup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "session.jsonl")
	if err := os.WriteFile(target, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	outcome1, err := AtomicWrite(target, []byte("v2"), true)
	if err != nil {
		t.Fatal(err)
	}
	outcome2, err := AtomicWrite(target, []byte("v3"), true)
	if err != nil {
		t.Fatal(err)
	}

	if outcome1.BackupPath != target+".bak" {
		t.Errorf("first backup = %q, want %q", outcome1.BackupPath, target+".bak")
	}
	if outcome2.BackupPath != target+".bak.1" {
		t.Errorf("second backup = %q, want %q", outcome2.BackupPath, target+".bak.1")
	}

	v1, _ := os.ReadFile(outcome1.BackupPath)
	v2, _ := os.ReadFile(outcome2.BackupPath)
	if string(v1) != "v1" || string(v2) != "v2" {
		t.Errorf("backup contents = %q, %q, want v1, v2", v1, v2)
	}
}

func TestFindBackupPath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.jsonl")

	if got := FindBackupPath(target); got != target+".bak" {
		t.Errorf("FindBackupPath() = %q, want %q", got, target+".bak")
	}

	if err := os.WriteFile(target+".bak", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := FindBackupPath(target); got != target+".bak.1" {
		t.Errorf("FindBackupPath() with .bak taken = %q, want %q", got, target+".bak.1")
	}
}

func TestInstallFile(t *testing.T) {
	dir := t.TempDir()
	temp := filepath.Join(dir, ".tmp-render")
	target := filepath.Join(dir, "out", "store.db")
	if err := os.WriteFile(temp, []byte("rendered"), 0o644); err != nil {
		t.Fatal(err)
	}

	outcome, err := InstallFile(temp, target, false)
	if err != nil {
		t.Fatalf("InstallFile() failed: %v", err)
	}
	data, err := os.ReadFile(outcome.TargetPath)
	if err != nil || string(data) != "rendered" {
		t.Errorf("installed content = %q, err = %v", data, err)
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Error("temp file still present after install")
	}
}
