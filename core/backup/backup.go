// Package backup produces and restores compressed database snapshots.
//
// A snapshot is the output of VACUUM INTO, so it is a self-contained,
// defragmented copy taken at a consistent point, compressed with xz
// for storage or transfer.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/litequeue/core/db"
)

// Snapshot writes an xz-compressed copy of the queue's database to dst.
// The copy is taken while the queue is held, so no other work through
// the same queue can interleave with it.
func Snapshot(q *db.ConnectionQueue, dst io.Writer) error {
	tmpDir, err := os.MkdirTemp("", "litequeue-snapshot-")
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	tmpPath := filepath.Join(tmpDir, "snapshot.db")

	err = q.Execute(func(conn *db.Connection) error {
		return conn.Execute("VACUUM INTO '" + strings.ReplaceAll(tmpPath, "'", "''") + "'")
	})
	if err != nil {
		return fmt.Errorf("backup: vacuum: %w", err)
	}

	src, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	defer src.Close()

	zw, err := xz.NewWriter(dst)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if _, err := io.Copy(zw, src); err != nil {
		return fmt.Errorf("backup: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("backup: compress: %w", err)
	}
	return nil
}

// SnapshotFile writes a snapshot to path, creating or truncating it.
func SnapshotFile(q *db.ConnectionQueue, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if err := Snapshot(q, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return nil
}

// Restore decompresses a snapshot from src into a database file at
// path and verifies its integrity. path must not already exist; a
// restore never overwrites a live database.
func Restore(src io.Reader, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("backup: restore target %s already exists", path)
	}

	zr, err := xz.NewReader(src)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if _, err := io.Copy(dst, zr); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("backup: decompress: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("backup: %w", err)
	}

	if err := verify(path); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// RestoreFile restores a snapshot stored at snapshotPath.
func RestoreFile(snapshotPath, path string) error {
	f, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	defer f.Close()
	return Restore(f, path)
}

// verify opens the restored file read-only and runs an integrity
// check, so a truncated or corrupt snapshot is caught at restore time
// rather than first use.
func verify(path string) error {
	conn, err := db.Open(db.OnDisk(path), db.ReadOnly())
	if err != nil {
		return fmt.Errorf("backup: restored file is not a database: %w", err)
	}
	defer conn.Close()

	stmt, err := conn.Prepare("PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("backup: verify: %w", err)
	}
	defer stmt.Close()
	result, ok, err := stmt.QueryText()
	if err != nil {
		return fmt.Errorf("backup: verify: %w", err)
	}
	if !ok || result != "ok" {
		return fmt.Errorf("backup: restored database failed integrity check: %q", result)
	}
	return nil
}
