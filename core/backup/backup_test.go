package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/litequeue/core/db"
)

func seededQueue(t *testing.T) *db.ConnectionQueue {
	t.Helper()
	q, err := db.OpenQueue(db.OnDisk(filepath.Join(t.TempDir(), "source.db")))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	err = q.Execute(func(conn *db.Connection) error {
		if err := conn.Execute("CREATE TABLE items(id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
			return err
		}
		stmt, err := conn.Prepare("INSERT INTO items(name) VALUES(?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, name := range []string{"alpha", "beta", "gamma"} {
			if err := stmt.Bind(name); err != nil {
				return err
			}
			if err := stmt.Run(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return q
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	q := seededQueue(t)

	var buf bytes.Buffer
	if err := Snapshot(q, &buf); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("snapshot produced no output")
	}

	restored := filepath.Join(t.TempDir(), "restored.db")
	if err := Restore(&buf, restored); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	rq, err := db.OpenQueue(db.OnDisk(restored))
	if err != nil {
		t.Fatalf("open restored failed: %v", err)
	}
	defer rq.Close()
	err = rq.Execute(func(conn *db.Connection) error {
		stmt, err := conn.Prepare("SELECT name FROM items ORDER BY id")
		if err != nil {
			return err
		}
		defer stmt.Close()
		var names []string
		err = stmt.Query(func(r *db.Row) error {
			name, ok := r.Text(0)
			if !ok {
				return errors.New("missing name")
			}
			names = append(names, name)
			return nil
		})
		if err != nil {
			return err
		}
		want := []string{"alpha", "beta", "gamma"}
		if len(names) != len(want) {
			t.Fatalf("restored %d rows, want %d", len(names), len(want))
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("row %d: got %q, want %q", i, names[i], want[i])
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read restored failed: %v", err)
	}
}

func TestSnapshotFile(t *testing.T) {
	q := seededQueue(t)
	dir := t.TempDir()
	snap := filepath.Join(dir, "items.db.xz")

	if err := SnapshotFile(q, snap); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	info, err := os.Stat(snap)
	if err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("snapshot file is empty")
	}

	restored := filepath.Join(dir, "restored.db")
	if err := RestoreFile(snap, restored); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
}

func TestRestoreRefusesExistingTarget(t *testing.T) {
	q := seededQueue(t)
	var buf bytes.Buffer
	if err := Snapshot(q, &buf); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	target := filepath.Join(t.TempDir(), "live.db")
	if err := os.WriteFile(target, []byte("live data"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := Restore(&buf, target); err == nil {
		t.Fatal("restore over an existing file must fail")
	}
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "live data" {
		t.Error("refused restore must leave the target untouched")
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.db")
	err := Restore(bytes.NewReader([]byte("this is not an xz stream")), target)
	if err == nil {
		t.Fatal("garbage input must fail to restore")
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("failed restore must not leave a partial file behind")
	}
}
