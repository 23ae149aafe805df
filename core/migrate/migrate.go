// Package migrate applies sequential schema migrations through a
// serialized connection queue.
//
// Versions are contiguous integers starting at 1. Each applied version
// is recorded with its name, a BLAKE3 checksum of the script, and a UTC
// timestamp, so a later run can detect both pending versions and drift
// in scripts that were already applied.
package migrate

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/litequeue/core/db"
)

// Table is the bookkeeping table maintained by the migrator.
const Table = "litequeue_migrations"

const createTableSQL = `CREATE TABLE IF NOT EXISTS ` + Table + ` (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`

// Migration is one schema change. SQL may contain multiple statements
// separated by semicolons; the whole script applies inside a single
// immediate transaction together with its bookkeeping row.
type Migration struct {
	Version int64
	Name    string
	SQL     string
}

// Checksum returns the hex BLAKE3 digest of the migration script.
func (m Migration) Checksum() string {
	sum := blake3.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:])
}

// Migrator applies migrations through one ConnectionQueue.
type Migrator struct {
	queue  *db.ConnectionQueue
	logger *log.Logger
}

// New creates a Migrator. logger may be nil for silent operation.
func New(queue *db.ConnectionQueue, logger *log.Logger) *Migrator {
	return &Migrator{queue: queue, logger: logger}
}

// Apply brings the database up to the highest supplied version. It
// returns the number of migrations applied. Already applied versions
// are verified against their recorded checksums; a mismatch means the
// script changed after it ran and is reported as an error.
func (m *Migrator) Apply(migrations []Migration) (int, error) {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for i, mig := range sorted {
		if want := int64(i + 1); mig.Version != want {
			return 0, fmt.Errorf("migrate: versions must be contiguous from 1, missing version %d", want)
		}
	}

	applied, err := m.appliedChecksums()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range sorted {
		if recorded, ok := applied[mig.Version]; ok {
			if recorded != mig.Checksum() {
				return count, fmt.Errorf("migrate: version %d (%s) changed after it was applied", mig.Version, mig.Name)
			}
			continue
		}
		if err := m.applyOne(mig); err != nil {
			return count, fmt.Errorf("migrate: version %d (%s): %w", mig.Version, mig.Name, err)
		}
		m.logf("migrate: applied version %d (%s)", mig.Version, mig.Name)
		count++
	}
	return count, nil
}

// Version returns the highest applied version, or 0 for a fresh
// database.
func (m *Migrator) Version() (int64, error) {
	if err := m.ensureTable(); err != nil {
		return 0, err
	}
	var version int64
	err := m.queue.Execute(func(conn *db.Connection) error {
		stmt, err := conn.Prepare("SELECT coalesce(max(version), 0) FROM " + Table)
		if err != nil {
			return err
		}
		defer stmt.Close()
		n, ok, err := stmt.QueryInt64()
		if err != nil {
			return err
		}
		if ok {
			version = n
		}
		return nil
	})
	return version, err
}

func (m *Migrator) ensureTable() error {
	return m.queue.Execute(func(conn *db.Connection) error {
		return conn.Execute(createTableSQL)
	})
}

func (m *Migrator) appliedChecksums() (map[int64]string, error) {
	if err := m.ensureTable(); err != nil {
		return nil, err
	}
	applied := make(map[int64]string)
	err := m.queue.Execute(func(conn *db.Connection) error {
		stmt, err := conn.Prepare("SELECT version, checksum FROM " + Table + " ORDER BY version")
		if err != nil {
			return err
		}
		defer stmt.Close()
		return stmt.Query(func(r *db.Row) error {
			version, ok := r.Int64(0)
			if !ok {
				return fmt.Errorf("migrate: malformed version row in %s", Table)
			}
			checksum, ok := r.Text(1)
			if !ok {
				return fmt.Errorf("migrate: malformed checksum row in %s", Table)
			}
			applied[version] = checksum
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// applyOne runs one script and its bookkeeping insert in a single
// immediate transaction, so a failed script records nothing.
func (m *Migrator) applyOne(mig Migration) error {
	return m.queue.ExecuteInTransaction(db.Immediate, func(conn *db.Connection) error {
		if err := conn.Execute(mig.SQL); err != nil {
			return err
		}
		insert, err := conn.Prepare("INSERT INTO " + Table + " VALUES(?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer insert.Close()
		now := time.Now().UTC().Format(db.TimeLayout)
		if err := insert.Bind(mig.Version, mig.Name, mig.Checksum(), now); err != nil {
			return err
		}
		return insert.Run()
	})
}

// LoadDir reads migrations from dir. Files must be named
// NNN_name.sql; NNN is the version number. Other files are ignored.
func LoadDir(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), ".sql")
		num, name, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			continue
		}
		sql, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(sql),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func (m *Migrator) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
