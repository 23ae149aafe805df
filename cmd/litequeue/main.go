// Command litequeue is a small operational tool for litequeue
// databases: ad-hoc SQL, schema migrations, and compressed snapshots.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/litequeue/core/backup"
	"github.com/FocuswithJustin/litequeue/core/db"
	"github.com/FocuswithJustin/litequeue/core/migrate"
)

const version = "0.1.0"

// CLI defines the command-line interface for litequeue.
var CLI struct {
	// Global flags
	Database string `name:"database" short:"d" help:"Database file path" type:"path" default:"litequeue.db"`
	Verbose  bool   `name:"verbose" short:"v" help:"Log progress to stderr"`

	Exec    ExecCmd    `cmd:"" help:"Execute a SQL statement"`
	Query   QueryCmd   `cmd:"" help:"Run a query and print the rows"`
	Migrate MigrateCmd `cmd:"" help:"Apply pending migrations from a directory"`
	Backup  BackupCmd  `cmd:"" help:"Write a compressed snapshot of the database"`
	Restore RestoreCmd `cmd:"" help:"Restore a snapshot into a new database file"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func logger() *log.Logger {
	if !CLI.Verbose {
		return nil
	}
	return log.New(os.Stderr, "litequeue: ", log.LstdFlags)
}

func openQueue() (*db.ConnectionQueue, error) {
	return db.OpenQueue(db.OnDisk(CLI.Database))
}

// ExecCmd runs one statement and reports the affected row count.
type ExecCmd struct {
	SQL  string   `arg:"" help:"SQL statement to execute"`
	Args []string `arg:"" optional:"" help:"Positional text arguments bound to ? placeholders"`
}

func (c *ExecCmd) Run() error {
	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	return q.Execute(func(conn *db.Connection) error {
		if len(c.Args) == 0 {
			if err := conn.Execute(c.SQL); err != nil {
				return err
			}
		} else {
			stmt, err := conn.Prepare(c.SQL)
			if err != nil {
				return err
			}
			defer stmt.Close()
			args := make([]any, len(c.Args))
			for i, a := range c.Args {
				args[i] = a
			}
			if err := stmt.Bind(args...); err != nil {
				return err
			}
			if err := stmt.Run(); err != nil {
				return err
			}
		}
		fmt.Printf("%d row(s) changed\n", conn.Changes())
		return nil
	})
}

// QueryCmd runs a query and prints tab-separated rows.
type QueryCmd struct {
	SQL  string   `arg:"" help:"SQL query to run"`
	Args []string `arg:"" optional:"" help:"Positional text arguments bound to ? placeholders"`
}

func (c *QueryCmd) Run() error {
	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	return q.Execute(func(conn *db.Connection) error {
		stmt, err := conn.Prepare(c.SQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		args := make([]any, len(c.Args))
		for i, a := range c.Args {
			args[i] = a
		}
		if len(args) > 0 {
			if err := stmt.Bind(args...); err != nil {
				return err
			}
		}

		cols := stmt.Columns()
		names := make([]string, len(cols))
		for i, col := range cols {
			names[i] = col.Name
		}
		fmt.Println(strings.Join(names, "\t"))

		return stmt.Query(func(r *db.Row) error {
			fields := make([]string, r.ColumnCount())
			for i := range fields {
				v, ok := r.Value(i)
				if !ok || v.IsNull() {
					fields[i] = "NULL"
					continue
				}
				fields[i] = v.String()
			}
			fmt.Println(strings.Join(fields, "\t"))
			return nil
		})
	})
}

// MigrateCmd applies every pending migration in a directory.
type MigrateCmd struct {
	Dir string `arg:"" help:"Directory of NNN_name.sql migration files" type:"existingdir"`
}

func (c *MigrateCmd) Run() error {
	migrations, err := migrate.LoadDir(c.Dir)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		return fmt.Errorf("no migrations found in %s", c.Dir)
	}

	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	m := migrate.New(q, logger())
	n, err := m.Apply(migrations)
	if err != nil {
		return err
	}
	current, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Printf("applied %d migration(s), now at version %d\n", n, current)
	return nil
}

// BackupCmd writes an xz-compressed snapshot of the database.
type BackupCmd struct {
	Output string `arg:"" help:"Snapshot output path" type:"path"`
}

func (c *BackupCmd) Run() error {
	q, err := openQueue()
	if err != nil {
		return err
	}
	defer q.Close()

	if err := backup.SnapshotFile(q, c.Output); err != nil {
		return err
	}
	fmt.Printf("snapshot written to %s\n", c.Output)
	return nil
}

// RestoreCmd restores a snapshot into a fresh database file.
type RestoreCmd struct {
	Snapshot string `arg:"" help:"Snapshot file to restore" type:"existingfile"`
	Output   string `arg:"" help:"New database file path" type:"path"`
}

func (c *RestoreCmd) Run() error {
	if err := backup.RestoreFile(c.Snapshot, c.Output); err != nil {
		return err
	}
	fmt.Printf("restored %s to %s\n", c.Snapshot, c.Output)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("litequeue version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("litequeue"),
		kong.Description("Operational tool for litequeue databases"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
