// Package database exposes SQL access to vela scripts, grounded on the
// teacher's internal/database package: the same driver set (mysql,
// postgres, sqlite via both cgo and the pure-Go modernc.org/sqlite, and
// mssql), registered behind database/sql rather than the teacher's
// bespoke connection-pool bookkeeping — vela has no script-level
// concurrency, so one *sql.DB per handle is enough.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"vela/internal/value"
	"vela/internal/vm"
)

// handles maps opaque connection ids (the Value a script holds) to open
// *sql.DB connections. A real multi-VM host would scope this per-VM; vela
// runs one VM per process invocation, so a package-level map is enough.
var handles = map[string]*sql.DB{}

// Register installs db_open, db_exec, and db_query_count as vela globals.
func Register(v *vm.VM) {
	v.Register("db_open", 2, func(args []value.Value) (value.Value, error) {
		driver, err := stringArg(args, 0, "db_open")
		if err != nil {
			return value.Nil(), err
		}
		dsn, err := stringArg(args, 1, "db_open")
		if err != nil {
			return value.Nil(), err
		}
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return value.Nil(), errors.Wrap(err, "db_open")
		}
		if err := db.Ping(); err != nil {
			return value.Nil(), errors.Wrap(err, "db_open: ping")
		}
		handle := fmt.Sprintf("%s://%p", driver, db)
		handles[handle] = db
		return value.FromObject(v.Heap().InternString(handle)), nil
	})

	v.Register("db_exec", 2, func(args []value.Value) (value.Value, error) {
		db, err := dbArg(args, 0)
		if err != nil {
			return value.Nil(), err
		}
		query, err := stringArg(args, 1, "db_exec")
		if err != nil {
			return value.Nil(), err
		}
		res, err := db.Exec(query)
		if err != nil {
			return value.Nil(), errors.Wrap(err, "db_exec")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return value.Nil(), errors.Wrap(err, "db_exec: rows affected")
		}
		return value.Number(float64(n)), nil
	})

	v.Register("db_query_count", 2, func(args []value.Value) (value.Value, error) {
		db, err := dbArg(args, 0)
		if err != nil {
			return value.Nil(), err
		}
		query, err := stringArg(args, 1, "db_query_count")
		if err != nil {
			return value.Nil(), err
		}
		rows, err := db.Query(query)
		if err != nil {
			return value.Nil(), errors.Wrap(err, "db_query_count")
		}
		defer rows.Close()
		count := 0
		for rows.Next() {
			count++
		}
		return value.Number(float64(count)), rows.Err()
	})
}

func dbArg(args []value.Value, i int) (*sql.DB, error) {
	handle, err := stringArg(args, i, "db handle")
	if err != nil {
		return nil, err
	}
	db, ok := handles[handle]
	if !ok {
		return nil, errors.Errorf("unknown database handle %q", handle)
	}
	return db, nil
}

func stringArg(args []value.Value, i int, who string) (string, error) {
	if i >= len(args) || !args[i].IsObject() {
		return "", errors.Errorf("%s: argument %d must be a string", who, i)
	}
	s, ok := args[i].AsObject().(*value.StringObj)
	if !ok {
		return "", errors.Errorf("%s: argument %d must be a string", who, i)
	}
	return s.Chars, nil
}
