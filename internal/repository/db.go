package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // embedded SQLite driver
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a conditional write matched nothing because another
	// writer already moved the row on.
	ErrConflict = errors.New("conflict")
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Open connects to the database named by driver and url. SQL text in this
// package is shared by both dialects: lib/pq and modernc sqlite both bind
// $N placeholders positionally.
func Open(driverName, url string) (*sql.DB, Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driverName)) {
	case "", "postgres", "postgresql", "pg":
		db, err := sql.Open("postgres", url)
		if err != nil {
			return nil, "", errors.Wrap(err, "open postgres")
		}
		return db, DialectPostgres, nil
	case "sqlite", "sqlite3":
		db, err := sql.Open("sqlite", sqliteDSN(url))
		if err != nil {
			return nil, "", errors.Wrap(err, "open sqlite")
		}
		// A single connection serializes writers; SQLite allows only one anyway.
		db.SetMaxOpenConns(1)
		return db, DialectSQLite, nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driverName)
	}
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const dateLayout = "2006-01-02"

// dateArg renders a calendar day the same way for every dialect.
func dateArg(t time.Time) string {
	return t.Format(dateLayout)
}

func nullableDateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return dateArg(*t)
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

// dbTime scans DATE and TIMESTAMP columns regardless of whether the driver
// hands back a time.Time (lib/pq) or text (SQLite).
type dbTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	dateLayout,
}

func (t *dbTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v, true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (t *dbTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed, true
			return nil
		}
	}
	return fmt.Errorf("unrecognized time value %q", s)
}

func (t dbTime) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time
	return &out
}

// lenientDate scans like dbTime but treats unparsable values as NULL so a
// single corrupt row cannot fail a whole listing.
type lenientDate struct {
	dbTime
}

func (t *lenientDate) Scan(src interface{}) error {
	if err := t.dbTime.Scan(src); err != nil {
		t.Time, t.Valid = time.Time{}, false
	}
	return nil
}

// Date returns the calendar day of a DATE column at midnight UTC.
func (t dbTime) Date() time.Time {
	return time.Date(t.Time.Year(), t.Time.Month(), t.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (t dbTime) DatePtr() *time.Time {
	if !t.Valid {
		return nil
	}
	d := t.Date()
	return &d
}
