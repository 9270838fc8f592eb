package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/flowforge/taskctl/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteSink is the optional indexed audit sink (spec §6.6 leaves the
// persisted shape open beyond the JSONL default; this adds `taskctl
// status --since`-style filtered queries the file sink can't answer
// without a full scan).
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if absent) the database at path and brings
// its schema up to date.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: opening sqlite database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("audit: loading embedded migrations: %w", err)
	}
	driver, err := migratesqlite3.WithInstance(db, &migratesqlite3.Config{})
	if err != nil {
		return fmt.Errorf("audit: building sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("audit: building migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("audit: running migrations: %w", err)
	}
	return nil
}

// Record implements Sink.
func (s *SQLiteSink) Record(ctx context.Context, kind string, fields map[string]interface{}) {
	rec := Record{ID: uuid.NewString(), Time: time.Now(), Kind: kind, Fields: fields}
	blob, err := json.Marshal(fields)
	if err != nil {
		log.Warn(log.CatAudit, "failed to marshal audit fields", "kind", kind, "error", err)
		return
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, ts, kind, fields) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Time, rec.Kind, string(blob),
	); err != nil {
		log.Warn(log.CatAudit, "failed to insert audit record", "kind", kind, "error", err)
	}
}

// Query answers a filtered, most-recent-first history lookup through the
// kind and ts indexes instead of a full scan.
func (s *SQLiteSink) Query(ctx context.Context, q Query) ([]Record, error) {
	stmt := "SELECT id, ts, kind, fields FROM audit_records WHERE 1 = 1"
	var args []interface{}
	if q.Kind != "" {
		stmt += " AND kind = ?"
		args = append(args, q.Kind)
	}
	if !q.Since.IsZero() {
		stmt += " AND ts >= ?"
		args = append(args, q.Since)
	}
	stmt += " ORDER BY ts DESC"
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: querying records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var blob string
		if err := rows.Scan(&r.ID, &r.Time, &r.Kind, &blob); err != nil {
			return nil, fmt.Errorf("audit: scanning record: %w", err)
		}
		if blob != "" {
			if err := json.Unmarshal([]byte(blob), &r.Fields); err != nil {
				log.Warn(log.CatAudit, "failed to decode stored fields", "id", r.ID, "error", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var _ Sink = (*SQLiteSink)(nil)
