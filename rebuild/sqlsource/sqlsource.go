// Package sqlsource reads rebuild records from a relational identity table
// through database/sql.
//
// The table is expected to carry the columns created by SchemaDDL. Any driver
// works; the placeholder style is selected with a Dialect.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/metadata"
	"github.com/hupe1980/facevault/rebuild"
)

// DefaultTable is the identity table name.
const DefaultTable = "persons"

// Dialect selects the bind placeholder style.
type Dialect int

const (
	// Question uses ? placeholders (SQLite, MySQL).
	Question Dialect = iota
	// Dollar uses $n placeholders (PostgreSQL).
	Dollar
)

func (d Dialect) placeholder(n int) string {
	if d == Dollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// SchemaDDL returns a SQLite/PostgreSQL compatible CREATE TABLE statement for
// the identity table.
func SchemaDDL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
    person_id         TEXT PRIMARY KEY,
    cpf               TEXT NOT NULL DEFAULT '',
    name              TEXT NOT NULL DEFAULT '',
    origin_code       TEXT NOT NULL DEFAULT '',
    origin            TEXT NOT NULL DEFAULT '',
    filename          TEXT NOT NULL DEFAULT '',
    original_filename TEXT NOT NULL DEFAULT '',
    file_path         TEXT,
    face_detected     BOOLEAN NOT NULL DEFAULT FALSE,
    active            BOOLEAN NOT NULL DEFAULT TRUE,
    slot_id           INTEGER,
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`
}

const columns = "person_id, cpf, name, origin_code, origin, filename, original_filename, file_path, face_detected, active"

// Options configures a Source.
type Options struct {
	Table   string
	Dialect Dialect
}

// Source is a rebuild.Source over a SQL table.
type Source struct {
	db   *sql.DB
	opts Options
}

var _ rebuild.Source = (*Source)(nil)

// New creates a source over db.
func New(db *sql.DB, optFns ...func(o *Options)) *Source {
	opts := Options{Table: DefaultTable}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Source{db: db, opts: opts}
}

// Records implements rebuild.Source. Rows are yielded ordered by creation time
// and identity key.
func (s *Source) Records(ctx context.Context) iter.Seq2[rebuild.Record, error] {
	return func(yield func(rebuild.Record, error) bool) {
		query := "SELECT " + columns + " FROM " + s.opts.Table + " ORDER BY created_at, person_id"

		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			yield(rebuild.Record{}, fmt.Errorf("sqlsource: query: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scan(rows)
			if err != nil {
				yield(rebuild.Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(rebuild.Record{}, fmt.Errorf("sqlsource: rows: %w", err))
		}
	}
}

func scan(rows *sql.Rows) (rebuild.Record, error) {
	var (
		r      rebuild.Record
		path   sql.NullString
		active bool
	)
	err := rows.Scan(
		&r.IdentityKey,
		&r.TaxID,
		&r.DisplayName,
		&r.OriginCode,
		&r.Origin,
		&r.Filename,
		&r.OriginalFilename,
		&path,
		&r.HasDetectedFace,
		&active,
	)
	if err != nil {
		return rebuild.Record{}, fmt.Errorf("sqlsource: scan: %w", err)
	}

	r.ArtifactPath = path.String
	r.Inactive = !active
	return r, nil
}

// SetSlot implements rebuild.Source.
func (s *Source) SetSlot(ctx context.Context, identityKey string, slot *core.SlotID) error {
	var v sql.NullInt64
	if slot != nil {
		v = sql.NullInt64{Int64: int64(*slot), Valid: true}
	}

	stmt := "UPDATE " + s.opts.Table + " SET slot_id = " + s.opts.Dialect.placeholder(1) +
		" WHERE person_id = " + s.opts.Dialect.placeholder(2)

	res, err := s.db.ExecContext(ctx, stmt, v, identityKey)
	if err != nil {
		return fmt.Errorf("sqlsource: update %s: %w", identityKey, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlsource: update %s: no such row", identityKey)
	}
	return nil
}

// Upsert writes the identity columns of rec, keeping any existing slot id.
// It is used to mirror accepted ingestions into the table.
func (s *Source) Upsert(ctx context.Context, rec metadata.Record, slot *core.SlotID) error {
	ph := make([]string, 10)
	for i := range ph {
		ph[i] = s.opts.Dialect.placeholder(i + 1)
	}

	stmt := "INSERT INTO " + s.opts.Table +
		" (person_id, cpf, name, origin_code, origin, filename, original_filename, file_path, face_detected, slot_id)" +
		" VALUES (" + strings.Join(ph, ", ") + ")" +
		" ON CONFLICT (person_id) DO UPDATE SET cpf = excluded.cpf, name = excluded.name," +
		" origin_code = excluded.origin_code, origin = excluded.origin, filename = excluded.filename," +
		" original_filename = excluded.original_filename, file_path = excluded.file_path," +
		" face_detected = excluded.face_detected, slot_id = excluded.slot_id"

	var v sql.NullInt64
	if slot != nil {
		v = sql.NullInt64{Int64: int64(*slot), Valid: true}
	}
	var path sql.NullString
	if rec.ArtifactPath != "" {
		path = sql.NullString{String: rec.ArtifactPath, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, stmt,
		rec.IdentityKey, rec.TaxID, rec.DisplayName, rec.OriginCode, rec.Origin,
		rec.Filename, rec.OriginalFilename, path, slot != nil, v)
	if err != nil {
		return fmt.Errorf("sqlsource: upsert %s: %w", rec.IdentityKey, err)
	}
	return nil
}
