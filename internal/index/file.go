package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the database file inside a document's index directory.
const FileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	id       TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	text     TEXT NOT NULL,
	vector   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_position ON entries(position);
`

// Meta describes how the vectors in an index file were produced.
type Meta struct {
	Dimension int       // 0 until the first entry is written
	Model     string    // Embedding model name
	CreatedAt time.Time // When the index was first built
}

// File is a persisted index backed by a single SQLite database.
type File struct {
	db   *sql.DB
	path string
	meta Meta
}

// Create initialises a new index file in dir, creating dir if needed.
// It fails if dir already holds an index.
func Create(dir string, meta Meta) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("index file %s already exists", FileName)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if err := writeMeta(context.Background(), db, meta); err != nil {
		db.Close()
		return nil, err
	}
	return &File{db: db, path: path, meta: meta}, nil
}

// Open opens the index file in dir. The returned error wraps fs.ErrNotExist
// when dir holds no index.
func Open(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("opening index: %s is a directory: %w", FileName, fs.ErrNotExist)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	f := &File{db: db, path: path}
	if err := f.readMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return f, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps writes on one handle; each index is owned by one lock holder.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Path returns the database file path.
func (f *File) Path() string {
	return f.path
}

// Meta returns the index metadata.
func (f *File) Meta() Meta {
	return f.meta
}

// Close closes the database.
func (f *File) Close() error {
	return f.db.Close()
}

// Len returns the number of persisted entries.
func (f *File) Len(ctx context.Context) (int, error) {
	var n int
	if err := f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Append persists entries in one transaction, assigning positions after the
// current last entry. Nothing is written if any entry fails validation.
func (f *File) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	meta := f.meta
	if meta.Dimension == 0 {
		meta.Dimension = len(entries[0].Vector)
	}
	for i, e := range entries {
		if len(e.Vector) == 0 || len(e.Vector) != meta.Dimension {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Vector), meta.Dimension)
		}
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	row := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(position) + 1, 0) FROM entries")
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("reading next position: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO entries (id, position, text, vector) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, next+i, e.Text, encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("inserting entry %d: %w", i, err)
		}
	}

	if meta.Dimension != f.meta.Dimension {
		if err := writeMeta(ctx, tx, meta); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing entries: %w", err)
	}
	f.meta = meta
	return nil
}

// Texts returns the set of chunk texts already stored.
func (f *File) Texts(ctx context.Context) (map[string]struct{}, error) {
	rows, err := f.db.QueryContext(ctx, "SELECT text FROM entries")
	if err != nil {
		return nil, fmt.Errorf("querying texts: %w", err)
	}
	defer rows.Close()

	texts := make(map[string]struct{})
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scanning text: %w", err)
		}
		texts[text] = struct{}{}
	}
	return texts, rows.Err()
}

// Load reads every entry into a Flat index.
func (f *File) Load(ctx context.Context) (*Flat, error) {
	rows, err := f.db.QueryContext(ctx, "SELECT id, position, text, vector FROM entries ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			blob []byte
		)
		if err := rows.Scan(&e.ID, &e.Position, &e.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Vector, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}

	flat := NewFlat(f.meta.Dimension)
	if err := flat.Add(entries...); err != nil {
		return nil, err
	}
	return flat, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeMeta(ctx context.Context, db execer, meta Meta) error {
	values := map[string]string{
		"dimension":  strconv.Itoa(meta.Dimension),
		"model":      meta.Model,
		"created_at": meta.CreatedAt.UTC().Format(time.RFC3339),
	}
	for key, value := range values {
		_, err := db.ExecContext(ctx,
			"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			key, value)
		if err != nil {
			return fmt.Errorf("writing meta %s: %w", key, err)
		}
	}
	return nil
}

func (f *File) readMeta() error {
	rows, err := f.db.Query("SELECT key, value FROM meta")
	if err != nil {
		return fmt.Errorf("reading meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scanning meta: %w", err)
		}
		switch key {
		case "dimension":
			f.meta.Dimension, _ = strconv.Atoi(value)
		case "model":
			f.meta.Model = value
		case "created_at":
			f.meta.CreatedAt, _ = time.Parse(time.RFC3339, value)
		}
	}
	return rows.Err()
}

// encodeVector packs float32 values little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("corrupt vector blob")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
