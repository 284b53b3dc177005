// Package docdb is a SQLite document provider addressed by opaque handles.
//
// Documents live in a tree: directories and text documents, each with a
// uuid handle and a parent handle. A directory created with MkRoot can be
// granted and revoked, which is how access to the scoped backend is
// permitted or withdrawn.
package docdb

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/legamerdc/todostore/store"
)

//go:embed schema.sql
var schemaSQL string

const dirMime = "inode/directory"

// DB implements store.Resolver on a SQLite database.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Resolver = (*DB)(nil)

// Open creates or opens the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// MkRoot returns the root directory called name, creating it if needed.
func (d *DB) MkRoot(ctx context.Context, name string) (store.Handle, error) {
	h, err := d.Find(ctx, "", name)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, store.ErrNotExist) {
		return "", err
	}
	return d.insert(ctx, "", name, dirMime)
}

// Mkdir returns the directory called name below parent, creating it if
// needed.
func (d *DB) Mkdir(ctx context.Context, parent store.Handle, name string) (store.Handle, error) {
	h, err := d.Find(ctx, parent, name)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, store.ErrNotExist) {
		return "", err
	}
	return d.Create(ctx, parent, name, dirMime)
}

// Grant permits access below root.
func (d *DB) Grant(ctx context.Context, root store.Handle) error {
	if _, err := d.kind(ctx, root); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO grants (handle, granted_at) VALUES (?, ?)
		 ON CONFLICT(handle) DO UPDATE SET granted_at = excluded.granted_at`,
		string(root), d.now().UnixNano())
	if err != nil {
		return fmt.Errorf("grant %s: %w", root, err)
	}
	return nil
}

// Revoke withdraws access below root.
func (d *DB) Revoke(ctx context.Context, root store.Handle) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM grants WHERE handle = ?`, string(root)); err != nil {
		return fmt.Errorf("revoke %s: %w", root, err)
	}
	return nil
}

// Granted reports whether root currently has a grant.
func (d *DB) Granted(ctx context.Context, root store.Handle) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM grants WHERE handle = ?`, string(root)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("granted %s: %w", root, err)
	}
	return n > 0, nil
}

func (d *DB) Find(ctx context.Context, parent store.Handle, name string) (store.Handle, error) {
	var h string
	err := d.db.QueryRowContext(ctx,
		`SELECT handle FROM documents WHERE parent = ? AND name = ?`,
		string(parent), name).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotExist
	}
	if err != nil {
		return "", fmt.Errorf("find %s/%s: %w", parent, name, err)
	}
	return store.Handle(h), nil
}

// Create adds a document or directory below parent. It fails when parent
// is not a directory or the name is taken.
func (d *DB) Create(ctx context.Context, parent store.Handle, name, mime string) (store.Handle, error) {
	kind, err := d.kind(ctx, parent)
	if err != nil {
		return "", err
	}
	if kind != dirMime {
		return "", fmt.Errorf("create %s: parent %s is not a directory", name, parent)
	}
	return d.insert(ctx, parent, name, mime)
}

func (d *DB) insert(ctx context.Context, parent store.Handle, name, mime string) (store.Handle, error) {
	h := uuid.NewString()
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO documents (handle, parent, name, mime, content, modified) VALUES (?, ?, ?, ?, '', ?)`,
		h, string(parent), name, mime, d.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("create %s/%s: %w", parent, name, err)
	}
	return store.Handle(h), nil
}

func (d *DB) kind(ctx context.Context, h store.Handle) (string, error) {
	var mime string
	err := d.db.QueryRowContext(ctx, `SELECT mime FROM documents WHERE handle = ?`, string(h)).Scan(&mime)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", h, store.ErrNotExist)
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", h, err)
	}
	return mime, nil
}

func (d *DB) OpenRead(ctx context.Context, h store.Handle) (io.ReadCloser, error) {
	var content string
	err := d.db.QueryRowContext(ctx, `SELECT content FROM documents WHERE handle = ?`, string(h)).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", h, err)
	}
	return io.NopCloser(bytes.NewBufferString(content)), nil
}

// OpenWrite buffers the written content and stores it in one statement on
// Close, so readers see either the old or the new content.
func (d *DB) OpenWrite(ctx context.Context, h store.Handle, mode store.Mode) (io.WriteCloser, error) {
	if _, err := d.kind(ctx, h); err != nil {
		return nil, err
	}
	return &writer{ctx: ctx, d: d, h: h, mode: mode}, nil
}

func (d *DB) Modified(ctx context.Context, h store.Handle) (time.Time, error) {
	var n int64
	err := d.db.QueryRowContext(ctx, `SELECT modified FROM documents WHERE handle = ?`, string(h)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, store.ErrNotExist
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("modified %s: %w", h, err)
	}
	return time.Unix(0, n), nil
}

type writer struct {
	ctx    context.Context
	d      *DB
	h      store.Handle
	mode   store.Mode
	buf    bytes.Buffer
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write on closed document")
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	q := `UPDATE documents SET content = ?, modified = MAX(?, modified + 1) WHERE handle = ?`
	if w.mode == store.Append {
		q = `UPDATE documents SET content = content || ?, modified = MAX(?, modified + 1) WHERE handle = ?`
	}
	res, err := w.d.db.ExecContext(w.ctx, q, w.buf.String(), w.d.now().UnixNano(), string(w.h))
	if err != nil {
		return fmt.Errorf("write %s: %w", w.h, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("write %s: %w", w.h, store.ErrNotExist)
	}
	return nil
}
