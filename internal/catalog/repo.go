package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/modelhub/internal/apperr"
	"github.com/starford/modelhub/internal/models"
)

const selectColumns = `SELECT id, name, source, origin, path, created_at, status FROM models`

// existsWhere matches on name OR origin; an empty argument never matches.
const existsWhere = `(? <> '' AND name = ?) OR (? <> '' AND origin = ?)`

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(s rowScanner) (models.Model, error) {
	var (
		m       models.Model
		source  string
		status  string
		created string
	)
	if err := s.Scan(&m.ID, &m.Name, &source, &m.Origin, &m.Path, &created, &status); err != nil {
		return models.Model{}, err
	}
	m.Source = models.Source(source)
	m.Status = models.Status(status)
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		m.CreatedAt = t
	}
	return m, nil
}

// Insert appends a committed record. Uniqueness is not checked here.
func (db *DB) Insert(name string, source models.Source, origin, path string) (*models.Model, error) {
	return db.insert(db.conn, name, source, origin, path, models.StatusCommitted)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (db *DB) insert(ex execer, name string, source models.Source, origin, path string, status models.Status) (*models.Model, error) {
	created := now()
	res, err := ex.Exec(`
		INSERT INTO models (name, source, origin, path, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, name, string(source), origin, path, created.Format(time.RFC3339Nano), string(status))
	if err != nil {
		return nil, fmt.Errorf("catalog: insert %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("catalog: insert %s: last id: %w", name, err)
	}
	return &models.Model{
		ID:        id,
		Name:      name,
		Source:    source,
		Origin:    origin,
		Path:      path,
		Status:    status,
		CreatedAt: created,
	}, nil
}

// Exists reports whether any record, pending or committed, has the given
// name or the given origin.
func (db *DB) Exists(name, origin string) (bool, error) {
	var count int
	err := db.conn.QueryRow(`SELECT count(*) FROM models WHERE `+existsWhere,
		name, name, origin, origin).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("catalog: exists: %w", err)
	}
	return count > 0, nil
}

// Reserve atomically checks for a duplicate name or origin and, if there is
// none, inserts a pending record. It returns apperr.ErrDuplicateModel when a
// matching record already exists.
func (db *DB) Reserve(name string, source models.Source, origin, path string) (*models.Model, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var count int
	if err := tx.QueryRow(`SELECT count(*) FROM models WHERE `+existsWhere,
		name, name, origin, origin).Scan(&count); err != nil {
		return nil, fmt.Errorf("catalog: reserve %s: %w", name, err)
	}
	if count > 0 {
		return nil, apperr.ErrDuplicateModel
	}

	m, err := db.insert(tx, name, source, origin, path, models.StatusPending)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: reserve %s: commit: %w", name, err)
	}
	return m, nil
}

// Commit promotes a pending record and stamps its registration time.
func (db *DB) Commit(id int64) (*models.Model, error) {
	created := now()
	res, err := db.conn.Exec(`
		UPDATE models SET status = ?, created_at = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusCommitted), created.Format(time.RFC3339Nano), id, string(models.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("catalog: commit %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("catalog: commit %d: no pending record: %w", id, apperr.ErrNotFound)
	}
	m, err := scanModel(db.conn.QueryRow(selectColumns+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("catalog: commit %d: reload: %w", id, err)
	}
	return &m, nil
}

// Release deletes a pending record. Committed records are never touched.
func (db *DB) Release(id int64) error {
	if _, err := db.conn.Exec(`DELETE FROM models WHERE id = ? AND status = ?`,
		id, string(models.StatusPending)); err != nil {
		return fmt.Errorf("catalog: release %d: %w", id, err)
	}
	return nil
}

// Delete removes all records with the given name and returns how many were removed.
func (db *DB) Delete(name string) (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM models WHERE name = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("catalog: delete %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Get returns the committed record with the given name.
func (db *DB) Get(name string) (*models.Model, error) {
	m, err := scanModel(db.conn.QueryRow(selectColumns+` WHERE name = ? AND status = ? ORDER BY id LIMIT 1`,
		name, string(models.StatusCommitted)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", name, err)
	}
	return &m, nil
}

// List returns every committed record ordered by id.
func (db *DB) List() ([]models.Model, error) {
	return db.query(selectColumns+` WHERE status = ? ORDER BY id`, string(models.StatusCommitted))
}

// ListAll returns every record, including pending reservations.
func (db *DB) ListAll() ([]models.Model, error) {
	return db.query(selectColumns + ` ORDER BY id`)
}

func (db *DB) query(q string, args ...any) ([]models.Model, error) {
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	out := []models.Model{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
