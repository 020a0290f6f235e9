// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// timeLayout is fixed width so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB

	// Now stamps records; tests replace it.
	Now func() time.Time
}

// OpenSQLite opens or creates the database at path and creates the schema
// if it does not exist.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLite{db: db, Now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS search_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pmid TEXT NOT NULL,
			title TEXT NOT NULL,
			authors TEXT,
			journal TEXT,
			year INTEGER,
			abstract TEXT,
			doi TEXT,
			pmcid TEXT,
			search_query TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_results_query ON search_results(search_query)`,
		`CREATE TABLE IF NOT EXISTS download_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pmid TEXT NOT NULL,
			title TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			file_path TEXT,
			error_message TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS download_sessions (
			session_id TEXT PRIMARY KEY,
			username TEXT,
			is_authenticated INTEGER NOT NULL DEFAULT 0,
			total_items INTEGER NOT NULL DEFAULT 0,
			completed_items INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (s *SQLite) now() string {
	return s.Now().UTC().Format(timeLayout)
}

func (s *SQLite) SaveSearchResults(ctx context.Context, query string, articles []types.Article) ([]types.SearchRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO search_results
		(pmid, title, authors, journal, year, abstract, doi, pmcid, search_query, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	created, _ := time.Parse(timeLayout, now)
	out := make([]types.SearchRecord, 0, len(articles))
	for _, a := range articles {
		res, err := stmt.ExecContext(ctx, a.PMID, a.Title, a.Authors, a.Journal, a.Year, a.Abstract, a.DOI, a.PMCID, query, now)
		if err != nil {
			return nil, fmt.Errorf("inserting search result %s: %w", a.PMID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading insert id: %w", err)
		}
		out = append(out, types.SearchRecord{ID: id, Article: a, SearchQuery: query, CreatedAt: created})
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing search results: %w", err)
	}
	return out, nil
}

func (s *SQLite) ListSearchResults(ctx context.Context, query string) ([]types.SearchRecord, error) {
	q := `SELECT id, pmid, title, authors, journal, year, abstract, doi, pmcid, search_query, created_at
		FROM search_results`
	var args []any
	if query != "" {
		q += ` WHERE search_query = ?`
		args = append(args, query)
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying search results: %w", err)
	}
	defer rows.Close()

	out := []types.SearchRecord{}
	for rows.Next() {
		var (
			r                                          types.SearchRecord
			created                                    string
			authors, journal, abstract, doi, pmcid, sq sql.NullString
			year                                       sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.PMID, &r.Title, &authors, &journal, &year, &abstract, &doi, &pmcid, &sq, &created); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		r.Authors, r.Journal, r.Abstract = authors.String, journal.String, abstract.String
		r.DOI, r.PMCID, r.SearchQuery = doi.String, pmcid.String, sq.String
		r.Year = int(year.Int64)
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) ClearSearchResults(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM search_results`); err != nil {
		return fmt.Errorf("clearing search results: %w", err)
	}
	return nil
}

func (s *SQLite) AddToQueue(ctx context.Context, items ...types.QueueItem) ([]types.QueueItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	stamp, _ := time.Parse(timeLayout, now)
	out := make([]types.QueueItem, 0, len(items))
	for _, it := range items {
		it, err := normalizeNewItem(it)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO download_queue
			(pmid, title, status, file_path, error_message, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			it.PMID, it.Title, string(it.Status), it.FilePath, it.ErrorMessage, now, now)
		if err != nil {
			return nil, fmt.Errorf("inserting queue item %s: %w", it.PMID, err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("reading insert id: %w", err)
		}
		it.CreatedAt, it.UpdatedAt = stamp, stamp
		out = append(out, it)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing queue items: %w", err)
	}
	return out, nil
}

const queueColumns = `id, pmid, title, status, file_path, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row scanner) (types.QueueItem, error) {
	var (
		it                       types.QueueItem
		title, filePath, errMsg  sql.NullString
		status, created, updated string
	)
	if err := row.Scan(&it.ID, &it.PMID, &title, &status, &filePath, &errMsg, &created, &updated); err != nil {
		return it, err
	}
	it.Title, it.FilePath, it.ErrorMessage = title.String, filePath.String, errMsg.String
	it.Status = types.QueueStatus(status)
	it.CreatedAt, _ = time.Parse(timeLayout, created)
	it.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return it, nil
}

func (s *SQLite) ListQueue(ctx context.Context) ([]types.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+queueColumns+` FROM download_queue ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying queue: %w", err)
	}
	defer rows.Close()

	out := []types.QueueItem{}
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning queue item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLite) getQueueItem(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id int64) (types.QueueItem, error) {
	it, err := scanQueueItem(q.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM download_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return it, ErrNotFound
	}
	if err != nil {
		return it, fmt.Errorf("reading queue item %d: %w", id, err)
	}
	return it, nil
}

func (s *SQLite) UpdateQueueItem(ctx context.Context, id int64, u types.QueueUpdate) (types.QueueItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.QueueItem{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	it, err := s.getQueueItem(ctx, tx, id)
	if err != nil {
		return types.QueueItem{}, err
	}
	if err := applyQueueUpdate(&it, u); err != nil {
		return types.QueueItem{}, err
	}
	now := s.now()
	if _, err := tx.ExecContext(ctx, `UPDATE download_queue
		SET status = ?, file_path = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(it.Status), it.FilePath, it.ErrorMessage, now, id); err != nil {
		return types.QueueItem{}, fmt.Errorf("updating queue item %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return types.QueueItem{}, fmt.Errorf("committing queue update: %w", err)
	}
	it.UpdatedAt, _ = time.Parse(timeLayout, now)
	return it, nil
}

func (s *SQLite) RemoveQueueItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM download_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing queue item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ClearQueue(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM download_queue`); err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	return nil
}

func (s *SQLite) CreateSession(ctx context.Context, ds types.DownloadSession) (types.DownloadSession, error) {
	now := s.now()
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO download_sessions
		(session_id, username, is_authenticated, total_items, completed_items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ds.SessionID, ds.Username, ds.IsAuthenticated, ds.TotalItems, ds.CompletedItems, now, now); err != nil {
		return types.DownloadSession{}, fmt.Errorf("creating session: %w", err)
	}
	stamp, _ := time.Parse(timeLayout, now)
	ds.CreatedAt, ds.UpdatedAt = stamp, stamp
	return ds, nil
}

func (s *SQLite) GetSession(ctx context.Context, sessionID string) (types.DownloadSession, error) {
	var (
		ds               types.DownloadSession
		username         sql.NullString
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT session_id, username, is_authenticated, total_items, completed_items, created_at, updated_at
		FROM download_sessions WHERE session_id = ?`, sessionID).
		Scan(&ds.SessionID, &username, &ds.IsAuthenticated, &ds.TotalItems, &ds.CompletedItems, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ds, ErrNotFound
	}
	if err != nil {
		return ds, fmt.Errorf("reading session: %w", err)
	}
	ds.Username = username.String
	ds.CreatedAt, _ = time.Parse(timeLayout, created)
	ds.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return ds, nil
}

func (s *SQLite) UpdateSession(ctx context.Context, sessionID string, u types.SessionUpdate) (types.DownloadSession, error) {
	ds, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return ds, err
	}
	applySessionUpdate(&ds, u)
	now := s.now()
	if _, err := s.db.ExecContext(ctx, `UPDATE download_sessions
		SET is_authenticated = ?, total_items = ?, completed_items = ?, updated_at = ? WHERE session_id = ?`,
		ds.IsAuthenticated, ds.TotalItems, ds.CompletedItems, now, sessionID); err != nil {
		return ds, fmt.Errorf("updating session: %w", err)
	}
	ds.UpdatedAt, _ = time.Parse(timeLayout, now)
	return ds, nil
}
