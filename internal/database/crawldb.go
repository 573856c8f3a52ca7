package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/mailspider/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "mailspider.db"

// CrawlDB provides SQLite-based storage for crawl session history.
// Every saved session keeps its full result as JSON plus normalized email
// and URL rows so the history can be queried per host.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. Batch crawls save concurrently,
	// so every caller queues on the single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		root_scope TEXT NOT NULL,
		status TEXT NOT NULL,
		pages_crawled INTEGER NOT NULL DEFAULT 0,
		pages_failed INTEGER NOT NULL DEFAULT 0,
		email_count INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_scope ON sessions(root_scope);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS session_emails (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		email TEXT NOT NULL,
		UNIQUE(session_id, email)
	);

	CREATE INDEX IF NOT EXISTS idx_emails_email ON session_emails(email);

	CREATE TABLE IF NOT EXISTS session_urls (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		UNIQUE(session_id, url)
	);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveResult stores a crawl result. Saving a session ID that already exists
// replaces the earlier record.
func (cdb *CrawlDB) SaveResult(ctx context.Context, result *model.CrawlResult) (err error) {
	if result == nil || result.SessionID == "" {
		return errors.New("result has no session id")
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
	INSERT INTO sessions (id, seed_url, root_scope, status, pages_crawled, pages_failed,
		email_count, started_at, finished_at, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		seed_url = excluded.seed_url,
		root_scope = excluded.root_scope,
		status = excluded.status,
		pages_crawled = excluded.pages_crawled,
		pages_failed = excluded.pages_failed,
		email_count = excluded.email_count,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at,
		result_json = excluded.result_json
	`
	if _, err = tx.ExecContext(ctx, query,
		result.SessionID,
		result.SeedURL,
		result.RootScope,
		string(result.Status),
		result.PagesCrawled,
		result.PagesFailed,
		len(result.Emails),
		formatTimestamp(result.StartedAt),
		formatTimestamp(result.FinishedAt),
		string(resultJSON),
	); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if err = replaceValues(ctx, tx, "session_emails", "email", result.SessionID, result.Emails); err != nil {
		return err
	}
	if err = replaceValues(ctx, tx, "session_urls", "url", result.SessionID, result.URLs); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// replaceValues rewrites the rows of a session's child table.
// table and column are constants supplied by SaveResult.
func replaceValues(ctx context.Context, tx *sql.Tx, table, column, sessionID string, values []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", sessionID); err != nil { //nolint:gosec // table is not user input
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if len(values) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO "+table+" (session_id, "+column+") VALUES (?, ?)") //nolint:gosec // table is not user input
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, sessionID, v); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

// GetResult retrieves a stored crawl result by session ID.
// Returns nil without an error if the session does not exist.
func (cdb *CrawlDB) GetResult(ctx context.Context, sessionID string) (*model.CrawlResult, error) {
	query := `
	SELECT result_json FROM sessions
	WHERE id = ?
	`

	var resultJSON string
	err := cdb.db.QueryRowContext(ctx, query, sessionID).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var result model.CrawlResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}

	return &result, nil
}

// SessionSummary contains summary information about a stored session.
// This is used for displaying history without loading the full result.
type SessionSummary struct {
	ID           string
	SeedURL      string
	RootScope    string
	Status       model.SessionStatus
	PagesCrawled int
	PagesFailed  int
	EmailCount   int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// ListSessions returns stored sessions, newest first.
// An empty scope lists every host; limit <= 0 means no limit.
func (cdb *CrawlDB) ListSessions(ctx context.Context, scope string, limit int) ([]SessionSummary, error) {
	query := `
	SELECT id, seed_url, root_scope, status, pages_crawled, pages_failed,
		email_count, started_at, finished_at
	FROM sessions
	WHERE (? = '' OR root_scope = ?)
	ORDER BY started_at DESC, id
	`
	args := []any{scope, scope}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var status, started string
		var finished sql.NullString

		if err := rows.Scan(&s.ID, &s.SeedURL, &s.RootScope, &status, &s.PagesCrawled,
			&s.PagesFailed, &s.EmailCount, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		s.Status = model.SessionStatus(status)
		s.StartedAt = parseTimestamp(started)
		if finished.Valid {
			s.FinishedAt = parseTimestamp(finished.String)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// ListScopes returns every host that has at least one stored session.
func (cdb *CrawlDB) ListScopes(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT root_scope FROM sessions
	ORDER BY root_scope
	`

	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scopes = append(scopes, scope)
	}

	return scopes, rows.Err()
}

// EmailsForScope returns every address ever found for a host, sorted.
func (cdb *CrawlDB) EmailsForScope(ctx context.Context, scope string) ([]string, error) {
	query := `
	SELECT DISTINCT e.email
	FROM session_emails e
	JOIN sessions s ON s.id = e.session_id
	WHERE s.root_scope = ?
	ORDER BY e.email
	`

	rows, err := cdb.db.QueryContext(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}

	return emails, rows.Err()
}

// DeleteSession removes a session and its email and URL rows.
// It reports whether a session was deleted.
func (cdb *CrawlDB) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, table := range []string{"session_emails", "session_urls"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", sessionID); err != nil { //nolint:gosec // table is not user input
			return false, fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return n > 0, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// formatTimestamp stores times as UTC RFC3339 with nanoseconds so that
// string order matches time order.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
