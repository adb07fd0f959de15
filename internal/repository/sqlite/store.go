// Package sqlite stores the catalog and search log in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"kinobot/internal/domain"
	"kinobot/internal/domain/ports"
)

var (
	_ ports.Catalog             = (*Store)(nil)
	_ ports.SearchLogRepository = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_entries (
	container_id     INTEGER NOT NULL,
	item_id          INTEGER NOT NULL,
	title_raw        TEXT    NOT NULL,
	title_normalized TEXT    NOT NULL,
	created_at       INTEGER NOT NULL,
	PRIMARY KEY (container_id, item_id)
);
CREATE INDEX IF NOT EXISTS idx_catalog_created_at ON catalog_entries(created_at DESC);

CREATE TABLE IF NOT EXISTS search_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	query      TEXT    NOT NULL,
	found      INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_logs_created_at ON search_logs(created_at DESC);
`

const entryColumns = "container_id, item_id, title_raw, title_normalized, created_at"

// Store is a SQLite-backed catalog.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// SearchSubstring tries the whole phrase on word boundaries, then every token
// as a word start, then every token anywhere in the title.
func (s *Store) SearchSubstring(ctx context.Context, normalized string, limit int) ([]domain.CatalogEntry, error) {
	tokens := ports.SearchTokens(normalized)
	if len(tokens) == 0 {
		return nil, nil
	}
	for _, tier := range tierClauses(normalized, tokens) {
		query := "SELECT " + entryColumns + " FROM catalog_entries WHERE " + tier.where +
			" ORDER BY length(title_normalized) ASC, created_at DESC"
		args := tier.args
		if limit > 0 {
			query += " LIMIT ?"
			args = append(args, limit)
		}
		entries, err := s.queryEntries(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return entries, nil
		}
	}
	return nil, nil
}

type clause struct {
	where string
	args  []any
}

func tierClauses(normalized string, tokens []string) []clause {
	phrase := clause{
		where: `(' ' || title_normalized || ' ') LIKE ? ESCAPE '\'`,
		args:  []any{"% " + escapeLike(normalized) + " %"},
	}

	prefixParts := make([]string, 0, len(tokens))
	containsParts := make([]string, 0, len(tokens))
	var prefixArgs, containsArgs []any
	for _, token := range tokens {
		escaped := escapeLike(token)
		prefixParts = append(prefixParts, `(' ' || title_normalized) LIKE ? ESCAPE '\'`)
		prefixArgs = append(prefixArgs, "% "+escaped+"%")
		containsParts = append(containsParts, `title_normalized LIKE ? ESCAPE '\'`)
		containsArgs = append(containsArgs, "%"+escaped+"%")
	}
	return []clause{
		phrase,
		{where: strings.Join(prefixParts, " AND "), args: prefixArgs},
		{where: strings.Join(containsParts, " AND "), args: containsArgs},
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (s *Store) Recent(ctx context.Context, limit int) ([]domain.CatalogEntry, error) {
	query := "SELECT " + entryColumns + " FROM catalog_entries ORDER BY created_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryEntries(ctx, query, args...)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]domain.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (domain.CatalogEntry, error) {
	var (
		entry     domain.CatalogEntry
		createdAt int64
	)
	if err := row.Scan(&entry.ContainerID, &entry.ItemID, &entry.TitleRaw, &entry.TitleNormalized, &createdAt); err != nil {
		return domain.CatalogEntry{}, err
	}
	entry.CreatedAt = time.UnixMilli(createdAt).UTC()
	return entry, nil
}

func (s *Store) Get(ctx context.Context, loc domain.Locator) (domain.CatalogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM catalog_entries WHERE container_id = ? AND item_id = ?",
		loc.ContainerID, loc.ItemID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CatalogEntry{}, domain.ErrNotFound
	}
	return entry, err
}

func (s *Store) Upsert(ctx context.Context, entry domain.CatalogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(container_id, item_id) DO UPDATE SET
			title_raw = excluded.title_raw,
			title_normalized = excluded.title_normalized,
			created_at = excluded.created_at`,
		entry.ContainerID, entry.ItemID, entry.TitleRaw, entry.TitleNormalized, entry.CreatedAt.UnixMilli())
	return err
}

func (s *Store) DeleteEntry(ctx context.Context, loc domain.Locator) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM catalog_entries WHERE container_id = ? AND item_id = ?",
		loc.ContainerID, loc.ItemID)
	return err
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_entries").Scan(&n)
	return n, err
}

// RebuildNormalized recomputes every normalized title inside one transaction.
func (s *Store) RebuildNormalized(ctx context.Context, normalize func(string) string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, "SELECT container_id, item_id, title_raw, title_normalized FROM catalog_entries")
	if err != nil {
		return 0, err
	}
	type update struct {
		loc  domain.Locator
		norm string
	}
	var updates []update
	for rows.Next() {
		var (
			loc       domain.Locator
			raw, norm string
		)
		if err := rows.Scan(&loc.ContainerID, &loc.ItemID, &raw, &norm); err != nil {
			rows.Close()
			return 0, err
		}
		if next := normalize(raw); next != norm {
			updates = append(updates, update{loc: loc, norm: next})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, "UPDATE catalog_entries SET title_normalized = ? WHERE container_id = ? AND item_id = ?")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.norm, u.loc.ContainerID, u.loc.ItemID); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(updates), nil
}

func (s *Store) LogSearch(ctx context.Context, entry domain.SearchLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	found := 0
	if entry.Found {
		found = 1
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO search_logs (user_id, query, found, created_at) VALUES (?, ?, ?, ?)",
		entry.UserID, entry.Query, found, entry.CreatedAt.UnixMilli())
	return err
}

func (s *Store) RecentSearches(ctx context.Context, limit int) ([]domain.SearchLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, query, found, created_at FROM search_logs ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SearchLogEntry
	for rows.Next() {
		var (
			entry     domain.SearchLogEntry
			found     int
			createdAt int64
		)
		if err := rows.Scan(&entry.UserID, &entry.Query, &found, &createdAt); err != nil {
			return nil, err
		}
		entry.Found = found != 0
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}
