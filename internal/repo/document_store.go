package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/exposurehub/exposure-search/internal/models"
)

const recordsTable = "records"

// breachedAtLayout is fixed width so that text ordering matches time ordering.
const breachedAtLayout = "2006-01-02T15:04:05.000000000Z"

var recordColumns = []string{"id", "login", "password", "url", "domain", "source", "breached_at", "metadata"}

// DocumentStore holds full credential records in SQLite.
type DocumentStore struct {
	db     *sqlx.DB
	path   string
	logger *slog.Logger
}

type recordRow struct {
	ID         string `db:"id"`
	Login      string `db:"login"`
	Password   string `db:"password"`
	URL        string `db:"url"`
	Domain     string `db:"domain"`
	Source     string `db:"source"`
	BreachedAt string `db:"breached_at"`
	Metadata   string `db:"metadata"`
}

// OpenDocumentStore opens (creating if needed) the database at path.
// An empty path or ":memory:" gives a private in-memory database.
func OpenDocumentStore(path string, logger *slog.Logger) (*DocumentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := path
	inMemory := path == "" || path == ":memory:"
	if inMemory {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if inMemory {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &DocumentStore{db: db, path: path, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising schema: %w", err)
	}
	return s, nil
}

func (s *DocumentStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			login TEXT NOT NULL DEFAULT '',
			password TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			breached_at TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_login ON records(lower(login))`,
		`CREATE INDEX IF NOT EXISTS idx_records_url ON records(lower(url))`,
		`CREATE INDEX IF NOT EXISTS idx_records_domain ON records(lower(domain))`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveRecords upserts records in a single transaction.
func (s *DocumentStore) SaveRecords(ctx context.Context, records []models.CredentialRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		row, err := toRow(rec)
		if err != nil {
			return err
		}
		query, args, err := sq.Insert(recordsTable).
			Columns(recordColumns...).
			Values(row.ID, row.Login, row.Password, row.URL, row.Domain, row.Source, row.BreachedAt, row.Metadata).
			Suffix(`ON CONFLICT(id) DO UPDATE SET
				login = excluded.login,
				password = excluded.password,
				url = excluded.url,
				domain = excluded.domain,
				source = excluded.source,
				breached_at = excluded.breached_at,
				metadata = excluded.metadata`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// FindByIDs returns the records for ids in the order given. Unknown ids are skipped.
func (s *DocumentStore) FindByIDs(ctx context.Context, ids []string) ([]models.CredentialRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.selectRecords(ctx, sq.Eq{"id": ids}, 0, 0)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.CredentialRecord, len(found))
	for _, rec := range found {
		byID[rec.ID] = rec
	}
	out := make([]models.CredentialRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FindByLogin matches the login case-insensitively.
func (s *DocumentStore) FindByLogin(ctx context.Context, login string, limit, offset int) ([]models.CredentialRecord, error) {
	return s.selectRecords(ctx, sq.Expr("lower(login) = ?", strings.ToLower(login)), limit, offset)
}

// FindByDomainContains matches records whose domain contains fragment, ignoring case.
func (s *DocumentStore) FindByDomainContains(ctx context.Context, fragment string, limit, offset int) ([]models.CredentialRecord, error) {
	return s.selectRecords(ctx, sq.Like{"lower(domain)": "%" + strings.ToLower(fragment) + "%"}, limit, offset)
}

// FindByURL matches the url case-insensitively.
func (s *DocumentStore) FindByURL(ctx context.Context, url string, limit, offset int) ([]models.CredentialRecord, error) {
	return s.selectRecords(ctx, sq.Expr("lower(url) = ?", strings.ToLower(url)), limit, offset)
}

func (s *DocumentStore) selectRecords(ctx context.Context, where sq.Sqlizer, limit, offset int) ([]models.CredentialRecord, error) {
	builder := sq.Select(recordColumns...).From(recordsTable).Where(where).OrderBy("breached_at DESC", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	out := make([]models.CredentialRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.fromRow(row))
	}
	return out, nil
}

func toRow(rec models.CredentialRecord) (recordRow, error) {
	meta := "{}"
	if len(rec.Metadata) > 0 {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return recordRow{}, fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(data)
	}
	breachedAt := ""
	if !rec.Timestamp.IsZero() {
		breachedAt = rec.Timestamp.UTC().Format(breachedAtLayout)
	}
	return recordRow{
		ID:         rec.ID,
		Login:      rec.Login,
		Password:   rec.Password,
		URL:        rec.URL,
		Domain:     rec.Domain,
		Source:     rec.Source,
		BreachedAt: breachedAt,
		Metadata:   meta,
	}, nil
}

func (s *DocumentStore) fromRow(row recordRow) models.CredentialRecord {
	rec := models.CredentialRecord{
		ID:       row.ID,
		Login:    row.Login,
		Password: row.Password,
		URL:      row.URL,
		Domain:   row.Domain,
		Source:   row.Source,
	}
	if row.BreachedAt != "" {
		ts, err := time.Parse(breachedAtLayout, row.BreachedAt)
		if err != nil {
			// rows written before the fixed-width layout
			ts, err = time.Parse(time.RFC3339Nano, row.BreachedAt)
		}
		if err != nil {
			s.logger.Warn("unparseable breach timestamp",
				slog.String("id", row.ID), slog.String("value", row.BreachedAt), slog.Any("error", err))
		} else {
			rec.Timestamp = ts
		}
	}
	if row.Metadata != "" && row.Metadata != "{}" {
		if err := json.Unmarshal([]byte(row.Metadata), &rec.Metadata); err != nil {
			s.logger.Warn("dropping undecodable record metadata",
				slog.String("id", row.ID), slog.Any("error", err))
			rec.Metadata = nil
		}
	}
	return rec
}
