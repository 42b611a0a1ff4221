package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/w-h-a/vulnkb/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS vulnerabilities (
	id TEXT PRIMARY KEY,
	package TEXT NOT NULL,
	severity TEXT NOT NULL,
	description TEXT NOT NULL,
	published_date TEXT NOT NULL,
	affected_versions TEXT,
	remediation TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS embeddings_ref (
	vulnerability_id TEXT PRIMARY KEY,
	vector_id TEXT NOT NULL,
	FOREIGN KEY (vulnerability_id) REFERENCES vulnerabilities(id)
);

CREATE INDEX IF NOT EXISTS idx_vulnerabilities_package ON vulnerabilities(package);
CREATE INDEX IF NOT EXISTS idx_vulnerabilities_severity ON vulnerabilities(severity);
`

type sqliteStore struct {
	options store.Options
	conn    *sql.DB
}

func (s *sqliteStore) Create(ctx context.Context, v *store.Vulnerability) error {
	query := `
		INSERT INTO vulnerabilities (id, package, severity, description, published_date, affected_versions, remediation)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(
		ctx,
		query,
		v.Id,
		v.Package,
		v.Severity,
		v.Description,
		v.PublishedDate,
		nullable(v.AffectedVersions),
		nullable(v.Remediation),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return store.ErrDuplicate
		}
		return err
	}

	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*store.Vulnerability, error) {
	query := `
		SELECT id, package, severity, description, published_date, affected_versions, remediation, created_at
		FROM vulnerabilities
		WHERE id = ?
	`

	return scanOne(s.conn.QueryRowContext(ctx, query, id))
}

func (s *sqliteStore) List(ctx context.Context, opts ...store.ListOption) ([]*store.Vulnerability, error) {
	options := store.NewListOptions(opts...)

	query := `
		SELECT id, package, severity, description, published_date, affected_versions, remediation, created_at
		FROM vulnerabilities
	`

	var clauses []string
	var args []any

	if len(options.Package) > 0 {
		clauses = append(clauses, "package = ?")
		args = append(args, options.Package)
	}
	if len(options.Severity) > 0 {
		clauses = append(clauses, "severity = ?")
		args = append(args, options.Severity)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY published_date DESC LIMIT ? OFFSET ?"
	args = append(args, options.Limit, options.Offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vulns []*store.Vulnerability

	for rows.Next() {
		v, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		vulns = append(vulns, v)
	}

	return vulns, rows.Err()
}

func (s *sqliteStore) Update(ctx context.Context, v *store.Vulnerability) error {
	query := `
		UPDATE vulnerabilities
		SET package = ?, severity = ?, description = ?, published_date = ?, affected_versions = ?, remediation = ?
		WHERE id = ?
	`

	result, err := s.conn.ExecContext(
		ctx,
		query,
		v.Package,
		v.Severity,
		v.Description,
		v.PublishedDate,
		nullable(v.AffectedVersions),
		nullable(v.Remediation),
		v.Id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings_ref WHERE vulnerability_id = ?", id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM vulnerabilities WHERE id = ?", id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *sqliteStore) SetEmbeddingRef(ctx context.Context, vulnerabilityId string, vectorId string) error {
	query := `
		INSERT INTO embeddings_ref (vulnerability_id, vector_id)
		VALUES (?, ?)
		ON CONFLICT(vulnerability_id) DO UPDATE SET vector_id = excluded.vector_id
	`

	_, err := s.conn.ExecContext(ctx, query, vulnerabilityId, vectorId)

	return err
}

func (s *sqliteStore) VectorId(ctx context.Context, vulnerabilityId string) (string, error) {
	var vectorId string

	err := s.conn.QueryRowContext(
		ctx,
		"SELECT vector_id FROM embeddings_ref WHERE vulnerability_id = ?",
		vulnerabilityId,
	).Scan(&vectorId)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}

	return vectorId, err
}

func (s *sqliteStore) VulnerabilityId(ctx context.Context, vectorId string) (string, error) {
	var vulnerabilityId string

	err := s.conn.QueryRowContext(
		ctx,
		"SELECT vulnerability_id FROM embeddings_ref WHERE vector_id = ?",
		vectorId,
	).Scan(&vulnerabilityId)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}

	return vulnerabilityId, err
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	var count int

	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM vulnerabilities").Scan(&count)

	return count, err
}

func (s *sqliteStore) Statistics(ctx context.Context) (*store.Statistics, error) {
	stats := &store.Statistics{
		BySeverity:  map[string]int{},
		TopPackages: map[string]int{},
		ByMonth:     map[string]int{},
	}

	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM vulnerabilities").Scan(&stats.Total); err != nil {
		return nil, err
	}

	if err := s.groupCount(ctx, "SELECT severity, COUNT(*) FROM vulnerabilities GROUP BY severity ORDER BY COUNT(*) DESC", stats.BySeverity); err != nil {
		return nil, err
	}

	if err := s.groupCount(ctx, "SELECT package, COUNT(*) FROM vulnerabilities GROUP BY package ORDER BY COUNT(*) DESC LIMIT 10", stats.TopPackages); err != nil {
		return nil, err
	}

	if err := s.groupCount(ctx, "SELECT substr(published_date, 1, 7), COUNT(*) FROM vulnerabilities GROUP BY 1 ORDER BY 1 DESC LIMIT 12", stats.ByMonth); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *sqliteStore) groupCount(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}

	return rows.Err()
}

func (s *sqliteStore) Close() error {
	return s.conn.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*store.Vulnerability, error) {
	v, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return v, err
}

func scanRow(row rowScanner) (*store.Vulnerability, error) {
	var v store.Vulnerability
	var affectedVersions, remediation sql.NullString
	var createdAt sql.NullTime

	err := row.Scan(
		&v.Id,
		&v.Package,
		&v.Severity,
		&v.Description,
		&v.PublishedDate,
		&affectedVersions,
		&remediation,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	v.AffectedVersions = affectedVersions.String
	v.Remediation = remediation.String
	if createdAt.Valid {
		v.CreatedAt = createdAt.Time
	}

	return &v, nil
}

func nullable(s string) any {
	if len(s) == 0 {
		return nil
	}
	return s
}

func NewStore(opts ...store.Option) store.Store {
	options := store.NewOptions(opts...)

	s := &sqliteStore{
		options: options,
	}

	if dir := filepath.Dir(options.Location); len(dir) > 0 && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			detail := "failed to create directory for sqlite store"
			slog.ErrorContext(context.Background(), detail, "error", err)
			panic(detail)
		}
	}

	conn, err := sql.Open("sqlite3", options.Location)
	if err != nil {
		detail := "failed to open sqlite store"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	if _, err := conn.Exec(schema); err != nil {
		detail := "failed to initialize sqlite schema"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	s.conn = conn

	return s
}
