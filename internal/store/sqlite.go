package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/internal/enrich"
	"github.com/cellarworks/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	fingerprint TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	brand       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'skeleton',
	fields      TEXT NOT NULL,
	provenance  TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	payload     TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_profiles (
	domain     TEXT PRIMARY KEY,
	profile    TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_sessions_fingerprint ON sessions(fingerprint);
CREATE INDEX IF NOT EXISTS idx_domain_profiles_expires_at ON domain_profiles(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveProduct(ctx context.Context, rec *model.ProductRecord) (*model.ProductRecord, error) {
	existing, err := s.GetProduct(ctx, rec.Fingerprint)
	if err != nil {
		return nil, err
	}
	merged := mergeRecord(existing, rec)

	fieldsJSON, provJSON, err := marshalProduct(merged)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (fingerprint, name, brand, category, status, fields, provenance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (fingerprint) DO UPDATE SET
			name = excluded.name, brand = excluded.brand, status = excluded.status,
			fields = excluded.fields, provenance = excluded.provenance, updated_at = excluded.updated_at`,
		merged.Fingerprint, merged.Name, merged.Brand, string(merged.Category),
		string(merged.Status), fieldsJSON, provJSON, merged.CreatedAt, merged.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: save product %s", rec.Fingerprint)
	}
	return merged, nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, fingerprint string) (*model.ProductRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, name, brand, category, status, fields, provenance, created_at, updated_at
		 FROM products WHERE fingerprint = ?`,
		fingerprint,
	)
	rec, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, error) {
	query := `SELECT fingerprint, name, brand, category, status, fields, provenance, created_at, updated_at
		 FROM products WHERE 1=1`
	var args []any

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var out []model.ProductRecord
	for rows.Next() {
		rec, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.EnrichmentSession) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, fingerprint, payload, status, started_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, status = excluded.status`,
		sess.ID, sess.Product.Fingerprint, string(payload), string(sess.Status), sess.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.EnrichmentSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?`, id)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	var sess model.EnrichmentSession
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal session")
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.EnrichmentSession, error) {
	query := `SELECT payload FROM sessions WHERE 1=1`
	var args []any

	if filter.Fingerprint != "" {
		query += ` AND fingerprint = ?`
		args = append(args, filter.Fingerprint)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []model.EnrichmentSession
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		var sess model.EnrichmentSession
		if err := json.Unmarshal([]byte(payload), &sess); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal session")
		}
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) GetProfile(ctx context.Context, domainName string) (*domain.DomainProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT profile FROM domain_profiles WHERE domain = ? AND expires_at > datetime('now')`,
		domainName,
	)
	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", domainName)
	}
	var p domain.DomainProfile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile")
	}
	return &p, nil
}

func (s *SQLiteStore) SetProfile(ctx context.Context, domainName string, p *domain.DomainProfile, ttl time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO domain_profiles (domain, profile, updated_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (domain) DO UPDATE SET profile = excluded.profile,
			updated_at = excluded.updated_at, expires_at = excluded.expires_at`,
		domainName, string(payload), now, now.Add(ttl),
	)
	return eris.Wrapf(err, "sqlite: set profile %s", domainName)
}

func (s *SQLiteStore) DeleteExpiredProfiles(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM domain_profiles WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired profiles")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

// mergeRecord folds an incoming record into the stored one: fields merge
// by confidence, status keeps the higher rank, creation time survives.
func mergeRecord(existing, incoming *model.ProductRecord) *model.ProductRecord {
	now := time.Now().UTC()
	if existing == nil {
		out := *incoming
		if out.CreatedAt.IsZero() {
			out.CreatedAt = now
		}
		out.UpdatedAt = now
		return &out
	}
	out := *existing
	out.Fields = enrich.MergeFields(existing.Fields, incoming.Fields)
	if incoming.Status.Rank() > existing.Status.Rank() {
		out.Status = incoming.Status
	}
	if out.Provenance == nil && incoming.Provenance != nil {
		out.Provenance = map[string]string{}
	}
	for k, v := range incoming.Provenance {
		out.Provenance[k] = v
	}
	out.UpdatedAt = now
	return &out
}

func marshalProduct(rec *model.ProductRecord) (fields string, provenance sql.NullString, err error) {
	f, err := json.Marshal(rec.Fields)
	if err != nil {
		return "", sql.NullString{}, eris.Wrap(err, "sqlite: marshal fields")
	}
	if rec.Provenance != nil {
		p, err := json.Marshal(rec.Provenance)
		if err != nil {
			return "", sql.NullString{}, eris.Wrap(err, "sqlite: marshal provenance")
		}
		provenance = sql.NullString{String: string(p), Valid: true}
	}
	return string(f), provenance, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProduct(row scannable) (*model.ProductRecord, error) {
	var rec model.ProductRecord
	var fieldsJSON string
	var provJSON sql.NullString
	var category, status string

	err := row.Scan(&rec.Fingerprint, &rec.Name, &rec.Brand, &category, &status,
		&fieldsJSON, &provJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan product")
	}
	rec.Category = model.Category(category)
	rec.Status = model.Status(status)
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fields")
	}
	if provJSON.Valid {
		if err := json.Unmarshal([]byte(provJSON.String), &rec.Provenance); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal provenance")
		}
	}
	return &rec, nil
}
