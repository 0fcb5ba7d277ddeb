package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cellarworks/enrich-cli/internal/db"
	"github.com/cellarworks/enrich-cli/internal/domain"
	"github.com/cellarworks/enrich-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	fingerprint TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	brand       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'skeleton',
	fields      JSONB NOT NULL,
	provenance  JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	payload     JSONB NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_profiles (
	domain     TEXT PRIMARY KEY,
	profile    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_sessions_fingerprint ON sessions(fingerprint);
CREATE INDEX IF NOT EXISTS idx_domain_profiles_expires_at ON domain_profiles(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveProduct(ctx context.Context, rec *model.ProductRecord) (*model.ProductRecord, error) {
	existing, err := s.GetProduct(ctx, rec.Fingerprint)
	if err != nil {
		return nil, err
	}
	merged := mergeRecord(existing, rec)

	fieldsJSON, err := json.Marshal(merged.Fields)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal fields")
	}
	var provJSON []byte
	if merged.Provenance != nil {
		if provJSON, err = json.Marshal(merged.Provenance); err != nil {
			return nil, eris.Wrap(err, "postgres: marshal provenance")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO products (fingerprint, name, brand, category, status, fields, provenance, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (fingerprint) DO UPDATE SET
			name = EXCLUDED.name, brand = EXCLUDED.brand, status = EXCLUDED.status,
			fields = EXCLUDED.fields, provenance = EXCLUDED.provenance, updated_at = EXCLUDED.updated_at`,
		merged.Fingerprint, merged.Name, merged.Brand, string(merged.Category),
		string(merged.Status), fieldsJSON, provJSON, merged.CreatedAt, merged.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save product %s", rec.Fingerprint)
	}
	return merged, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, fingerprint string) (*model.ProductRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT fingerprint, name, brand, category, status, fields, provenance, created_at, updated_at
		 FROM products WHERE fingerprint = $1`,
		fingerprint,
	)
	rec, err := scanPGProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *PostgresStore) ListProducts(ctx context.Context, filter ProductFilter) ([]model.ProductRecord, error) {
	query := `SELECT fingerprint, name, brand, category, status, fields, provenance, created_at, updated_at
		 FROM products WHERE 1=1`
	var args []any

	if filter.Category != "" {
		args = append(args, string(filter.Category))
		query += ` AND category = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var out []model.ProductRecord
	for rows.Next() {
		rec, err := scanPGProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

// ImportProducts bulk-loads skeleton records via COPY + upsert. Existing
// fingerprints keep their fields; only name/brand/category refresh.
func (s *PostgresStore) ImportProducts(ctx context.Context, recs []model.ProductRecord) (int64, error) {
	rows := make([][]any, 0, len(recs))
	now := time.Now().UTC()
	for _, rec := range recs {
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal fields for %s", rec.Fingerprint)
		}
		status := rec.Status
		if status == "" {
			status = model.StatusSkeleton
		}
		rows = append(rows, []any{
			rec.Fingerprint, rec.Name, rec.Brand, string(rec.Category),
			string(status), fieldsJSON, now, now,
		})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "products",
		Columns:      []string{"fingerprint", "name", "brand", "category", "status", "fields", "created_at", "updated_at"},
		ConflictKeys: []string{"fingerprint"},
		UpdateCols:   []string{"name", "brand", "category", "updated_at"},
	}, rows)
}

func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.EnrichmentSession) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, fingerprint, payload, status, started_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, status = EXCLUDED.status`,
		sess.ID, sess.Product.Fingerprint, payload, string(sess.Status), sess.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save session %s", sess.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.EnrichmentSession, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM sessions WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	var sess model.EnrichmentSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal session")
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.EnrichmentSession, error) {
	query := `SELECT payload FROM sessions WHERE 1=1`
	var args []any

	if filter.Fingerprint != "" {
		args = append(args, filter.Fingerprint)
		query += ` AND fingerprint = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.EnrichmentSession
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		var sess model.EnrichmentSession
		if err := json.Unmarshal(payload, &sess); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal session")
		}
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) GetProfile(ctx context.Context, domainName string) (*domain.DomainProfile, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT profile FROM domain_profiles WHERE domain = $1 AND expires_at > now()`,
		domainName,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", domainName)
	}
	var p domain.DomainProfile
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile")
	}
	return &p, nil
}

func (s *PostgresStore) SetProfile(ctx context.Context, domainName string, p *domain.DomainProfile, ttl time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO domain_profiles (domain, profile, updated_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (domain) DO UPDATE SET profile = EXCLUDED.profile,
			updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
		domainName, payload, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "postgres: set profile %s", domainName)
}

func (s *PostgresStore) DeleteExpiredProfiles(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM domain_profiles WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired profiles")
	}
	return int(tag.RowsAffected()), nil
}

// Pool exposes the underlying pool for shared helpers.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func scanPGProduct(row pgx.Row) (*model.ProductRecord, error) {
	var rec model.ProductRecord
	var fieldsJSON, provJSON []byte
	var category, status string

	err := row.Scan(&rec.Fingerprint, &rec.Name, &rec.Brand, &category, &status,
		&fieldsJSON, &provJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan product")
	}
	rec.Category = model.Category(category)
	rec.Status = model.Status(status)
	if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fields")
	}
	if len(provJSON) > 0 {
		if err := json.Unmarshal(provJSON, &rec.Provenance); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal provenance")
		}
	}
	return &rec, nil
}
