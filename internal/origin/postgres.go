package origin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/icarotours/panoapi/internal/tracing"
)

// Postgres error code surfaced as a domain error.
const pgUniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Create registers a new origin. The partial unique index on live domains
// rejects concurrent claims of the same domain; that race surfaces as
// ErrDomainTaken rather than being merged.
func (r *PostgresRepository) Create(ctx context.Context, o *Origin) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "origins", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	cfg, err := json.Marshal(configOrEmpty(o.Configuration))
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	query := `
		INSERT INTO origins (name, domain, active, configuration, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		o.Name, strings.ToLower(strings.TrimSpace(o.Domain)), o.Active, cfg,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			err = ErrDomainTaken
			return err
		}
		err = fmt.Errorf("failed to create origin: %w", err)
		return err
	}
	o.Domain = strings.ToLower(strings.TrimSpace(o.Domain))
	return nil
}

// ResolveDomain returns the live origin matching the canonical domain or a
// scheme-prefixed historical variant of it.
func (r *PostgresRepository) ResolveDomain(ctx context.Context, domain string) (*Origin, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "origins", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `
		SELECT id, name, domain, active, configuration, created_at, updated_at
		FROM origins
		WHERE deleted_at IS NULL AND lower(domain) = ANY($1)
		LIMIT 1
	`
	o, err := r.scanOne(r.db.QueryRowContext(ctx, query,
		pq.Array(domainVariants(strings.ToLower(domain)))))
	return o, err
}

// GetByID retrieves a live origin by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Origin, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "origins", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `
		SELECT id, name, domain, active, configuration, created_at, updated_at
		FROM origins
		WHERE id = $1 AND deleted_at IS NULL
	`
	o, err := r.scanOne(r.db.QueryRowContext(ctx, query, id))
	return o, err
}

// List returns all live origins ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]*Origin, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "origins", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `
		SELECT id, name, domain, active, configuration, created_at, updated_at
		FROM origins
		WHERE deleted_at IS NULL
		ORDER BY name ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err = fmt.Errorf("failed to list origins: %w", err)
		return nil, err
	}
	defer rows.Close()

	var out []*Origin
	for rows.Next() {
		var (
			o   Origin
			cfg []byte
		)
		if err = rows.Scan(&o.ID, &o.Name, &o.Domain, &o.Active, &cfg, &o.CreatedAt, &o.UpdatedAt); err != nil {
			err = fmt.Errorf("failed to scan origin: %w", err)
			return nil, err
		}
		if err = unmarshalConfig(cfg, &o); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate origins: %w", err)
	}
	return out, nil
}

// SoftDelete marks an origin deleted. The scenes FK is RESTRICT, but scenes
// are soft-deleted rather than removed, so the live-scene guard is explicit.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64) (bool, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "origins", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		err = fmt.Errorf("failed to begin transaction: %w", err)
		return false, err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.logger.Warn("failed to rollback transaction", "error", rbErr)
		}
	}()

	var liveScenes int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scenes WHERE origin_id = $1 AND deleted_at IS NULL`, id,
	).Scan(&liveScenes)
	if err != nil {
		err = fmt.Errorf("failed to count scenes: %w", err)
		return false, err
	}
	if liveScenes > 0 {
		err = ErrHasScenes
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE origins SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		err = fmt.Errorf("failed to delete origin: %w", err)
		return false, err
	}
	affected, _ := res.RowsAffected()

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit: %w", err)
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*Origin, error) {
	var (
		o   Origin
		cfg []byte
	)
	err := row.Scan(&o.ID, &o.Name, &o.Domain, &o.Active, &cfg, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan origin: %w", err)
	}
	if err := unmarshalConfig(cfg, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func unmarshalConfig(raw []byte, o *Origin) error {
	if len(raw) == 0 {
		o.Configuration = map[string]any{}
		return nil
	}
	if err := json.Unmarshal(raw, &o.Configuration); err != nil {
		return fmt.Errorf("failed to unmarshal configuration for origin %d: %w", o.ID, err)
	}
	if o.Configuration == nil {
		o.Configuration = map[string]any{}
	}
	return nil
}

func configOrEmpty(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	return cfg
}
