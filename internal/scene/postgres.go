package scene

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lib/pq"

	"github.com/icarotours/panoapi/internal/origin"
	"github.com/icarotours/panoapi/internal/tracing"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresRepository implements Repository using PostgreSQL.
//
// The embedded host_spots JSONB column is the authoritative hotspot store;
// the normalized hotspots table is rewritten inside the same transaction as
// a derived projection so relational queries never diverge from the
// embedded document.
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

// sceneColumns is the scan list shared by every read.
const sceneColumns = `id, scene_key, title, image_url, pitch, yaw, hfov, host_spots, origin_id, domain, created_at, updated_at`

// Upsert creates or updates a scene for the given origin.
//
// With input.ID set the write is a single INSERT ... ON CONFLICT (id) DO
// UPDATE so concurrent upserts on the same id are serialized by the store
// (last writer wins; no application-level locking). Omitted fields pass as
// NULL and COALESCE back to the stored value — the partial-overwrite
// contract. Without input.ID the store assigns the next sequential id and
// scene_key defaults to that id as a string.
func (r *PostgresRepository) Upsert(ctx context.Context, owner *origin.Origin, input *SceneInput) (*Scene, bool, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "scenes", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	if owner == nil {
		err = ErrOriginConflict
		return nil, false, err
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		err = fmt.Errorf("failed to begin transaction: %w", err)
		return nil, false, err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.logger.Warn("failed to rollback transaction", "error", rbErr)
		}
	}()

	var (
		s       *Scene
		created bool
	)
	if input.ID != nil {
		s, created, err = r.upsertByID(ctx, tx, owner, input)
	} else {
		s, created, err = r.insertNew(ctx, tx, owner, input)
	}
	if err != nil {
		err = mapPQError(err)
		return nil, false, err
	}

	// Rebuild the normalized hotspot projection from the authoritative
	// embedded map, inside the same transaction.
	if err = r.projectHotspots(ctx, tx, s.ID, s.Hotspots); err != nil {
		return nil, false, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit: %w", err)
		return nil, false, err
	}

	r.logger.Info("scene upserted",
		"scene_id", s.ID,
		"scene_key", s.SceneKey,
		"origin_id", owner.ID,
		"domain", owner.Domain,
		"created", created)
	return s, created, nil
}

func (r *PostgresRepository) upsertByID(ctx context.Context, tx *sql.Tx, owner *origin.Origin, input *SceneInput) (*Scene, bool, error) {
	// The insert branch of the upsert needs complete required fields. The
	// existence check only drives validation; the write itself stays a
	// single atomic statement.
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM scenes WHERE id = $1)`, *input.ID).Scan(&exists); err != nil {
		return nil, false, fmt.Errorf("failed to check scene existence: %w", err)
	}
	if !exists {
		if verr := validateCreate(input); verr != nil {
			return nil, false, verr
		}
	}

	hotspots, err := marshalHotspots(input.Hotspots)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO scenes (id, scene_key, title, image_url, pitch, yaw, hfov, host_spots, origin_id, domain, created_at, updated_at)
		VALUES ($1, COALESCE($2, $1::text), COALESCE($3, ''), COALESCE($4, ''),
		        COALESCE($5, 0), COALESCE($6, 0), COALESCE($7, 100),
		        COALESCE($8, '{}'::jsonb), $9, $10, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			scene_key  = COALESCE($2, scenes.scene_key),
			title      = COALESCE($3, scenes.title),
			image_url  = COALESCE($4, scenes.image_url),
			pitch      = COALESCE($5, scenes.pitch),
			yaw        = COALESCE($6, scenes.yaw),
			hfov       = COALESCE($7, scenes.hfov),
			host_spots = COALESCE($8, scenes.host_spots),
			origin_id  = $9,
			domain     = $10,
			updated_at = NOW(),
			deleted_at = NULL
		RETURNING ` + sceneColumns + `, (xmax = 0) AS inserted
	`
	row := tx.QueryRowContext(ctx, query,
		*input.ID,
		nullString(input.SceneKey),
		nullString(input.Title),
		nullString(input.ImageURL),
		nullFloat(input.Pitch),
		nullFloat(input.Yaw),
		nullFloat(input.HFOV),
		hotspots,
		owner.ID,
		owner.Domain,
	)
	return scanSceneWithInserted(row)
}

func (r *PostgresRepository) insertNew(ctx context.Context, tx *sql.Tx, owner *origin.Origin, input *SceneInput) (*Scene, bool, error) {
	if verr := validateCreate(input); verr != nil {
		return nil, false, verr
	}

	hotspots, err := marshalHotspots(input.Hotspots)
	if err != nil {
		return nil, false, err
	}

	// scene_key falls back to the assigned id, which is only known after
	// the insert; the COALESCE against currval-style tricks is avoided by
	// defaulting in a follow-up statement within the transaction.
	query := `
		INSERT INTO scenes (scene_key, title, image_url, pitch, yaw, hfov, host_spots, origin_id, domain, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, 0), COALESCE($5, 0), COALESCE($6, 100), COALESCE($7, '{}'::jsonb), $8, $9, NOW(), NOW())
		RETURNING ` + sceneColumns + `
	`
	row := tx.QueryRowContext(ctx, query,
		nullString(input.SceneKey),
		*input.Title,
		*input.ImageURL,
		nullFloat(input.Pitch),
		nullFloat(input.Yaw),
		nullFloat(input.HFOV),
		hotspots,
		owner.ID,
		owner.Domain,
	)
	s, err := scanScene(row)
	if err != nil {
		return nil, false, err
	}

	if s.SceneKey == "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE scenes SET scene_key = id::text WHERE id = $1`, s.ID); err != nil {
			return nil, false, fmt.Errorf("failed to default scene_key: %w", err)
		}
		s.SceneKey = fmt.Sprintf("%d", s.ID)
	}
	return s, true, nil
}

// projectHotspots rewrites the derived hotspots rows for a scene.
func (r *PostgresRepository) projectHotspots(ctx context.Context, tx *sql.Tx, sceneID int64, hotspots map[string]Hotspot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM hotspots WHERE scene_id = $1`, sceneID); err != nil {
		return fmt.Errorf("failed to clear hotspot projection: %w", err)
	}
	if len(hotspots) == 0 {
		return nil
	}

	keys := make([]string, 0, len(hotspots))
	for k := range hotspots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	query := `
		INSERT INTO hotspots (scene_id, hotspot_key, kind, pitch, yaw, css_class, text_content, target_scene_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	for _, key := range keys {
		h := hotspots[key]
		if _, err := tx.ExecContext(ctx, query,
			sceneID, key, h.Kind, h.Pitch, h.Yaw, h.CSSClass, h.TextContent, h.TargetSceneKey); err != nil {
			return fmt.Errorf("failed to project hotspot %q: %w", key, err)
		}
	}
	return nil
}

// GetByID retrieves a live scene by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Scene, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "scenes", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `SELECT ` + sceneColumns + ` FROM scenes WHERE id = $1 AND deleted_at IS NULL`
	s, err := scanScene(r.db.QueryRowContext(ctx, query, id))
	return s, err
}

// ListByOrigin returns all live scenes for an origin ordered by id.
func (r *PostgresRepository) ListByOrigin(ctx context.Context, originID int64) ([]*Scene, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "scenes", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `SELECT ` + sceneColumns + ` FROM scenes WHERE origin_id = $1 AND deleted_at IS NULL ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, originID)
	if err != nil {
		err = fmt.Errorf("failed to list scenes: %w", err)
		return nil, err
	}
	defer rows.Close()

	var out []*Scene
	for rows.Next() {
		var s Scene
		var sceneKey sql.NullString
		var hotspots []byte
		if err = rows.Scan(&s.ID, &sceneKey, &s.Title, &s.ImageURL, &s.Pitch, &s.Yaw, &s.HFOV,
			&hotspots, &s.OriginID, &s.Domain, &s.CreatedAt, &s.UpdatedAt); err != nil {
			err = fmt.Errorf("failed to scan scene: %w", err)
			return nil, err
		}
		s.SceneKey = sceneKey.String
		if err = unmarshalHotspots(hotspots, &s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate scenes: %w", err)
	}
	return out, nil
}

// SoftDelete marks a scene deleted; repeat calls affect no rows.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64) (bool, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "scenes", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	res, err := r.db.ExecContext(ctx,
		`UPDATE scenes SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		err = fmt.Errorf("failed to delete scene: %w", err)
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// validateCreate enforces the fields a fresh scene row cannot do without.
func validateCreate(input *SceneInput) error {
	var fields []string
	if input.Title == nil || *input.Title == "" {
		fields = append(fields, "title: required")
	}
	if input.ImageURL == nil || *input.ImageURL == "" {
		fields = append(fields, "image_url: required")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgForeignKeyViolation:
			return ErrOriginConflict
		case pgUniqueViolation:
			return fmt.Errorf("scene conflict: %w", err)
		}
	}
	return err
}

func marshalHotspots(hotspots map[string]Hotspot) (any, error) {
	if hotspots == nil {
		// NULL keeps the stored map via COALESCE on update and defaults to
		// '{}' on insert.
		return nil, nil
	}
	data, err := json.Marshal(hotspots)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal hotspots: %w", err)
	}
	return data, nil
}

func unmarshalHotspots(raw []byte, s *Scene) error {
	if len(raw) == 0 {
		s.Hotspots = map[string]Hotspot{}
		return nil
	}
	if err := json.Unmarshal(raw, &s.Hotspots); err != nil {
		return fmt.Errorf("failed to unmarshal hotspots for scene %d: %w", s.ID, err)
	}
	if s.Hotspots == nil {
		s.Hotspots = map[string]Hotspot{}
	}
	return nil
}

func scanScene(row *sql.Row) (*Scene, error) {
	var s Scene
	var sceneKey sql.NullString
	var hotspots []byte
	err := row.Scan(&s.ID, &sceneKey, &s.Title, &s.ImageURL, &s.Pitch, &s.Yaw, &s.HFOV,
		&hotspots, &s.OriginID, &s.Domain, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scene: %w", err)
	}
	s.SceneKey = sceneKey.String
	if err := unmarshalHotspots(hotspots, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSceneWithInserted(row *sql.Row) (*Scene, bool, error) {
	var s Scene
	var sceneKey sql.NullString
	var hotspots []byte
	var inserted bool
	err := row.Scan(&s.ID, &sceneKey, &s.Title, &s.ImageURL, &s.Pitch, &s.Yaw, &s.HFOV,
		&hotspots, &s.OriginID, &s.Domain, &s.CreatedAt, &s.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan upserted scene: %w", err)
	}
	s.SceneKey = sceneKey.String
	if err := unmarshalHotspots(hotspots, &s); err != nil {
		return nil, false, err
	}
	return &s, inserted, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
