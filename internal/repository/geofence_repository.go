package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jengzang/tracking-backend-go/internal/models"
)

// GeofenceRepository handles database operations for geofences
type GeofenceRepository struct {
	db *sql.DB
}

// NewGeofenceRepository creates a new geofence repository
func NewGeofenceRepository(db *sql.DB) *GeofenceRepository {
	return &GeofenceRepository{db: db}
}

const geofenceColumns = `id, organization_id, created_by, name, description, color,
	geometry, config, active, total_events, total_enters, total_exits, last_event_at,
	created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Create inserts a new geofence
func (r *GeofenceRepository) Create(ctx context.Context, g *models.Geofence) error {
	geometry, err := json.Marshal(g.Geometry)
	if err != nil {
		return fmt.Errorf("failed to encode geometry: %w", err)
	}
	config, err := json.Marshal(g.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	query := `INSERT INTO geofences (` + geofenceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		g.ID, g.OrganizationID, g.CreatedBy, g.Name, g.Description, g.Color,
		string(geometry), string(config), g.Active,
		g.Stats.TotalEvents, g.Stats.TotalEnters, g.Stats.TotalExits, nullMillis(g.Stats.LastEventAt),
		toMillis(g.CreatedAt), toMillis(g.UpdatedAt), nullMillis(g.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert geofence: %w", err)
	}
	return nil
}

// GetByID retrieves a geofence by ID, including soft-deleted ones.
// Returns nil when no row exists.
func (r *GeofenceRepository) GetByID(ctx context.Context, id string) (*models.Geofence, error) {
	query := `SELECT ` + geofenceColumns + ` FROM geofences WHERE id = ?`

	g, err := scanGeofence(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get geofence: %w", err)
	}
	return g, nil
}

// List retrieves the non-deleted geofences of an organization in creation order
func (r *GeofenceRepository) List(ctx context.Context, filter models.GeofenceFilter) ([]*models.Geofence, error) {
	query := `SELECT ` + geofenceColumns + ` FROM geofences
		WHERE organization_id = ? AND deleted_at IS NULL`
	args := []interface{}{filter.OrganizationID}

	if filter.Active != nil {
		query += " AND active = ?"
		args = append(args, *filter.Active)
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query geofences: %w", err)
	}
	defer rows.Close()

	geofences := make([]*models.Geofence, 0)
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}
		geofences = append(geofences, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate geofences: %w", err)
	}

	return geofences, nil
}

// ListActive retrieves the active geofences of an organization in creation order
func (r *GeofenceRepository) ListActive(ctx context.Context, organizationID string) ([]*models.Geofence, error) {
	active := true
	return r.List(ctx, models.GeofenceFilter{OrganizationID: organizationID, Active: &active})
}

// Update writes the mutable fields of g. Returns false when no live row matched.
func (r *GeofenceRepository) Update(ctx context.Context, g *models.Geofence) (bool, error) {
	geometry, err := json.Marshal(g.Geometry)
	if err != nil {
		return false, fmt.Errorf("failed to encode geometry: %w", err)
	}
	config, err := json.Marshal(g.Config)
	if err != nil {
		return false, fmt.Errorf("failed to encode config: %w", err)
	}

	query := `UPDATE geofences
		SET name = ?, description = ?, color = ?, geometry = ?, config = ?, active = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query,
		g.Name, g.Description, g.Color, string(geometry), string(config), g.Active,
		toMillis(g.UpdatedAt), g.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update geofence: %w", err)
	}
	return affected(res)
}

// SoftDelete deactivates a geofence and stamps deleted_at. Returns false when
// no live row matched.
func (r *GeofenceRepository) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE geofences SET active = 0, deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, toMillis(at), toMillis(at), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete geofence: %w", err)
	}
	return affected(res)
}

// IncrementStats atomically bumps the event counters of a geofence
func (r *GeofenceRepository) IncrementStats(ctx context.Context, id string, t models.TransitionType, at time.Time) error {
	var enters, exits int
	switch t {
	case models.TransitionEnter:
		enters = 1
	case models.TransitionExit:
		exits = 1
	}

	query := `UPDATE geofences
		SET total_events = total_events + 1,
			total_enters = total_enters + ?,
			total_exits = total_exits + ?,
			last_event_at = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, enters, exits, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("failed to update geofence stats: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to update geofence stats: geofence %s not found", id)
	}
	return nil
}

func scanGeofence(row rowScanner) (*models.Geofence, error) {
	var (
		g                    models.Geofence
		geometry, config     string
		lastEvent, deletedAt sql.NullInt64
		createdAt, updatedAt int64
	)

	err := row.Scan(
		&g.ID, &g.OrganizationID, &g.CreatedBy, &g.Name, &g.Description, &g.Color,
		&geometry, &config, &g.Active,
		&g.Stats.TotalEvents, &g.Stats.TotalEnters, &g.Stats.TotalExits, &lastEvent,
		&createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	// A row that fails to decode is still returned, with a malformed geometry,
	// so it is skipped at evaluation instead of failing the whole listing.
	if err := json.Unmarshal([]byte(geometry), &g.Geometry); err != nil {
		g.Geometry = models.MalformedGeometry([]byte(geometry), err)
	}
	g.Config = models.DefaultGeofenceConfig()
	if err := json.Unmarshal([]byte(config), &g.Config); err != nil {
		g.Config = models.DefaultGeofenceConfig()
		g.Geometry = models.MalformedGeometry([]byte(geometry), fmt.Errorf("failed to decode config: %w", err))
	}

	g.Stats.LastEventAt = timePtr(lastEvent)
	g.CreatedAt = fromMillis(createdAt)
	g.UpdatedAt = fromMillis(updatedAt)
	g.DeletedAt = timePtr(deletedAt)

	return &g, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
