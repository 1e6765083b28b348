package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jengzang/tracking-backend-go/internal/models"
)

// AlertRepository handles database operations for alerts
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, type, severity, user_id, organization_id, geofence_id, title, message,
	latitude, longitude, accuracy, status, priority, metadata,
	acknowledged_by, acknowledged_at, resolved_by, resolved_at, resolution, created_at`

// Create inserts a new alert
func (r *AlertRepository) Create(ctx context.Context, a *models.Alert) error {
	var metadata sql.NullString
	if len(a.Metadata) > 0 {
		data, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode alert metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	var lat, lon, acc sql.NullFloat64
	if a.Location != nil {
		lat = sql.NullFloat64{Float64: a.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: a.Location.Longitude, Valid: true}
		acc = sql.NullFloat64{Float64: a.Location.Accuracy, Valid: true}
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, string(a.Type), string(a.Severity), a.UserID, a.OrganizationID, nullString(a.GeofenceID), a.Title, a.Message,
		lat, lon, acc, string(a.Status), a.Priority, metadata,
		nullString(a.AcknowledgedBy), nullMillis(a.AcknowledgedAt),
		nullString(a.ResolvedBy), nullMillis(a.ResolvedAt), nullString(a.Resolution),
		toMillis(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by ID. Returns nil when no row exists.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	a, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// List retrieves alerts of an organization with filtering and pagination,
// highest priority first, then newest first
func (r *AlertRepository) List(ctx context.Context, organizationID string, filter models.AlertFilter) (*models.AlertsResponse, error) {
	conditions := []string{"organization_id = ?"}
	args := []interface{}{organizationID}

	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 50
	}
	if filter.PageSize > 500 {
		filter.PageSize = 500
	}
	offset := (filter.Page - 1) * filter.PageSize

	query := `SELECT ` + alertColumns + ` FROM alerts` + where +
		` ORDER BY priority DESC, created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, filter.PageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return &models.AlertsResponse{
		Data:       alerts,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(filter.PageSize))),
	}, nil
}

// UpdateStatus writes the lifecycle fields of an alert
func (r *AlertRepository) UpdateStatus(ctx context.Context, a *models.Alert) (bool, error) {
	query := `UPDATE alerts
		SET status = ?, acknowledged_by = ?, acknowledged_at = ?, resolved_by = ?, resolved_at = ?, resolution = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		string(a.Status), nullString(a.AcknowledgedBy), nullMillis(a.AcknowledgedAt),
		nullString(a.ResolvedBy), nullMillis(a.ResolvedAt), nullString(a.Resolution), a.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update alert: %w", err)
	}
	return affected(res)
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a                             models.Alert
		geofenceID, metadata          sql.NullString
		ackBy, resolvedBy, resolution sql.NullString
		lat, lon, acc                 sql.NullFloat64
		ackAt, resolvedAt             sql.NullInt64
		createdAt                     int64
	)

	err := row.Scan(
		&a.ID, &a.Type, &a.Severity, &a.UserID, &a.OrganizationID, &geofenceID, &a.Title, &a.Message,
		&lat, &lon, &acc, &a.Status, &a.Priority, &metadata,
		&ackBy, &ackAt, &resolvedBy, &resolvedAt, &resolution, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.GeofenceID = geofenceID.String
	if lat.Valid && lon.Valid {
		a.Location = &models.AlertLocation{Latitude: lat.Float64, Longitude: lon.Float64, Accuracy: acc.Float64}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("alert %s: failed to decode metadata: %w", a.ID, err)
		}
	}
	a.AcknowledgedBy = ackBy.String
	a.AcknowledgedAt = timePtr(ackAt)
	a.ResolvedBy = resolvedBy.String
	a.ResolvedAt = timePtr(resolvedAt)
	a.Resolution = resolution.String
	a.CreatedAt = fromMillis(createdAt)

	return &a, nil
}
