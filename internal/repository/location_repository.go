package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/tracking-backend-go/internal/models"
)

// LocationRepository handles database operations for location history and
// the latest-position snapshots
type LocationRepository struct {
	db *sql.DB
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Create inserts a location sample
func (r *LocationRepository) Create(ctx context.Context, l *models.Location) error {
	query := `INSERT INTO locations (id, user_id, organization_id, latitude, longitude, accuracy,
		altitude, speed, heading, battery_level, timestamp, server_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.UserID, l.OrganizationID, l.Latitude, l.Longitude, l.Accuracy,
		l.Altitude, l.Speed, l.Heading, nullFloat(l.BatteryLevel),
		toMillis(l.Timestamp), toMillis(l.ServerTimestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}

// History returns a user's samples in timestamp order
func (r *LocationRepository) History(ctx context.Context, filter models.LocationHistoryFilter) ([]models.Location, error) {
	query := `SELECT id, user_id, organization_id, latitude, longitude, accuracy,
		altitude, speed, heading, battery_level, timestamp, server_timestamp
		FROM locations WHERE user_id = ?`
	args := []interface{}{filter.UserID}

	if filter.OrganizationID != "" {
		query += " AND organization_id = ?"
		args = append(args, filter.OrganizationID)
	}
	if filter.StartTime > 0 {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartTime)
	}
	if filter.EndTime > 0 {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndTime)
	}

	if filter.Limit < 1 || filter.Limit > 5000 {
		filter.Limit = 1000
	}
	query += " ORDER BY timestamp ASC, rowid ASC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	locations := make([]models.Location, 0)
	for rows.Next() {
		var (
			l            models.Location
			battery      sql.NullFloat64
			ts, serverTS int64
		)
		err := rows.Scan(
			&l.ID, &l.UserID, &l.OrganizationID, &l.Latitude, &l.Longitude, &l.Accuracy,
			&l.Altitude, &l.Speed, &l.Heading, &battery, &ts, &serverTS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		l.BatteryLevel = floatPtr(battery)
		l.Timestamp = fromMillis(ts)
		l.ServerTimestamp = fromMillis(serverTS)
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}

	return locations, nil
}

// UpsertSnapshot replaces the user's latest position unless the stored one is newer
func (r *LocationRepository) UpsertSnapshot(ctx context.Context, s *models.LocationSnapshot) error {
	query := `INSERT INTO location_snapshots (user_id, organization_id, latitude, longitude, accuracy,
		speed, heading, battery_level, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			organization_id = excluded.organization_id,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			accuracy = excluded.accuracy,
			speed = excluded.speed,
			heading = excluded.heading,
			battery_level = excluded.battery_level,
			timestamp = excluded.timestamp,
			updated_at = excluded.updated_at
		WHERE excluded.timestamp >= location_snapshots.timestamp`

	_, err := r.db.ExecContext(ctx, query,
		s.UserID, s.OrganizationID, s.Latitude, s.Longitude, s.Accuracy,
		s.Speed, s.Heading, nullFloat(s.BatteryLevel), toMillis(s.Timestamp), toMillis(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert location snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the latest position of every user in an organization
func (r *LocationRepository) ListSnapshots(ctx context.Context, organizationID string) ([]models.LocationSnapshot, error) {
	query := `SELECT user_id, organization_id, latitude, longitude, accuracy,
		speed, heading, battery_level, timestamp, updated_at
		FROM location_snapshots WHERE organization_id = ?
		ORDER BY timestamp DESC`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query location snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]models.LocationSnapshot, 0)
	for rows.Next() {
		var (
			s             models.LocationSnapshot
			battery       sql.NullFloat64
			ts, updatedAt int64
		)
		err := rows.Scan(
			&s.UserID, &s.OrganizationID, &s.Latitude, &s.Longitude, &s.Accuracy,
			&s.Speed, &s.Heading, &battery, &ts, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location snapshot: %w", err)
		}
		s.BatteryLevel = floatPtr(battery)
		s.Timestamp = fromMillis(ts)
		s.UpdatedAt = fromMillis(updatedAt)
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate location snapshots: %w", err)
	}

	return snapshots, nil
}
