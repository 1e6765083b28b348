package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jengzang/tracking-backend-go/internal/geofence"
	"github.com/jengzang/tracking-backend-go/internal/models"
	"github.com/jengzang/tracking-backend-go/internal/repository"
)

const defaultGeofenceColor = "#3B82F6"

var (
	clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// GeofenceService owns geofence definitions. It is the registry the
// evaluation engine reads from.
type GeofenceService struct {
	repo     *repository.GeofenceRepository
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
}

// NewGeofenceService creates a new geofence service. location is the zone
// schedules are written in.
func NewGeofenceService(repo *repository.GeofenceRepository, logger *slog.Logger, location *time.Location) *GeofenceService {
	if logger == nil {
		logger = slog.Default()
	}
	if location == nil {
		location = time.UTC
	}
	return &GeofenceService{
		repo:     repo,
		logger:   logger.With("service", "geofence"),
		location: location,
		now:      time.Now,
	}
}

// Create validates input and stores a new active geofence
func (s *GeofenceService) Create(ctx context.Context, creatorID string, in models.GeofenceInput) (*models.Geofence, error) {
	cfg := models.DefaultGeofenceConfig()
	in.Config.ApplyTo(&cfg)

	g := &models.Geofence{
		ID:             uuid.NewString(),
		OrganizationID: strings.TrimSpace(in.OrganizationID),
		CreatedBy:      creatorID,
		Name:           strings.TrimSpace(in.Name),
		Description:    strings.TrimSpace(in.Description),
		Color:          in.Color,
		Geometry:       in.Geometry,
		Config:         cfg,
		Active:         true,
	}
	if g.Color == "" {
		g.Color = defaultGeofenceColor
	}

	if err := validateGeofence(g); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}

	s.logger.Info("geofence created", "geofence_id", g.ID, "name", g.Name, "organization_id", g.OrganizationID, "created_by", creatorID)
	return g, nil
}

// Get returns a live geofence by ID
func (s *GeofenceService) Get(ctx context.Context, id string) (*models.Geofence, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil || g.DeletedAt != nil {
		return nil, fmt.Errorf("geofence %s: %w", id, ErrNotFound)
	}
	return g, nil
}

// List returns the geofences of an organization, optionally filtered by active flag
func (s *GeofenceService) List(ctx context.Context, filter models.GeofenceFilter) ([]*models.Geofence, error) {
	if filter.OrganizationID == "" {
		return nil, invalid("organizationId", "is required")
	}
	return s.repo.List(ctx, filter)
}

// ListActive returns every active geofence of the organization, regardless
// of schedule
func (s *GeofenceService) ListActive(ctx context.Context, organizationID string) ([]*models.Geofence, error) {
	return s.repo.ListActive(ctx, organizationID)
}

// Update applies a partial update
func (s *GeofenceService) Update(ctx context.Context, id string, upd models.GeofenceUpdate) (*models.Geofence, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		g.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		g.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Color != nil {
		g.Color = *upd.Color
	}
	if upd.Geometry != nil {
		g.Geometry = *upd.Geometry
	}
	if upd.Active != nil {
		g.Active = *upd.Active
	}
	upd.Config.ApplyTo(&g.Config)

	if err := validateGeofence(g); err != nil {
		return nil, err
	}

	g.UpdatedAt = s.now().UTC()
	ok, err := s.repo.Update(ctx, g)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("geofence %s: %w", id, ErrNotFound)
	}

	s.logger.Info("geofence updated", "geofence_id", g.ID)
	return g, nil
}

// Delete soft-deletes a geofence so it is no longer evaluated
func (s *GeofenceService) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.SoftDelete(ctx, id, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("geofence %s: %w", id, ErrNotFound)
	}
	s.logger.Info("geofence deleted", "geofence_id", id)
	return nil
}

// IsActiveNow reports whether g is active and inside its schedule right now
func (s *GeofenceService) IsActiveNow(g *models.Geofence) bool {
	return g.IsActiveAt(s.now().In(s.location))
}

// HasAccess reports whether userID is evaluated against g
func (s *GeofenceService) HasAccess(g *models.Geofence, userID string) bool {
	return g.HasAccess(userID)
}

// RecordEvent increments the transition counters of g
func (s *GeofenceService) RecordEvent(ctx context.Context, g *models.Geofence, t models.TransitionType) error {
	at := s.now().UTC()
	if err := s.repo.IncrementStats(ctx, g.ID, t, at); err != nil {
		return err
	}
	g.Stats.Record(t, at)
	return nil
}

// FindContaining returns the active geofences of an organization that
// contain the point. Schedules and access lists are ignored.
func (s *GeofenceService) FindContaining(ctx context.Context, organizationID string, lat, lon float64) ([]*models.Geofence, error) {
	if organizationID == "" {
		return nil, invalid("organizationId", "is required")
	}

	geofences, err := s.repo.ListActive(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	containing := make([]*models.Geofence, 0)
	for _, g := range geofences {
		inside, err := geofence.Contains(g.Geometry, lat, lon)
		if err != nil {
			s.logger.Warn("skipping geofence", "geofence_id", g.ID, "error", err)
			continue
		}
		if inside {
			containing = append(containing, g)
		}
	}
	return containing, nil
}

func validateGeofence(g *models.Geofence) error {
	if g.OrganizationID == "" {
		return invalid("organizationId", "is required")
	}
	if n := utf8.RuneCountInString(g.Name); n < 2 || n > 100 {
		return invalid("name", "must be between 2 and 100 characters")
	}
	if utf8.RuneCountInString(g.Description) > 500 {
		return invalid("description", "must be at most 500 characters")
	}
	if !colorPattern.MatchString(g.Color) {
		return invalid("color", "must be a hex color like #3B82F6")
	}
	if err := geofence.Validate(g.Geometry); err != nil {
		return &ValidationError{Field: "geometry", Message: err.Error()}
	}
	if sev := g.Config.EnterSeverity; sev != "" && !sev.Valid() {
		return invalid("config.enterSeverity", "unknown severity %q", sev)
	}
	if sev := g.Config.ExitSeverity; sev != "" && !sev.Valid() {
		return invalid("config.exitSeverity", "unknown severity %q", sev)
	}
	return validateSchedule(g.Config.Schedule)
}

func validateSchedule(s models.Schedule) error {
	if !clockPattern.MatchString(s.StartTime) {
		return invalid("config.schedule.startTime", "must be HH:MM")
	}
	if !clockPattern.MatchString(s.EndTime) {
		return invalid("config.schedule.endTime", "must be HH:MM")
	}
	for _, d := range s.Days {
		if !isWeekday(d) {
			return invalid("config.schedule.days", "unknown weekday %q", d)
		}
	}
	if s.Enabled && len(s.Days) == 0 {
		return invalid("config.schedule.days", "at least one day is required when the schedule is enabled")
	}
	return nil
}

func isWeekday(day string) bool {
	for _, d := range models.Weekdays {
		if strings.EqualFold(d, day) {
			return true
		}
	}
	return false
}
