package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/tracking-backend-go/internal/metrics"
	"github.com/jengzang/tracking-backend-go/internal/models"
	"github.com/jengzang/tracking-backend-go/internal/repository"
)

// Notifier delivers a persisted alert to some channel
type Notifier interface {
	Notify(ctx context.Context, alert *models.Alert) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, alert *models.Alert) error

func (f NotifierFunc) Notify(ctx context.Context, alert *models.Alert) error {
	return f(ctx, alert)
}

// LogNotifier writes every alert to the log
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, alert *models.Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if alert.Severity == models.SeverityCritical || alert.Severity == models.SeverityHigh {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "alert raised",
		"alert_id", alert.ID,
		"type", alert.Type,
		"severity", alert.Severity,
		"user_id", alert.UserID,
		"organization_id", alert.OrganizationID,
	)
	return nil
}

// SOSInput is the payload of an SOS request
type SOSInput struct {
	OrganizationID string                 `json:"organizationId"`
	Latitude       *float64               `json:"latitude"`
	Longitude      *float64               `json:"longitude"`
	Accuracy       float64                `json:"accuracy"`
	Message        string                 `json:"message"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// AlertService builds, stores and delivers alerts
type AlertService struct {
	repo      *repository.AlertRepository
	notifiers []Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewAlertService creates a new alert service
func NewAlertService(repo *repository.AlertRepository, m *metrics.Metrics, logger *slog.Logger, notifiers ...Notifier) *AlertService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertService{
		repo:      repo,
		notifiers: notifiers,
		metrics:   m,
		logger:    logger.With("service", "alert"),
		now:       time.Now,
	}
}

// NewGeofenceAlert builds the alert for a geofence transition. Severity comes
// from the geofence's per-direction setting, info on enter and medium on exit
// when unset.
func NewGeofenceAlert(g *models.Geofence, t models.TransitionType, sample models.LocationSample, at time.Time) *models.Alert {
	alertType := models.AlertTypeGeofenceEnter
	severity := g.Config.EnterSeverity
	verb := "entered"
	if t == models.TransitionExit {
		alertType = models.AlertTypeGeofenceExit
		severity = g.Config.ExitSeverity
		verb = "exited"
	}
	if severity == "" {
		if t == models.TransitionExit {
			severity = models.SeverityMedium
		} else {
			severity = models.SeverityInfo
		}
	}

	return &models.Alert{
		ID:             uuid.NewString(),
		Type:           alertType,
		Severity:       severity,
		UserID:         sample.UserID,
		OrganizationID: sample.OrganizationID,
		GeofenceID:     g.ID,
		Title:          "Geofence " + g.Name,
		Message:        fmt.Sprintf("User %s %s", verb, g.Name),
		Location:       sampleLocation(sample),
		Status:         models.AlertStatusNew,
		Priority:       models.PriorityGeofence,
		Metadata: map[string]interface{}{
			"geofenceName": g.Name,
			"eventType":    string(t),
			"triggeredBy":  "system",
		},
		CreatedAt: at.UTC(),
	}
}

// NewSOSAlert builds an SOS alert. loc may be nil when the device has no fix.
func NewSOSAlert(userID, organizationID string, loc *models.AlertLocation, message string, metadata map[string]interface{}, at time.Time) *models.Alert {
	if strings.TrimSpace(message) == "" {
		message = "User triggered an emergency alert"
	}
	meta := map[string]interface{}{"triggeredBy": "user"}
	for k, v := range metadata {
		meta[k] = v
	}

	return &models.Alert{
		ID:             uuid.NewString(),
		Type:           models.AlertTypeSOS,
		Severity:       models.SeverityCritical,
		UserID:         userID,
		OrganizationID: organizationID,
		Title:          "SOS alert",
		Message:        message,
		Location:       loc,
		Status:         models.AlertStatusNew,
		Priority:       models.PrioritySOS,
		Metadata:       meta,
		CreatedAt:      at.UTC(),
	}
}

// NewLowBatteryAlert builds a low battery alert, high severity below 10%
func NewLowBatteryAlert(sample models.LocationSample, level float64, at time.Time) *models.Alert {
	severity := models.SeverityMedium
	if level < 10 {
		severity = models.SeverityHigh
	}

	return &models.Alert{
		ID:             uuid.NewString(),
		Type:           models.AlertTypeBatteryLow,
		Severity:       severity,
		UserID:         sample.UserID,
		OrganizationID: sample.OrganizationID,
		Title:          "Low battery",
		Message:        fmt.Sprintf("Device battery at %g%%", level),
		Location:       sampleLocation(sample),
		Status:         models.AlertStatusNew,
		Priority:       models.PriorityBatteryLow,
		Metadata:       map[string]interface{}{"batteryLevel": level},
		CreatedAt:      at.UTC(),
	}
}

// Emit persists the alert and hands it to every notifier. Notifiers run even
// when persisting failed; all failures are logged and returned joined.
func (s *AlertService) Emit(ctx context.Context, alert *models.Alert) error {
	logger := s.logger.With("alert_id", alert.ID, "type", alert.Type)
	s.metrics.ObserveAlert(string(alert.Type))

	var errs []error
	if err := s.repo.Create(ctx, alert); err != nil {
		logger.Error("failed to persist alert", "error", err)
		errs = append(errs, err)
	}

	for _, n := range s.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			logger.Warn("alert notification failed", "notifier", fmt.Sprintf("%T", n), "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		s.metrics.ObserveDeliveryFailure()
		return errors.Join(errs...)
	}
	return nil
}

// GeofenceAlert builds and emits the alert for a transition. The alert is
// returned even when emitting it failed.
func (s *AlertService) GeofenceAlert(ctx context.Context, g *models.Geofence, t models.TransitionType, sample models.LocationSample) (*models.Alert, error) {
	alert := NewGeofenceAlert(g, t, sample, s.now())
	return alert, s.Emit(ctx, alert)
}

// LowBattery builds and emits a low battery alert
func (s *AlertService) LowBattery(ctx context.Context, sample models.LocationSample, level float64) (*models.Alert, error) {
	alert := NewLowBatteryAlert(sample, level, s.now())
	return alert, s.Emit(ctx, alert)
}

// SOS raises an SOS alert for userID. Unlike transition alerts, a failure to
// store it is returned to the caller.
func (s *AlertService) SOS(ctx context.Context, userID string, in SOSInput) (*models.Alert, error) {
	if in.OrganizationID == "" {
		return nil, invalid("organizationId", "is required")
	}

	var loc *models.AlertLocation
	if in.Latitude != nil || in.Longitude != nil {
		if in.Latitude == nil || in.Longitude == nil {
			return nil, invalid("location", "latitude and longitude must be sent together")
		}
		if err := validateCoordinates(*in.Latitude, *in.Longitude); err != nil {
			return nil, err
		}
		loc = &models.AlertLocation{Latitude: *in.Latitude, Longitude: *in.Longitude, Accuracy: in.Accuracy}
	}

	alert := NewSOSAlert(userID, in.OrganizationID, loc, in.Message, in.Metadata, s.now())
	if err := s.repo.Create(ctx, alert); err != nil {
		s.metrics.ObserveDeliveryFailure()
		return nil, err
	}
	s.metrics.ObserveAlert(string(alert.Type))
	s.logger.Warn("SOS alert raised", "alert_id", alert.ID, "user_id", userID, "organization_id", in.OrganizationID)

	for _, n := range s.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			s.metrics.ObserveDeliveryFailure()
			s.logger.Warn("alert notification failed", "alert_id", alert.ID, "error", err)
		}
	}
	return alert, nil
}

// List returns a page of the organization's alerts
func (s *AlertService) List(ctx context.Context, organizationID string, filter models.AlertFilter) (*models.AlertsResponse, error) {
	if filter.Status != "" && !validStatus(models.AlertStatus(filter.Status)) {
		return nil, invalid("status", "unknown status %q", filter.Status)
	}
	if filter.Severity != "" && !models.Severity(filter.Severity).Valid() {
		return nil, invalid("severity", "unknown severity %q", filter.Severity)
	}
	return s.repo.List(ctx, organizationID, filter)
}

// Get returns an alert by ID
func (s *AlertService) Get(ctx context.Context, id string) (*models.Alert, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// Acknowledge marks a new alert as seen by userID
func (s *AlertService) Acknowledge(ctx context.Context, id, userID string) (*models.Alert, error) {
	return s.transition(ctx, id, func(a *models.Alert, now time.Time) error {
		if a.Status != models.AlertStatusNew {
			return fmt.Errorf("alert is %s: %w", a.Status, ErrConflict)
		}
		a.Status = models.AlertStatusAcknowledged
		a.AcknowledgedBy = userID
		a.AcknowledgedAt = &now
		return nil
	})
}

// Resolve closes an open alert with an optional resolution note
func (s *AlertService) Resolve(ctx context.Context, id, userID, resolution string) (*models.Alert, error) {
	return s.transition(ctx, id, func(a *models.Alert, now time.Time) error {
		if a.Status == models.AlertStatusResolved || a.Status == models.AlertStatusDismissed {
			return fmt.Errorf("alert is already %s: %w", a.Status, ErrConflict)
		}
		a.Status = models.AlertStatusResolved
		a.ResolvedBy = userID
		a.ResolvedAt = &now
		a.Resolution = strings.TrimSpace(resolution)
		return nil
	})
}

// Dismiss closes an open alert without resolution
func (s *AlertService) Dismiss(ctx context.Context, id, userID string) (*models.Alert, error) {
	return s.transition(ctx, id, func(a *models.Alert, now time.Time) error {
		if a.Status == models.AlertStatusResolved || a.Status == models.AlertStatusDismissed {
			return fmt.Errorf("alert is already %s: %w", a.Status, ErrConflict)
		}
		a.Status = models.AlertStatusDismissed
		a.ResolvedBy = userID
		a.ResolvedAt = &now
		return nil
	})
}

func (s *AlertService) transition(ctx context.Context, id string, apply func(a *models.Alert, now time.Time) error) (*models.Alert, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(a, s.now().UTC()); err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdateStatus(ctx, a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	s.logger.Info("alert updated", "alert_id", a.ID, "status", a.Status)
	return a, nil
}

func validStatus(st models.AlertStatus) bool {
	switch st {
	case models.AlertStatusNew, models.AlertStatusAcknowledged, models.AlertStatusResolved, models.AlertStatusDismissed:
		return true
	}
	return false
}

func sampleLocation(sample models.LocationSample) *models.AlertLocation {
	return &models.AlertLocation{
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Accuracy:  sample.Accuracy,
	}
}
