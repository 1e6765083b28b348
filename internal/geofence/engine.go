package geofence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jengzang/tracking-backend-go/internal/logging"
	"github.com/jengzang/tracking-backend-go/internal/metrics"
	"github.com/jengzang/tracking-backend-go/internal/models"
	"github.com/jengzang/tracking-backend-go/internal/spatial"
)

// ErrInvalidSample is returned for samples rejected before evaluation
var ErrInvalidSample = errors.New("invalid location sample")

// Registry is the part of the geofence store the engine reads and updates
type Registry interface {
	ListActive(ctx context.Context, organizationID string) ([]*models.Geofence, error)
	RecordEvent(ctx context.Context, g *models.Geofence, t models.TransitionType) error
}

// AlertEmitter builds, persists and delivers the alert for a transition.
// It returns the alert even when persisting or delivering it failed.
type AlertEmitter interface {
	GeofenceAlert(ctx context.Context, g *models.Geofence, t models.TransitionType, sample models.LocationSample) (*models.Alert, error)
}

// Engine turns location samples into geofence enter/exit events
type Engine struct {
	registry Registry
	alerts   AlertEmitter
	tracker  *Tracker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the base logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records evaluation metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLocation sets the time zone schedules are evaluated in
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithClock sets the clock used for samples without a timestamp
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine. A nil tracker gets a fresh one.
func NewEngine(registry Registry, alerts AlertEmitter, tracker *Tracker, opts ...Option) *Engine {
	if tracker == nil {
		tracker = NewTracker()
	}
	e := &Engine{
		registry: registry,
		alerts:   alerts,
		tracker:  tracker,
		logger:   slog.Default(),
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tracker returns the engine's transition state
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Evaluate runs one sample against every active geofence of its organization
// and returns the transitions it caused, in registry order.
//
// Only an invalid sample or a failure to list geofences is returned as an
// error. A geofence that cannot be evaluated is logged and skipped, and alert
// delivery problems never undo a transition.
func (e *Engine) Evaluate(ctx context.Context, sample models.LocationSample) ([]models.TransitionEvent, error) {
	if err := validateSample(sample); err != nil {
		return nil, err
	}

	logger := e.loggerFor(ctx).With("user_id", sample.UserID, "organization_id", sample.OrganizationID)

	geofences, err := e.registry.ListActive(ctx, sample.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active geofences: %w", err)
	}

	events := make([]models.TransitionEvent, 0)
	if len(geofences) == 0 {
		return events, nil
	}

	start := time.Now()
	defer func() { e.metrics.ObserveEvaluation(time.Since(start)) }()

	at := sample.Timestamp
	if at.IsZero() {
		at = e.now()
	}
	at = at.In(e.location)

	release := e.tracker.Acquire(sample.UserID)
	defer release()

	for _, g := range geofences {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("geofence evaluation interrupted: %w", err)
		}

		event, err := e.evaluateOne(ctx, g, sample, at, logger)
		if err != nil {
			e.metrics.ObserveEvaluationError()
			logger.Warn("skipping geofence", "geofence_id", g.ID, "error", err)
			continue
		}
		if event != nil {
			events = append(events, *event)
		}
	}

	if len(events) > 0 {
		logger.Info("geofence transitions detected", "count", len(events))
	}

	return events, nil
}

// ClearTransitionCache forgets every user's previous state
func (e *Engine) ClearTransitionCache() {
	e.tracker.ClearAll()
	e.logger.Info("geofence transition cache cleared")
}

func (e *Engine) evaluateOne(ctx context.Context, g *models.Geofence, sample models.LocationSample, at time.Time, logger *slog.Logger) (*models.TransitionEvent, error) {
	if !g.IsActiveAt(at) {
		return nil, nil
	}
	if !g.HasAccess(sample.UserID) {
		return nil, nil
	}

	inside, err := Contains(g.Geometry, sample.Latitude, sample.Longitude)
	if err != nil {
		return nil, err
	}

	wasInside := e.tracker.PreviousState(sample.UserID, g.ID)

	var event *models.TransitionEvent
	switch {
	case inside && !wasInside && g.Config.AlertOnEnter:
		event = e.transition(ctx, g, models.TransitionEnter, sample, logger)
	case !inside && wasInside && g.Config.AlertOnExit:
		event = e.transition(ctx, g, models.TransitionExit, sample, logger)
	}

	// recorded even when alerting is off so later transitions stay correct
	e.tracker.SetState(sample.UserID, g.ID, inside)

	return event, nil
}

func (e *Engine) transition(ctx context.Context, g *models.Geofence, t models.TransitionType, sample models.LocationSample, logger *slog.Logger) *models.TransitionEvent {
	alert, err := e.alerts.GeofenceAlert(ctx, g, t, sample)
	if err != nil {
		logger.Error("geofence alert not delivered", "geofence_id", g.ID, "type", t, "error", err)
	}

	if err := e.registry.RecordEvent(ctx, g, t); err != nil {
		logger.Error("failed to record geofence event", "geofence_id", g.ID, "type", t, "error", err)
	}

	e.metrics.ObserveTransition(string(t))

	return &models.TransitionEvent{
		Type:     t,
		Geofence: g,
		Alert:    alert,
	}
}

func (e *Engine) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger.With("component", "geofence_engine")
	}
	return e.logger.With("component", "geofence_engine")
}

func validateSample(sample models.LocationSample) error {
	if sample.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidSample)
	}
	if sample.OrganizationID == "" {
		return fmt.Errorf("%w: organization id is required", ErrInvalidSample)
	}
	if !spatial.ValidCoordinate(sample.Latitude, sample.Longitude) {
		return fmt.Errorf("%w: coordinates out of range (%v, %v)", ErrInvalidSample, sample.Latitude, sample.Longitude)
	}
	return nil
}
