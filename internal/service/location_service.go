package service

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/tracking-backend-go/internal/metrics"
	"github.com/jengzang/tracking-backend-go/internal/models"
	"github.com/jengzang/tracking-backend-go/internal/repository"
)

// Evaluator detects geofence transitions for a sample
type Evaluator interface {
	Evaluate(ctx context.Context, sample models.LocationSample) ([]models.TransitionEvent, error)
}

// Publisher fans accepted locations and transitions out to live clients
type Publisher interface {
	PublishLocation(snapshot models.LocationSnapshot)
	PublishTransitions(organizationID, userID string, events []models.TransitionEvent)
}

// LocationConfig holds ingestion limits
type LocationConfig struct {
	BatteryLowThreshold float64
	MaxBatchLocations   int
	EvaluationTimeout   time.Duration
}

// LocationService ingests location samples: it stores them, keeps the
// latest-position snapshot current, raises low battery alerts and runs
// geofence evaluation
type LocationService struct {
	repo      *repository.LocationRepository
	engine    Evaluator
	alerts    *AlertService
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       LocationConfig
	now       func() time.Time

	mu         sync.Mutex
	lowBattery map[string]bool
}

// NewLocationService creates a new location service. publisher may be nil.
func NewLocationService(repo *repository.LocationRepository, engine Evaluator, alerts *AlertService, publisher Publisher, m *metrics.Metrics, logger *slog.Logger, cfg LocationConfig) *LocationService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBatchLocations < 1 {
		cfg.MaxBatchLocations = 100
	}
	if cfg.EvaluationTimeout <= 0 {
		cfg.EvaluationTimeout = 5 * time.Second
	}
	return &LocationService{
		repo:       repo,
		engine:     engine,
		alerts:     alerts,
		publisher:  publisher,
		metrics:    m,
		logger:     logger.With("service", "location"),
		cfg:        cfg,
		now:        time.Now,
		lowBattery: make(map[string]bool),
	}
}

// Ingest accepts one sample from userID. Geofence evaluation and alert
// delivery problems are logged; they never reject the sample.
func (s *LocationService) Ingest(ctx context.Context, userID string, sample models.LocationSample) (*models.IngestResult, error) {
	sample.UserID = userID
	if err := validateSample(sample); err != nil {
		s.metrics.ObserveSample("rejected")
		return nil, err
	}

	received := s.now().UTC()
	if sample.Timestamp.IsZero() {
		sample.Timestamp = received
	}

	location := &models.Location{
		ID:              uuid.NewString(),
		LocationSample:  sample,
		ServerTimestamp: received,
	}
	if err := s.repo.Create(ctx, location); err != nil {
		s.metrics.ObserveSample("failed")
		return nil, err
	}
	s.metrics.ObserveSample("accepted")

	logger := s.logger.With("user_id", userID, "organization_id", sample.OrganizationID, "location_id", location.ID)

	snapshot := models.LocationSnapshot{
		UserID:         userID,
		OrganizationID: sample.OrganizationID,
		Latitude:       sample.Latitude,
		Longitude:      sample.Longitude,
		Accuracy:       sample.Accuracy,
		Speed:          sample.Speed,
		Heading:        sample.Heading,
		BatteryLevel:   sample.BatteryLevel,
		Timestamp:      sample.Timestamp,
		UpdatedAt:      received,
	}
	if err := s.repo.UpsertSnapshot(ctx, &snapshot); err != nil {
		logger.Warn("failed to update location snapshot", "error", err)
	}

	s.checkBattery(ctx, sample, logger)

	events := s.evaluate(ctx, sample, logger)

	if s.publisher != nil {
		s.publisher.PublishLocation(snapshot)
		if len(events) > 0 {
			s.publisher.PublishTransitions(sample.OrganizationID, userID, events)
		}
	}

	return &models.IngestResult{
		LocationID:     location.ID,
		GeofenceEvents: events,
	}, nil
}

// IngestBatch accepts up to MaxBatchLocations samples, processed in
// timestamp order. Individual failures are counted, not returned.
func (s *LocationService) IngestBatch(ctx context.Context, userID string, samples []models.LocationSample) (*models.BatchResult, error) {
	if len(samples) == 0 {
		return nil, invalid("locations", "at least one location is required")
	}
	if len(samples) > s.cfg.MaxBatchLocations {
		return nil, invalid("locations", "at most %d locations per batch", s.cfg.MaxBatchLocations)
	}

	ordered := make([]models.LocationSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].Timestamp, ordered[j].Timestamp
		if ti.IsZero() || tj.IsZero() {
			return !ti.IsZero() && tj.IsZero()
		}
		return ti.Before(tj)
	})

	result := &models.BatchResult{GeofenceEvents: make([]models.TransitionEvent, 0)}
	for i, sample := range ordered {
		if err := ctx.Err(); err != nil {
			result.FailedCount += len(ordered) - i
			break
		}
		res, err := s.Ingest(ctx, userID, sample)
		if err != nil {
			result.FailedCount++
			s.logger.Debug("batch sample rejected", "user_id", userID, "index", i, "error", err)
			continue
		}
		result.InsertedCount++
		result.LastLocationID = res.LocationID
		result.GeofenceEvents = append(result.GeofenceEvents, res.GeofenceEvents...)
	}

	s.logger.Info("location batch ingested", "user_id", userID, "inserted", result.InsertedCount, "failed", result.FailedCount)
	return result, nil
}

// LiveLocations returns the latest known position of every member of an organization
func (s *LocationService) LiveLocations(ctx context.Context, organizationID string) ([]models.LocationSnapshot, error) {
	if organizationID == "" {
		return nil, invalid("organizationId", "is required")
	}
	return s.repo.ListSnapshots(ctx, organizationID)
}

// History returns a user's stored samples
func (s *LocationService) History(ctx context.Context, filter models.LocationHistoryFilter) ([]models.Location, error) {
	if filter.UserID == "" {
		return nil, invalid("userId", "is required")
	}
	if filter.StartTime > 0 && filter.EndTime > 0 && filter.StartTime > filter.EndTime {
		return nil, invalid("startTime", "must not be after endTime")
	}
	return s.repo.History(ctx, filter)
}

func (s *LocationService) evaluate(ctx context.Context, sample models.LocationSample, logger *slog.Logger) []models.TransitionEvent {
	if s.engine == nil {
		return []models.TransitionEvent{}
	}

	evalCtx, cancel := context.WithTimeout(ctx, s.cfg.EvaluationTimeout)
	defer cancel()

	events, err := s.engine.Evaluate(evalCtx, sample)
	if err != nil {
		logger.Error("geofence evaluation failed", "kind", ErrorKind(err), "error", err)
		return []models.TransitionEvent{}
	}
	return events
}

// checkBattery raises one low battery alert each time a user's level drops to
// or below the threshold; it re-arms once the level is back above it
func (s *LocationService) checkBattery(ctx context.Context, sample models.LocationSample, logger *slog.Logger) {
	if sample.BatteryLevel == nil || s.alerts == nil || s.cfg.BatteryLowThreshold <= 0 {
		return
	}
	level := *sample.BatteryLevel

	s.mu.Lock()
	alerted := s.lowBattery[sample.UserID]
	low := level <= s.cfg.BatteryLowThreshold
	if low {
		s.lowBattery[sample.UserID] = true
	} else {
		delete(s.lowBattery, sample.UserID)
	}
	s.mu.Unlock()

	if !low || alerted {
		return
	}

	if _, err := s.alerts.LowBattery(ctx, sample, level); err != nil {
		logger.Warn("low battery alert not delivered", "battery_level", level, "error", err)
	}
}

func validateSample(sample models.LocationSample) error {
	if sample.UserID == "" {
		return invalid("userId", "is required")
	}
	if sample.OrganizationID == "" {
		return invalid("organizationId", "is required")
	}
	if err := validateCoordinates(sample.Latitude, sample.Longitude); err != nil {
		return err
	}
	if sample.Accuracy < 0 || math.IsNaN(sample.Accuracy) {
		return invalid("accuracy", "must not be negative")
	}
	if sample.BatteryLevel != nil {
		if b := *sample.BatteryLevel; b < 0 || b > 100 || math.IsNaN(b) {
			return invalid("batteryLevel", "must be between 0 and 100")
		}
	}
	return nil
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return invalid("latitude", "must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return invalid("longitude", "must be between -180 and 180")
	}
	return nil
}

