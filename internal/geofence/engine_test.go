package geofence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/tracking-backend-go/internal/geofence"
	"github.com/jengzang/tracking-backend-go/internal/logging"
	"github.com/jengzang/tracking-backend-go/internal/metrics"
	"github.com/jengzang/tracking-backend-go/internal/models"
	"github.com/jengzang/tracking-backend-go/internal/spatial"
)

type fakeRegistry struct {
	mu        sync.Mutex
	geofences []*models.Geofence
	listErr   error
	recordErr error
	recorded  []models.TransitionType
}

func (r *fakeRegistry) ListActive(ctx context.Context, organizationID string) ([]*models.Geofence, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.Geofence
	for _, g := range r.geofences {
		if g.OrganizationID == organizationID && g.Active {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeRegistry) RecordEvent(ctx context.Context, g *models.Geofence, t models.TransitionType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded = append(r.recorded, t)
	if r.recordErr != nil {
		return r.recordErr
	}
	g.Stats.Record(t, time.Now())
	return nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	alerts []*models.Alert
	err    error
}

func (e *fakeEmitter) GeofenceAlert(ctx context.Context, g *models.Geofence, t models.TransitionType, sample models.LocationSample) (*models.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert := &models.Alert{
		ID:         g.ID + "-" + string(t),
		Type:       models.AlertType("geofence_" + string(t)),
		UserID:     sample.UserID,
		GeofenceID: g.ID,
	}
	e.alerts = append(e.alerts, alert)
	return alert, e.err
}

const (
	centerLat = 19.4326
	centerLon = -99.1332
)

func newCircle(id string) *models.Geofence {
	return &models.Geofence{
		ID:             id,
		OrganizationID: "ORG1",
		Name:           "Office " + id,
		Geometry:       models.CircleGeometry(centerLat, centerLon, 100),
		Config:         models.DefaultGeofenceConfig(),
		Active:         true,
	}
}

func sampleAt(userID string, lat, lon float64, at time.Time) models.LocationSample {
	return models.LocationSample{
		UserID:         userID,
		OrganizationID: "ORG1",
		Latitude:       lat,
		Longitude:      lon,
		Timestamp:      at,
	}
}

// pointAway returns a point d meters north of the test center
func pointAway(d float64) (float64, float64) {
	return spatial.DestinationPoint(centerLat, centerLon, 0, d)
}

func newTestEngine(reg geofence.Registry, em geofence.AlertEmitter, opts ...geofence.Option) *geofence.Engine {
	opts = append([]geofence.Option{geofence.WithLogger(logging.Discard())}, opts...)
	return geofence.NewEngine(reg, em, geofence.NewTracker(), opts...)
}

func TestEngine_EndToEnd(t *testing.T) {
	g := newCircle("g1")
	reg := &fakeRegistry{geofences: []*models.Geofence{g}}
	em := &fakeEmitter{}
	engine := newTestEngine(reg, em)
	ctx := context.Background()
	now := time.Now()

	events, err := engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, now))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionEnter, events[0].Type)
	assert.Equal(t, g, events[0].Geofence)
	require.NotNil(t, events[0].Alert)
	assert.Equal(t, int64(1), g.Stats.TotalEnters)

	bLat, bLon := pointAway(150)
	events, err = engine.Evaluate(ctx, sampleAt("U1", bLat, bLon, now.Add(time.Minute)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionExit, events[0].Type)
	assert.Equal(t, int64(1), g.Stats.TotalExits)

	events, err = engine.Evaluate(ctx, sampleAt("U1", bLat, bLon, now.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotNil(t, events)
	assert.Equal(t, int64(2), g.Stats.TotalEvents)
	assert.Len(t, em.alerts, 2)
}

func TestEngine_IdempotentUnderRepetition(t *testing.T) {
	reg := &fakeRegistry{geofences: []*models.Geofence{newCircle("g1")}}
	engine := newTestEngine(reg, &fakeEmitter{})
	ctx := context.Background()

	total := 0
	for i := 0; i < 5; i++ {
		events, err := engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, time.Now()))
		require.NoError(t, err)
		if i == 0 {
			assert.Len(t, events, 1)
		} else {
			assert.Empty(t, events)
		}
		total += len(events)
	}
	assert.Equal(t, 1, total)

	// an outside point never differs from the baseline
	lat, lon := pointAway(500)
	for i := 0; i < 3; i++ {
		events, err := engine.Evaluate(ctx, sampleAt("U2", lat, lon, time.Now()))
		require.NoError(t, err)
		assert.Empty(t, events)
	}
}

func TestEngine_SingleExitWhenCrossingOut(t *testing.T) {
	reg := &fakeRegistry{geofences: []*models.Geofence{newCircle("g1")}}
	engine := newTestEngine(reg, &fakeEmitter{})
	engine.Tracker().SetState("U1", "g1", true)
	ctx := context.Background()

	inLat, inLon := pointAway(40)
	outLat, outLon := pointAway(160)

	first, err := engine.Evaluate(ctx, sampleAt("U1", inLat, inLon, time.Now()))
	require.NoError(t, err)
	second, err := engine.Evaluate(ctx, sampleAt("U1", outLat, outLon, time.Now()))
	require.NoError(t, err)

	assert.Empty(t, first)
	require.Len(t, second, 1)
	assert.Equal(t, models.TransitionExit, second[0].Type)
}

func TestEngine_ScheduleGate(t *testing.T) {
	g := newCircle("g1")
	g.Config.Schedule = models.Schedule{
		Enabled:   true,
		Days:      []string{"monday"},
		StartTime: "08:00",
		EndTime:   "18:00",
	}
	reg := &fakeRegistry{geofences: []*models.Geofence{g}}
	engine := newTestEngine(reg, &fakeEmitter{})
	ctx := context.Background()

	tuesday := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	mondayEvening := time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)
	mondayMorning := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	events, err := engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, tuesday))
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, mondayEvening))
	require.NoError(t, err)
	assert.Empty(t, events)

	// gated samples leave state untouched, so the first in-window sample enters
	assert.False(t, engine.Tracker().PreviousState("U1", "g1"))
	events, err = engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, mondayMorning))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionEnter, events[0].Type)
}

func TestEngine_ScheduleUsesConfiguredLocation(t *testing.T) {
	g := newCircle("g1")
	g.Config.Schedule = models.Schedule{
		Enabled:   true,
		Days:      []string{"monday"},
		StartTime: "08:00",
		EndTime:   "18:00",
	}
	reg := &fakeRegistry{geofences: []*models.Geofence{g}}
	zone := time.FixedZone("UTC-6", -6*60*60)
	engine := newTestEngine(reg, &fakeEmitter{}, geofence.WithLocation(zone))

	// 15:00 UTC on Monday is 09:00 in UTC-6
	at := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	events, err := engine.Evaluate(context.Background(), sampleAt("U1", centerLat, centerLon, at))
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// 03:00 UTC Tuesday is still Monday 21:00 locally, outside the window
	g2 := newCircle("g2")
	g2.Config.Schedule = g.Config.Schedule
	reg.geofences = []*models.Geofence{g2}
	at = time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	events, err = engine.Evaluate(context.Background(), sampleAt("U1", centerLat, centerLon, at))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEngine_ZeroTimestampUsesClock(t *testing.T) {
	g := newCircle("g1")
	g.Config.Schedule = models.Schedule{
		Enabled:   true,
		Days:      []string{"monday"},
		StartTime: "08:00",
		EndTime:   "18:00",
	}
	reg := &fakeRegistry{geofences: []*models.Geofence{g}}
	clock := func() time.Time { return time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC) }
	engine := newTestEngine(reg, &fakeEmitter{}, geofence.WithClock(clock))

	events, err := engine.Evaluate(context.Background(), sampleAt("U1", centerLat, centerLon, time.Time{}))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEngine_AccessGate(t *testing.T) {
	g := newCircle("g1")
	g.Config.AllowedUsers = []string{"U1"}
	reg := &fakeRegistry{geofences: []*models.Geofence{g}}
	engine := newTestEngine(reg, &fakeEmitter{})
	ctx := context.Background()

	events, err := engine.Evaluate(ctx, sampleAt("U2", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.False(t, engine.Tracker().PreviousState("U2", "g1"))

	events, err = engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEngine_GroupOnlyRestrictionDeniesEveryone(t *testing.T) {
	g := newCircle("g1")
	g.Config.AllowedGroups = []string{"drivers"}
	reg := &fakeRegistry{geofences: []*models.Geofence{g}}
	engine := newTestEngine(reg, &fakeEmitter{})

	events, err := engine.Evaluate(context.Background(), sampleAt("U1", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEngine_AlertFlagsStillTrackState(t *testing.T) {
	g := newCircle("g1")
	g.Config.AlertOnEnter = false
	g.Config.AlertOnExit = true
	reg := &fakeRegistry{geofences: []*models.Geofence{g}}
	em := &fakeEmitter{}
	engine := newTestEngine(reg, em)
	ctx := context.Background()

	events, err := engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.True(t, engine.Tracker().PreviousState("U1", "g1"))

	lat, lon := pointAway(300)
	events, err = engine.Evaluate(ctx, sampleAt("U1", lat, lon, time.Now()))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionExit, events[0].Type)
	assert.Len(t, em.alerts, 1)
	assert.Equal(t, []models.TransitionType{models.TransitionExit}, reg.recorded)
}

func TestEngine_EventsFollowRegistryOrder(t *testing.T) {
	a, b, c := newCircle("a"), newCircle("b"), newCircle("c")
	c.Geometry = models.CircleGeometry(0, 0, 10)
	reg := &fakeRegistry{geofences: []*models.Geofence{a, b, c}}
	engine := newTestEngine(reg, &fakeEmitter{})

	events, err := engine.Evaluate(context.Background(), sampleAt("U1", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Geofence.ID)
	assert.Equal(t, "b", events[1].Geofence.ID)
}

func TestEngine_MalformedGeofenceIsSkipped(t *testing.T) {
	broken := newCircle("broken")
	broken.Geometry = models.PolygonGeometry([]models.Position{{-99.14, 19.43}, {-99.13, 19.44}})
	unknown := newCircle("unknown")
	unknown.Geometry = models.Geometry{Shape: models.UnknownShape{Type: "LineString"}}
	good := newCircle("good")
	reg := &fakeRegistry{geofences: []*models.Geofence{broken, unknown, good}}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	engine := newTestEngine(reg, &fakeEmitter{}, geofence.WithMetrics(m))

	events, err := engine.Evaluate(context.Background(), sampleAt("U1", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "good", events[0].Geofence.ID)
	assert.False(t, engine.Tracker().PreviousState("U1", "broken"))
	assert.False(t, engine.Tracker().PreviousState("U1", "unknown"))
	assert.Equal(t, 1.0, counterValue(t, registry, "tracking_geofence_evaluation_errors_total"))
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestEngine_ListFailureIsReturned(t *testing.T) {
	reg := &fakeRegistry{listErr: errors.New("database is locked")}
	engine := newTestEngine(reg, &fakeEmitter{})

	events, err := engine.Evaluate(context.Background(), sampleAt("U1", centerLat, centerLon, time.Now()))
	require.Error(t, err)
	assert.Nil(t, events)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestEngine_NoGeofences(t *testing.T) {
	engine := newTestEngine(&fakeRegistry{}, &fakeEmitter{})

	events, err := engine.Evaluate(context.Background(), sampleAt("U1", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
	assert.Equal(t, 0, engine.Tracker().Size())
}

func TestEngine_DeliveryFailuresDoNotUndoTransition(t *testing.T) {
	g := newCircle("g1")
	reg := &fakeRegistry{geofences: []*models.Geofence{g}, recordErr: errors.New("stats write failed")}
	em := &fakeEmitter{err: errors.New("notifier down")}
	engine := newTestEngine(reg, em)

	events, err := engine.Evaluate(context.Background(), sampleAt("U1", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].Alert)
	assert.True(t, engine.Tracker().PreviousState("U1", "g1"))
}

func TestEngine_InvalidSample(t *testing.T) {
	engine := newTestEngine(&fakeRegistry{}, &fakeEmitter{})

	tests := []struct {
		name   string
		sample models.LocationSample
	}{
		{"missing user", models.LocationSample{OrganizationID: "ORG1"}},
		{"missing organization", models.LocationSample{UserID: "U1"}},
		{"latitude out of range", models.LocationSample{UserID: "U1", OrganizationID: "ORG1", Latitude: 91}},
		{"longitude out of range", models.LocationSample{UserID: "U1", OrganizationID: "ORG1", Longitude: -181}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Evaluate(context.Background(), tt.sample)
			assert.ErrorIs(t, err, geofence.ErrInvalidSample)
		})
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	reg := &fakeRegistry{geofences: []*models.Geofence{newCircle("g1")}}
	engine := newTestEngine(reg, &fakeEmitter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ClearTransitionCache(t *testing.T) {
	reg := &fakeRegistry{geofences: []*models.Geofence{newCircle("g1")}}
	engine := newTestEngine(reg, &fakeEmitter{})
	ctx := context.Background()

	events, err := engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	require.Len(t, events, 1)

	engine.ClearTransitionCache()
	assert.Equal(t, 0, engine.Tracker().Size())

	// same inside point is an enter again after the reset
	events, err = engine.Evaluate(ctx, sampleAt("U1", centerLat, centerLon, time.Now()))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionEnter, events[0].Type)
}

func TestEngine_ConcurrentUsers(t *testing.T) {
	reg := &fakeRegistry{geofences: []*models.Geofence{newCircle("g1")}}
	engine := newTestEngine(reg, &fakeEmitter{})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	enters := map[string]int{}

	users := []string{"U1", "U2", "U3", "U4"}
	for _, u := range users {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				events, err := engine.Evaluate(ctx, sampleAt(userID, centerLat, centerLon, time.Now()))
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				enters[userID] += len(events)
				mu.Unlock()
			}(u)
		}
	}
	wg.Wait()

	for _, u := range users {
		assert.Equal(t, 1, enters[u], "user %s", u)
	}
}
