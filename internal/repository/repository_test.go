package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/tracking-backend-go/internal/database"
	"github.com/jengzang/tracking-backend-go/internal/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenAndMigrate(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testGeofence(id, org string, created time.Time) *models.Geofence {
	return &models.Geofence{
		ID:             id,
		OrganizationID: org,
		CreatedBy:      "U1",
		Name:           "Fence " + id,
		Color:          "#3B82F6",
		Geometry:       models.CircleGeometry(19.4326, -99.1332, 100),
		Config:         models.DefaultGeofenceConfig(),
		Active:         true,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestGeofenceRepository_CreateAndGet(t *testing.T) {
	repo := NewGeofenceRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	g := testGeofence("g1", "ORG1", now)
	g.Config.AllowedUsers = []string{"U1"}
	g.Config.Schedule = models.Schedule{Enabled: true, Days: []string{"monday"}, StartTime: "08:00", EndTime: "18:00"}
	require.NoError(t, repo.Create(ctx, g))

	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Fence g1", got.Name)
	assert.Equal(t, g.Geometry, got.Geometry)
	assert.Equal(t, g.Config, got.Config)
	assert.True(t, got.Active)
	assert.True(t, now.Equal(got.CreatedAt))
	assert.Nil(t, got.DeletedAt)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGeofenceRepository_ListActiveOrderAndScope(t *testing.T) {
	repo := NewGeofenceRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, testGeofence("b", "ORG1", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, testGeofence("a", "ORG1", base)))
	require.NoError(t, repo.Create(ctx, testGeofence("other", "ORG2", base)))
	inactive := testGeofence("off", "ORG1", base)
	inactive.Active = false
	require.NoError(t, repo.Create(ctx, inactive))

	active, err := repo.ListActive(ctx, "ORG1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "b", active[1].ID)

	all, err := repo.List(ctx, models.GeofenceFilter{OrganizationID: "ORG1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := repo.ListActive(ctx, "ORG3")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGeofenceRepository_UpdateAndSoftDelete(t *testing.T) {
	repo := NewGeofenceRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	g := testGeofence("g1", "ORG1", now)
	require.NoError(t, repo.Create(ctx, g))

	g.Name = "Renamed"
	g.Geometry = models.PolygonGeometry([]models.Position{{-99.14, 19.43}, {-99.14, 19.44}, {-99.13, 19.44}, {-99.14, 19.43}})
	g.UpdatedAt = now.Add(time.Hour)
	ok, err := repo.Update(ctx, g)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, models.GeometryPolygon, got.Geometry.Kind())

	ok, err = repo.SoftDelete(ctx, "g1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Active)
	assert.NotNil(t, got.DeletedAt)

	active, err := repo.ListActive(ctx, "ORG1")
	require.NoError(t, err)
	assert.Empty(t, active)

	// deleted rows can be neither updated nor deleted again
	ok, err = repo.Update(ctx, g)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.SoftDelete(ctx, "g1", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGeofenceRepository_IncrementStats(t *testing.T) {
	repo := NewGeofenceRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, testGeofence("g1", "ORG1", now)))
	require.NoError(t, repo.IncrementStats(ctx, "g1", models.TransitionEnter, now))
	require.NoError(t, repo.IncrementStats(ctx, "g1", models.TransitionExit, now.Add(time.Minute)))
	require.NoError(t, repo.IncrementStats(ctx, "g1", models.TransitionEnter, now.Add(2*time.Minute)))

	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Stats.TotalEvents)
	assert.Equal(t, int64(2), got.Stats.TotalEnters)
	assert.Equal(t, int64(1), got.Stats.TotalExits)
	require.NotNil(t, got.Stats.LastEventAt)
	assert.True(t, now.Add(2*time.Minute).Equal(*got.Stats.LastEventAt))

	assert.Error(t, repo.IncrementStats(ctx, "missing", models.TransitionEnter, now))
}

func TestGeofenceRepository_UnknownGeometrySurvives(t *testing.T) {
	db := newTestDB(t)
	repo := NewGeofenceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testGeofence("g1", "ORG1", time.Now())))
	_, err := db.Exec(`UPDATE geofences SET geometry = '{"type":"LineString","coordinates":[[[0,0],[1,1]]]}' WHERE id = 'g1'`)
	require.NoError(t, err)

	active, err := repo.ListActive(ctx, "ORG1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.GeometryType("LineString"), active[0].Geometry.Kind())
}

func TestGeofenceRepository_UndecodableRowsStayListed(t *testing.T) {
	db := newTestDB(t)
	repo := NewGeofenceRepository(db)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.Create(ctx, testGeofence("g1", "ORG1", now)))
	require.NoError(t, repo.Create(ctx, testGeofence("g2", "ORG1", now.Add(time.Second))))
	require.NoError(t, repo.Create(ctx, testGeofence("g3", "ORG1", now.Add(2*time.Second))))
	_, err := db.Exec(`UPDATE geofences SET geometry = '{"type":"Polygon","coordinates":7}' WHERE id = 'g1'`)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE geofences SET config = 'not json' WHERE id = 'g2'`)
	require.NoError(t, err)

	active, err := repo.ListActive(ctx, "ORG1")
	require.NoError(t, err)
	require.Len(t, active, 3)

	bad, ok := active[0].Geometry.Shape.(models.MalformedShape)
	require.True(t, ok)
	assert.Equal(t, models.GeometryPolygon, bad.Kind())
	assert.NotEmpty(t, bad.Reason)

	_, ok = active[1].Geometry.Shape.(models.MalformedShape)
	assert.True(t, ok)
	assert.Equal(t, models.DefaultGeofenceConfig(), active[1].Config)

	_, ok = active[2].Geometry.Shape.(models.Circle)
	assert.True(t, ok)
}

func TestAlertRepository_CreateListUpdate(t *testing.T) {
	repo := NewAlertRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	sos := &models.Alert{
		ID: "a1", Type: models.AlertTypeSOS, Severity: models.SeverityCritical,
		UserID: "U1", OrganizationID: "ORG1", Title: "SOS", Message: "help",
		Location: &models.AlertLocation{Latitude: 19.4, Longitude: -99.1, Accuracy: 5},
		Status:   models.AlertStatusNew, Priority: models.PrioritySOS,
		Metadata: map[string]interface{}{"source": "button"}, CreatedAt: base,
	}
	enter := &models.Alert{
		ID: "a2", Type: models.AlertTypeGeofenceEnter, Severity: models.SeverityInfo,
		UserID: "U2", OrganizationID: "ORG1", GeofenceID: "g1", Title: "Geofence Office", Message: "User entered Office",
		Status: models.AlertStatusNew, Priority: models.PriorityGeofence, CreatedAt: base.Add(time.Minute),
	}
	elsewhere := &models.Alert{
		ID: "a3", Type: models.AlertTypeBatteryLow, Severity: models.SeverityMedium,
		UserID: "U3", OrganizationID: "ORG2", Title: "Battery", Message: "low",
		Status: models.AlertStatusNew, Priority: models.PriorityBatteryLow, CreatedAt: base,
	}
	for _, a := range []*models.Alert{sos, enter, elsewhere} {
		require.NoError(t, repo.Create(ctx, a))
	}

	page, err := repo.List(ctx, "ORG1", models.AlertFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "a1", page.Data[0].ID)
	assert.Equal(t, "button", page.Data[0].Metadata["source"])
	require.NotNil(t, page.Data[0].Location)
	assert.Equal(t, 19.4, page.Data[0].Location.Latitude)
	assert.Equal(t, "g1", page.Data[1].GeofenceID)
	assert.Nil(t, page.Data[1].Location)

	filtered, err := repo.List(ctx, "ORG1", models.AlertFilter{Type: "geofence_enter", PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filtered.Total)
	assert.Equal(t, 1, filtered.TotalPages)

	at := base.Add(time.Hour)
	sos.Status = models.AlertStatusResolved
	sos.ResolvedBy = "admin"
	sos.ResolvedAt = &at
	sos.Resolution = "false alarm"
	ok, err := repo.UpdateStatus(ctx, sos)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, got.Status)
	assert.Equal(t, "false alarm", got.Resolution)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, at.Equal(*got.ResolvedAt))

	missing, err := repo.GetByID(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLocationRepository_HistoryAndSnapshots(t *testing.T) {
	repo := NewLocationRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	battery := 42.0

	for i, id := range []string{"l1", "l2", "l3"} {
		l := &models.Location{
			ID: id,
			LocationSample: models.LocationSample{
				UserID: "U1", OrganizationID: "ORG1",
				Latitude: 19.43 + float64(i)*0.001, Longitude: -99.13,
				BatteryLevel: &battery, Timestamp: base.Add(time.Duration(i) * time.Minute),
			},
			ServerTimestamp: base,
		}
		require.NoError(t, repo.Create(ctx, l))
	}

	history, err := repo.History(ctx, models.LocationHistoryFilter{
		UserID:    "U1",
		StartTime: base.Add(time.Minute).UnixMilli(),
	})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "l2", history[0].ID)
	require.NotNil(t, history[0].BatteryLevel)
	assert.Equal(t, 42.0, *history[0].BatteryLevel)

	newer := &models.LocationSnapshot{UserID: "U1", OrganizationID: "ORG1", Latitude: 1, Longitude: 1, Timestamp: base.Add(time.Hour), UpdatedAt: base}
	older := &models.LocationSnapshot{UserID: "U1", OrganizationID: "ORG1", Latitude: 2, Longitude: 2, Timestamp: base, UpdatedAt: base}
	require.NoError(t, repo.UpsertSnapshot(ctx, newer))
	require.NoError(t, repo.UpsertSnapshot(ctx, older))
	require.NoError(t, repo.UpsertSnapshot(ctx, &models.LocationSnapshot{UserID: "U2", OrganizationID: "ORG2", Timestamp: base, UpdatedAt: base}))

	snapshots, err := repo.ListSnapshots(ctx, "ORG1")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 1.0, snapshots[0].Latitude)
	assert.Nil(t, snapshots[0].BatteryLevel)
}
