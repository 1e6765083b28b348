package models

import (
	"strings"
	"time"
)

// TransitionType is the direction of a geofence membership change
type TransitionType string

const (
	TransitionEnter TransitionType = "enter"
	TransitionExit  TransitionType = "exit"
)

// Weekday names accepted in a schedule
var Weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Geofence is a named region owned by an organization
type Geofence struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	CreatedBy      string         `json:"createdBy"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Color          string         `json:"color"`
	Geometry       Geometry       `json:"geometry"`
	Config         GeofenceConfig `json:"config"`
	Stats          GeofenceStats  `json:"stats"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
}

// GeofenceConfig controls alerting, access and scheduling of a geofence
type GeofenceConfig struct {
	AlertOnEnter  bool     `json:"alertOnEnter"`
	AlertOnExit   bool     `json:"alertOnExit"`
	EnterSeverity Severity `json:"enterSeverity,omitempty"`
	ExitSeverity  Severity `json:"exitSeverity,omitempty"`
	AllowedUsers  []string `json:"allowedUsers"`
	AllowedGroups []string `json:"allowedGroups"`
	Schedule      Schedule `json:"schedule"`
}

// Schedule restricts evaluation to certain weekdays and an "HH:MM" window.
// Times compare as strings, so windows that cross midnight are not supported.
type Schedule struct {
	Enabled   bool     `json:"enabled"`
	Days      []string `json:"days"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
}

// GeofenceStats are running transition counters
type GeofenceStats struct {
	TotalEvents int64      `json:"totalEvents"`
	TotalEnters int64      `json:"totalEnters"`
	TotalExits  int64      `json:"totalExits"`
	LastEventAt *time.Time `json:"lastEventAt,omitempty"`
}

// DefaultGeofenceConfig returns the configuration applied when none is given
func DefaultGeofenceConfig() GeofenceConfig {
	return GeofenceConfig{
		AlertOnEnter:  true,
		AlertOnExit:   true,
		AllowedUsers:  []string{},
		AllowedGroups: []string{},
		Schedule:      DefaultSchedule(),
	}
}

// DefaultSchedule is a disabled, all-day schedule
func DefaultSchedule() Schedule {
	return Schedule{
		Enabled:   false,
		Days:      []string{},
		StartTime: "00:00",
		EndTime:   "23:59",
	}
}

// Allows reports whether t falls inside the schedule. t must already be in
// the location the schedule is expressed in.
func (s Schedule) Allows(t time.Time) bool {
	if !s.Enabled {
		return true
	}

	day := strings.ToLower(t.Weekday().String())
	found := false
	for _, d := range s.Days {
		if strings.EqualFold(d, day) {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	current := t.Format("15:04")
	return current >= s.StartTime && current <= s.EndTime
}

// IsActiveAt reports whether the geofence is active and inside its schedule at t
func (g *Geofence) IsActiveAt(t time.Time) bool {
	if !g.Active {
		return false
	}
	return g.Config.Schedule.Allows(t)
}

// HasAccess reports whether samples from userID are evaluated against this geofence.
// No restrictions means everyone is evaluated.
func (g *Geofence) HasAccess(userID string) bool {
	if len(g.Config.AllowedUsers) == 0 && len(g.Config.AllowedGroups) == 0 {
		return true
	}
	for _, id := range g.Config.AllowedUsers {
		if id == userID {
			return true
		}
	}
	// TODO: resolve group membership for AllowedGroups once groups are stored;
	// until then a group-only restriction denies every user.
	return false
}

// Record applies one transition to the counters
func (s *GeofenceStats) Record(t TransitionType, at time.Time) {
	s.TotalEvents++
	switch t {
	case TransitionEnter:
		s.TotalEnters++
	case TransitionExit:
		s.TotalExits++
	}
	stamp := at
	s.LastEventAt = &stamp
}

// GeofenceInput is the payload for creating a geofence
type GeofenceInput struct {
	OrganizationID string               `json:"organizationId"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Color          string               `json:"color"`
	Geometry       Geometry             `json:"geometry"`
	Config         *GeofenceConfigInput `json:"config,omitempty"`
}

// GeofenceConfigInput mirrors GeofenceConfig with optional fields so that
// omitted values keep their defaults
type GeofenceConfigInput struct {
	AlertOnEnter  *bool     `json:"alertOnEnter,omitempty"`
	AlertOnExit   *bool     `json:"alertOnExit,omitempty"`
	EnterSeverity Severity  `json:"enterSeverity,omitempty"`
	ExitSeverity  Severity  `json:"exitSeverity,omitempty"`
	AllowedUsers  []string  `json:"allowedUsers,omitempty"`
	AllowedGroups []string  `json:"allowedGroups,omitempty"`
	Schedule      *Schedule `json:"schedule,omitempty"`
}

// ApplyTo overlays the set fields of in onto cfg
func (in *GeofenceConfigInput) ApplyTo(cfg *GeofenceConfig) {
	if in == nil {
		return
	}
	if in.AlertOnEnter != nil {
		cfg.AlertOnEnter = *in.AlertOnEnter
	}
	if in.AlertOnExit != nil {
		cfg.AlertOnExit = *in.AlertOnExit
	}
	if in.EnterSeverity != "" {
		cfg.EnterSeverity = in.EnterSeverity
	}
	if in.ExitSeverity != "" {
		cfg.ExitSeverity = in.ExitSeverity
	}
	if in.AllowedUsers != nil {
		cfg.AllowedUsers = in.AllowedUsers
	}
	if in.AllowedGroups != nil {
		cfg.AllowedGroups = in.AllowedGroups
	}
	if in.Schedule != nil {
		cfg.Schedule = *in.Schedule
	}
}

// GeofenceUpdate is the payload for a partial geofence update
type GeofenceUpdate struct {
	Name        *string              `json:"name,omitempty"`
	Description *string              `json:"description,omitempty"`
	Color       *string              `json:"color,omitempty"`
	Geometry    *Geometry            `json:"geometry,omitempty"`
	Config      *GeofenceConfigInput `json:"config,omitempty"`
	Active      *bool                `json:"active,omitempty"`
}
