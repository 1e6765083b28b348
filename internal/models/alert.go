package models

import "time"

// AlertType classifies an alert
type AlertType string

const (
	AlertTypeSOS           AlertType = "sos"
	AlertTypeGeofenceEnter AlertType = "geofence_enter"
	AlertTypeGeofenceExit  AlertType = "geofence_exit"
	AlertTypeBatteryLow    AlertType = "battery_low"
)

// Severity of an alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusDismissed    AlertStatus = "dismissed"
)

// Alert priorities, higher sorts first
const (
	PrioritySOS        = 100
	PriorityGeofence   = 50
	PriorityBatteryLow = 30
)

// Alert is raised for SOS, geofence transitions and low battery
type Alert struct {
	ID             string                 `json:"id"`
	Type           AlertType              `json:"type"`
	Severity       Severity               `json:"severity"`
	UserID         string                 `json:"userId"`
	OrganizationID string                 `json:"organizationId"`
	GeofenceID     string                 `json:"geofenceId,omitempty"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Location       *AlertLocation         `json:"location,omitempty"`
	Status         AlertStatus            `json:"status"`
	Priority       int                    `json:"priority"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	AcknowledgedBy string                 `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time             `json:"acknowledgedAt,omitempty"`
	ResolvedBy     string                 `json:"resolvedBy,omitempty"`
	ResolvedAt     *time.Time             `json:"resolvedAt,omitempty"`
	Resolution     string                 `json:"resolution,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// AlertLocation is where the alert was raised
type AlertLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// AlertFilter represents filter parameters for listing alerts
type AlertFilter struct {
	Type     string `form:"type"`
	Severity string `form:"severity"`
	Status   string `form:"status"`
	UserID   string `form:"userId"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// AlertsResponse represents a paginated list of alerts
type AlertsResponse struct {
	Data       []Alert `json:"data"`
	Total      int64   `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	TotalPages int     `json:"totalPages"`
}
