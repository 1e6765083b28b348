package models

import "time"

// LocationSample is one GPS fix reported by a member's device
type LocationSample struct {
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Accuracy       float64   `json:"accuracy"`
	Altitude       float64   `json:"altitude,omitempty"`
	Speed          float64   `json:"speed,omitempty"`
	Heading        float64   `json:"heading,omitempty"`
	BatteryLevel   *float64  `json:"batteryLevel,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Location is a persisted sample
type Location struct {
	ID string `json:"id"`
	LocationSample
	ServerTimestamp time.Time `json:"serverTimestamp"`
}

// LocationSnapshot is the most recent known position of a user
type LocationSnapshot struct {
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Accuracy       float64   `json:"accuracy"`
	Speed          float64   `json:"speed,omitempty"`
	Heading        float64   `json:"heading,omitempty"`
	BatteryLevel   *float64  `json:"batteryLevel,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TransitionEvent is a detected geofence enter or exit
type TransitionEvent struct {
	Type     TransitionType `json:"type"`
	Geofence *Geofence      `json:"geofence"`
	Alert    *Alert         `json:"alert"`
}

// IngestResult is returned after a sample was accepted
type IngestResult struct {
	LocationID     string            `json:"locationId"`
	GeofenceEvents []TransitionEvent `json:"geofenceEvents"`
}

// BatchResult summarises a batch upload
type BatchResult struct {
	InsertedCount  int               `json:"insertedCount"`
	FailedCount    int               `json:"failedCount"`
	LastLocationID string            `json:"lastLocationId,omitempty"`
	GeofenceEvents []TransitionEvent `json:"geofenceEvents"`
}
