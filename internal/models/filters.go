package models

// GeofenceFilter represents filter parameters for listing geofences
type GeofenceFilter struct {
	OrganizationID string `form:"-"`
	Active         *bool  `form:"active"`
}

// LocationHistoryFilter represents filter parameters for a user's location history
type LocationHistoryFilter struct {
	UserID         string `form:"-"`
	OrganizationID string `form:"-"`
	StartTime      int64  `form:"startTime"` // unix milliseconds, inclusive
	EndTime        int64  `form:"endTime"`   // unix milliseconds, inclusive
	Limit          int    `form:"limit"`
}
