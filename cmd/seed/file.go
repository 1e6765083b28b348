package main

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/jengzang/tracking-backend-go/internal/models"
)

type seedFile struct {
	Organization string         `yaml:"organization"`
	CreatedBy    string         `yaml:"createdBy"`
	Geofences    []seedGeofence `yaml:"geofences"`
}

type seedGeofence struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	Color         string        `yaml:"color"`
	Circle        *seedCircle   `yaml:"circle"`
	Polygon       [][2]float64  `yaml:"polygon"` // [lon, lat] pairs
	AlertOnEnter  *bool         `yaml:"alertOnEnter"`
	AlertOnExit   *bool         `yaml:"alertOnExit"`
	EnterSeverity string        `yaml:"enterSeverity"`
	ExitSeverity  string        `yaml:"exitSeverity"`
	AllowedUsers  []string      `yaml:"allowedUsers"`
	Schedule      *seedSchedule `yaml:"schedule"`
}

type seedCircle struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Radius    float64 `yaml:"radius"`
}

type seedSchedule struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start"`
	End   string   `yaml:"end"`
}

func parseSeedFile(data []byte) (*seedFile, error) {
	var f seedFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.Strict()); err != nil {
		return nil, err
	}
	if f.Organization == "" {
		return nil, errors.New("organization is required")
	}
	if f.CreatedBy == "" {
		return nil, errors.New("createdBy is required")
	}
	return &f, nil
}

// inputs converts the file into service inputs. Field validation is left to
// the geofence service.
func (f *seedFile) inputs() ([]models.GeofenceInput, error) {
	out := make([]models.GeofenceInput, 0, len(f.Geofences))
	for i, sg := range f.Geofences {
		in := models.GeofenceInput{
			OrganizationID: f.Organization,
			Name:           sg.Name,
			Description:    sg.Description,
			Color:          sg.Color,
		}

		switch {
		case sg.Circle != nil && sg.Polygon != nil:
			return nil, fmt.Errorf("geofences[%d]: circle and polygon are exclusive", i)
		case sg.Circle != nil:
			in.Geometry = models.CircleGeometry(sg.Circle.Latitude, sg.Circle.Longitude, sg.Circle.Radius)
		case sg.Polygon != nil:
			ring := make([]models.Position, len(sg.Polygon))
			for j, p := range sg.Polygon {
				ring[j] = models.Position(p)
			}
			in.Geometry = models.PolygonGeometry(ring)
		default:
			return nil, fmt.Errorf("geofences[%d]: circle or polygon is required", i)
		}

		cfg := &models.GeofenceConfigInput{
			AlertOnEnter:  sg.AlertOnEnter,
			AlertOnExit:   sg.AlertOnExit,
			EnterSeverity: models.Severity(sg.EnterSeverity),
			ExitSeverity:  models.Severity(sg.ExitSeverity),
			AllowedUsers:  sg.AllowedUsers,
		}
		if s := sg.Schedule; s != nil {
			cfg.Schedule = &models.Schedule{
				Enabled:   true,
				Days:      s.Days,
				StartTime: s.Start,
				EndTime:   s.End,
			}
		}
		in.Config = cfg
		out = append(out, in)
	}
	return out, nil
}
