package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jengzang/tracking-backend-go/internal/models"
)

// MessageType names the kind of payload carried by a Message
type MessageType string

const (
	MessageLocation MessageType = "location"
	MessageGeofence MessageType = "geofence"
	MessageAlert    MessageType = "alert"
)

// Message is one event broadcast to an organization's subscribers
type Message struct {
	Type           MessageType `json:"type"`
	OrganizationID string      `json:"organizationId"`
	Data           interface{} `json:"data"`
	Timestamp      time.Time   `json:"timestamp"`
}

// GeofenceEventPayload is the data of a MessageGeofence message
type GeofenceEventPayload struct {
	UserID       string                `json:"userId"`
	Type         models.TransitionType `json:"type"`
	GeofenceID   string                `json:"geofenceId"`
	GeofenceName string                `json:"geofenceName"`
	AlertID      string                `json:"alertId,omitempty"`
}

// Hub fans messages out to per-organization subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the message.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
	logger  *slog.Logger
	now     func() time.Time
}

// Subscription receives the messages of one organization until closed
type Subscription struct {
	hub  *Hub
	org  string
	ch   chan Message
	once sync.Once
}

// NewHub creates a hub whose subscribers buffer up to buffer messages
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With("component", "realtime_hub"),
		now:    time.Now,
	}
}

// Subscribe registers a subscriber for organizationID
func (h *Hub) Subscribe(organizationID string) *Subscription {
	s := &Subscription{
		hub: h,
		org: organizationID,
		ch:  make(chan Message, h.buffer),
	}

	h.mu.Lock()
	set, ok := h.subs[organizationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[organizationID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	return s
}

// Messages returns the channel messages arrive on. It is closed by Close.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.org]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.org)
			}
		}
		h.mu.Unlock()
		close(s.ch)
	})
}

// Publish sends msg to every subscriber of its organization and returns how
// many received it
func (h *Hub) Publish(msg Message) int {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.subs[msg.OrganizationID] {
		select {
		case s.ch <- msg:
			delivered++
		default:
			h.dropped.Add(1)
			h.logger.Debug("dropping message for slow subscriber", "organization_id", msg.OrganizationID, "type", msg.Type)
		}
	}
	return delivered
}

// Subscribers returns the number of open subscriptions for organizationID
func (h *Hub) Subscribers(organizationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[organizationID])
}

// Dropped returns how many messages were dropped for slow subscribers
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// PublishLocation broadcasts a user's new position
func (h *Hub) PublishLocation(snapshot models.LocationSnapshot) {
	h.Publish(Message{Type: MessageLocation, OrganizationID: snapshot.OrganizationID, Data: snapshot})
}

// PublishTransitions broadcasts geofence events detected for userID
func (h *Hub) PublishTransitions(organizationID, userID string, events []models.TransitionEvent) {
	for _, ev := range events {
		payload := GeofenceEventPayload{
			UserID: userID,
			Type:   ev.Type,
		}
		if ev.Geofence != nil {
			payload.GeofenceID = ev.Geofence.ID
			payload.GeofenceName = ev.Geofence.Name
		}
		if ev.Alert != nil {
			payload.AlertID = ev.Alert.ID
		}
		h.Publish(Message{Type: MessageGeofence, OrganizationID: organizationID, Data: payload})
	}
}

// Notify broadcasts an alert to its organization
func (h *Hub) Notify(ctx context.Context, alert *models.Alert) error {
	h.Publish(Message{Type: MessageAlert, OrganizationID: alert.OrganizationID, Data: alert})
	return nil
}
