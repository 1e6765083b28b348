package geofence

import "sync"

// Tracker remembers, per (user, geofence), whether the user was last seen
// inside. A missing entry means outside.
//
// Evaluations for one user are serialized through Acquire; different users
// never wait on each other. ClearAll waits for in-flight evaluations to finish
// and blocks new ones while it runs.
type Tracker struct {
	gate  sync.RWMutex
	mu    sync.Mutex
	users map[string]*userState
}

type userState struct {
	turn   sync.Mutex
	mu     sync.Mutex
	inside map[string]bool
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]*userState)}
}

// Acquire takes the single-writer slot for userID. The returned function
// releases it and must be called exactly once.
func (t *Tracker) Acquire(userID string) (release func()) {
	t.gate.RLock()
	u := t.user(userID, true)
	u.turn.Lock()
	return func() {
		u.turn.Unlock()
		t.gate.RUnlock()
	}
}

// PreviousState returns the last recorded state, false when unknown
func (t *Tracker) PreviousState(userID, geofenceID string) bool {
	u := t.user(userID, false)
	if u == nil {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.inside[geofenceID]
}

// SetState records whether the user is inside the geofence
func (t *Tracker) SetState(userID, geofenceID string, inside bool) {
	u := t.user(userID, true)
	u.mu.Lock()
	u.inside[geofenceID] = inside
	u.mu.Unlock()
}

// ClearAll drops every entry. The next sample of every user is evaluated
// against an "outside" baseline.
func (t *Tracker) ClearAll() {
	t.gate.Lock()
	defer t.gate.Unlock()

	t.mu.Lock()
	t.users = make(map[string]*userState)
	t.mu.Unlock()
}

// Size returns the number of tracked (user, geofence) pairs
func (t *Tracker) Size() int {
	t.mu.Lock()
	users := make([]*userState, 0, len(t.users))
	for _, u := range t.users {
		users = append(users, u)
	}
	t.mu.Unlock()

	n := 0
	for _, u := range users {
		u.mu.Lock()
		n += len(u.inside)
		u.mu.Unlock()
	}
	return n
}

func (t *Tracker) user(userID string, create bool) *userState {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.users[userID]
	if !ok && create {
		u = &userState{inside: make(map[string]bool)}
		t.users[userID] = u
	}
	return u
}
