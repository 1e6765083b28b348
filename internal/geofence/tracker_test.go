package geofence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_DefaultsToOutside(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.PreviousState("U1", "g1"))
	assert.Equal(t, 0, tr.Size())
}

func TestTracker_SetAndRead(t *testing.T) {
	tr := NewTracker()
	tr.SetState("U1", "g1", true)
	tr.SetState("U1", "g2", false)
	tr.SetState("U2", "g1", true)

	assert.True(t, tr.PreviousState("U1", "g1"))
	assert.False(t, tr.PreviousState("U1", "g2"))
	assert.True(t, tr.PreviousState("U2", "g1"))
	assert.False(t, tr.PreviousState("U2", "g2"))
	assert.Equal(t, 3, tr.Size())

	tr.SetState("U1", "g1", false)
	assert.False(t, tr.PreviousState("U1", "g1"))
}

func TestTracker_ClearAll(t *testing.T) {
	tr := NewTracker()
	tr.SetState("U1", "g1", true)
	tr.SetState("U2", "g1", true)

	tr.ClearAll()

	assert.Equal(t, 0, tr.Size())
	assert.False(t, tr.PreviousState("U1", "g1"))
	assert.False(t, tr.PreviousState("U2", "g1"))
}

func TestTracker_AcquireSerializesSameUser(t *testing.T) {
	tr := NewTracker()
	release := tr.Acquire("U1")

	acquired := make(chan struct{})
	go func() {
		r := tr.Acquire("U1")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire for the same user must wait")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never proceeded")
	}
}

func TestTracker_AcquireDifferentUsersIndependent(t *testing.T) {
	tr := NewTracker()
	release := tr.Acquire("U1")
	defer release()

	done := make(chan struct{})
	go func() {
		r := tr.Acquire("U2")
		r()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Acquire for another user blocked")
	}
}

func TestTracker_ClearAllWaitsForEvaluation(t *testing.T) {
	tr := NewTracker()
	release := tr.Acquire("U1")
	tr.SetState("U1", "g1", true)

	cleared := make(chan struct{})
	go func() {
		tr.ClearAll()
		close(cleared)
	}()

	select {
	case <-cleared:
		t.Fatal("ClearAll ran during an evaluation")
	case <-time.After(50 * time.Millisecond):
	}

	assert.True(t, tr.PreviousState("U1", "g1"))
	release()

	select {
	case <-cleared:
	case <-time.After(time.Second):
		t.Fatal("ClearAll never ran")
	}
	assert.Equal(t, 0, tr.Size())
}

func TestTracker_ConcurrentWriters(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := []string{"U1", "U2"}[n%2]
			for j := 0; j < 100; j++ {
				release := tr.Acquire(user)
				tr.SetState(user, "g1", j%2 == 0)
				_ = tr.PreviousState(user, "g1")
				release()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 2, tr.Size())
}
