package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/api"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistry_CreateAndLookup(t *testing.T) {
	r := NewRegistry()

	a1 := r.Create("a", 2)
	a2 := r.Create("a", 1)
	b1 := r.Create("b", 1)

	assert.NotEmpty(t, a1.ID)
	assert.NotEqual(t, a1.ID, a2.ID)
	assert.Equal(t, 0, a1.Index)
	assert.Equal(t, 1, a2.Index)
	assert.Equal(t, 0, b1.Index)
	assert.Equal(t, int64(2), a1.Weight())

	got, ok := r.Get(a2.ID)
	require.True(t, ok)
	assert.Same(t, a2, got)

	assert.Equal(t, []*ServiceInstance{a1, a2}, r.ForService("a"))
	assert.Equal(t, []*ServiceInstance{a1, a2, b1}, r.All())
	assert.Empty(t, r.ForService("missing"))
}

func TestRegistry_IndexReusesFreedSlots(t *testing.T) {
	r := NewRegistry()
	first := r.Create("a", 1)
	first.UpdateState(api.StateRunning, nil)
	second := r.Create("a", 1)
	second.UpdateState(api.StateRunning, nil)

	first.UpdateState(api.StateStopped, nil)
	third := r.Create("a", 1)
	assert.Equal(t, 0, third.Index)

	require.NoError(t, r.Deregister(second.ID))
	third.UpdateState(api.StateStarting, nil)
	fourth := r.Create("a", 1)
	assert.Equal(t, 1, fourth.Index)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(NewServiceInstance("", "a", 1)))

	inst := NewServiceInstance("fixed", "a", 1)
	require.NoError(t, r.Register(inst))
	err := r.Register(NewServiceInstance("fixed", "a", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_Deregister(t *testing.T) {
	r := NewRegistry()
	a := r.Create("a", 1)
	b := r.Create("a", 1)

	require.NoError(t, r.Deregister(a.ID))
	_, ok := r.Get(a.ID)
	assert.False(t, ok)
	assert.Equal(t, []*ServiceInstance{b}, r.ForService("a"))

	err := r.Deregister(a.ID)
	assert.True(t, api.IsNotFound(err))

	require.NoError(t, r.Deregister(b.ID))
	assert.Empty(t, r.All())
}

func TestRegistry_Count(t *testing.T) {
	r := NewRegistry()
	r.Create("a", 1).UpdateState(api.StateRunning, nil)
	r.Create("a", 1).UpdateState(api.StateStarting, nil)
	r.Create("a", 1).UpdateState(api.StateMaintenance, nil)
	r.Create("a", 1).UpdateState(api.StateFailed, errors.New("boom"))

	assert.Equal(t, 2, r.Count("a", api.StateRunning, api.StateStarting))
	assert.Equal(t, 1, r.Count("a", api.StateMaintenance))
	assert.Equal(t, 0, r.Count("b", api.StateRunning))
}

func TestRegistry_ReapStopped(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry()
	r.SetClock(clock.Now)

	old := r.Create("a", 1)
	old.UpdateState(api.StateStopped, nil)
	kept := r.Create("a", 1)
	kept.UpdateState(api.StateStopped, nil)
	clock.Advance(4 * time.Minute)
	recent := r.Create("a", 1)
	recent.UpdateState(api.StateStopped, nil)
	running := r.Create("a", 1)
	running.UpdateState(api.StateRunning, nil)

	clock.Advance(2 * time.Minute)
	reaped := r.ReapStopped(5*time.Minute, func(inst *ServiceInstance) bool { return inst.ID == kept.ID })

	require.Len(t, reaped, 1)
	assert.Equal(t, old.ID, reaped[0].ID)
	_, ok := r.Get(old.ID)
	assert.False(t, ok)
	_, ok = r.Get(recent.ID)
	assert.True(t, ok)
	_, ok = r.Get(running.ID)
	assert.True(t, ok)
	_, ok = r.Get(kept.ID)
	assert.True(t, ok)
}

func TestRegistry_StateChangeCallback(t *testing.T) {
	r := NewRegistry()

	type change struct {
		id       string
		old, new api.LifecycleState
	}
	var mu sync.Mutex
	var changes []change
	r.SetStateChangeCallback(func(inst *ServiceInstance, oldState, newState api.LifecycleState, err error) {
		// Reading back inside the callback must not deadlock.
		_ = inst.State()
		mu.Lock()
		changes = append(changes, change{inst.ID, oldState, newState})
		mu.Unlock()
	})

	inst := r.Create("a", 1)
	inst.UpdateState(api.StateStarting, nil)
	inst.UpdateState(api.StateStarting, nil)
	inst.UpdateState(api.StateRunning, nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []change{
		{inst.ID, api.StateUnknown, api.StateStarting},
		{inst.ID, api.StateStarting, api.StateRunning},
	}, changes)
}
