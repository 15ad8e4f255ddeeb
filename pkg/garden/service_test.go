package garden

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovehq/grove/pkg/reconcile"
	"github.com/grovehq/grove/pkg/storage"
	"github.com/grovehq/grove/pkg/types"
)

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []*types.Event
}

func (r *eventRecorder) Publish(ev *types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) named(name types.EventType) []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestService(t *testing.T) (*Service, *storage.BoltStore, *eventRecorder) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rec, err := reconcile.New(map[string]any{"host": "localhost", "port": 2337})
	require.NoError(t, err)

	bus := &eventRecorder{}
	svc := NewService(store, bus, rec, "parent")
	require.NoError(t, svc.EnsureLocal())
	bus.reset()

	return svc, store, bus
}

func validHTTPGarden(name string) *types.Garden {
	return &types.Garden{
		Name:           name,
		ConnectionType: types.ConnectionHTTP,
		ConnectionParams: types.ConnectionParams{
			"http": map[string]any{"host": name + ".example.com", "port": 8080},
		},
	}
}

// TestEnsureLocal tests local garden bootstrap
func TestEnsureLocal(t *testing.T) {
	svc, store, _ := newTestService(t)

	local, err := store.GetGarden("parent")
	require.NoError(t, err)
	assert.Equal(t, types.ConnectionLocal, local.ConnectionType)
	assert.Equal(t, types.StatusInitializing, local.Status)
	assert.NotEmpty(t, local.ID)

	// Second call is a no-op, not a duplicate error.
	require.NoError(t, svc.EnsureLocal())
}

// TestCreate tests garden creation rules
func TestCreate(t *testing.T) {
	svc, _, bus := newTestService(t)

	t.Run("assigns identity and default status", func(t *testing.T) {
		created, err := svc.Create(&types.Garden{Name: "child"})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, types.StatusInitializing, created.Status)
		assert.False(t, created.StatusInfo.Heartbeat.IsZero())

		evs := bus.named(types.EventGardenCreated)
		require.Len(t, evs, 1)
		assert.Equal(t, "parent", evs[0].Garden)
		assert.Equal(t, "child", evs[0].Payload.Name)
	})

	t.Run("sanitizes connection params on the way in", func(t *testing.T) {
		created, err := svc.Create(&types.Garden{
			Name:             "child2",
			ConnectionType:   types.ConnectionHTTP,
			ConnectionParams: types.ConnectionParams{"http": map[string]any{"host": "c2"}},
		})
		require.NoError(t, err)

		httpParams, ok := created.ConnectionParams.HTTP()
		require.True(t, ok)
		assert.Equal(t, "c2", httpParams["host"])
		assert.Equal(t, 2337, httpParams["port"])
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := svc.Create(&types.Garden{})
		assert.Error(t, err)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		bus.reset()
		_, err := svc.Create(&types.Garden{Name: "child"})
		require.Error(t, err)
		assert.Empty(t, bus.named(types.EventGardenCreated), "failed create must not publish")
	})
}

// TestGetSanitizesWithoutWriteback tests that reads return repaired
// params while leaving the stored record untouched
func TestGetSanitizesWithoutWriteback(t *testing.T) {
	svc, store, _ := newTestService(t)

	require.NoError(t, store.CreateGarden(&types.Garden{
		Name:             "stale",
		ConnectionType:   types.ConnectionHTTP,
		ConnectionParams: types.ConnectionParams{"http": map[string]any{"bogus": true}},
	}))

	got, err := svc.Get("stale")
	require.NoError(t, err)
	httpParams, ok := got.ConnectionParams.HTTP()
	require.True(t, ok)
	assert.Equal(t, "localhost", httpParams["host"])

	stored, err := store.GetGarden("stale")
	require.NoError(t, err)
	rawHTTP, ok := stored.ConnectionParams.HTTP()
	require.True(t, ok)
	assert.Equal(t, true, rawHTTP["bogus"], "read must not persist repairs")
}

// TestGetLocalName tests that the local garden's name resolves to the
// live local view
func TestGetLocalName(t *testing.T) {
	svc, store, _ := newTestService(t)

	require.NoError(t, store.UpsertSystem(&types.SystemRef{
		ID: "s1", Name: "echo", Version: "1.0.0", Namespace: "default", Garden: "parent", Local: true,
	}))

	got, err := svc.Get("parent")
	require.NoError(t, err)
	assert.Equal(t, types.ConnectionLocal, got.ConnectionType)
	require.Len(t, got.Systems, 1)
	assert.Equal(t, []string{"default"}, got.Namespaces)
}

// TestList tests garden listing and local filtering
func TestList(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(validHTTPGarden("child-a"))
	require.NoError(t, err)
	_, err = svc.Create(validHTTPGarden("child-b"))
	require.NoError(t, err)

	remote, err := svc.List(false)
	require.NoError(t, err)
	assert.Len(t, remote, 2)
	for _, g := range remote {
		assert.NotEqual(t, "parent", g.Name)
	}

	all, err := svc.List(true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// TestLocal tests local snapshot assembly from the system registry
func TestLocal(t *testing.T) {
	svc, store, _ := newTestService(t)

	require.NoError(t, store.UpsertSystem(&types.SystemRef{
		ID: "s1", Name: "echo", Version: "1.0.0", Namespace: "default", Garden: "parent", Local: true,
	}))
	require.NoError(t, store.UpsertSystem(&types.SystemRef{
		ID: "s2", Name: "relay", Version: "2.0.0", Namespace: "ops", Garden: "child", Local: false,
	}))

	t.Run("local systems only", func(t *testing.T) {
		local, err := svc.Local(false)
		require.NoError(t, err)
		require.Len(t, local.Systems, 1)
		assert.Equal(t, "echo", local.Systems[0].Name)
		assert.Equal(t, []string{"default"}, local.Namespaces)
	})

	t.Run("all systems", func(t *testing.T) {
		local, err := svc.Local(true)
		require.NoError(t, err)
		assert.Len(t, local.Systems, 2)
		assert.Equal(t, []string{"default", "ops"}, local.Namespaces)
	})
}

// TestUpdateStatus tests explicit status writes
func TestUpdateStatus(t *testing.T) {
	svc, _, bus := newTestService(t)

	_, err := svc.Create(validHTTPGarden("child"))
	require.NoError(t, err)
	bus.reset()

	updated, err := svc.UpdateStatus("child", types.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, updated.Status)
	assert.False(t, updated.StatusInfo.Heartbeat.IsZero())
	assert.Len(t, bus.named(types.EventGardenUpdated), 1)

	// Explicit writes bypass the guarded transitions: distress states
	// can be overwritten directly.
	_, err = svc.UpdateStatus("child", types.StatusStopped)
	require.NoError(t, err)
	updated, err = svc.UpdateStatus("child", types.StatusUnreachable)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnreachable, updated.Status)

	_, err = svc.UpdateStatus("ghost", types.StatusRunning)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// TestUpdateConfig tests connection reconfiguration
func TestUpdateConfig(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Create(validHTTPGarden("child"))
	require.NoError(t, err)
	_, err = svc.UpdateStatus("child", types.StatusRunning)
	require.NoError(t, err)

	t.Run("overwrites and resets status", func(t *testing.T) {
		updated, err := svc.UpdateConfig(&types.Garden{
			Name:             "child",
			ConnectionType:   types.ConnectionStomp,
			ConnectionParams: types.ConnectionParams{"stomp": map[string]any{"host": "mq", "port": 61613, "ssl": map[string]any{"use_ssl": false}}},
		})
		require.NoError(t, err)
		assert.Equal(t, types.ConnectionStomp, updated.ConnectionType)
		assert.Equal(t, types.StatusInitializing, updated.Status)
	})

	t.Run("lookup by id", func(t *testing.T) {
		updated, err := svc.UpdateConfig(&types.Garden{
			ID:               created.ID,
			ConnectionType:   types.ConnectionHTTP,
			ConnectionParams: types.ConnectionParams{"http": map[string]any{"host": "c", "port": 80}},
		})
		require.NoError(t, err)
		assert.Equal(t, "child", updated.Name)
		assert.Equal(t, types.ConnectionHTTP, updated.ConnectionType)
	})

	t.Run("unknown garden", func(t *testing.T) {
		_, err := svc.UpdateConfig(&types.Garden{Name: "ghost", ConnectionType: types.ConnectionHTTP})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

// TestRemove tests that removal takes the garden's systems with it
func TestRemove(t *testing.T) {
	svc, store, bus := newTestService(t)

	_, err := svc.Create(validHTTPGarden("child"))
	require.NoError(t, err)
	require.NoError(t, store.UpsertSystem(&types.SystemRef{
		ID: "s1", Name: "echo", Version: "1.0.0", Namespace: "default", Garden: "child",
	}))
	require.NoError(t, store.UpsertSystem(&types.SystemRef{
		ID: "s2", Name: "other", Version: "1.0.0", Namespace: "default", Garden: "parent",
	}))
	bus.reset()

	removed, err := svc.Remove("child")
	require.NoError(t, err)
	assert.Equal(t, "child", removed.Name)
	assert.Len(t, bus.named(types.EventGardenRemoved), 1)

	_, err = store.GetGarden("child")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetSystem("s1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "owned systems go with the garden")
	_, err = store.GetSystem("s2")
	assert.NoError(t, err, "other gardens' systems stay")

	_, err = svc.Remove("ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// TestAddSystem tests system-to-garden mapping
func TestAddSystem(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, err := svc.Create(validHTTPGarden("child"))
	require.NoError(t, err)

	t.Run("unknown garden is a domain error", func(t *testing.T) {
		_, err := svc.AddSystem(&types.SystemRef{Name: "echo", Version: "1.0.0", Namespace: "default"}, "ghost")
		assert.ErrorIs(t, err, ErrUnknownGarden)
	})

	t.Run("maps and registers the system", func(t *testing.T) {
		sys := &types.SystemRef{Name: "echo", Version: "1.0.0", Namespace: "default"}
		updated, err := svc.AddSystem(sys, "child")
		require.NoError(t, err)

		assert.Equal(t, "child", sys.Garden)
		assert.False(t, sys.Local)
		assert.NotEmpty(t, sys.ID)
		assert.Contains(t, updated.Namespaces, "default")
		require.Len(t, updated.Systems, 1)

		stored, err := store.GetSystem(sys.ID)
		require.NoError(t, err)
		assert.Equal(t, "child", stored.Garden)
	})

	t.Run("re-adding does not duplicate", func(t *testing.T) {
		sys := &types.SystemRef{Name: "echo", Version: "1.0.0", Namespace: "default"}
		updated, err := svc.AddSystem(sys, "child")
		require.NoError(t, err)
		assert.Len(t, updated.Systems, 1)
		assert.Equal(t, []string{"default"}, updated.Namespaces)
	})

	t.Run("local garden marks systems local", func(t *testing.T) {
		sys := &types.SystemRef{Name: "local-sys", Version: "1.0.0", Namespace: "default"}
		_, err := svc.AddSystem(sys, "parent")
		require.NoError(t, err)
		assert.True(t, sys.Local)
	})
}
