package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovehq/grove/pkg/garden"
	"github.com/grovehq/grove/pkg/reconcile"
	"github.com/grovehq/grove/pkg/router"
	"github.com/grovehq/grove/pkg/storage"
	"github.com/grovehq/grove/pkg/types"
)

// recordingBus satisfies events.Publisher and keeps what was published.
type recordingBus struct {
	mu     sync.Mutex
	events []*types.Event
}

func (b *recordingBus) Publish(ev *types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func newTestServer(t *testing.T) (*httptest.Server, *garden.Service) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rec, err := reconcile.New(map[string]any{"host": "localhost", "port": 2337})
	require.NoError(t, err)

	svc := garden.NewService(store, &recordingBus{}, rec, "parent")
	table := router.NewTable("parent", svc)
	table.Handle(types.OperationGardenSync, func(ctx context.Context, op *types.Operation) error {
		return svc.Sync(ctx, op.StringArg("sync_target"))
	})
	svc.SetRouter(table)
	require.NoError(t, svc.EnsureLocal())

	srv := httptest.NewServer(NewServer(svc, table).Routes())
	t.Cleanup(srv.Close)
	return srv, svc
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// TestGardenEndpoints tests the garden CRUD surface end to end
func TestGardenEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("create", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/gardens", &types.Garden{
			Name:             "child",
			ConnectionType:   types.ConnectionHTTP,
			ConnectionParams: types.ConnectionParams{"http": map[string]any{"host": "c", "port": 8080}},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created types.Garden
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, types.StatusInitializing, created.Status)
	})

	t.Run("create invalid payload", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/v1/gardens", "application/json", bytes.NewBufferString("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("get", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/gardens/child", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got types.Garden
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "child", got.Name)
	})

	t.Run("get missing", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/gardens/ghost", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("list includes local", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/gardens", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var gardens []*types.Garden
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&gardens))
		assert.Len(t, gardens, 2)
	})

	t.Run("patch status", func(t *testing.T) {
		resp := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/gardens/child",
			map[string]any{"status": "RUNNING"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got types.Garden
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, types.StatusRunning, got.Status)
	})

	t.Run("patch connection config", func(t *testing.T) {
		resp := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/gardens/child", map[string]any{
			"connection_type": "HTTP",
			"connection_params": map[string]any{
				"http": map[string]any{"host": "child.example.com", "port": 9090},
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got types.Garden
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, types.StatusInitializing, got.Status, "reconfiguring resets status")
		httpParams, ok := got.ConnectionParams.HTTP()
		require.True(t, ok)
		assert.Equal(t, "child.example.com", httpParams["host"])
	})

	t.Run("patch nothing", func(t *testing.T) {
		resp := doJSON(t, http.MethodPatch, srv.URL+"/api/v1/gardens/child", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("add system", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/gardens/child/systems",
			&types.SystemRef{Name: "echo", Version: "1.0.0", Namespace: "default"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got types.Garden
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Len(t, got.Systems, 1)
	})

	t.Run("add system to unknown garden", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/gardens/ghost/systems",
			&types.SystemRef{Name: "echo", Version: "1.0.0", Namespace: "default"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/gardens/child", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/gardens/child", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

// TestSyncEndpoints tests the sync triggers
func TestSyncEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("sync all with no children", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sync", nil)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("sync addressed to the local garden", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/gardens/parent/sync", nil)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("sync addressed to unknown garden", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/gardens/ghost/sync", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

// TestOperationEndpoint tests the routed-operation ingress
func TestOperationEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("locally handled operation", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/operations", &types.Operation{
			Type: types.OperationGardenSync,
			Args: map[string]any{"sync_target": "parent"},
		})
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("unhandled operation type", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/operations",
			&types.Operation{Type: "UNKNOWN_OP"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// TestEventEndpoint tests the federation event ingress
func TestEventEndpoint(t *testing.T) {
	srv, svc := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/events", &types.Event{
		Name:   types.EventGardenSync,
		Garden: "child",
		Payload: &types.Garden{
			Name:   "child",
			Status: types.StatusRunning,
		},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	got, err := svc.Get("child")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, got.Status)
}

// TestHealthEndpoint tests the liveness probe
func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
