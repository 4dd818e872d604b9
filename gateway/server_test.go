package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vizflow/health"
	"github.com/c360/vizflow/loader"
	"github.com/c360/vizflow/pipeline"
	"github.com/c360/vizflow/pkg/cache"
	"github.com/c360/vizflow/pkg/retry"
	"github.com/c360/vizflow/render"
	"github.com/c360/vizflow/resolver"
	"github.com/c360/vizflow/types"
)

func testServer(t *testing.T) (*Server, *render.RecordingEngine) {
	t.Helper()

	engine := render.NewRecordingEngine()
	deps := loader.New()
	require.NoError(t, deps.Register("render-engine", func(ctx context.Context) (any, error) {
		return engine, nil
	}))

	repo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/MISSING") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("HEADER " + r.URL.Path))
	}))
	t.Cleanup(repo.Close)

	payloadCache, err := cache.NewLRU[resolver.Entry](32)
	require.NoError(t, err)
	resCfg := resolver.DefaultConfig()
	resCfg.Endpoint = repo.URL
	resCfg.Retry = retry.None()
	res, err := resolver.New(resCfg, payloadCache, deps)
	require.NoError(t, err)

	renderCache, err := cache.NewLRU[pipeline.RenderEntry](32)
	require.NoError(t, err)
	coord, err := pipeline.NewCoordinator(pipeline.DefaultConfig(), deps, res,
		render.NewExecutor(render.WithSettleDelay(0)), renderCache)
	require.NoError(t, err)

	srv, err := NewServer(DefaultConfig(), coord, nil, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Setup())
	return srv, engine
}

func postRender(t *testing.T, handler http.Handler, req types.VisualizationRequest) (*httptest.ResponseRecorder, renderResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/render", bytes.NewReader(body)))

	var resp renderResponse
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func TestRenderEndpointSuccess(t *testing.T) {
	srv, _ := testServer(t)

	rec, resp := postRender(t, srv.Handler(), types.VisualizationRequest{
		Kind:       types.KindRemoteID,
		Identifier: "2244",
		Style:      types.StyleOptions{Representation: "stick", ColorScheme: "element"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.State)
	assert.Contains(t, resp.Fingerprint, "remote-id:2244:stick")
	assert.NotEmpty(t, resp.SurfaceID)
}

func TestRenderEndpointRejectsBadBody(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/render",
		strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenderEndpointRejectsInvalidRequest(t *testing.T) {
	srv, _ := testServer(t)

	rec, _ := postRender(t, srv.Handler(), types.VisualizationRequest{
		Kind:       "sculpture",
		Identifier: "2244",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenderEndpointReportsUpstreamFailure(t *testing.T) {
	srv, _ := testServer(t)

	rec, resp := postRender(t, srv.Handler(), types.VisualizationRequest{
		Kind:       types.KindRemoteID,
		Identifier: "MISSING",
		Style:      types.StyleOptions{Representation: "stick"},
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "error", resp.State)
	assert.Equal(t, "RemoteFetchError{404}", resp.Reason)
}

func TestRenderEndpointReportsEngineFailure(t *testing.T) {
	srv, engine := testServer(t)
	engine.FailFlush = true

	rec, resp := postRender(t, srv.Handler(), types.VisualizationRequest{
		Kind:       types.KindRemoteID,
		Identifier: "2244",
		Style:      types.StyleOptions{Representation: "stick"},
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "error", resp.State)
	assert.Equal(t, "RenderFailed", resp.Reason)
}

func TestRenderLookupAndEvict(t *testing.T) {
	srv, _ := testServer(t)

	_, resp := postRender(t, srv.Handler(), types.VisualizationRequest{
		Kind:       types.KindRemoteID,
		Identifier: "2244",
		Style:      types.StyleOptions{Representation: "stick"},
	})
	require.Equal(t, "success", resp.State)

	path := "/v1/render/" + url.PathEscape(resp.Fingerprint)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var lookup lookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lookup))
	assert.Equal(t, resp.Fingerprint, lookup.Fingerprint)
	assert.Equal(t, "2244", lookup.SourceRequest.Identifier)
	assert.False(t, lookup.CompletedAt.IsZero())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderLookupUnknownFingerprint(t *testing.T) {
	srv, _ := testServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/render/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpointAggregatesComponents(t *testing.T) {
	srv, engine := testServer(t)

	// Not started: the gateway component is unhealthy.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var agg health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, "vizflow", agg.Component)
	assert.True(t, agg.IsUnhealthy())

	// A failed render marks the pipeline degraded alongside it.
	engine.FailFlush = true
	postRender(t, srv.Handler(), types.VisualizationRequest{
		Kind:       types.KindRemoteID,
		Identifier: "2244",
		Style:      types.StyleOptions{Representation: "stick"},
	})

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))

	found := false
	for _, sub := range agg.SubStatuses {
		if sub.Component == "pipeline" {
			found = true
			assert.True(t, sub.IsDegraded())
		}
	}
	assert.True(t, found, "pipeline sub-status reported")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/render", nil)
	req.Header.Set("Origin", "https://viewer.example.org")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://viewer.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEventStreamDeliversTransitions(t *testing.T) {
	srv, _ := testServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	go func() {
		// Give the upgraded handler a moment to register its watcher.
		time.Sleep(100 * time.Millisecond)
		body, _ := json.Marshal(types.VisualizationRequest{
			Kind:       types.KindRemoteID,
			Identifier: "4HHB",
			Style:      types.StyleOptions{Representation: "cartoon"},
		})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/render", bytes.NewReader(body)))
	}()

	states := make([]string, 0)
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn.SetReadDeadline(deadline) //nolint:errcheck
		var ev pipeline.Event
		require.NoError(t, conn.ReadJSON(&ev))
		states = append(states, ev.State)
		if ev.State == "success" || ev.State == "error" {
			break
		}
	}
	assert.Equal(t, []string{
		"loading-dependencies", "resolving-payload", "rendering", "success",
	}, states)
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{TimeoutStr: "bogus"}
	assert.Error(t, cfg.Validate())

	cfg = Config{TimeoutStr: "1ms"}
	assert.Error(t, cfg.Validate())

	cfg = Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.BindAddress)
	assert.Equal(t, 60*time.Second, cfg.Timeout())
	assert.Equal(t, 1024, cfg.SurfaceWidth)
}

func TestServerLifecycle(t *testing.T) {
	srv, _ := testServer(t)
	srv.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(ctx, ready)
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never became ready")
	}
	assert.True(t, srv.IsRunning())

	require.NoError(t, srv.Stop(5*time.Second))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.False(t, srv.IsRunning())
}
