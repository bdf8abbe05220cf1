package langflow

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flowrelay/internal/domain"
	"flowrelay/internal/infra/config"
	"flowrelay/internal/infra/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func discoveryConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL:      baseURL,
		Discovery:    true,
		DiscoveryTTL: time.Minute,
	}
}

func TestCatalogDiscoversFlows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/flows" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[
			{"id": "uuid-1", "name": "Research Agent"},
			{"id": "uuid-2", "name": "Docs"},
			{"flow_id": "uuid-3", "title": "Titled Flow"},
			{"id": "uuid-4"},
			{"name": "no id, skipped"}
		]`))
	}))
	defer srv.Close()

	c := NewCatalog(discoveryConfig(srv.URL), nil, testLogger(), &metrics.Metrics{})
	reg := c.Registry(context.Background())

	if reg.Len() != 4 {
		t.Fatalf("Len = %d, want 4 (keys: %v)", reg.Len(), reg.Keys())
	}
	target, ok := reg.ByKey("research-agent")
	if !ok {
		t.Fatal("slugified key lookup failed")
	}
	if target.RemoteID != "uuid-1" || target.DisplayName != "Research Agent" {
		t.Errorf("target = %+v", target)
	}
	if _, ok := reg.ByKey("titled-flow"); !ok {
		t.Error("title fallback key missing")
	}
	if _, ok := reg.ByKey("flow-uuid-4"); !ok {
		t.Error("generated name for nameless flow missing")
	}
}

func TestCatalogWrappedListShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"flows": [{"id": "uuid-9", "name": "Wrapped"}]}`))
	}))
	defer srv.Close()

	c := NewCatalog(discoveryConfig(srv.URL), nil, testLogger(), &metrics.Metrics{})
	reg := c.Registry(context.Background())
	if _, ok := reg.ByKey("wrapped"); !ok {
		t.Errorf("wrapped shape not parsed, keys: %v", reg.Keys())
	}
}

func TestCatalogFallbackPaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		if r.URL.Path == "/api/flows" {
			w.Write([]byte(`[{"id": "uuid-5", "name": "Found Late"}]`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewCatalog(discoveryConfig(srv.URL), nil, testLogger(), &metrics.Metrics{})
	reg := c.Registry(context.Background())

	if _, ok := reg.ByKey("found-late"); !ok {
		t.Fatalf("fallback endpoint not used, paths tried: %v", paths)
	}
	if len(paths) != 3 {
		t.Errorf("paths tried = %v, want all three variants", paths)
	}
}

func TestCatalogStaticPrecedence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": "uuid-discovered", "name": "Docs"}]`))
	}))
	defer srv.Close()

	static := []domain.Target{{Key: "docs", RemoteID: "uuid-static", DisplayName: "Docs (pinned)"}}
	c := NewCatalog(discoveryConfig(srv.URL), static, testLogger(), &metrics.Metrics{})
	reg := c.Registry(context.Background())

	target, ok := reg.ByKey("docs")
	if !ok {
		t.Fatal("docs missing")
	}
	if target.RemoteID != "uuid-static" {
		t.Errorf("RemoteID = %q, static config must win over discovery", target.RemoteID)
	}
}

func TestCatalogTTLCaching(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`[{"id": "uuid-1", "name": "One"}]`))
	}))
	defer srv.Close()

	c := NewCatalog(discoveryConfig(srv.URL), nil, testLogger(), &metrics.Metrics{})
	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Registry(ctx)
	c.Registry(ctx)
	c.Registry(ctx)
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1 while cache is fresh", hits.Load())
	}

	now = now.Add(2 * time.Minute)
	c.Registry(ctx)
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want refresh after TTL", hits.Load())
	}
}

func TestCatalogKeepsSnapshotOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"id": "uuid-1", "name": "One"}]`))
	}))
	defer srv.Close()

	m := &metrics.Metrics{}
	c := NewCatalog(discoveryConfig(srv.URL), nil, testLogger(), m)
	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	reg := c.Registry(ctx)
	if reg.Len() != 1 {
		t.Fatalf("initial Len = %d", reg.Len())
	}

	fail.Store(true)
	now = now.Add(2 * time.Minute)
	reg = c.Registry(ctx)
	if reg.Len() != 1 {
		t.Errorf("Len = %d after failed refresh, want previous snapshot kept", reg.Len())
	}
	if m.DiscoveryFailures.Load() != 1 {
		t.Errorf("DiscoveryFailures = %d", m.DiscoveryFailures.Load())
	}
}

func TestCatalogReadersNotBlockedByRefresh(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		w.Write([]byte(`[{"id": "uuid-1", "name": "Slow Flow"}]`))
	}))
	defer srv.Close()

	static := []domain.Target{{Key: "pinned", RemoteID: "uuid-static"}}
	c := NewCatalog(discoveryConfig(srv.URL), static, testLogger(), &metrics.Metrics{})
	ctx := context.Background()

	refreshed := make(chan struct{})
	go func() {
		c.Registry(ctx)
		close(refreshed)
	}()
	<-entered

	// A reader arriving while the fetch is in flight must be served the
	// previous snapshot immediately, not wait for the round trip.
	got := make(chan *domain.Registry, 1)
	go func() { got <- c.Registry(ctx) }()
	select {
	case reg := <-got:
		if _, ok := reg.ByKey("pinned"); !ok || reg.Len() != 1 {
			t.Errorf("mid-refresh snapshot keys = %v, want static only", reg.Keys())
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("reader blocked behind in-flight discovery refresh")
	}

	close(release)
	<-refreshed
	if _, ok := c.Registry(ctx).ByKey("slow-flow"); !ok {
		t.Error("completed refresh did not publish the discovered flow")
	}
}

func TestCatalogDisabledServesStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("disabled discovery must not call the backend")
	}))
	defer srv.Close()

	cfg := discoveryConfig(srv.URL)
	cfg.Discovery = false
	static := []domain.Target{{Key: "only", RemoteID: "uuid-only"}}
	c := NewCatalog(cfg, static, testLogger(), &metrics.Metrics{})

	reg := c.Registry(context.Background())
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want static only", reg.Len())
	}
}
