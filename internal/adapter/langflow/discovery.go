package langflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"flowrelay/internal/domain"
	"flowrelay/internal/infra/config"
	"flowrelay/internal/infra/metrics"
)

// Discovery endpoints tried in order; backends differ on the exact path.
var discoveryPaths = []string{"/api/v1/flows", "/api/v1/flows/", "/api/flows"}

// defaultCacheTTL bounds how long a discovered registry is served before
// the next lookup triggers a refresh.
const defaultCacheTTL = 5 * time.Minute

// Catalog maintains the target registry: static targets from config
// merged with flows discovered from the backend. Refresh is copy-on-write:
// a new immutable Registry is built and the pointer swapped atomically, so
// concurrent readers never observe a partially-updated table.
type Catalog struct {
	baseURL string
	apiKey  string
	ttl     time.Duration
	enabled bool
	static  []domain.Target

	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	current atomic.Pointer[domain.Registry]

	// refreshMu is held only while a refresh runs; readers never take it.
	refreshMu sync.Mutex
	// fetchedAt is the unix-nano time of the last fetch attempt, 0 when
	// none has run yet.
	fetchedAt atomic.Int64

	// now is injectable for TTL tests.
	now func() time.Time
}

// flowInfo is one entry of the backend's flow listing.
type flowInfo struct {
	ID          string `json:"id"`
	FlowID      string `json:"flow_id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// NewCatalog builds a catalog from configuration. The static targets are
// always present and take precedence over discovered flows with the same
// key.
func NewCatalog(cfg config.BackendConfig, static []domain.Target, logger *slog.Logger, m *metrics.Metrics) *Catalog {
	ttl := cfg.DiscoveryTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c := &Catalog{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		ttl:     ttl,
		enabled: cfg.Discovery,
		static:  static,
		client:  newHTTPClient(cfg),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	c.current.Store(domain.NewRegistry(static))
	return c
}

// Registry returns the current registry snapshot. When the cache has
// expired exactly one caller performs the refresh; everyone else is
// served the previous snapshot immediately and never waits on the
// network. The returned registry is immutable.
func (c *Catalog) Registry(ctx context.Context) *domain.Registry {
	if !c.enabled || c.fresh() {
		return c.current.Load()
	}

	if c.refreshMu.TryLock() {
		// Re-check: another caller may have finished the refresh between
		// the staleness check and the lock.
		if !c.fresh() {
			c.refreshLocked(ctx)
		}
		c.refreshMu.Unlock()
	}

	return c.current.Load()
}

func (c *Catalog) fresh() bool {
	at := c.fetchedAt.Load()
	return at != 0 && c.now().Sub(time.Unix(0, at)) < c.ttl
}

// Refresh forces a discovery fetch regardless of TTL. Used by the
// background refresh loop.
func (c *Catalog) Refresh(ctx context.Context) {
	if !c.enabled {
		return
	}
	c.refreshMu.Lock()
	c.refreshLocked(ctx)
	c.refreshMu.Unlock()
}

// refreshLocked fetches flows and swaps in a fresh registry. On fetch
// failure the previous snapshot stays in place so routing keeps working
// from the last good table.
func (c *Catalog) refreshLocked(ctx context.Context) {
	c.metrics.DiscoveryRefreshes.Add(1)

	discovered, err := c.fetchFlows(ctx)
	if err != nil {
		c.metrics.DiscoveryFailures.Add(1)
		c.logger.Warn("flow discovery failed, keeping previous registry", "error", err)
		c.fetchedAt.Store(c.now().UnixNano())
		return
	}

	merged := make([]domain.Target, 0, len(c.static)+len(discovered))
	merged = append(merged, c.static...)
	merged = append(merged, discovered...)

	c.current.Store(domain.NewRegistry(merged))
	c.fetchedAt.Store(c.now().UnixNano())
	c.logger.Info("flow discovery refreshed",
		"discovered", len(discovered),
		"static", len(c.static),
	)
}

// fetchFlows queries the backend flow listing, trying the known endpoint
// variants in order.
func (c *Catalog) fetchFlows(ctx context.Context) ([]domain.Target, error) {
	var lastErr error
	for _, path := range discoveryPaths {
		targets, err := c.fetchFrom(ctx, c.baseURL+path)
		if err != nil {
			lastErr = err
			continue
		}
		return targets, nil
	}
	return nil, fmt.Errorf("all discovery endpoints failed: %w", lastErr)
}

func (c *Catalog) fetchFrom(ctx context.Context, endpoint string) ([]domain.Target, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery status %d", httpResp.StatusCode)
	}

	return parseFlowList(body)
}

// parseFlowList accepts either a bare JSON list or {"flows": [...]}.
func parseFlowList(body []byte) ([]domain.Target, error) {
	var flows []flowInfo
	if err := json.Unmarshal(body, &flows); err != nil {
		var wrapped struct {
			Flows []flowInfo `json:"flows"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("parse flow list: %w", err)
		}
		flows = wrapped.Flows
	}

	targets := make([]domain.Target, 0, len(flows))
	for _, f := range flows {
		id := f.ID
		if id == "" {
			id = f.FlowID
		}
		if id == "" {
			continue
		}
		name := f.Name
		if name == "" {
			name = f.Title
		}
		if name == "" {
			name = "Flow " + shortID(id)
		}
		targets = append(targets, domain.Target{
			Key:         slugify(name),
			RemoteID:    id,
			DisplayName: name,
		})
	}
	return targets, nil
}

func slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
