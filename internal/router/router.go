// Package router implements the backend pool: the load protocol that
// serializes backend startup, NPU-exclusive and per-type LRU eviction, the
// nuclear-retry failure classifier, and per-request dispatch onto a loaded
// supervisor.
package router

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lemonade-sdk/lemonade-gateway/internal/backend"
	"github.com/lemonade-sdk/lemonade-gateway/internal/catalog"
	"github.com/lemonade-sdk/lemonade-gateway/internal/gatewayerr"
	"github.com/lemonade-sdk/lemonade-gateway/internal/logging"
	"github.com/lemonade-sdk/lemonade-gateway/internal/model"
)

// Invalidator is implemented by adapters (currently only flm) that can
// detect, after installation, that a previously-downloaded checkpoint is no
// longer usable.
type Invalidator interface {
	CheckInvalidated(ctx context.Context, modelName, checkpoint string) error
}

// LoadedModel summarizes one pool entry for the status/list endpoints.
type LoadedModel struct {
	ModelName     string           `json:"model_name"`
	Checkpoint    string           `json:"checkpoint"`
	Type          model.Type       `json:"type"`
	Device        model.DeviceType `json:"device"`
	BackendURL    string           `json:"backend_url"`
	Recipe        model.Recipe     `json:"recipe"`
	RecipeOptions model.Options    `json:"recipe_options"`
	LastUseMillis int64            `json:"last_use_ms"`
}

// Router is the backend pool: a set of live Supervisors plus the
// concurrency control serializing loads and the eviction policy bounding
// how many are held at once.
type Router struct {
	log      logging.Logger
	catalog  *catalog.Catalog
	adapters map[model.Recipe]backend.Adapter

	maxLoadedPerType int // -1 = unbounded
	lruByType        map[model.Type]*lru.Cache[string, struct{}]

	mu        sync.Mutex
	loadCond  *sync.Cond
	isLoading bool
	pool      []*backend.Supervisor
	evicted   []string // names evicted by an lru.Cache callback, drained by touchLRU while it holds mu
}

// New constructs a Router. adapters must contain one entry per recipe the
// deployment supports; maxLoadedPerType bounds concurrently loaded models
// of the same model.Type, or -1 for unbounded.
func New(log logging.Logger, cat *catalog.Catalog, adapters map[model.Recipe]backend.Adapter, maxLoadedPerType int) *Router {
	r := &Router{
		log:              log.WithField("component", "router"),
		catalog:          cat,
		adapters:         adapters,
		maxLoadedPerType: maxLoadedPerType,
		lruByType:        map[model.Type]*lru.Cache[string, struct{}]{},
	}
	r.loadCond = sync.NewCond(&r.mu)
	return r
}

// acquireLoadLock waits until no other load is in flight, then claims the
// load slot. Callers must call releaseLoadLock on every exit path.
func (r *Router) acquireLoadLock() {
	r.mu.Lock()
	for r.isLoading {
		r.loadCond.Wait()
	}
	r.isLoading = true
}

func (r *Router) releaseLoadLock() {
	r.isLoading = false
	r.loadCond.Broadcast()
	r.mu.Unlock()
}

func (r *Router) findLocked(name string) *backend.Supervisor {
	for _, s := range r.pool {
		if s.ModelName() == name {
			return s
		}
	}
	return nil
}

// LoadModel implements the full load protocol: wait for the pool-wide load
// slot, check for an already-loaded supervisor, evict as needed for NPU
// exclusivity and per-type LRU bounds, then load the new supervisor outside
// the pool lock (installation and readiness polling can take minutes).
// Unclassified load failures trigger exactly one "nuclear" retry that
// evicts every other supervisor in the pool first.
func (r *Router) LoadModel(ctx context.Context, name string, opts model.Options, doNotUpgrade bool) (*backend.Supervisor, error) {
	r.acquireLoadLock()
	defer r.releaseLoadLock()

	existing := r.findLocked(name)
	// acquireLoadLock returns holding r.mu; drop it for the rest of the load
	// and take it back (deferred, so before releaseLoadLock) on every exit.
	r.mu.Unlock()
	defer r.mu.Lock()
	if existing != nil {
		return existing, nil
	}

	info, err := r.catalog.Lookup(name)
	if err != nil {
		return nil, err
	}

	adapter, ok := r.adapters[info.Recipe]
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindUnsupportedOperation, "no backend adapter registered for this recipe").WithModel(name)
	}

	merged := model.Merge(info.RecipeOptions, opts)

	if info.Device.Has(model.DeviceNPU) {
		r.evictOtherNPUHoldersLocked(name)
	}

	sup, err := r.startSupervisor(ctx, adapter, info, merged)
	if err == nil {
		r.mu.Lock()
		r.pool = append(r.pool, sup)
		r.mu.Unlock()
		r.touchLRU(info.Type, name)
		return sup, nil
	}

	if gatewayerr.Of(err, gatewayerr.KindModelNotFound) || gatewayerr.Of(err, gatewayerr.KindModelInvalidated) {
		return nil, err
	}

	r.log.Warnf("load of %s failed (%v); evicting entire pool and retrying once", name, err)
	r.evictAllLocked()

	sup, retryErr := r.startSupervisor(ctx, adapter, info, merged)
	if retryErr != nil {
		return nil, retryErr
	}
	r.mu.Lock()
	r.pool = append(r.pool, sup)
	r.mu.Unlock()
	r.touchLRU(info.Type, name)
	return sup, nil
}

// startSupervisor performs install, the flm-style invalidation check, and
// the supervisor's own spawn/readiness sequence, all while the pool lock is
// released so that slow network/process operations don't block other
// pool-state readers. The load slot itself (r.isLoading) remains held for
// the duration by the caller.
func (r *Router) startSupervisor(ctx context.Context, adapter backend.Adapter, info *model.Info, opts model.Options) (*backend.Supervisor, error) {
	flavour := backend.RecipeFlavour(info.Recipe, opts)

	binary, err := adapter.Install(ctx, http.DefaultClient, flavour)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindBackendInstallFailed, err, "backend install failed").WithModel(info.ModelName)
	}

	if inv, ok := adapter.(Invalidator); ok {
		if err := inv.CheckInvalidated(ctx, info.ModelName, info.Checkpoints[model.RoleMain]); err != nil {
			return nil, err
		}
	}

	sup := backend.New(r.log, adapter, info)
	if err := sup.Load(ctx, binary, opts); err != nil {
		return nil, err
	}
	return sup, nil
}

// touchLRU records name as the most-recently-used entry of type t. When
// this pushes the type's cache over maxLoadedPerType, the cache's own evict
// callback names the least-recently-used victim, which is then evicted from
// the live pool for real.
func (r *Router) touchLRU(t model.Type, name string) {
	if r.maxLoadedPerType < 0 {
		return
	}

	r.mu.Lock()
	c, ok := r.lruByType[t]
	if !ok {
		c, _ = lru.NewWithEvict[string, struct{}](r.maxLoadedPerType, func(evictedName string, _ struct{}) {
			r.evicted = append(r.evicted, evictedName)
		})
		r.lruByType[t] = c
	}
	c.Add(name, struct{}{})
	victims := append([]string(nil), r.evicted...)
	r.evicted = nil
	r.mu.Unlock()

	for _, victimName := range victims {
		if victimName == name {
			continue
		}
		r.mu.Lock()
		victim := r.findLocked(victimName)
		r.mu.Unlock()
		if victim != nil {
			r.evict(victim)
		}
	}
}

// evictOtherNPUHoldersLocked evicts every pool entry using the NPU besides
// except, enforcing NPU exclusivity across the pool.
func (r *Router) evictOtherNPUHoldersLocked(except string) {
	r.mu.Lock()
	var victims []*backend.Supervisor
	for _, s := range r.pool {
		if s.ModelName() != except && s.Device().Has(model.DeviceNPU) {
			victims = append(victims, s)
		}
	}
	r.mu.Unlock()
	for _, v := range victims {
		r.evict(v)
	}
}

// evict waits for the supervisor to go idle, unloads it, and removes it
// from the pool.
func (r *Router) evict(sup *backend.Supervisor) {
	sup.WaitUntilNotBusy()
	if err := sup.Unload(context.Background()); err != nil {
		r.log.Warnf("error unloading %s: %v", sup.ModelName(), err)
	}
	r.mu.Lock()
	for i, s := range r.pool {
		if s == sup {
			r.pool = append(r.pool[:i], r.pool[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
}

func (r *Router) evictAllLocked() {
	r.mu.Lock()
	victims := append([]*backend.Supervisor(nil), r.pool...)
	r.mu.Unlock()
	for _, v := range victims {
		r.evict(v)
	}
}

// Dispatch looks up an already-loaded supervisor by name, validates the
// endpoint against its capability set, and forwards the request. The
// supervisor is marked busy only for the duration of the call, guaranteeing
// the flag is cleared on every exit path including a panic recovery.
func (r *Router) Dispatch(ctx context.Context, endpoint, name string, body []byte) ([]byte, int, error) {
	r.mu.Lock()
	sup := r.findLocked(name)
	r.mu.Unlock()
	if sup == nil {
		return nil, 0, gatewayerr.New(gatewayerr.KindModelNotLoaded, "model is not loaded").WithModel(name)
	}
	if !sup.HasCapability(endpoint) {
		return nil, 0, gatewayerr.New(gatewayerr.KindUnsupportedOperation, fmt.Sprintf("%s does not support %s", name, endpoint)).WithModel(name)
	}

	sup.MarkBusy()
	defer sup.ClearBusy()
	r.touchLRU(sup.Type(), name)

	return sup.ForwardRequest(ctx, endpoint, body, sup.Options())
}

// DispatchStreaming is Dispatch's streaming counterpart, forwarding the
// response directly to sink without buffering the whole body.
func (r *Router) DispatchStreaming(ctx context.Context, endpoint, name string, body []byte, sink backend.StreamSink) error {
	r.mu.Lock()
	sup := r.findLocked(name)
	r.mu.Unlock()
	if sup == nil {
		return gatewayerr.New(gatewayerr.KindModelNotLoaded, "model is not loaded").WithModel(name)
	}
	if !sup.HasCapability(endpoint) {
		return gatewayerr.New(gatewayerr.KindUnsupportedOperation, fmt.Sprintf("%s does not support %s", name, endpoint)).WithModel(name)
	}

	sup.MarkBusy()
	defer sup.ClearBusy()
	r.touchLRU(sup.Type(), name)

	return sup.ForwardStreamingRequest(ctx, endpoint, body, sup.Options(), sink)
}

// Unload evicts name from the pool if present. It is a no-op if the model
// isn't loaded.
func (r *Router) Unload(name string) error {
	r.mu.Lock()
	sup := r.findLocked(name)
	r.mu.Unlock()
	if sup == nil {
		return nil
	}
	r.evict(sup)
	return nil
}

// GetAllLoadedModels summarizes the current pool for the status/list
// endpoints.
func (r *Router) GetAllLoadedModels() []LoadedModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LoadedModel, 0, len(r.pool))
	for _, s := range r.pool {
		out = append(out, LoadedModel{
			ModelName:     s.ModelName(),
			Checkpoint:    s.Checkpoint(),
			Type:          s.Type(),
			Device:        s.Device(),
			BackendURL:    s.BaseURL(),
			Recipe:        s.Recipe(),
			RecipeOptions: s.Options(),
			LastUseMillis: s.LastAccess().UnixMilli(),
		})
	}
	return out
}

// Stats returns the LoadedModel summary and telemetry snapshot of the most
// recently accessed supervisor, the pair the stats endpoint (§4.F
// Observability) reports. ok is false when the pool is empty.
func (r *Router) Stats() (LoadedModel, backend.Telemetry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pool) == 0 {
		return LoadedModel{}, backend.Telemetry{}, false
	}
	newest := r.pool[0]
	for _, s := range r.pool[1:] {
		if s.LastAccess().After(newest.LastAccess()) {
			newest = s
		}
	}
	return LoadedModel{
		ModelName:     newest.ModelName(),
		Checkpoint:    newest.Checkpoint(),
		Type:          newest.Type(),
		Device:        newest.Device(),
		BackendURL:    newest.BaseURL(),
		Recipe:        newest.Recipe(),
		RecipeOptions: newest.Options(),
		LastUseMillis: newest.LastAccess().UnixMilli(),
	}, newest.Telemetry(), true
}

// Shutdown evicts every loaded supervisor in parallel, bounding total
// shutdown time to the slowest single unload rather than their sum.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	victims := append([]*backend.Supervisor(nil), r.pool...)
	r.mu.Unlock()

	workers, _ := errgroup.WithContext(ctx)
	for _, v := range victims {
		v := v
		workers.Go(func() error {
			r.evict(v)
			return nil
		})
	}
	return workers.Wait()
}

// bufferSink adapts a bytes.Buffer to backend.StreamSink for callers that
// want to accumulate a streaming response rather than forward it live (used
// by tests).
type bufferSink struct{ buf *bytes.Buffer }

func (b bufferSink) Write(p []byte) (int, error) { return b.buf.Write(p) }
func (b bufferSink) Flush()                      {}

// NewBufferSink wraps buf as a StreamSink.
func NewBufferSink(buf *bytes.Buffer) backend.StreamSink { return bufferSink{buf: buf} }
