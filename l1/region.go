// Package l1 implements the near (in-process) cache tier: size- and
// time-bounded regions with least-recently-used eviction and a listener
// notified of every eviction.
//
// It generalizes the teacher's single in-memory cache (a flat map guarded
// by one mutex, swept by one ticker) into many independently configured
// regions, each with its own capacity, TTL and LRU order.
package l1

import (
	"container/list"
	"sync"
	"time"

	"github.com/j2cache-go/j2cache/logger"
)

// Reason identifies why an entry left a region.
type Reason string

const (
	ReasonExpired  Reason = "EXPIRED"
	ReasonCapacity Reason = "CAPACITY"
	ReasonExplicit Reason = "EXPLICIT"
	ReasonChannel  Reason = "CHANNEL"
)

// Eviction is delivered to a Listener when an entry leaves a region.
type Eviction struct {
	Region string
	Key    string
	Reason Reason
}

// Listener is notified, off the region lock, of every eviction. The engine
// never calls a Listener while holding a region's mutex — evictions are
// queued on a bounded channel and drained by a single goroutine, so a
// listener implementation can safely call back into the Engine.
type Listener func(Eviction)

type entry struct {
	key        string
	value      any
	insertedAt time.Time
	elem       *list.Element
}

// RegionConfig bounds a single L1 region.
type RegionConfig struct {
	// MaxEntries caps the region's live entry count; 0 means unbounded.
	MaxEntries int
	// TTL is the region's time-to-live; 0 means entries never expire.
	TTL time.Duration
}

type region struct {
	name   string
	cfg    RegionConfig
	mu     sync.Mutex
	items  map[string]*entry
	lru    *list.List // front = most recently used
	closed bool
}

func newRegion(name string, cfg RegionConfig) *region {
	return &region{
		name:  name,
		cfg:   cfg,
		items: make(map[string]*entry),
		lru:   list.New(),
	}
}

func (r *region) expired(e *entry, now time.Time) bool {
	return r.cfg.TTL > 0 && now.Sub(e.insertedAt) >= r.cfg.TTL
}

// Engine holds every region known to this process. Regions are created
// lazily on first use and live for the engine's lifetime (spec.md §3).
type Engine struct {
	log      logger.Logger
	mu       sync.Mutex
	regions  map[string]*region
	defaults RegionConfig

	evictions chan Eviction
	done      chan struct{}
	wg        sync.WaitGroup

	listenerMu sync.RWMutex
	listener   Listener

	sweepInterval time.Duration
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithSweepInterval sets how often the background goroutine scans every
// region for expired entries, on top of the lazy check-on-access. Defaults
// to one minute.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) { e.sweepInterval = d }
}

// WithListener registers the eviction listener. Only one listener is
// supported; the manager is expected to be the sole subscriber.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listener = l }
}

// New creates an L1 engine. The returned Engine must be closed with Close.
func New(log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:           log,
		regions:       make(map[string]*region),
		evictions:     make(chan Eviction, 1024),
		done:          make(chan struct{}),
		sweepInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.wg.Add(2)
	go e.dispatchLoop()
	go e.sweepLoop()
	return e
}

// Configure sets (or updates) the capacity/TTL policy for a region, creating
// it if it does not yet exist. Safe to call concurrently with reads/writes.
func (e *Engine) Configure(name string, cfg RegionConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.regions[name]
	if !ok {
		r = newRegion(name, cfg)
		e.regions[name] = r
		return
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

func (e *Engine) getOrCreateRegion(name string) *region {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.regions[name]
	if !ok {
		r = newRegion(name, e.defaults)
		e.regions[name] = r
	}
	return r
}

// Get returns the live value for (region, key), or ok=false on a miss
// (including lazily-discovered TTL expiry).
func (e *Engine) Get(region, key string) (value any, ok bool) {
	r := e.getOrCreateRegion(region)
	r.mu.Lock()
	ent, found := r.items[key]
	if !found {
		r.mu.Unlock()
		return nil, false
	}
	if r.expired(ent, time.Now()) {
		r.removeLocked(ent)
		r.mu.Unlock()
		e.emit(Eviction{Region: region, Key: key, Reason: ReasonExpired})
		return nil, false
	}
	r.lru.MoveToFront(ent.elem)
	v := ent.value
	r.mu.Unlock()
	return v, true
}

// Put inserts or replaces (region, key) with value, touching its
// insertedAt and LRU position. A new key is inserted first and always
// counts toward the new total; if that puts the region over capacity, the
// least-recently-used entry is then evicted (spec.md §4.f
// "L1 capacity eviction during put").
func (e *Engine) Put(region, key string, value any) {
	r := e.getOrCreateRegion(region)
	r.mu.Lock()
	now := time.Now()
	if ent, ok := r.items[key]; ok {
		ent.value = value
		ent.insertedAt = now
		r.lru.MoveToFront(ent.elem)
		r.mu.Unlock()
		return
	}
	ent := &entry{key: key, value: value, insertedAt: now}
	ent.elem = r.lru.PushFront(ent)
	r.items[key] = ent

	var victim *entry
	if r.cfg.MaxEntries > 0 && len(r.items) > r.cfg.MaxEntries {
		back := r.lru.Back()
		if back != nil {
			victim = back.Value.(*entry)
			r.removeLocked(victim)
		}
	}
	r.mu.Unlock()

	if victim != nil {
		e.emit(Eviction{Region: region, Key: victim.key, Reason: ReasonCapacity})
	}
}

// removeLocked removes ent from the region; caller must hold r.mu.
func (r *region) removeLocked(ent *entry) {
	delete(r.items, ent.key)
	r.lru.Remove(ent.elem)
}

// Evict removes the given keys from region, reporting reason for each key
// actually present. Unknown keys are silently ignored.
func (e *Engine) Evict(region string, reason Reason, keys ...string) {
	r := e.getOrCreateRegion(region)
	var removed []string
	r.mu.Lock()
	for _, key := range keys {
		if ent, ok := r.items[key]; ok {
			r.removeLocked(ent)
			removed = append(removed, key)
		}
	}
	r.mu.Unlock()
	for _, key := range removed {
		e.emit(Eviction{Region: region, Key: key, Reason: reason})
	}
}

// Clear removes every entry in region without emitting per-key eviction
// events — callers that need per-key notification should use Evict.
func (e *Engine) Clear(region string) {
	r := e.getOrCreateRegion(region)
	r.mu.Lock()
	r.items = make(map[string]*entry)
	r.lru = list.New()
	r.mu.Unlock()
}

// Keys returns a point-in-time snapshot of the live keys in region.
func (e *Engine) Keys(region string) []string {
	r := e.getOrCreateRegion(region)
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	keys := make([]string, 0, len(r.items))
	for k, ent := range r.items {
		if r.expired(ent, now) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Size returns the live entry count for region (expired-but-not-yet-swept
// entries are excluded).
func (e *Engine) Size(region string) int {
	return len(e.Keys(region))
}

func (e *Engine) emit(ev Eviction) {
	select {
	case e.evictions <- ev:
	default:
		if e.log != nil {
			e.log.Warn("l1: eviction queue full, dropping notification for %s/%s", ev.Region, ev.Key)
		}
	}
}

func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	for {
		select {
		case ev := <-e.evictions:
			e.listenerMu.RLock()
			l := e.listener
			e.listenerMu.RUnlock()
			if l != nil {
				l(ev)
			}
		case <-e.done:
			return
		}
	}
}

func (e *Engine) sweepLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.sweepOnce()
		case <-e.done:
			return
		}
	}
}

func (e *Engine) sweepOnce() {
	e.mu.Lock()
	regions := make([]*region, 0, len(e.regions))
	for _, r := range e.regions {
		regions = append(regions, r)
	}
	e.mu.Unlock()

	now := time.Now()
	for _, r := range regions {
		var expired []string
		r.mu.Lock()
		for k, ent := range r.items {
			if r.expired(ent, now) {
				expired = append(expired, k)
			}
		}
		for _, k := range expired {
			if ent, ok := r.items[k]; ok {
				r.removeLocked(ent)
			}
		}
		name := r.name
		r.mu.Unlock()
		for _, k := range expired {
			e.emit(Eviction{Region: name, Key: k, Reason: ReasonExpired})
		}
	}
}

// Close stops the background sweep and dispatch goroutines. Idempotent.
func (e *Engine) Close() {
	select {
	case <-e.done:
		return
	default:
		close(e.done)
	}
	e.wg.Wait()
}
