// Package manager implements the cache manager: the region registry and
// read-through/write-through protocol that keeps L1 and L2 coherent across
// nodes (spec.md §4.f).
//
// Grounded on cache/composite.go's multi-tier chaining, generalized from
// "first hit wins" fan-out into the asymmetric L2-then-L1-then-publish
// write protocol and explicit lifecycle (New/Shutdown, JOIN/QUIT) the
// Design Notes call for ("process-wide instance with explicit
// init/shutdown").
package manager

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/j2cache-go/j2cache/codec"
	"github.com/j2cache-go/j2cache/l1"
	"github.com/j2cache-go/j2cache/l2"
	"github.com/j2cache-go/j2cache/logger"
	"github.com/j2cache-go/j2cache/protocol"
	"github.com/j2cache-go/j2cache/transport"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Loader produces the value for key on an L1+L2 miss. Grounded on
// cache.Invoker's shape, narrowed to the single-value-or-error contract
// spec.md §4.f describes.
type Loader func(ctx context.Context, key string) (any, error)

type regionEntry struct {
	l1cfg    l1.RegionConfig
	l2cfg    l2.Config
	l2region l2.Region
}

type pendingRegion struct {
	name  string
	l1cfg l1.RegionConfig
	l2cfg l2.Config
}

// Deps are the externally-owned capabilities a Manager is built on. The
// caller retains ownership of Pool's underlying client and of Channel —
// neither is closed by Manager.Shutdown (spec.md §6, "remote-store
// connection-pool construction" is a non-goal of the core).
type Deps struct {
	Pool        l2.Pool
	Channel     *redis.Client
	ChannelName string
	Namespace   string
	Logger      logger.Logger
}

// Manager is the coherence core: a region registry plus the L1/L2/channel
// wiring described in spec.md §4.f.
type Manager struct {
	log       logger.Logger
	codec     codec.Codec
	senderID  string
	namespace string

	l1         *l1.Engine
	l2         *l2.Engine
	channel    *transport.Channel
	dispatcher *protocol.Dispatcher

	defaultLayout l2.Layout
	defaultL1     l1.RegionConfig
	l2Timeout     time.Duration
	sweepInterval time.Duration
	pending       []pendingRegion

	mu      sync.RWMutex
	regions map[string]*regionEntry

	sfgroup singleflight.Group

	shutdownMu   sync.RWMutex
	shuttingDown bool
	inflight     sync.WaitGroup
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithCodec overrides the default tag-based codec used for both L2 values
// and channel events.
func WithCodec(c codec.Codec) Option {
	return func(m *Manager) { m.codec = c }
}

// WithSenderID overrides the random default sender id (spec.md I2). Useful
// in tests that need a deterministic id.
func WithSenderID(id string) Option {
	return func(m *Manager) { m.senderID = id }
}

// WithDefaultLayout sets the L2 layout used for regions that are not
// pre-configured via WithRegion/ConfigureRegion. Defaults to LayoutGeneric.
func WithDefaultLayout(layout l2.Layout) Option {
	return func(m *Manager) { m.defaultLayout = layout }
}

// WithDefaultL1Config sets the L1 capacity/TTL policy used for regions that
// are not pre-configured.
func WithDefaultL1Config(cfg l1.RegionConfig) Option {
	return func(m *Manager) { m.defaultL1 = cfg }
}

// WithRegion pre-registers a region's L1 and L2 policy before first use,
// corresponding to the `l1.region.<name>.*` / `l2.<region>.ttl` /
// `storage` configuration surface (spec.md §6).
func WithRegion(name string, l1cfg l1.RegionConfig, l2cfg l2.Config) Option {
	return func(m *Manager) { m.pending = append(m.pending, pendingRegion{name, l1cfg, l2cfg}) }
}

// WithL2QueryTimeout bounds every individual L2 call. Defaults to 5 seconds.
func WithL2QueryTimeout(d time.Duration) Option {
	return func(m *Manager) { m.l2Timeout = d }
}

// WithL1SweepInterval sets the L1 background TTL sweep frequency.
func WithL1SweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = d }
}

// New wires L1, L2 and the channel together, subscribes to invalidation
// events, and publishes a startup JOIN (spec.md §4.e, "on startup the
// manager publishes a single JOIN").
func New(ctx context.Context, deps Deps, opts ...Option) (*Manager, error) {
	if deps.Pool == nil {
		return nil, errors.New("manager: Deps.Pool is required")
	}
	if deps.Channel == nil {
		return nil, errors.New("manager: Deps.Channel is required")
	}

	m := &Manager{
		codec:         codec.Default,
		senderID:      uuid.New().String(),
		namespace:     deps.Namespace,
		log:           deps.Logger,
		defaultLayout: l2.LayoutGeneric,
		l2Timeout:     5 * time.Second,
		sweepInterval: time.Minute,
		regions:       make(map[string]*regionEntry),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.l1 = l1.New(m.log, l1.WithSweepInterval(m.sweepInterval), l1.WithListener(m.onL1Eviction))
	m.l2 = l2.New(deps.Pool, deps.Namespace, l2.WithCodec(m.codec), l2.WithQueryTimeout(m.l2Timeout))

	channelName := deps.ChannelName
	if channelName == "" {
		channelName = "j2cache:channel"
	}
	m.channel = transport.New(deps.Channel, channelName, m.log)
	m.dispatcher = protocol.NewDispatcher(m.l1, m.codec, m.senderID, m.log)

	for _, p := range m.pending {
		if err := m.ConfigureRegion(p.name, p.l1cfg, p.l2cfg); err != nil {
			m.l1.Close()
			return nil, err
		}
	}

	if err := m.channel.Subscribe(ctx, m.dispatcher.HandleRaw); err != nil {
		m.l1.Close()
		return nil, newError(KindChannelUnavailable, err)
	}

	m.publish(ctx, protocol.Event{Operation: protocol.OpJoin, SenderID: m.senderID})

	return m, nil
}

// SenderID returns this node's id, used to self-suppress its own published
// events (spec.md I2).
func (m *Manager) SenderID() string { return m.senderID }

func (m *Manager) onL1Eviction(ev l1.Eviction) {
	if m.log != nil {
		m.log.Debug("manager: l1 eviction region=%s key=%s reason=%s", ev.Region, ev.Key, ev.Reason)
	}
}

func validateRegionName(name string) error {
	if name == "" {
		return newError(KindBadRegion, errors.New("manager: region name must not be empty"))
	}
	if name == "_" {
		return newError(KindBadRegion, errors.New(`manager: region name "_" is reserved`))
	}
	if strings.Contains(name, ":") {
		return newError(KindBadRegion, errors.New("manager: region name must not contain ':'"))
	}
	return nil
}

// ConfigureRegion registers a region's L1 and L2 policy, creating it if
// absent or replacing its policy if already registered. Safe to call
// concurrently with reads/writes on other regions.
func (m *Manager) ConfigureRegion(name string, l1cfg l1.RegionConfig, l2cfg l2.Config) error {
	if err := validateRegionName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := &regionEntry{l1cfg: l1cfg, l2cfg: l2cfg, l2region: m.l2.Open(name, l2cfg)}
	m.l1.Configure(name, l1cfg)
	m.regions[name] = entry
	return nil
}

// region returns the registered entry for name, lazily creating one from
// the manager's defaults on first use.
func (m *Manager) region(name string) (*regionEntry, error) {
	if err := validateRegionName(name); err != nil {
		return nil, err
	}
	m.mu.RLock()
	entry, ok := m.regions[name]
	m.mu.RUnlock()
	if ok {
		return entry, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.regions[name]; ok {
		return entry, nil
	}
	l2cfg := l2.Config{Layout: m.defaultLayout}
	entry = &regionEntry{l1cfg: m.defaultL1, l2cfg: l2cfg, l2region: m.l2.Open(name, l2cfg)}
	m.l1.Configure(name, m.defaultL1)
	m.regions[name] = entry
	return entry, nil
}

// Regions returns a snapshot of every region name known to this manager.
func (m *Manager) Regions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.regions))
	for name := range m.regions {
		names = append(names, name)
	}
	return names
}

// enter admits one operation, failing with SHUTTING_DOWN once Shutdown has
// begun, and otherwise registers it as in-flight so Shutdown can drain
// (spec.md §5, "shutdown request waits for in-flight operations to drain").
func (m *Manager) enter() error {
	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()
	if m.shuttingDown {
		return newError(KindShuttingDown, errors.New("manager: shutting down"))
	}
	m.inflight.Add(1)
	return nil
}

func (m *Manager) leave() { m.inflight.Done() }

// Get consults L1, then L2 on a miss, populating L1 from an L2 hit. It
// never invokes a loader and never publishes (spec.md §4.f).
func (m *Manager) Get(ctx context.Context, region, key string) (any, bool, error) {
	if err := m.enter(); err != nil {
		return nil, false, err
	}
	defer m.leave()

	entry, err := m.region(region)
	if err != nil {
		return nil, false, err
	}

	if v, ok := m.l1.Get(region, key); ok {
		return v, true, nil
	}

	v, ok, err := entry.l2region.Get(ctx, key)
	if err != nil {
		if errors.Is(err, l2.ErrUnavailable) {
			if m.log != nil {
				m.log.Warn("manager: l2 unavailable for %s/%s: %s", region, key, err)
			}
			return nil, false, nil
		}
		if m.log != nil {
			m.log.Warn("manager: decode error for %s/%s, evicting poisoned entry: %s", region, key, err)
		}
		_ = entry.l2region.Evict(ctx, key)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	m.l1.Put(region, key, v)
	return v, true, nil
}

// GetWithLoader behaves like Get, but on a total miss calls loader, stores
// the result in L1 and L2, and publishes EVICT so peers discard any stale
// L1 copy (spec.md §4.f). Concurrent loads for the same region/key are
// coalesced via singleflight so only one loader call is in flight at a
// time.
func (m *Manager) GetWithLoader(ctx context.Context, region, key string, loader Loader) (any, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.leave()

	entry, err := m.region(region)
	if err != nil {
		return nil, err
	}

	if v, ok := m.l1.Get(region, key); ok {
		return v, nil
	}

	v, ok, err := entry.l2region.Get(ctx, key)
	if err != nil {
		if errors.Is(err, l2.ErrUnavailable) {
			if m.log != nil {
				m.log.Warn("manager: l2 unavailable for %s/%s: %s", region, key, err)
			}
		} else {
			if m.log != nil {
				m.log.Warn("manager: decode error for %s/%s, evicting poisoned entry: %s", region, key, err)
			}
			_ = entry.l2region.Evict(ctx, key)
		}
	} else if ok {
		m.l1.Put(region, key, v)
		return v, nil
	}

	sfKey := region + "\x00" + key
	result, err, _ := m.sfgroup.Do(sfKey, func() (interface{}, error) {
		loaded, lerr := loader(ctx, key)
		if lerr != nil {
			return nil, newError(KindLoader, lerr)
		}
		if err := m.writeThrough(ctx, entry, region, key, loaded, 0); err != nil {
			return nil, err
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// writeThrough stores value at L2 then L1, then publishes EVICT — the
// ordering rule spec.md §4.f mandates for every mutation.
func (m *Manager) writeThrough(ctx context.Context, entry *regionEntry, region, key string, value any, ttl time.Duration) error {
	if err := entry.l2region.Put(ctx, key, value, ttl); err != nil {
		if errors.Is(err, l2.ErrUnavailable) {
			return newError(KindL2Unavailable, err)
		}
		return newError(KindSerialization, err)
	}
	if value == nil {
		m.l1.Evict(region, l1.ReasonExplicit, key)
	} else {
		m.l1.Put(region, key, value)
	}
	m.publish(ctx, protocol.Event{Operation: protocol.OpEvict, Region: region, Keys: []string{key}, SenderID: m.senderID})
	return nil
}

// Put stores value under (region, key) using the region's default TTL.
func (m *Manager) Put(ctx context.Context, region, key string, value any) error {
	return m.PutTTL(ctx, region, key, value, 0)
}

// PutTTL stores value under (region, key) with an explicit TTL, overriding
// the region default on the L2 generic layout (ignored on hash).
func (m *Manager) PutTTL(ctx context.Context, region, key string, value any, ttl time.Duration) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	entry, err := m.region(region)
	if err != nil {
		return err
	}
	return m.writeThrough(ctx, entry, region, key, value, ttl)
}

// Evict removes keys from (region) at L2 then L1, then publishes EVICT.
func (m *Manager) Evict(ctx context.Context, region string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	entry, err := m.region(region)
	if err != nil {
		return err
	}
	if err := entry.l2region.Evict(ctx, keys...); err != nil {
		return newError(KindL2Unavailable, err)
	}
	m.l1.Evict(region, l1.ReasonExplicit, keys...)
	m.publish(ctx, protocol.Event{Operation: protocol.OpEvict, Region: region, Keys: keys, SenderID: m.senderID})
	return nil
}

// Clear empties region at L2 then L1, then publishes CLEAR.
func (m *Manager) Clear(ctx context.Context, region string) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()

	entry, err := m.region(region)
	if err != nil {
		return err
	}
	if err := entry.l2region.Clear(ctx); err != nil {
		return newError(KindL2Unavailable, err)
	}
	m.l1.Clear(region)
	m.publish(ctx, protocol.Event{Operation: protocol.OpClear, Region: region, SenderID: m.senderID})
	return nil
}

// Keys returns the union of live L1 and L2 keys for region. An L2 read
// failure degrades to the L1-only view rather than surfacing an error,
// consistent with Get's read-degrades-to-miss policy.
func (m *Manager) Keys(ctx context.Context, region string) ([]string, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.leave()

	entry, err := m.region(region)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, k := range m.l1.Keys(region) {
		seen[k] = struct{}{}
	}
	if l2keys, err := entry.l2region.Keys(ctx); err != nil {
		if m.log != nil {
			m.log.Warn("manager: l2 keys unavailable for %s: %s", region, err)
		}
	} else {
		for _, k := range l2keys {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys, nil
}

// publish encodes and sends ev, logging and swallowing any failure — a
// channel error never fails the caller's mutation (spec.md §4.f).
func (m *Manager) publish(ctx context.Context, ev protocol.Event) {
	data, err := protocol.Encode(m.codec, ev)
	if err != nil {
		if m.log != nil {
			m.log.Warn("manager: encode event failed: %s", err)
		}
		return
	}
	if err := m.channel.Publish(ctx, data); err != nil && m.log != nil {
		m.log.Warn("manager: publish failed: %s", err)
	}
}

// Shutdown drains in-flight operations, publishes a single QUIT, and closes
// the channel subscription. It does not close the L2 pool's underlying
// client, which the caller owns. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownMu.Lock()
	if m.shuttingDown {
		m.shutdownMu.Unlock()
		return nil
	}
	m.shuttingDown = true
	m.shutdownMu.Unlock()

	m.inflight.Wait()

	m.publish(ctx, protocol.Event{Operation: protocol.OpQuit, SenderID: m.senderID})

	m.l1.Close()
	return m.channel.Close()
}
