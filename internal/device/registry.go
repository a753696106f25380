// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package device holds the authoritative set of connected devices, their
// capability flags, and the connection to device key binding.
package device

import (
	"context"
	"hash/fnv"
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/ManuGH/audiocenter/internal/namestore"
	"github.com/rs/zerolog"
)

const shardCount = 32

// persistTimeout bounds one name map save.
const persistTimeout = 10 * time.Second

// Submitter accepts fire-and-forget work without blocking.
type Submitter interface {
	TrySubmit(fn func()) error
}

// SessionCanceler tears down the upload session of a device key.
type SessionCanceler interface {
	Cancel(key string) bool
}

// Registration reports what RegisterOrUpdate did.
type Registration struct {
	Record Record
	// Created is true when the call created the device record.
	Created bool
	// Owner is false when the key is bound to a different connection
	// (first-write-wins); the caller's connection is then not tracked.
	Owner bool
}

// Options wires the registry's collaborators. All fields are optional.
type Options struct {
	Store    namestore.Store
	Pool     Submitter
	Sessions SessionCanceler
	Logger   *zerolog.Logger
}

type entry struct {
	rec  Record
	conn Conn
}

type keyShard struct {
	mu sync.RWMutex
	m  map[string]*entry
}

type connShard struct {
	mu sync.RWMutex
	m  map[uint64]string
}

// Registry maps device keys to records and connections. Each key's record,
// capabilities and bound connection live in one key shard; the reverse
// connection→key index lives in a separate conn shard. Locks are always taken
// key shard first.
type Registry struct {
	keys  [shardCount]keyShard
	conns [shardCount]connShard
	count atomic.Int64

	namesMu sync.Mutex
	names   map[string]string

	store    namestore.Store
	pool     Submitter
	sessions SessionCanceler
	logger   zerolog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		names:    make(map[string]string),
		store:    opts.Store,
		pool:     opts.Pool,
		sessions: opts.Sessions,
	}
	if opts.Logger != nil {
		r.logger = opts.Logger.With().Str(xglog.FieldComponent, "device").Logger()
	} else {
		r.logger = xglog.WithComponent("device")
	}
	for i := range r.keys {
		r.keys[i].m = make(map[string]*entry)
		r.conns[i].m = make(map[uint64]string)
	}
	return r
}

// LoadNames warms the name cache from the store. Failure leaves the cache
// empty; names are relearned from the next registration.
func (r *Registry) LoadNames(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	names, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Str(xglog.FieldEvent, "names.load_failed").Msg("name cache not loaded")
		return err
	}
	r.namesMu.Lock()
	maps.Copy(r.names, names)
	r.namesMu.Unlock()
	r.logger.Info().Str(xglog.FieldEvent, "names.loaded").Int("count", len(names)).Msg("name cache loaded")
	return nil
}

// CachedName returns the last persisted display name of a key.
func (r *Registry) CachedName(key string) (string, bool) {
	r.namesMu.Lock()
	defer r.namesMu.Unlock()
	n, ok := r.names[key]
	return n, ok
}

// ResolveKey returns the key bound to conn, or derives one. It never mutates
// the registry.
func (r *Registry) ResolveKey(conn Conn) string {
	cs := r.connShard(conn.ID())
	cs.mu.RLock()
	key, ok := cs.m[conn.ID()]
	cs.mu.RUnlock()
	if ok {
		return key
	}
	return DeriveKey(conn.RemoteAddr(), conn.LocalAddr())
}

// RegisterOrUpdate creates the device record for conn's key and binds conn
// to it, or updates the existing record in place. Metadata carrying Brand or
// Model renames the device and schedules a best-effort name map save.
func (r *Registry) RegisterOrUpdate(conn Conn, metadata map[string]any) Registration {
	key := r.ResolveKey(conn)
	name, announced := NameFromMetadata(metadata)
	now := time.Now()

	ks := r.keyShard(key)
	ks.mu.Lock()
	e, seen := ks.m[key]
	if !seen {
		if !announced {
			name = UnknownName
			if cached, ok := r.CachedName(key); ok && cached != "" {
				name = cached
			}
		}
		e = &entry{
			rec: Record{
				Key:          key,
				Name:         name,
				RemoteAddr:   addrString(conn.RemoteAddr()),
				LocalAddr:    addrString(conn.LocalAddr()),
				Metadata:     cloneMap(metadata),
				Capabilities: DefaultCapabilities,
				ConnectedAt:  now,
				UpdatedAt:    now,
			},
			conn: conn,
		}
		cs := r.connShard(conn.ID())
		cs.mu.Lock()
		cs.m[conn.ID()] = key
		cs.mu.Unlock()
		ks.m[key] = e
	} else {
		e.rec.Metadata = cloneMap(metadata)
		if announced {
			e.rec.Name = name
		}
		e.rec.UpdatedAt = now
	}
	reg := Registration{
		Record:  e.rec.clone(),
		Created: !seen,
		Owner:   e.conn.ID() == conn.ID(),
	}
	ks.mu.Unlock()

	if !seen {
		metrics.SetDevicesConnected(int(r.count.Add(1)))
	}

	ev := r.logger.Info()
	if !reg.Owner {
		ev = r.logger.Warn()
	}
	ev.Str(xglog.FieldEvent, registrationEvent(reg)).
		Str(xglog.FieldDeviceKey, key).
		Str(xglog.FieldDeviceName, reg.Record.Name).
		Str(xglog.FieldRemoteAddr, addrString(conn.RemoteAddr())).
		Uint64(xglog.FieldConnID, conn.ID()).
		Msg("device registry updated")

	if announced {
		r.persistName(key, name)
	}
	return reg
}

func registrationEvent(reg Registration) string {
	switch {
	case reg.Created:
		return "device.registered"
	case !reg.Owner:
		return "device.shadowed"
	default:
		return "device.updated"
	}
}

// persistName updates the cache and queues a save of the whole map. It never
// blocks: a full pool drops the save.
func (r *Registry) persistName(key, name string) {
	r.namesMu.Lock()
	r.names[key] = name
	snapshot := maps.Clone(r.names)
	r.namesMu.Unlock()

	if r.store == nil {
		return
	}
	save := func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.Save(ctx, snapshot); err != nil {
			metrics.IncNamePersist("error")
			r.logger.Warn().Err(err).
				Str(xglog.FieldEvent, "names.persist_failed").
				Str(xglog.FieldDeviceKey, key).
				Msg("name map not persisted")
			return
		}
		metrics.IncNamePersist("ok")
	}
	if r.pool == nil {
		go save()
		return
	}
	if err := r.pool.TrySubmit(save); err != nil {
		metrics.IncNamePersist("dropped")
		r.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "names.persist_dropped").
			Str(xglog.FieldDeviceKey, key).
			Msg("name map save dropped")
	}
}

// Unregister removes the device bound to conn together with its capability
// flags, binding and upload session. A connection that does not own its key
// is a no-op, so a duplicate's disconnect leaves the owner intact.
func (r *Registry) Unregister(conn Conn) (Record, bool) {
	key := r.ResolveKey(conn)

	ks := r.keyShard(key)
	ks.mu.Lock()
	e, ok := ks.m[key]
	if !ok || e.conn.ID() != conn.ID() {
		ks.mu.Unlock()
		return Record{}, false
	}
	delete(ks.m, key)
	cs := r.connShard(conn.ID())
	cs.mu.Lock()
	delete(cs.m, conn.ID())
	cs.mu.Unlock()
	if r.sessions != nil {
		r.sessions.Cancel(key)
	}
	rec := e.rec.clone()
	ks.mu.Unlock()

	metrics.SetDevicesConnected(int(r.count.Add(-1)))
	r.logger.Info().
		Str(xglog.FieldEvent, "device.unregistered").
		Str(xglog.FieldDeviceKey, key).
		Str(xglog.FieldDeviceName, rec.Name).
		Uint64(xglog.FieldConnID, conn.ID()).
		Msg("device unregistered")
	return rec, true
}

// SetCapability changes the capture and/or playback flag of a device.
// It returns false for an unknown key, capability or enable value.
func (r *Registry) SetCapability(key, capability, enable string) bool {
	c, err := ParseCapability(capability)
	if err != nil {
		return false
	}
	on, err := ParseEnable(enable)
	if err != nil {
		return false
	}

	ks := r.keyShard(key)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	e, ok := ks.m[key]
	if !ok {
		return false
	}
	switch c {
	case CapabilityCapture:
		e.rec.Capabilities.Capture = on
	case CapabilityPlayback:
		e.rec.Capabilities.Playback = on
	case CapabilityAll:
		e.rec.Capabilities.Capture = on
		e.rec.Capabilities.Playback = on
	}
	r.logger.Info().
		Str(xglog.FieldEvent, "device.capability_changed").
		Str(xglog.FieldDeviceKey, key).
		Str("capability", string(c)).
		Bool("enabled", on).
		Msg("capability updated")
	return true
}

// Lookup returns a copy of one record.
func (r *Registry) Lookup(key string) (Record, bool) {
	ks := r.keyShard(key)
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	e, ok := ks.m[key]
	if !ok {
		return Record{}, false
	}
	return e.rec.clone(), true
}

// Conn returns the connection bound to key.
func (r *Registry) Conn(key string) (Conn, bool) {
	ks := r.keyShard(key)
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	e, ok := ks.m[key]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Len returns the number of registered devices.
func (r *Registry) Len() int { return int(r.count.Load()) }

// Keys returns all device keys, sorted.
func (r *Registry) Keys() []string {
	return r.collectKeys(func(*entry) bool { return true })
}

// CaptureKeys returns the keys with capture enabled, sorted.
func (r *Registry) CaptureKeys() []string {
	return r.collectKeys(func(e *entry) bool { return e.rec.Capabilities.Capture })
}

// PlaybackKeys returns the keys with playback enabled, sorted.
func (r *Registry) PlaybackKeys() []string {
	return r.collectKeys(func(e *entry) bool { return e.rec.Capabilities.Playback })
}

// Records returns copies of all records, sorted by key.
func (r *Registry) Records() []Record {
	var out []Record
	for i := range r.keys {
		ks := &r.keys[i]
		ks.mu.RLock()
		for _, e := range ks.m {
			out = append(out, e.rec.clone())
		}
		ks.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *Registry) collectKeys(keep func(*entry) bool) []string {
	out := []string{}
	for i := range r.keys {
		ks := &r.keys[i]
		ks.mu.RLock()
		for k, e := range ks.m {
			if keep(e) {
				out = append(out, k)
			}
		}
		ks.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func (r *Registry) keyShard(key string) *keyShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &r.keys[h.Sum32()%shardCount]
}

func (r *Registry) connShard(id uint64) *connShard {
	return &r.conns[id%shardCount]
}

func addrString(a interface{ String() string }) string {
	if a == nil {
		return ""
	}
	return a.String()
}
