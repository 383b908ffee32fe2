// Package resource implements the process-wide resource manager: a
// singleton owning the embedding model, tokenizer, stopword set, and
// optional ANN index handles, with explicit idempotent open/close and
// a concurrency contract that allows many concurrent Get calls but
// requires callers to serialize the open/close lifecycle themselves.
package resource

import (
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/wannadb/matching/internal/logging"
	"github.com/wannadb/matching/internal/matcherr"
)

// ID names one of the resources the manager owns.
type ID string

const (
	IDEmbeddingModel ID = "embedding-model"
	IDTokenizer      ID = "tokenizer"
	IDStopwords      ID = "stopwords"
	IDANNIndex       ID = "ann-index"
)

// Resource is anything the manager owns the lifecycle of.
type Resource interface {
	Load() error
	Unload() error
}

// Manager is a process-wide singleton. Construct it once via Init and
// retrieve it anywhere with Get. A zero-value Manager is unusable;
// always go through Init/Get.
type Manager struct {
	// lifecycleMu serializes Open/Close; that pair is not safe to call
	// concurrently, unlike Get.
	lifecycleMu sync.Mutex
	refCount    int

	// resourcesMu guards the resources map itself so Get (reads) can run
	// concurrently with each other while Open/Close (writes) hold it only
	// for the brief window it takes to swap the map in or out.
	resourcesMu sync.RWMutex
	resources   map[ID]Resource

	// memPressureThreshold is the fraction (0-1) of system memory in use
	// above which ShouldSpillANNIndex reports that the ANN index should be
	// unloaded rather than kept resident.
	memPressureThreshold float64
}

var (
	singletonMu sync.Mutex
	singleton   *Manager
)

// New constructs a Manager bound to the given resources. Most callers
// should use Init/Get instead; New exists so tests can build an
// isolated Manager without touching the process-wide singleton.
func New(resources map[ID]Resource) *Manager {
	return &Manager{
		resources:            resources,
		memPressureThreshold: 0.85,
	}
}

// Init installs resources as the process-wide singleton's resource set.
// Calling Init again replaces the singleton outright; it is the caller's
// responsibility not to do this while the previous singleton has
// resources open.
func Init(resources map[ID]Resource) *Manager {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singleton = New(resources)
	return singleton
}

// Get returns the process-wide singleton, which must already have been
// installed with Init.
func Get() (*Manager, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton == nil {
		return nil, &matcherr.ResourceUnavailableError{ResourceID: "manager"}
	}
	return singleton, nil
}

// Open idempotently acquires the manager: the first Open loads every
// resource, and each nested Open simply bumps a reference count. Callers
// must serialize calls to Open/Close themselves.
func (m *Manager) Open() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.refCount++
	if m.refCount > 1 {
		logging.Debug("resource", "Open: nested acquire, refCount=%d", m.refCount)
		return nil
	}

	m.resourcesMu.Lock()
	defer m.resourcesMu.Unlock()
	loaded := make([]Resource, 0, len(m.resources))
	for id, r := range m.resources {
		if err := r.Load(); err != nil {
			// Unwind exactly the resources that did load this call,
			// leaving the manager in its last consistent (fully closed)
			// state. Map iteration order is not stable across loops, so
			// this tracks what actually loaded rather than re-deriving
			// it from a second range over m.resources.
			for _, done := range loaded {
				done.Unload()
			}
			m.refCount--
			return fmt.Errorf("resource: load %s: %w", id, err)
		}
		loaded = append(loaded, r)
	}
	logging.Info("resource", "opened (%d resources)", len(m.resources))
	return nil
}

// Close releases one acquisition. The underlying resources are unloaded
// only when the reference count reaches zero.
func (m *Manager) Close() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.refCount == 0 {
		return nil
	}
	m.refCount--
	if m.refCount > 0 {
		logging.Debug("resource", "Close: still held, refCount=%d", m.refCount)
		return nil
	}

	m.resourcesMu.Lock()
	defer m.resourcesMu.Unlock()
	var firstErr error
	for id, r := range m.resources {
		if err := r.Unload(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("resource: unload %s: %w", id, err)
		}
	}
	logging.Info("resource", "closed")
	return firstErr
}

// Get returns the resource registered under id. Safe to call from many
// goroutines concurrently; returns ResourceUnavailableError
// if the manager is not open or id was never registered.
func (m *Manager) Get(id ID) (Resource, error) {
	// lifecycleMu before resourcesMu, the same order Open/Close acquire
	// them in.
	m.lifecycleMu.Lock()
	open := m.refCount > 0
	m.lifecycleMu.Unlock()
	if !open {
		return nil, &matcherr.ResourceUnavailableError{ResourceID: string(id)}
	}

	m.resourcesMu.RLock()
	defer m.resourcesMu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return nil, &matcherr.ResourceUnavailableError{ResourceID: string(id)}
	}
	return r, nil
}

// ShouldSpillANNIndex reports whether current system memory pressure
// (sampled via gopsutil) exceeds this manager's threshold, i.e. whether
// the caller should Unload the ANN index rather than keep it resident. A
// sampling failure is treated as "no pressure" — spilling an optional
// index on a transient sampling error would cost more than it saves.
func (m *Manager) ShouldSpillANNIndex() bool {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logging.Debug("resource", "memory sample failed: %v", err)
		return false
	}
	pressure := vm.UsedPercent / 100
	if pressure > m.memPressureThreshold {
		logging.Info("resource", "memory pressure %.0f%% exceeds threshold %.0f%%, spilling ANN index", vm.UsedPercent, m.memPressureThreshold*100)
		return true
	}
	return false
}

// SetMemPressureThreshold overrides the default 0.85 spill threshold.
func (m *Manager) SetMemPressureThreshold(fraction float64) {
	m.memPressureThreshold = fraction
}
