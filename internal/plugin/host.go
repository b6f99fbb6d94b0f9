package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/exoclaw/gateway/internal/capability"
)

// Entry is the bookkeeping record for one loaded plugin.
type Entry struct {
	Manifest Manifest
}

// describeResponse is what a plugin's optional "describe" export returns,
// used for kind auto-detection and schema discovery.
type describeResponse struct {
	Kind   Kind            `json:"kind"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// Host loads and invokes plugins. It never caches a running plugin instance
// between calls; entries only hold static manifest data.
type Host struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	processIsolator *ProcessIsolator
	fcIsolator      Isolator // nil unless Firecracker isolation is configured
}

// NewHost builds an empty plugin host using the process isolator by
// default. Call EnableFirecracker to opt individual plugins into the
// stronger microVM backend.
func NewHost() *Host {
	return &Host{
		entries:         make(map[string]*Entry),
		processIsolator: NewProcessIsolator(),
	}
}

// EnableFirecracker installs a shared Firecracker isolator used by any
// plugin manifest requesting "firecracker" isolation.
func (h *Host) EnableFirecracker(iso Isolator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fcIsolator = iso
}

func (h *Host) isolator(m Manifest) Isolator {
	if m.isolationFirecracker && h.fcIsolator != nil {
		return h.fcIsolator
	}
	return h.processIsolator
}

// Register loads the plugin at path, validates its manifest, and probes its
// kind by calling its optional describe export. It fails if path cannot be
// stat'ed. useFirecracker routes every call to this plugin through the
// isolator installed by EnableFirecracker; when none is installed, calls use
// the process isolator.
func (h *Host) Register(ctx context.Context, name, path string, rawCaps []string, timeout time.Duration, useFirecracker bool) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("plugin: %s: %w", name, err)
	}
	caps, err := capability.ParseAll(rawCaps)
	if err != nil {
		return fmt.Errorf("plugin: %s: %w", name, err)
	}
	m := resolveManifest(name, path, caps, timeout)
	m.isolationFirecracker = useFirecracker

	kind, schema := h.probeKind(ctx, m)
	m.Kind = kind
	m.Schema = schema

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[name] = &Entry{Manifest: m}
	return nil
}

// RegisterManual installs a manifest directly, bypassing Register's file
// load and kind probing. It is exported for other packages' tests that need
// a Host wired to a scripted Isolator (via EnableFirecracker) without
// spawning real plugin processes.
func (h *Host) RegisterManual(name string, m Manifest) {
	m.isolationFirecracker = true
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[name] = &Entry{Manifest: m}
}

// probeKind calls the plugin's optional "describe" export. If describe fails
// or returns no kind, it invokes handle_tool_call and then parse_incoming
// with an empty payload; the first call that returns without error decides
// the kind (Tool or ChannelAdapter). If neither succeeds, the kind is
// KindUnknown.
func (h *Host) probeKind(ctx context.Context, m Manifest) (Kind, json.RawMessage) {
	probeCtx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	iso := h.isolator(m)
	if out, err := iso.Invoke(probeCtx, m, "describe", []byte("{}")); err == nil {
		var desc describeResponse
		if json.Unmarshal(out, &desc) == nil && desc.Kind != "" {
			return desc.Kind, desc.Schema
		}
	}

	toolCtx, toolCancel := context.WithTimeout(ctx, m.Timeout)
	defer toolCancel()
	if _, err := iso.Invoke(toolCtx, m, "handle_tool_call", []byte("{}")); err == nil {
		return KindTool, nil
	}

	chanCtx, chanCancel := context.WithTimeout(ctx, m.Timeout)
	defer chanCancel()
	if _, err := iso.Invoke(chanCtx, m, "parse_incoming", []byte("{}")); err == nil {
		return KindChannelAdapter, nil
	}

	return KindUnknown, nil
}

// HasTool reports whether name is a registered Tool plugin.
func (h *Host) HasTool(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[name]
	return ok && e.Manifest.Kind == KindTool
}

// HasChannelAdapter reports whether name is a registered channel-adapter
// plugin.
func (h *Host) HasChannelAdapter(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[name]
	return ok && e.Manifest.Kind == KindChannelAdapter
}

// Manifest returns the resolved manifest for a loaded plugin, if any.
func (h *Host) Manifest(name string) (Manifest, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[name]
	if !ok {
		return Manifest{}, false
	}
	return e.Manifest, true
}

func (h *Host) lookup(name string) (*Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[name]
	return e, ok
}

// List returns the manifests of every loaded plugin.
func (h *Host) List() []Manifest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Manifest, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, e.Manifest)
	}
	return out
}

// Count returns the number of loaded plugins.
func (h *Host) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
