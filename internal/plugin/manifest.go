// Package plugin hosts sandboxed tool and channel-adapter plugins: it loads
// their manifests, probes their kind, validates tool input against their
// advertised JSON schema, and invokes them through a pluggable per-call
// isolation backend, never reusing a plugin instance across calls.
package plugin

import (
	"encoding/json"
	"time"

	"github.com/exoclaw/gateway/internal/capability"
)

// Kind distinguishes the two plugin ABIs the host understands.
type Kind string

const (
	KindTool           Kind = "tool"
	KindChannelAdapter Kind = "channel_adapter"
	KindUnknown        Kind = "unknown"
)

const defaultCallTimeout = 30 * time.Second

// Manifest is the resolved, validated configuration for one loaded plugin.
type Manifest struct {
	Name         string
	Path         string
	Capabilities []capability.Capability
	AllowedHosts []string
	Timeout      time.Duration
	Kind         Kind
	Schema       json.RawMessage // advertised tool input schema, if any

	isolationFirecracker bool
}

// resolveManifest fills in derived fields (allowed hosts, timeout default)
// from the raw configuration.
func resolveManifest(name, path string, caps []capability.Capability, timeout time.Duration) Manifest {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return Manifest{
		Name:         name,
		Path:         path,
		Capabilities: caps,
		AllowedHosts: capability.AllowedHosts(caps),
		Timeout:      timeout,
	}
}
