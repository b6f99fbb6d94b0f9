package plugin

import (
	"context"
	"encoding/json"
	"fmt"
)

// ParseIncoming asks a channel-adapter plugin to normalize a raw inbound
// payload (e.g. a webhook body) into a wire.AgentMessage-shaped JSON
// document.
func (h *Host) ParseIncoming(ctx context.Context, pluginName string, raw []byte) (json.RawMessage, error) {
	entry, ok := h.lookup(pluginName)
	if !ok {
		return nil, fmt.Errorf("plugin: unknown channel adapter %q", pluginName)
	}
	if entry.Manifest.Kind != KindChannelAdapter {
		return nil, fmt.Errorf("plugin: %q is not a channel adapter", pluginName)
	}

	callCtx, cancel := context.WithTimeout(ctx, entry.Manifest.Timeout)
	defer cancel()
	return h.isolator(entry.Manifest).Invoke(callCtx, entry.Manifest, "parse_incoming", raw)
}

// FormatOutgoing asks a channel-adapter plugin to render a normalized
// response into the channel's native outbound payload shape.
func (h *Host) FormatOutgoing(ctx context.Context, pluginName string, normalized json.RawMessage) ([]byte, error) {
	entry, ok := h.lookup(pluginName)
	if !ok {
		return nil, fmt.Errorf("plugin: unknown channel adapter %q", pluginName)
	}
	if entry.Manifest.Kind != KindChannelAdapter {
		return nil, fmt.Errorf("plugin: %q is not a channel adapter", pluginName)
	}

	callCtx, cancel := context.WithTimeout(ctx, entry.Manifest.Timeout)
	defer cancel()
	return h.isolator(entry.Manifest).Invoke(callCtx, entry.Manifest, "format_outgoing", normalized)
}
