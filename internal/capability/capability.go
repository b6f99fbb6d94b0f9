// Package capability parses and represents the declarative permissions a
// plugin manifest grants: which outbound hosts it may reach, which named
// stores it may use, and which host functions it may call.
package capability

import (
	"fmt"
	"strings"
)

// Kind identifies the category of a Capability.
type Kind string

const (
	KindHTTP         Kind = "http"
	KindStore        Kind = "store"
	KindHostFunction Kind = "host_function"
)

// Capability is a single granted permission, encoded on the wire as
// "type:value" (e.g. "http:api.example.com", "store:notes").
type Capability struct {
	Kind  Kind
	Value string
}

// String renders the capability back to its "type:value" wire form.
func (c Capability) String() string {
	return fmt.Sprintf("%s:%s", c.Kind, c.Value)
}

// Parse decodes a single "type:value" capability string.
func Parse(raw string) (Capability, error) {
	idx := strings.Index(raw, ":")
	if idx < 0 {
		return Capability{}, fmt.Errorf("capability: expected 'type:value', got %q", raw)
	}
	kind, value := raw[:idx], raw[idx+1:]
	if value == "" {
		return Capability{}, fmt.Errorf("capability: value cannot be empty in %q", raw)
	}
	switch Kind(kind) {
	case KindHTTP:
		return Capability{Kind: KindHTTP, Value: value}, nil
	case KindStore:
		return Capability{Kind: KindStore, Value: value}, nil
	case KindHostFunction:
		return Capability{Kind: KindHostFunction, Value: value}, nil
	default:
		return Capability{}, fmt.Errorf("capability: unknown capability type %q", kind)
	}
}

// ParseAll decodes a list of "type:value" capability strings, stopping at
// the first malformed entry.
func ParseAll(raw []string) ([]Capability, error) {
	out := make([]Capability, 0, len(raw))
	for _, r := range raw {
		c, err := Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AllowedHosts returns the hostnames granted by http capabilities, in the
// order they were declared.
func AllowedHosts(caps []Capability) []string {
	hosts := make([]string, 0, len(caps))
	for _, c := range caps {
		if c.Kind == KindHTTP {
			hosts = append(hosts, c.Value)
		}
	}
	return hosts
}

// Has reports whether caps contains a capability of the given kind and value.
func Has(caps []Capability, kind Kind, value string) bool {
	for _, c := range caps {
		if c.Kind == kind && c.Value == value {
			return true
		}
	}
	return false
}
