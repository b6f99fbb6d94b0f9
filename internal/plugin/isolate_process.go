package plugin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// ProcessIsolator runs a plugin as a brand-new OS process per call. The
// plugin binary is expected to read a JSON-encoded call envelope
// ({"export": "...", "input": ...}) from stdin and write its raw result to
// stdout. This is the default, portable isolation backend: no pooling, no
// shared state between calls, and a crash in one call only ever affects
// that call's process.
type ProcessIsolator struct{}

// NewProcessIsolator builds the default subprocess-per-call isolator.
func NewProcessIsolator() *ProcessIsolator { return &ProcessIsolator{} }

// Invoke runs m.Path as a fresh subprocess, feeding it the call envelope on
// stdin and returning whatever it wrote to stdout.
func (p *ProcessIsolator) Invoke(ctx context.Context, m Manifest, export string, input []byte) ([]byte, error) {
	envelope, err := encodeCall(export, input)
	if err != nil {
		return nil, fmt.Errorf("plugin: encode call envelope: %w", err)
	}

	cmd := exec.CommandContext(ctx, m.Path)
	cmd.Stdin = bytes.NewReader(envelope)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("plugin: call to %s timed out", m.Name)
		}
		return nil, fmt.Errorf("plugin: %s exited with error: %w (stderr: %s)", m.Name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
