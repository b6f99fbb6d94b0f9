package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolResult is the contract every tool invocation returns to the agent
// orchestrator: plain content and whether it represents an error. Traps,
// timeouts, and parse failures are converted into a ToolResult with
// IsError set, never propagated as a process-level error.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

func errorResult(format string, args ...any) ToolResult {
	return ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// CallTool validates input against the plugin's advertised schema (when one
// was published), then dispatches to handle_tool_call through the host's
// isolator.
func (h *Host) CallTool(ctx context.Context, pluginName string, input json.RawMessage) ToolResult {
	entry, ok := h.lookup(pluginName)
	if !ok {
		return errorResult("unknown plugin %q", pluginName)
	}
	if entry.Manifest.Kind != KindTool {
		return errorResult("plugin %q is not a tool", pluginName)
	}

	if entry.Manifest.Schema != nil {
		if err := validateAgainstSchema(entry.Manifest.Schema, input); err != nil {
			return errorResult("invalid input: %s", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, entry.Manifest.Timeout)
	defer cancel()

	out, err := h.isolator(entry.Manifest).Invoke(callCtx, entry.Manifest, "handle_tool_call", input)
	if err != nil {
		return errorResult("%s", err)
	}

	var result ToolResult
	if err := json.Unmarshal(out, &result); err != nil {
		// A plugin that returns raw text instead of the {content,is_error}
		// envelope is still usable; treat its entire output as content.
		return ToolResult{Content: string(out)}
	}
	return result
}

func validateAgainstSchema(schema json.RawMessage, input json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return err
	}
	return nil
}
