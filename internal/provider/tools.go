package provider

// BuildAnthropicTools renders tool schemas into Anthropic's
// {name, description, input_schema} tool definition shape.
func BuildAnthropicTools(schemas []ToolSchema) []map[string]any {
	out := make([]map[string]any, 0, len(schemas))
	for _, s := range schemas {
		name, desc, input := normalizeSchema(s)
		out = append(out, map[string]any{
			"name":        name,
			"description": desc,
			"input_schema": input,
		})
	}
	return out
}

// BuildOpenAITools renders tool schemas into OpenAI's
// {type:"function", function:{name, description, parameters}} shape.
func BuildOpenAITools(schemas []ToolSchema) []map[string]any {
	out := make([]map[string]any, 0, len(schemas))
	for _, s := range schemas {
		name, desc, input := normalizeSchema(s)
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        name,
				"description": desc,
				"parameters":  input,
			},
		})
	}
	return out
}

// BuildToolsForProvider dispatches to the correct shape by provider name,
// defaulting to the Anthropic shape for unrecognized providers.
func BuildToolsForProvider(providerName string, schemas []ToolSchema) []map[string]any {
	switch providerName {
	case "openai":
		return BuildOpenAITools(schemas)
	default:
		return BuildAnthropicTools(schemas)
	}
}

func normalizeSchema(s ToolSchema) (name, description string, inputSchema map[string]any) {
	name = s.Name
	if name == "" {
		name = "unknown"
	}
	description = s.Description
	inputSchema = s.InputSchema
	if inputSchema == nil {
		inputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return
}
