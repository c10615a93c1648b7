// Package schemas contains the input schemas and descriptions of the tools the
// server exposes. Each schema is registered with the MCP server at startup.
package schemas

// ToolSchema represents a tool's description and JSON schema.
type ToolSchema struct {
	Description string
	Schema      map[string]any
}

// All returns all tool schemas.
func All() map[string]ToolSchema {
	schemas := make(map[string]ToolSchema)
	for name, schema := range ModelSchemas() {
		schemas[name] = schema
	}
	for name, schema := range GenerationSchemas() {
		schemas[name] = schema
	}
	return schemas
}

func object(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
