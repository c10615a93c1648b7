package schemas

// ModelSchemas returns schemas for the model management tools.
func ModelSchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"list_models": {
			Description: "List all models available on the Ollama server with their size, digest and modification time.",
			Schema:      object(map[string]any{}),
		},
		"show_model": {
			Description: "Show detailed information about a model: modelfile, parameters, template and details.",
			Schema: object(map[string]any{
				"name": str("Model name, e.g. 'llama3:latest'"),
			}, "name"),
		},
		"pull_model": {
			Description: "Pull a model from the Ollama library. This can take a long time for large models.",
			Schema: object(map[string]any{
				"name": str("Model name to pull"),
				"insecure": map[string]any{
					"type":        "boolean",
					"description": "Allow insecure connections to the registry (default: false)",
				},
			}, "name"),
		},
		"copy_model": {
			Description: "Copy a model to a new name.",
			Schema: object(map[string]any{
				"source":      str("Existing model name"),
				"destination": str("New model name"),
			}, "source", "destination"),
		},
		"delete_model": {
			Description: "Delete a model from local storage.",
			Schema: object(map[string]any{
				"name": str("Model name to delete"),
			}, "name"),
		},
		"list_running_models": {
			Description: "List the models currently loaded in memory.",
			Schema:      object(map[string]any{}),
		},
		"check_model_exists": {
			Description: "Check whether a model exists locally.",
			Schema: object(map[string]any{
				"name": str("Model name to look for"),
			}, "name"),
		},
	}
}
