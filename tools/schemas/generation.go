package schemas

import "maps"

func generationOptions() map[string]any {
	return map[string]any{
		"temperature": map[string]any{
			"type":        "number",
			"minimum":     0,
			"maximum":     2,
			"description": "Sampling temperature",
		},
		"top_p": map[string]any{
			"type":        "number",
			"minimum":     0,
			"maximum":     1,
			"description": "Nucleus sampling probability mass",
		},
		"top_k": map[string]any{
			"type":        "integer",
			"minimum":     1,
			"description": "Sample from the k most likely tokens",
		},
		"seed": map[string]any{
			"type":        "integer",
			"description": "Random seed for reproducible output",
		},
		"num_predict": map[string]any{
			"type":        "integer",
			"minimum":     -1,
			"description": "Maximum tokens to generate (-1 = unlimited)",
		},
		"stop": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Stop sequences",
		},
		"stream": map[string]any{
			"type":        "boolean",
			"description": "Stream from the backend and return the assembled result (default: false)",
		},
	}
}

func withGenerationOptions(properties map[string]any) map[string]any {
	out := generationOptions()
	maps.Copy(out, properties)
	return out
}

// GenerationSchemas returns schemas for completion, chat and embedding tools.
func GenerationSchemas() map[string]ToolSchema {
	return map[string]ToolSchema{
		"generate_completion": {
			Description: "Generate a completion for a prompt with a model. Supports sampling options.",
			Schema: object(withGenerationOptions(map[string]any{
				"model":  str("Model name"),
				"prompt": str("Prompt text"),
			}), "model", "prompt"),
		},
		"generate_chat_completion": {
			Description: "Generate the next assistant message for a conversation. Supports sampling options.",
			Schema: object(withGenerationOptions(map[string]any{
				"model": str("Model name"),
				"messages": map[string]any{
					"type":        "array",
					"description": "Conversation history in order",
					"items": object(map[string]any{
						"role": map[string]any{
							"type": "string",
							"enum": []string{"system", "user", "assistant"},
						},
						"content": str("Message text"),
					}, "role", "content"),
				},
			}), "model", "messages"),
		},
		"generate_embeddings": {
			Description: "Generate embeddings for a string or a list of strings.",
			Schema: object(map[string]any{
				"model": str("Embedding model name"),
				"prompt": map[string]any{
					"description": "Text to embed, or a list of texts",
					"oneOf": []any{
						map[string]any{"type": "string"},
						map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
				},
			}, "model", "prompt"),
		},
	}
}
