package tools

import (
	"errors"
	"fmt"

	"github.com/aschepis/ollama-mcp/ollama"
)

// ErrorPayload converts a handler error into the JSON object returned to the
// MCP caller. host is used in the connection remediation hint.
func ErrorPayload(err error, host string) map[string]any {
	var e *ollama.Error
	if !errors.As(err, &e) {
		e = ollama.NewInternalError("unexpected error", err)
	}

	payload := map[string]any{
		"kind":    string(e.Kind),
		"details": err.Error(),
	}

	switch e.Kind {
	case ollama.KindConnection:
		payload["error"] = "Cannot connect to Ollama"
		payload["suggestion"] = fmt.Sprintf("Ensure Ollama is running at %s", host)
	case ollama.KindTimeout:
		payload["error"] = "Ollama request timed out"
		payload["suggestion"] = "Retry later or raise OLLAMA_REQUEST_TIMEOUT"
	case ollama.KindAPI:
		payload["error"] = "Ollama API error"
		payload["status_code"] = e.StatusCode
		if e.Detail != nil && len(e.Detail.Details) > 0 {
			payload["api_details"] = e.Detail.Details
		}
	case ollama.KindValidation:
		payload["error"] = "Invalid parameters"
	case ollama.KindInternal:
		payload["error"] = "Internal server error"
	default:
		payload["error"] = "Internal server error"
	}
	return payload
}
