package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ToolHandler handles one tool call. args is the raw JSON argument object.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// Registry maps tool names to handlers.
type Registry struct {
	handlers map[string]ToolHandler
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "toolRegistry").Logger()
	logger.Debug().Msg("Creating new tool Registry")
	return &Registry{
		handlers: make(map[string]ToolHandler),
		logger:   logger,
	}
}

// Register registers a handler for a tool name.
func (r *Registry) Register(name string, h ToolHandler) {
	r.logger.Debug().Str("name", name).Msg("Registering tool handler")
	r.handlers[name] = h
}

// Has reports whether a handler is registered for name.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := lo.Keys(r.handlers)
	sort.Strings(names)
	return names
}

// Handle dispatches a tool call.
func (r *Registry) Handle(ctx context.Context, toolName string, args []byte) (any, error) {
	h, ok := r.handlers[toolName]
	if !ok {
		r.logger.Error().Str("tool", toolName).Msg("Unknown tool requested")
		return nil, fmt.Errorf("unknown tool: %s", toolName)
	}

	r.logger.Info().Str("tool", toolName).Msg("Executing tool")
	if len(args) > 0 {
		var prettyArgs any
		if err := json.Unmarshal(args, &prettyArgs); err == nil {
			if prettyBytes, err := json.MarshalIndent(prettyArgs, "", "  "); err == nil {
				r.logger.Debug().Str("tool", toolName).Str("args", truncate(string(prettyBytes), 500)).Msg("Tool called with arguments")
			}
		}
	}

	result, err := h(ctx, json.RawMessage(args))

	if err != nil {
		r.logger.Warn().Str("tool", toolName).Err(err).Msg("Tool returned error")
		return nil, err
	}
	if resultBytes, e := json.Marshal(result); e == nil {
		r.logger.Debug().Str("tool", toolName).Str("result", truncate(string(resultBytes), 500)).Msg("Tool returned result")
	} else {
		r.logger.Debug().Str("tool", toolName).Interface("result", result).Msg("Tool returned result (non-jsonable)")
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (truncated)"
}
