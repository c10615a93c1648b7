package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aschepis/ollama-mcp/cache"
	"github.com/aschepis/ollama-mcp/ollama"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Cache keys for the read-through cached listings.
var (
	ModelListKey     = cache.MustKey("models", "list_models", nil)
	RunningModelsKey = cache.MustKey("running_models", "list_running_models", nil)
)

// Default lifetimes of the cached listings.
const (
	DefaultModelListTTL     = 300 * time.Second
	DefaultRunningModelsTTL = 30 * time.Second
)

// ChatRoles are the accepted message roles for chat completions.
var ChatRoles = []string{"system", "user", "assistant"}

// Backend is the subset of *ollama.Client the tools need.
type Backend interface {
	Execute(ctx context.Context, req ollama.Request, out any) error
	Collect(ctx context.Context, req ollama.Request, mode ollama.StreamMode) (ollama.Frame, error)
}

// CacheOptions controls read-through caching of model listings.
// A nil Store disables caching.
type CacheOptions struct {
	Store            *cache.Cache[any]
	ModelListTTL     time.Duration
	RunningModelsTTL time.Duration
}

// ModelSummary is one entry of the list_models result.
type ModelSummary struct {
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	ModifiedAt *time.Time `json:"modified_at"`
	Digest     string     `json:"digest"`
}

// ModelListResult is the list_models result.
type ModelListResult struct {
	Models []ModelSummary `json:"models"`
}

// RunningModelSummary is one entry of the list_running_models result.
type RunningModelSummary struct {
	Name      string     `json:"name"`
	Model     string     `json:"model"`
	Size      int64      `json:"size"`
	SizeVRAM  int64      `json:"size_vram"`
	Digest    string     `json:"digest"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// RunningModelsResult is the list_running_models result.
type RunningModelsResult struct {
	Models []RunningModelSummary `json:"models"`
}

// GenerationOptions are the sampling options shared by completion and chat tools.
// Unset options are not sent to the backend.
type GenerationOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Validate checks option ranges.
func (o GenerationOptions) Validate() error {
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", *o.Temperature)
	}
	if o.TopP != nil && (*o.TopP < 0 || *o.TopP > 1) {
		return fmt.Errorf("top_p must be between 0 and 1, got %v", *o.TopP)
	}
	if o.TopK != nil && *o.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", *o.TopK)
	}
	if o.NumPredict != nil && *o.NumPredict < -1 {
		return fmt.Errorf("num_predict must be >= -1, got %d", *o.NumPredict)
	}
	return nil
}

// Map returns the options in the shape of the backend's options object,
// or nil when nothing is set.
func (o GenerationOptions) Map() map[string]any {
	opts := map[string]any{}
	if o.Temperature != nil {
		opts["temperature"] = *o.Temperature
	}
	if o.TopP != nil {
		opts["top_p"] = *o.TopP
	}
	if o.TopK != nil {
		opts["top_k"] = *o.TopK
	}
	if o.Seed != nil {
		opts["seed"] = *o.Seed
	}
	if o.NumPredict != nil {
		opts["num_predict"] = *o.NumPredict
	}
	if len(o.Stop) > 0 {
		opts["stop"] = o.Stop
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

type ollamaTools struct {
	backend          Backend
	store            *cache.Cache[any]
	modelListTTL     time.Duration
	runningModelsTTL time.Duration
	logger           zerolog.Logger
}

// RegisterOllamaTools registers the Ollama model-management and generation tools.
func (r *Registry) RegisterOllamaTools(backend Backend, opts CacheOptions) {
	t := &ollamaTools{
		backend:          backend,
		store:            opts.Store,
		modelListTTL:     lo.Ternary(opts.ModelListTTL > 0, opts.ModelListTTL, DefaultModelListTTL),
		runningModelsTTL: lo.Ternary(opts.RunningModelsTTL > 0, opts.RunningModelsTTL, DefaultRunningModelsTTL),
		logger:           r.logger.With().Str("component", "ollamaTools").Logger(),
	}
	t.logger.Info().Bool("cacheEnabled", t.store != nil).Msg("Registering Ollama tools")

	r.Register("list_models", t.listModels)
	r.Register("show_model", t.showModel)
	r.Register("generate_completion", t.generateCompletion)
	r.Register("generate_chat_completion", t.generateChatCompletion)
	r.Register("generate_embeddings", t.generateEmbeddings)
	r.Register("pull_model", t.pullModel)
	r.Register("copy_model", t.copyModel)
	r.Register("delete_model", t.deleteModel)
	r.Register("list_running_models", t.listRunningModels)
	r.Register("check_model_exists", t.checkModelExists)
}

func decodeArgs[T any](args json.RawMessage) (T, error) {
	var out T
	if len(args) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(args, &out); err != nil {
		return out, ollama.NewValidationError("invalid arguments", err)
	}
	return out, nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ollama.NewValidationError(fmt.Sprintf("%s is required", field), nil)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (t *ollamaTools) invalidate(keys ...string) {
	if t.store == nil {
		return
	}
	for _, k := range keys {
		t.store.Delete(k)
	}
	t.logger.Debug().Strs("keys", keys).Msg("Invalidated cache entries")
}

func (t *ollamaTools) listModels(ctx context.Context, _ json.RawMessage) (any, error) {
	return t.models(ctx)
}

func (t *ollamaTools) models(ctx context.Context) (*ModelListResult, error) {
	if t.store != nil {
		if v, ok := t.store.Get(ModelListKey); ok {
			if res, ok := v.(*ModelListResult); ok {
				t.logger.Debug().Str("key", ModelListKey).Msg("Cache hit")
				return res, nil
			}
		}
	}

	var list ollama.ModelList
	if err := t.backend.Execute(ctx, ollama.Request{Method: http.MethodGet, Path: ollama.PathTags}, &list); err != nil {
		return nil, err
	}
	res := &ModelListResult{
		Models: lo.Map(list.Models, func(m api.ListModelResponse, _ int) ModelSummary {
			return ModelSummary{
				Name:       m.Name,
				Size:       m.Size,
				ModifiedAt: timePtr(m.ModifiedAt),
				Digest:     m.Digest,
			}
		}),
	}

	if t.store != nil {
		t.store.SetWithTTL(ModelListKey, res, t.modelListTTL)
		t.logger.Debug().Str("key", ModelListKey).Msg("Cached result")
	}
	return res, nil
}

func (t *ollamaTools) listRunningModels(ctx context.Context, _ json.RawMessage) (any, error) {
	if t.store != nil {
		if v, ok := t.store.Get(RunningModelsKey); ok {
			if res, ok := v.(*RunningModelsResult); ok {
				t.logger.Debug().Str("key", RunningModelsKey).Msg("Cache hit")
				return res, nil
			}
		}
	}

	var running ollama.RunningModels
	if err := t.backend.Execute(ctx, ollama.Request{Method: http.MethodGet, Path: ollama.PathRunningModels}, &running); err != nil {
		return nil, err
	}
	res := &RunningModelsResult{
		Models: lo.Map(running.Models, func(m api.ProcessModelResponse, _ int) RunningModelSummary {
			return RunningModelSummary{
				Name:      m.Name,
				Model:     m.Model,
				Size:      m.Size,
				SizeVRAM:  m.SizeVRAM,
				Digest:    m.Digest,
				ExpiresAt: timePtr(m.ExpiresAt),
			}
		}),
	}

	if t.store != nil {
		t.store.SetWithTTL(RunningModelsKey, res, t.runningModelsTTL)
		t.logger.Debug().Str("key", RunningModelsKey).Msg("Cached result")
	}
	return res, nil
}

func (t *ollamaTools) showModel(ctx context.Context, args json.RawMessage) (any, error) {
	payload, err := decodeArgs[struct {
		Name string `json:"name"`
	}](args)
	if err != nil {
		return nil, err
	}
	if err := required("name", payload.Name); err != nil {
		return nil, err
	}

	var out ollama.Frame
	err = t.backend.Execute(ctx, ollama.Request{
		Method: http.MethodPost,
		Path:   ollama.PathShow,
		Body:   api.ShowRequest{Model: payload.Name},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type generateArgs struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	GenerationOptions
}

func (t *ollamaTools) generateCompletion(ctx context.Context, args json.RawMessage) (any, error) {
	payload, err := decodeArgs[generateArgs](args)
	if err != nil {
		return nil, err
	}
	if err := required("model", payload.Model); err != nil {
		return nil, err
	}
	if err := required("prompt", payload.Prompt); err != nil {
		return nil, err
	}
	if err := payload.GenerationOptions.Validate(); err != nil {
		return nil, ollama.NewValidationError("invalid generation options", err)
	}

	stream := payload.Stream
	req := ollama.Request{
		Method: http.MethodPost,
		Path:   ollama.PathGenerate,
		Body: api.GenerateRequest{
			Model:   payload.Model,
			Prompt:  payload.Prompt,
			Stream:  &stream,
			Options: payload.GenerationOptions.Map(),
		},
	}
	t.logger.Debug().Str("model", payload.Model).Bool("stream", stream).Msg("Generating completion")

	if stream {
		return t.backend.Collect(ctx, req, ollama.StreamGenerate)
	}
	var out ollama.GenerateResponse
	if err := t.backend.Execute(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatArgs struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	GenerationOptions
}

func (t *ollamaTools) generateChatCompletion(ctx context.Context, args json.RawMessage) (any, error) {
	payload, err := decodeArgs[chatArgs](args)
	if err != nil {
		return nil, err
	}
	if err := required("model", payload.Model); err != nil {
		return nil, err
	}
	if len(payload.Messages) == 0 {
		return nil, ollama.NewValidationError("messages must contain at least one message", nil)
	}
	for i, m := range payload.Messages {
		if !lo.Contains(ChatRoles, m.Role) {
			return nil, ollama.NewValidationError(
				fmt.Sprintf("messages[%d].role must be one of %s, got %q", i, strings.Join(ChatRoles, ", "), m.Role), nil)
		}
	}
	if err := payload.GenerationOptions.Validate(); err != nil {
		return nil, ollama.NewValidationError("invalid generation options", err)
	}

	stream := payload.Stream
	req := ollama.Request{
		Method: http.MethodPost,
		Path:   ollama.PathChat,
		Body: api.ChatRequest{
			Model: payload.Model,
			Messages: lo.Map(payload.Messages, func(m chatMessage, _ int) api.Message {
				return api.Message{Role: m.Role, Content: m.Content}
			}),
			Stream:  &stream,
			Options: payload.GenerationOptions.Map(),
		},
	}
	t.logger.Debug().Str("model", payload.Model).Int("messages", len(payload.Messages)).Bool("stream", stream).Msg("Generating chat completion")

	if stream {
		return t.backend.Collect(ctx, req, ollama.StreamChat)
	}
	var out ollama.ChatResponse
	if err := t.backend.Execute(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// promptList accepts either a JSON string or a JSON array of strings.
type promptList struct {
	prompts []string
	single  bool
}

func (p *promptList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.prompts = []string{s}
		p.single = true
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("prompt must be a string or a list of strings")
	}
	p.prompts = list
	p.single = false
	return nil
}

func (t *ollamaTools) generateEmbeddings(ctx context.Context, args json.RawMessage) (any, error) {
	payload, err := decodeArgs[struct {
		Model  string      `json:"model"`
		Prompt *promptList `json:"prompt"`
	}](args)
	if err != nil {
		return nil, err
	}
	if err := required("model", payload.Model); err != nil {
		return nil, err
	}
	if payload.Prompt == nil {
		return nil, ollama.NewValidationError("prompt is required", nil)
	}

	model := payload.Model
	vectors := [][]float64{}
	// The backend embeds one prompt per request.
	for _, prompt := range payload.Prompt.prompts {
		var resp ollama.EmbeddingResponse
		err := t.backend.Execute(ctx, ollama.Request{
			Method: http.MethodPost,
			Path:   ollama.PathEmbeddings,
			Body:   api.EmbeddingRequest{Model: payload.Model, Prompt: prompt},
		}, &resp)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, resp.Vectors()...)
		if payload.Prompt.single && resp.Model != "" {
			model = resp.Model
		}
	}

	return map[string]any{
		"model":      model,
		"embeddings": vectors,
	}, nil
}

func (t *ollamaTools) pullModel(ctx context.Context, args json.RawMessage) (any, error) {
	payload, err := decodeArgs[struct {
		Name     string `json:"name"`
		Insecure bool   `json:"insecure"`
	}](args)
	if err != nil {
		return nil, err
	}
	if err := required("name", payload.Name); err != nil {
		return nil, err
	}

	t.logger.Info().Str("model", payload.Name).Bool("insecure", payload.Insecure).Msg("Pulling model")
	t.invalidate(ModelListKey)
	defer t.invalidate(ModelListKey)

	stream := false
	var out ollama.Frame
	err = t.backend.Execute(ctx, ollama.Request{
		Method: http.MethodPost,
		Path:   ollama.PathPull,
		Body:   api.PullRequest{Model: payload.Name, Insecure: payload.Insecure, Stream: &stream},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *ollamaTools) copyModel(ctx context.Context, args json.RawMessage) (any, error) {
	payload, err := decodeArgs[struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
	}](args)
	if err != nil {
		return nil, err
	}
	if err := required("source", payload.Source); err != nil {
		return nil, err
	}
	if err := required("destination", payload.Destination); err != nil {
		return nil, err
	}

	t.logger.Info().Str("source", payload.Source).Str("destination", payload.Destination).Msg("Copying model")
	t.invalidate(ModelListKey)
	defer t.invalidate(ModelListKey)

	err = t.backend.Execute(ctx, ollama.Request{
		Method: http.MethodPost,
		Path:   ollama.PathCopy,
		Body:   api.CopyRequest{Source: payload.Source, Destination: payload.Destination},
	}, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Model copied from %s to %s", payload.Source, payload.Destination),
	}, nil
}

func (t *ollamaTools) deleteModel(ctx context.Context, args json.RawMessage) (any, error) {
	payload, err := decodeArgs[struct {
		Name string `json:"name"`
	}](args)
	if err != nil {
		return nil, err
	}
	if err := required("name", payload.Name); err != nil {
		return nil, err
	}

	t.logger.Warn().Str("model", payload.Name).Msg("Deleting model")
	t.invalidate(ModelListKey, RunningModelsKey)
	defer t.invalidate(ModelListKey, RunningModelsKey)

	err = t.backend.Execute(ctx, ollama.Request{
		Method: http.MethodDelete,
		Path:   ollama.PathDelete,
		Body:   api.DeleteRequest{Model: payload.Name},
	}, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Model %s deleted successfully", payload.Name),
	}, nil
}

func (t *ollamaTools) checkModelExists(ctx context.Context, args json.RawMessage) (any, error) {
	payload, err := decodeArgs[struct {
		Name string `json:"name"`
	}](args)
	if err != nil {
		return nil, err
	}
	if err := required("name", payload.Name); err != nil {
		return nil, err
	}

	list, err := t.models(ctx)
	if err != nil {
		return nil, err
	}
	exists := lo.ContainsBy(list.Models, func(m ModelSummary) bool { return m.Name == payload.Name })
	return map[string]any{
		"exists":  exists,
		"model":   payload.Name,
		"message": fmt.Sprintf("Model '%s' %s locally", payload.Name, lo.Ternary(exists, "exists", "does not exist")),
	}, nil
}
