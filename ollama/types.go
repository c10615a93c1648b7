package ollama

import (
	"fmt"

	"github.com/ollama/ollama/api"
)

// Backend routes.
const (
	PathRoot          = "/"
	PathTags          = "/api/tags"
	PathGenerate      = "/api/generate"
	PathChat          = "/api/chat"
	PathEmbeddings    = "/api/embeddings"
	PathShow          = "/api/show"
	PathPull          = "/api/pull"
	PathCopy          = "/api/copy"
	PathDelete        = "/api/delete"
	PathRunningModels = "/api/ps"
)

// Request describes one logical backend call.
type Request struct {
	Method string
	Path   string
	Body   any // marshaled as JSON when non-nil
}

// Validator is implemented by response shapes that check themselves after decoding.
type Validator interface {
	Validate() error
}

// Frame is one decoded JSON object. Streamed responses are a sequence of frames;
// non-streamed generate/chat responses decode into a single frame.
type Frame map[string]any

// Done reports whether the frame carries done: true.
func (f Frame) Done() bool {
	done, _ := f["done"].(bool)
	return done
}

// Message returns the chat message object of the frame, if present.
func (f Frame) Message() (map[string]any, bool) {
	msg, ok := f["message"].(map[string]any)
	return msg, ok
}

func (f Frame) requireString(key string) error {
	if _, ok := f[key].(string); !ok {
		return fmt.Errorf("field %q missing or not a string", key)
	}
	return nil
}

func (f Frame) requireBool(key string) error {
	if _, ok := f[key].(bool); !ok {
		return fmt.Errorf("field %q missing or not a boolean", key)
	}
	return nil
}

// GenerateResponse is a complete /api/generate response.
type GenerateResponse Frame

// Validate implements Validator.
func (r GenerateResponse) Validate() error {
	f := Frame(r)
	for _, check := range []error{f.requireString("model"), f.requireString("response"), f.requireBool("done")} {
		if check != nil {
			return check
		}
	}
	return nil
}

// ChatResponse is a complete /api/chat response.
type ChatResponse Frame

// Validate implements Validator.
func (r ChatResponse) Validate() error {
	f := Frame(r)
	if err := f.requireString("model"); err != nil {
		return err
	}
	if err := f.requireBool("done"); err != nil {
		return err
	}
	msg, ok := f.Message()
	if !ok {
		return fmt.Errorf("field %q missing or not an object", "message")
	}
	m := Frame(msg)
	if err := m.requireString("role"); err != nil {
		return err
	}
	return m.requireString("content")
}

// ModelList is the /api/tags response.
type ModelList api.ListResponse

// Validate implements Validator.
func (l ModelList) Validate() error {
	for i, m := range l.Models {
		if m.Name == "" {
			return fmt.Errorf("model %d has no name", i)
		}
	}
	return nil
}

// RunningModels is the /api/ps response.
type RunningModels api.ProcessResponse

// Validate implements Validator.
func (l RunningModels) Validate() error {
	for i, m := range l.Models {
		if m.Name == "" {
			return fmt.Errorf("running model %d has no name", i)
		}
	}
	return nil
}

// EmbeddingResponse covers both the single-vector and the batched response shape.
type EmbeddingResponse struct {
	Model      string      `json:"model,omitempty"`
	Embedding  []float64   `json:"embedding,omitempty"`
	Embeddings [][]float64 `json:"embeddings,omitempty"`
}

// Vectors returns the embeddings as a list regardless of the response shape.
func (r EmbeddingResponse) Vectors() [][]float64 {
	switch {
	case r.Embeddings != nil:
		return r.Embeddings
	case r.Embedding != nil:
		return [][]float64{r.Embedding}
	default:
		return [][]float64{}
	}
}
