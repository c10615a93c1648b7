package ollama

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, host string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Host = host
	cfg.RetryDelay = time.Millisecond
	cfg.RequestTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewClient_NormalizesHost(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"default", "", DefaultHost},
		{"trailing slash", "http://localhost:11434/", "http://localhost:11434"},
		{"no scheme", "gpu-box:11434", "http://gpu-box:11434"},
		{"https", "https://ollama.internal", "https://ollama.internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(Config{Host: tt.host}, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Host())
		})
	}
}

func TestNewClient_RejectsNegativeRetries(t *testing.T) {
	_, err := NewClient(Config{MaxRetries: -1}, zerolog.Nop())
	assert.Error(t, err)
}

func TestExecute_DecodesModelList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathTags, r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest","size":4661224676,"digest":"365c0bd3c000","modified_at":"2024-05-01T10:00:00Z","details":{"family":"llama"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	var list ModelList
	require.NoError(t, c.Execute(context.Background(), Request{Method: http.MethodGet, Path: PathTags}, &list))
	require.Len(t, list.Models, 1)
	assert.Equal(t, "llama3:latest", list.Models[0].Name)
	assert.Equal(t, int64(4661224676), list.Models[0].Size)
	assert.Equal(t, "llama", list.Models[0].Details.Family)
}

func TestExecute_SendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3", body["model"])
		_, _ = w.Write([]byte(`{"model":"llama3","response":"hi","done":true,"eval_count":5}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	var resp GenerateResponse
	err := c.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   PathGenerate,
		Body:   map[string]any{"model": "llama3", "prompt": "hello", "stream": false},
	}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp["response"])
	assert.Equal(t, json.Number("5"), resp["eval_count"])
}

func TestExecute_APIErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	err := c.Execute(context.Background(), Request{Method: http.MethodPost, Path: PathShow, Body: map[string]string{"model": "nope"}}, nil)
	require.Error(t, err)
	assert.True(t, IsAPIError(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.NotNil(t, apiErr.Detail)
	assert.Equal(t, "model 'nope' not found", apiErr.Detail.Error)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_NonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: PathTags}, nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindAPI, apiErr.Kind)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.NotNil(t, apiErr.Detail)
	assert.Equal(t, "bad gateway", apiErr.Detail.Error)
}

func TestExecute_RetriesTimeoutThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.RequestTimeout = 100 * time.Millisecond
	})
	var list ModelList
	require.NoError(t, c.Execute(context.Background(), Request{Method: http.MethodGet, Path: PathTags}, &list))
	assert.Empty(t, list.Models)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_TimeoutExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.RequestTimeout = 50 * time.Millisecond
		cfg.MaxRetries = 2
	})
	err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: PathTags}, nil)
	require.Error(t, err)
	assert.True(t, IsTimeoutError(err))
	assert.Contains(t, err.Error(), "request timeout after 2 retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_ZeroRetriesMakesOneAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.RequestTimeout = 50 * time.Millisecond
		cfg.MaxRetries = 0
	})
	err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: PathTags}, nil)
	assert.True(t, IsTimeoutError(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_ConnectionRefusedFailsFast(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newTestClient(t, "http://"+addr, func(cfg *Config) {
		cfg.RetryDelay = time.Hour
	})

	start := time.Now()
	err = c.Execute(context.Background(), Request{Method: http.MethodGet, Path: PathTags}, nil)
	require.Error(t, err)
	assert.True(t, IsConnectionError(err), "got %v", err)
	assert.Contains(t, err.Error(), "Is it running?")
	assert.Contains(t, err.Error(), addr)
	assert.Less(t, time.Since(start), 10*time.Second, "connection errors must not wait for a retry")
}

func TestExecute_RetriesDroppedConnection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
				_ = conn.Close()
			}
			return
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	var out Frame
	err := c.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   PathCopy,
		Body:   map[string]string{"source": "a", "destination": "b"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecute_InvalidResponseShape(t *testing.T) {
	tests := []struct {
		name string
		body string
		out  any
	}{
		{"not json", `<html>`, &ModelList{}},
		{"chat without message", `{"model":"m","done":true}`, &ChatResponse{}},
		{"generate without response", `{"model":"m","done":true}`, &GenerateResponse{}},
		{"model without name", `{"models":[{"size":1}]}`, &ModelList{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, nil)
			err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: PathTags}, tt.out)
			assert.True(t, IsValidationError(err), "got %v", err)
			assert.Equal(t, int32(1), calls.Load(), "validation failures are not retried")
		})
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := c.Execute(ctx, Request{Method: http.MethodGet, Path: PathTags}, nil)
	require.Error(t, err)
	assert.True(t, IsInternalError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("Ollama is running"))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, nil)
			assert.Equal(t, tt.want, c.HealthCheck(context.Background()))
		})
	}
}

func TestHealthCheck_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newTestClient(t, "http://"+addr, nil)
	assert.False(t, c.HealthCheck(context.Background()))
}

func TestConnectIsIdempotentAndCloseRebuilds(t *testing.T) {
	c := newTestClient(t, "http://localhost:11434", nil)
	first := c.connect()
	assert.Same(t, first, c.connect())

	c.Close()
	c.Close()
	assert.NotSame(t, first, c.connect())
}

func TestNewBackOff_Schedule(t *testing.T) {
	c := newTestClient(t, "http://localhost:11434", func(cfg *Config) {
		cfg.RetryDelay = time.Second
		cfg.MaxRetries = 3
	})
	b := c.newBackOff()
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, time.Duration(-1), b.NextBackOff(), "no wait after the last retry")
}
