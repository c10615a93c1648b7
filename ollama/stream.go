package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
)

// ErrStopStream may be returned by a StreamFunc to end the stream early without error.
var ErrStopStream = errors.New("stop stream")

// StreamFunc receives frames in arrival order.
type StreamFunc func(Frame) error

// Stream performs a request whose response is newline-delimited JSON and calls
// fn for every frame until a done frame, end of body, or an error. The body is
// closed on every exit path. Failures after the response has started are not retried.
func (c *Client) Stream(ctx context.Context, req Request, fn StreamFunc) error {
	return c.send(ctx, req, true, func(resp *http.Response) error {
		if err := readFrames(resp.Body, fn); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	})
}

// Collect streams req and reassembles the frames into one response.
func (c *Client) Collect(ctx context.Context, req Request, mode StreamMode) (Frame, error) {
	agg := NewAggregator(mode)
	err := c.Stream(ctx, req, func(f Frame) error {
		done, err := agg.Add(f)
		if err != nil {
			return err
		}
		if done {
			return ErrStopStream
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg.Result()
}

func readFrames(body io.Reader, fn StreamFunc) error {
	br := bufio.NewReader(body)
	for {
		line, readErr := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			frame, err := decodeFrame(line)
			if err != nil {
				return err
			}
			// The status line already said 200; an in-band error is a server failure.
			if msg, ok := frame["error"].(string); ok {
				return NewAPIError(http.StatusInternalServerError, &APIErrorDetail{Error: msg})
			}
			if err := fn(frame); err != nil {
				if errors.Is(err, ErrStopStream) {
					return nil
				}
				return err
			}
			if frame.Done() {
				return nil
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return NewInternalError("stream interrupted", readErr)
		}
	}
}

func decodeFrame(line []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var f Frame
	if err := dec.Decode(&f); err != nil {
		return nil, NewInternalError(fmt.Sprintf("malformed stream frame %q", truncate(string(line), responseLogPrefix)), err)
	}
	if f == nil {
		return nil, NewInternalError("stream frame is not a JSON object", nil)
	}
	return f, nil
}

// StreamMode selects which field an Aggregator concatenates.
type StreamMode int

const (
	// StreamGenerate concatenates the top-level "response" field.
	StreamGenerate StreamMode = iota
	// StreamChat concatenates "message.content" and keeps the latest role.
	StreamChat
)

// Aggregator reassembles streamed frames into the equivalent non-streamed response.
// The result is the final done frame with its text field replaced by the
// concatenation of every frame's text in arrival order.
type Aggregator struct {
	mode    StreamMode
	content strings.Builder
	role    string
	final   Frame
	frames  int
}

// NewAggregator returns an empty Aggregator for mode.
func NewAggregator(mode StreamMode) *Aggregator {
	return &Aggregator{mode: mode}
}

// Add folds one frame in and reports whether it was the done frame.
func (a *Aggregator) Add(f Frame) (bool, error) {
	if a.final != nil {
		return true, NewInternalError("frame received after done frame", nil)
	}
	a.frames++

	switch a.mode {
	case StreamChat:
		if msg, ok := f.Message(); ok {
			if content, ok := msg["content"].(string); ok {
				a.content.WriteString(content)
			}
			if role, ok := msg["role"].(string); ok && role != "" {
				a.role = role
			}
		}
	default:
		if s, ok := f["response"].(string); ok {
			a.content.WriteString(s)
		}
	}

	if f.Done() {
		a.final = f
		return true, nil
	}
	return false, nil
}

// Result returns the aggregated response. A stream that never produced a done
// frame is an internal error.
func (a *Aggregator) Result() (Frame, error) {
	if a.final == nil {
		return nil, NewInternalError(fmt.Sprintf("stream ended after %d frames without a done frame", a.frames), nil)
	}

	out := make(Frame, len(a.final)+1)
	for k, v := range a.final {
		out[k] = v
	}

	switch a.mode {
	case StreamChat:
		msg := map[string]any{}
		if last, ok := a.final.Message(); ok {
			for k, v := range last {
				msg[k] = v
			}
		}
		role := a.role
		if role == "" {
			role = "assistant"
		}
		msg["role"] = role
		msg["content"] = a.content.String()
		out["message"] = msg
	default:
		out["response"] = a.content.String()
	}
	return out, nil
}
