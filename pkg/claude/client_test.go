package claude

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const overloadedBody = `{"type":"error","error":{"type":"api_error","message":"Overloaded"}}`

func newFakeSleeper(waits *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func successBody() string {
	return `{"id":"msg_1","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`
}

func TestComplete_RetriesOverloadWithDoublingBackoff(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(overloadedBody))
			return
		}
		_, _ = w.Write([]byte(successBody()))
	}))
	defer srv.Close()

	var waits []time.Duration
	c := NewClient("test-key", WithBaseURL(srv.URL), WithSleeper(newFakeSleeper(&waits)))

	resp, err := c.Complete(context.Background(), &Request{Model: "claude-sonnet-4-5", MaxTokens: 1024})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
}

func TestComplete_SurfacesLastErrorAfterThreeAttempts(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	var waits []time.Duration
	c := NewClient("test-key", WithBaseURL(srv.URL), WithSleeper(newFakeSleeper(&waits)))

	_, err := c.Complete(context.Background(), &Request{Model: "m", MaxTokens: 16})
	require.Error(t, err)
	assert.True(t, IsOverloaded(err))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
}

func TestComplete_DoesNotRetryOtherErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens required"}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithSleeper(func(context.Context, time.Duration) error {
		t.Fatal("sleeper must not be called for non-overload errors")
		return nil
	}))

	_, err := c.Complete(context.Background(), &Request{Model: "m", MaxTokens: 16})
	require.Error(t, err)
	assert.False(t, IsOverloaded(err))
	assert.Equal(t, 1, attempts)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
}

func TestIsOverloaded_Signatures(t *testing.T) {
	assert.True(t, IsOverloaded(&APIError{StatusCode: 500, Type: "api_error", Message: "Overloaded"}))
	assert.True(t, IsOverloaded(&APIError{StatusCode: 529, Type: "overloaded_error", Message: "Overloaded"}))
	assert.False(t, IsOverloaded(&APIError{StatusCode: 500, Type: "api_error", Message: "boom"}))
	assert.False(t, IsOverloaded(assertAnError()))
}

func assertAnError() error {
	return context.DeadlineExceeded
}

func TestResponse_Accessors(t *testing.T) {
	resp := &Response{Content: []ContentBlock{
		{Type: BlockTypeThinking, Thinking: "let me think", Signature: "sig"},
		{Type: BlockTypeText, Text: "a"},
		{Type: BlockTypeToolUse, ID: "tu_1", Name: "replace_canvas"},
		{Type: BlockTypeText, Text: "b"},
	}}
	assert.Equal(t, "ab", resp.Text())
	require.Len(t, resp.ToolUses(), 1)
	assert.Equal(t, "tu_1", resp.ToolUses()[0].ID)
	think, ok := resp.ThinkingBlock()
	require.True(t, ok)
	assert.Equal(t, "sig", think.Signature)
}
