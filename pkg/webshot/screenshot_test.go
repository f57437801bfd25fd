package webshot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://example.com/page"))
	assert.NoError(t, ValidateURL("http://example.com"))
	assert.ErrorIs(t, ValidateURL("file:///etc/passwd"), ErrSchemeNotAllowed)
	assert.ErrorIs(t, ValidateURL("javascript:alert(1)"), ErrSchemeNotAllowed)
	assert.ErrorIs(t, ValidateURL("ftp://example.com"), ErrSchemeNotAllowed)
	assert.Error(t, ValidateURL("https://"))
}

func TestClampViewport(t *testing.T) {
	assert.Equal(t, DefaultViewport, ClampViewport(0))
	assert.Equal(t, MinViewport, ClampViewport(10))
	assert.Equal(t, MaxViewport, ClampViewport(100000))
	assert.Equal(t, 800, ClampViewport(800))
}

func TestCapture_SendsClampedRequestAndReturnsImage(t *testing.T) {
	var seen CaptureRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Header().Set("content-type", "image/png")
		_, _ = w.Write([]byte("fake-png-bytes"))
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL)
	shot, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com", Width: 10, Height: 99999})
	require.NoError(t, err)
	assert.Equal(t, "image/png", shot.MimeType)
	assert.Equal(t, []byte("fake-png-bytes"), shot.Bytes)
	assert.Equal(t, MinViewport, seen.Width)
	assert.Equal(t, MaxViewport, seen.Height)
}

func TestCapture_RejectsDisallowedSchemeWithoutCallingService(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL)
	_, err := svc.Capture(context.Background(), CaptureRequest{URL: "file:///secret"})
	require.ErrorIs(t, err, ErrSchemeNotAllowed)
	assert.False(t, called)
}

func TestCapture_ServiceErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "browser crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewHTTPService(srv.URL)
	_, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser crashed")
}
