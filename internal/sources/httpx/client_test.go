package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	Items []int `json:"items"`
}

func newClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts.BaseURL = server.URL
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = 5 * time.Millisecond
	}
	return New(opts)
}

func TestGetJSON_DecodesAndSendsHeaders(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/things", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.test+json", r.Header.Get("Accept"))
		assert.Equal(t, "tributary", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"items":[1,2,3]}`))
	}, Options{Token: " secret ", Accept: "application/vnd.test+json"})

	var got page
	err := c.GetJSON(context.Background(), "/things", url.Values{"page": {"2"}}, &got)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got.Items)
}

func TestGetJSON_NoTokenNoAuthorization(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}, Options{})

	var got page
	require.NoError(t, c.GetJSON(context.Background(), "/", nil, &got))
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"items":[7]}`))
		}
	}, Options{})

	var got page
	require.NoError(t, c.GetJSON(context.Background(), "/", nil, &got))
	assert.Equal(t, []int{7}, got.Items)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}, Options{MaxRetries: 2})

	var got page
	err := c.GetJSON(context.Background(), "/", nil, &got)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}, Options{})

	var got page
	err := c.GetJSON(context.Background(), "/missing", nil, &got)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "Not Found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSON_BadJSON(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":`))
	}, Options{})

	var got page
	err := c.GetJSON(context.Background(), "/", nil, &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestGetJSON_ContextCanceled(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Options{BaseDelay: time.Hour, MaxDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var got page
	err := c.GetJSON(ctx, "/", nil, &got)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryDelay(t *testing.T) {
	c := New(Options{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1, ""))
	assert.Equal(t, 200*time.Millisecond, c.retryDelay(2, ""))
	assert.Equal(t, 400*time.Millisecond, c.retryDelay(3, ""))
	assert.Equal(t, time.Second, c.retryDelay(10, ""))
	assert.Equal(t, time.Second, c.retryDelay(1, "30"), "Retry-After is capped")
	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1, "soon"))
}

func TestStatusCode_NonStatusError(t *testing.T) {
	assert.Zero(t, StatusCode(context.Canceled))
}
