package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilWithoutURL(t *testing.T) {
	w := New(Options{}, zerolog.Nop())
	assert.Nil(t, w)
	assert.Equal(t, "", w.Deliver(context.Background(), Message{Title: "x"}))
}

func TestDeliver_Success(t *testing.T) {
	var got Message
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(deliveryHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := New(Options{URL: srv.URL, Channel: "#patrol"}, zerolog.Nop())
	handle := w.Deliver(context.Background(), Message{Title: "Code patrol", RiskLevel: "low", RunID: "r1"})

	assert.NotEmpty(t, handle)
	assert.Equal(t, header, handle)
	assert.Equal(t, "#patrol", got.Channel)
	assert.Equal(t, "r1", got.RunID)
}

func TestDeliver_PrefersServerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"ts":"1712345678.000100"}`))
	}))
	defer srv.Close()

	handle := New(Options{URL: srv.URL}, zerolog.Nop()).Deliver(context.Background(), Message{})

	assert.Equal(t, "1712345678.000100", handle)
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer srv.Close()

	w := New(Options{URL: srv.URL, Retries: 3, Backoff: time.Millisecond}, zerolog.Nop())

	assert.Equal(t, "msg-1", w.Deliver(context.Background(), Message{}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliver_FailureReturnsEmptyHandle(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := New(Options{URL: srv.URL, Retries: 2, Backoff: time.Millisecond}, zerolog.Nop())

	assert.Equal(t, "", w.Deliver(context.Background(), Message{}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliver_RetryCount(t *testing.T) {
	tests := []struct {
		name    string
		retries int
		want    int32
	}{
		{"zero sends once", 0, 1},
		{"negative uses default", -1, defaultRetries + 1},
		{"explicit", 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusBadGateway)
			}))
			defer srv.Close()

			w := New(Options{URL: srv.URL, Retries: tt.retries, Backoff: time.Millisecond}, zerolog.Nop())
			assert.Empty(t, w.Deliver(context.Background(), Message{}))

			assert.Equal(t, tt.want, atomic.LoadInt32(&calls))
		})
	}
}
