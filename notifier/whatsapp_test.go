package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSend_Success(t *testing.T) {
	var got sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/send", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"wamid.123"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret", "/api/send")
	ref, err := client.Send(context.Background(), Message{To: "5491123456789@s.whatsapp.net", Text: "hola", MediaURL: "https://x/y.png"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.123", ref)
	assert.Equal(t, sendRequest{Number: "5491123456789@s.whatsapp.net", Text: "hola", MediaURL: "https://x/y.png"}, got)
}

func TestClientSend_GeneratesReferenceWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	ref, err := NewClient(server.URL, "", "").Send(context.Background(), Message{To: "x", Text: "y"})
	require.NoError(t, err)
	_, parseErr := uuid.Parse(ref)
	assert.NoError(t, parseErr)
}

func TestClientSend_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusBadRequest, ErrRejected},
		{http.StatusUnprocessableEntity, ErrRejected},
		{http.StatusInternalServerError, ErrUpstream},
		{http.StatusBadGateway, ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "t", "/send").Send(context.Background(), Message{To: "x", Text: "y"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClientSend_NotConfigured(t *testing.T) {
	_, err := NewClient("", "", "").Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrUpstream)
}
