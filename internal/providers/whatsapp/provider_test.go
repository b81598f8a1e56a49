package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var got messageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewHTTP(server.URL+"/", "tok", server.Client())
	require.NoError(t, p.SendMessage(context.Background(), "+593 99 111 2233", "hola"))
	assert.Equal(t, "593991112233", got.To)
	assert.Equal(t, "hola", got.Text.Body)
}

func TestSendMessageErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewHTTP(server.URL, "tok", server.Client())
	assert.Error(t, p.SendMessage(context.Background(), "+593991112233", "hola"))
	assert.Error(t, p.SendMessage(context.Background(), "n/a", "hola"))
}
