package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWebhookNotify(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("X-Signature-256"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewWebhook(server.URL, "").Notify(context.Background(), "42", "low gas")
	require.NoError(t, err)
	assert.Equal(t, "siphon_notification", received.Event)
	assert.Equal(t, "42", received.AccountID)
	assert.Equal(t, "low gas", received.Text)
	assert.NotEmpty(t, received.Timestamp)
}

func TestWebhookNotify_WithHMAC(t *testing.T) {
	var signature string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Signature-256")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewWebhook(server.URL, "my-secret").Notify(context.Background(), "42", "low gas")
	require.NoError(t, err)
	assert.Equal(t, "sha256="+Sign(body, []byte("my-secret")), signature)
}

func TestWebhookNotify_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewWebhook(server.URL, "").Notify(context.Background(), "42", "low gas")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

type recordingSender struct {
	calls int
	err   error
}

func (s *recordingSender) Notify(context.Context, string, string) error {
	s.calls++
	return s.err
}

func TestMulti_DeliversToAll(t *testing.T) {
	failing := &recordingSender{err: errors.New("down")}
	ok := &recordingSender{}

	err := Multi{failing, ok}.Notify(context.Background(), "42", "hi")
	require.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)

	require.NoError(t, Multi{ok}.Notify(context.Background(), "42", "hi"))
}

func TestLog_Notify(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	err := NewLog(zap.New(core)).Notify(context.Background(), "42", "hi")
	require.NoError(t, err)

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "42", entries[0].ContextMap()["account"])
}
