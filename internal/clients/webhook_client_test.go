package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	body        []byte
	contentType string
	timestamp   string
	signature   string
	hasSig      bool
}

func captureServer(t *testing.T, status int, sink *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		sink.body = body
		sink.contentType = r.Header.Get("Content-Type")
		sink.timestamp = r.Header.Get("X-Webhook-Timestamp")
		sink.signature = r.Header.Get("X-Webhook-Signature")
		_, sink.hasSig = r.Header["X-Webhook-Signature"]
		w.WriteHeader(status)
	}))
}

func TestSendSignedDelivery(t *testing.T) {
	var captured capturedRequest
	server := captureServer(t, http.StatusOK, &captured)
	defer server.Close()

	client := NewWebhookClient(5 * time.Second)
	payload := []byte(`{"type":"invoice.paid","invoice_id":"inv-1"}`)

	err := client.Send(context.Background(), server.URL, payload, "s3cret")
	require.NoError(t, err)

	assert.Equal(t, payload, captured.body)
	assert.Equal(t, "application/json", captured.contentType)

	timestamp, err := strconv.ParseInt(captured.timestamp, 10, 64)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), time.Unix(timestamp, 0), 5*time.Second)

	assert.Equal(t, SignPayload("s3cret", timestamp, payload), captured.signature,
		"receiver can rebuild the signature from the timestamp header and body")
}

func TestSendWithoutSecretIsUnsigned(t *testing.T) {
	var captured capturedRequest
	server := captureServer(t, http.StatusOK, &captured)
	defer server.Close()

	client := NewWebhookClient(5 * time.Second)

	err := client.Send(context.Background(), server.URL, []byte(`{}`), "")
	require.NoError(t, err)

	assert.False(t, captured.hasSig, "no secret means no signature header at all")
	assert.NotEmpty(t, captured.timestamp, "the timestamp still rides along")
}

func TestSendNon2xxIsAnError(t *testing.T) {
	var captured capturedRequest
	server := captureServer(t, http.StatusInternalServerError, &captured)
	defer server.Close()

	client := NewWebhookClient(5 * time.Second)

	err := client.Send(context.Background(), server.URL, []byte(`{}`), "s3cret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSendAccepts204(t *testing.T) {
	var captured capturedRequest
	server := captureServer(t, http.StatusNoContent, &captured)
	defer server.Close()

	client := NewWebhookClient(5 * time.Second)

	err := client.Send(context.Background(), server.URL, []byte(`{}`), "")
	assert.NoError(t, err, "any 2xx counts as delivered")
}

func TestSendConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listens here anymore

	client := NewWebhookClient(time.Second)

	err := client.Send(context.Background(), server.URL, []byte(`{}`), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook delivery failed")
}

func TestSignPayloadIsDeterministic(t *testing.T) {
	payload := []byte(`{"type":"invoice.paid"}`)

	first := SignPayload("key", 1700000000, payload)
	second := SignPayload("key", 1700000000, payload)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "hex-encoded HMAC-SHA256")

	assert.NotEqual(t, first, SignPayload("other-key", 1700000000, payload))
	assert.NotEqual(t, first, SignPayload("key", 1700000001, payload),
		"the timestamp is part of the signed message")
	assert.NotEqual(t, first, SignPayload("key", 1700000000, []byte(`{"type":"invoice.expired"}`)))
}
