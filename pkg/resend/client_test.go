package resend

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
)

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var email Email
		require.NoError(t, json.Unmarshal(reqBody, &email))
		assert.Equal(t, "hello@agency.test", email.From)
		assert.Equal(t, "jane@acme.com", email.To)
		assert.Equal(t, "Welcome", email.Subject)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "email-abc"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.Send(context.Background(), Email{
		From:    "hello@agency.test",
		To:      "jane@acme.com",
		Subject: "Welcome",
		HTML:    "<p>hi</p>",
		Text:    "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "email-abc", resp.ID)
}

func TestSendProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message": "invalid to address"}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Send(context.Background(), Email{To: "not-an-email"})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnprocessableEntity, pe.StatusCode)
	assert.Contains(t, pe.Body, "invalid to address")
}

func TestSendEmptySuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.Send(context.Background(), Email{To: "jane@acme.com"})
	require.NoError(t, err)
	assert.Equal(t, "", resp.ID)
}
