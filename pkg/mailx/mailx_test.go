package mailx_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/notesauth/pkg/mailx"
	"github.com/stretchr/testify/require"
)

func TestConsole(t *testing.T) {
	t.Parallel()

	c := &mailx.Console{}
	ctx := context.Background()

	require.ErrorIs(t, c.Send(ctx, mailx.Message{Subject: "s", Text: "t"}), mailx.ErrInvalidMessage)

	require.NoError(t, c.Send(ctx, mailx.Message{To: "a@example.com", Subject: "one", Text: "1"}))
	require.NoError(t, c.Send(ctx, mailx.Message{To: "b@example.com", Subject: "two", Text: "2"}))
	require.NoError(t, c.Send(ctx, mailx.Message{To: "a@example.com", Subject: "three", Text: "3"}))

	require.Len(t, c.Sent(), 3)
	last, ok := c.Last("A@example.com")
	require.True(t, ok)
	require.Equal(t, "three", last.Subject)

	_, ok = c.Last("nobody@example.com")
	require.False(t, ok)
}

func TestResend(t *testing.T) {
	t.Parallel()

	t.Run("posts message", func(t *testing.T) {
		var got map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"msg_1"}`))
		}))
		defer srv.Close()

		r := &mailx.Resend{APIKey: "key", From: "hello@example.com", Endpoint: srv.URL}
		err := r.Send(context.Background(), mailx.Message{To: "a@example.com", Subject: "Hi", Text: "code 123456"})
		require.NoError(t, err)
		require.Equal(t, "hello@example.com", got["from"])
		require.Equal(t, "a@example.com", got["to"])
		require.Equal(t, "code 123456", got["text"])
	})

	t.Run("surfaces provider errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()

		r := &mailx.Resend{APIKey: "bad", From: "hello@example.com", Endpoint: srv.URL}
		err := r.Send(context.Background(), mailx.Message{To: "a@example.com", Subject: "Hi", Text: "x"})
		require.ErrorContains(t, err, "401")
		require.ErrorContains(t, err, "invalid api key")
	})
}
