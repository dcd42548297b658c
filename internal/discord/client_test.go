// File: internal/discord/client_test.go
package discord

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/advbot/internal/config"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dcfg := config.DiscordConfig{APIBase: srv.URL + "/", Token: "secret", UserAgent: "advbot-test"}
	icfg := config.InteractionConfig{RequestsPerSecond: 1000, DefaultRetryAfter: 7 * time.Second}
	c := NewClient(dcfg, icfg, srv.Client(), zaptest.NewLogger(t))
	c.nonce = func() string { return "123456789012345678" }
	return c
}

func TestInvokeComponent(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/interactions", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		assert.Equal(t, "advbot-test", r.Header.Get("User-Agent"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.InvokeComponent(context.Background(), Interaction{
		ApplicationID: "app",
		GuildID:       "guild",
		ChannelID:     "chan",
		MessageID:     "msg",
		SessionID:     "sess",
		CustomID:      "adventure-next:1",
	})
	require.NoError(t, err)

	assert.EqualValues(t, 3, got["type"])
	assert.Equal(t, "123456789012345678", got["nonce"])
	assert.Equal(t, "sess", got["session_id"])
	assert.Equal(t, "app", got["application_id"])
	data := got["data"].(map[string]any)
	assert.EqualValues(t, 2, data["component_type"])
	assert.Equal(t, "adventure-next:1", data["custom_id"])
}

func TestAPIErrors(t *testing.T) {
	t.Run("rate limit honours header", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "2.5")
			w.WriteHeader(http.StatusTooManyRequests)
		})
		err := c.InvokeComponent(context.Background(), Interaction{CustomID: "x"})
		apiErr, ok := AsAPIError(err)
		require.True(t, ok)
		assert.True(t, apiErr.RateLimited())
		assert.Equal(t, 2500*time.Millisecond, apiErr.RetryAfter)
	})

	t.Run("rate limit reads body hint", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"retry_after": 3}`))
		})
		apiErr, ok := AsAPIError(c.InvokeComponent(context.Background(), Interaction{}))
		require.True(t, ok)
		assert.Equal(t, 3*time.Second, apiErr.RetryAfter)
	})

	t.Run("rate limit default", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		apiErr, ok := AsAPIError(c.InvokeComponent(context.Background(), Interaction{}))
		require.True(t, ok)
		assert.Equal(t, 7*time.Second, apiErr.RetryAfter)
	})

	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound} {
		t.Run(http.StatusText(status)+" is stale", func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"message":"Unknown Message"}`))
			})
			apiErr, ok := AsAPIError(c.InvokeComponent(context.Background(), Interaction{}))
			require.True(t, ok)
			assert.True(t, apiErr.Stale())
			assert.Contains(t, apiErr.Error(), "Unknown Message")
		})
	}

	t.Run("server error is neither stale nor rate limited", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		apiErr, ok := AsAPIError(c.DeleteMessage(context.Background(), "c", "m"))
		require.True(t, ok)
		assert.False(t, apiErr.Stale())
		assert.False(t, apiErr.RateLimited())
	})
}

func TestMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/channels/42/messages":
			_, _ = w.Write([]byte(`{"id":"900","channel_id":"42","content":"pls adv"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/channels/42/messages":
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[{"id":"901","channel_id":"42","author":{"id":"270904126974590976"},
				"embeds":[{"title":"Space","fields":[{"name":"a","value":"b"}]}],
				"components":[{"type":1,"components":[{"type":2,"custom_id":"adventure-next:1","label":">"}]}]}]`))
		case r.Method == http.MethodDelete && r.URL.Path == "/channels/42/messages/900":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	msg, err := c.SendMessage(ctx, "42", "pls adv")
	require.NoError(t, err)
	assert.Equal(t, "900", msg.ID)

	msgs, err := c.RecentMessages(ctx, "42", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "270904126974590976", msgs[0].AuthorID())
	assert.Equal(t, "Space", msgs[0].Embeds[0].Title)
	assert.Len(t, msgs[0].Components, 1)

	require.NoError(t, c.DeleteMessage(ctx, "42", "900"))
}
