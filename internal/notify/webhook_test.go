package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwise1/voteledger/internal/model"
)

func notice() model.VoteNotice {
	return model.VoteNotice{
		OwnerID:   uuid.New(),
		ActorID:   uuid.New(),
		EntityID:  uuid.New(),
		EventID:   uuid.New(),
		Kind:      model.FreeVote,
		Effect:    1,
		VoteCount: 7,
		At:        time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestWebhook_PostsNotice(t *testing.T) {
	n := notice()
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(WebhookConfig{URL: srv.URL, RPS: 100})
	require.NoError(t, hook.VoteOccurred(context.Background(), n))

	assert.Equal(t, MsgTypeVoteUpdate, got.Type)
	data, ok := got.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, n.EntityID.String(), data["entity_id"])
	assert.EqualValues(t, 7, data["vote_count"])
}

func TestWebhook_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := NewWebhook(WebhookConfig{
		URL:              srv.URL,
		RPS:              100,
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := hook.VoteOccurred(ctx, notice())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	}
	assert.Equal(t, gobreaker.StateOpen, hook.State())

	err := hook.VoteOccurred(ctx, notice())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 3, calls.Load())
}

func TestWebhook_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewWebhook(WebhookConfig{URL: srv.URL, RPS: 0.001, Burst: 1})
	require.NoError(t, hook.VoteOccurred(context.Background(), notice()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := hook.VoteOccurred(ctx, notice())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
