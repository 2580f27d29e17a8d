package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Record(t *testing.T) {
	r := New()

	r.RecordVote("free-vote", "granted")
	r.RecordVote("free-vote", "granted")
	r.RecordVote("free-vote", "already_voted")
	r.RecordUnlock("", "expired")
	r.RecordReconcile("applied")
	r.RecordReconcile("failed")
	r.RecordNotification("sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.VoteAttempts.WithLabelValues("free-vote", "granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.VoteAttempts.WithLabelValues("free-vote", "already_voted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ShareUnlocks.WithLabelValues("unknown", "expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ReconciliationFailure))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Notifications.WithLabelValues("sent")))
}

func TestRegistry_Handler(t *testing.T) {
	r := New()
	r.RecordHTTP(http.MethodPost, "/entities/{entityID}/votes", http.StatusCreated, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `voteledger_http_requests_total{code="201",method="POST",route="/entities/{entityID}/votes"} 1`)
}

func TestNew_IsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
