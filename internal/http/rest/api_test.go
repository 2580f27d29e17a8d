package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwise1/voteledger/config"
	deps "github.com/bwise1/voteledger/internal/debs"
	api "github.com/bwise1/voteledger/internal/http/rest"
	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/metrics"
	"github.com/bwise1/voteledger/internal/model"
	"github.com/bwise1/voteledger/internal/notify"
	"github.com/bwise1/voteledger/internal/pending"
	"github.com/bwise1/voteledger/internal/testutil"
	"github.com/bwise1/voteledger/util/values"
)

const testSecret = "test-secret"

type envelope struct {
	Message string          `json:"message"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	t       *testing.T
	handler http.Handler
	clock   *testutil.StubClock
	deps    *deps.Dependencies
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	reg := metrics.New()
	hub := notify.NewHub()
	async := notify.NewAsync(hub, time.Second, reg)
	t.Cleanup(func() {
		async.Wait()
		hub.Close()
	})

	pend := pending.NewMemoryStore(clock)
	reconciler := ledger.NewReconciler(store, ledger.ReconcilerConfig{MaxAttempts: 2}, reg)
	d := &deps.Dependencies{
		Store:      store,
		Pending:    pend,
		Hub:        hub,
		Notifier:   async,
		Metrics:    reg,
		Reconciler: reconciler,
		Engine: ledger.NewEngine(store, reconciler,
			ledger.QuotaConfig{DailyCap: 2, Location: time.UTC},
			ledger.WithClock(clock),
			ledger.WithNotifier(async),
			ledger.WithRecorder(reg),
		),
		Unlocker: ledger.NewUnlocker(store, pend,
			ledger.UnlockConfig{DailyCap: 2, TTL: 15 * time.Minute, Location: time.UTC},
			ledger.UnlockWithClock(clock),
			ledger.UnlockWithRecorder(reg),
		),
	}

	a := &api.API{Config: &config.Config{JwtSecret: testSecret}, Deps: d}
	return &server{t: t, handler: a.Routes(), clock: clock, deps: d}
}

func (s *server) token(id uuid.UUID) string {
	s.t.Helper()
	tok, _, err := api.IssueAccessToken(testSecret, id, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *server) do(method, path string, actor uuid.UUID, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(values.HeaderRequestSource, "test")
	if actor != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+s.token(actor))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *server) createEntity(owner uuid.UUID, name string) model.Entity {
	s.t.Helper()
	rec, env := s.do(http.MethodPost, "/entities", owner, map[string]interface{}{"name": name})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var e model.Entity
	require.NoError(s.t, json.Unmarshal(env.Data, &e))
	return e
}

func TestRequestTracing(t *testing.T) {
	s := newServer(t)

	t.Run("missing source is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/entities", nil)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("request id is generated", func(t *testing.T) {
		rec, _ := s.do(http.MethodGet, "/entities", uuid.Nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(values.HeaderRequestID))
	})

	t.Run("request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/entities", nil)
		req.Header.Set(values.HeaderRequestSource, "test")
		req.Header.Set(values.HeaderRequestID, "req-1")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, "req-1", rec.Header().Get(values.HeaderRequestID))
	})
}

func TestRequireLogin(t *testing.T) {
	s := newServer(t)

	t.Run("no token", func(t *testing.T) {
		rec, _ := s.do(http.MethodPost, "/entities", uuid.Nil, map[string]string{"name": "x"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok, _, err := api.IssueAccessToken("other", uuid.New(), time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/quota", nil)
		req.Header.Set(values.HeaderRequestSource, "test")
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		tok, _, err := api.IssueAccessToken(testSecret, uuid.New(), -time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/quota", nil)
		req.Header.Set(values.HeaderRequestSource, "test")
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)

		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, values.TokenExpired, env.Status)
	})
}

func TestEntities(t *testing.T) {
	s := newServer(t)
	owner := uuid.New()

	e := s.createEntity(owner, "Pothole on Main St")
	assert.Equal(t, owner, e.OwnerID)
	assert.Equal(t, int64(0), e.VoteCount)

	t.Run("get", func(t *testing.T) {
		rec, env := s.do(http.MethodGet, "/entities/"+e.ID.String(), uuid.Nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got model.Entity
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, e.Name, got.Name)
	})

	t.Run("unknown", func(t *testing.T) {
		rec, _ := s.do(http.MethodGet, "/entities/"+uuid.NewString(), uuid.Nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec, _ := s.do(http.MethodGet, "/entities/not-a-uuid", uuid.Nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blank name", func(t *testing.T) {
		rec, _ := s.do(http.MethodPost, "/entities", owner, map[string]string{"name": ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec, env := s.do(http.MethodGet, "/entities?limit=10", uuid.Nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list []model.Entity
		require.NoError(t, json.Unmarshal(env.Data, &list))
		assert.Len(t, list, 1)
	})
}

func TestCastVote(t *testing.T) {
	s := newServer(t)
	e := s.createEntity(uuid.New(), "Streetlight out")
	voter := uuid.New()
	path := "/entities/" + e.ID.String() + "/votes"

	rec, env := s.do(http.MethodPost, path, voter, model.CastVoteRequest{Kind: model.FreeVote})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp model.VoteResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, string(ledger.StatusGranted), resp.Status)
	assert.Equal(t, int64(1), resp.VoteCount)

	rec, env = s.do(http.MethodPost, path, voter, model.CastVoteRequest{Kind: model.FreeVote})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, string(ledger.StatusAlreadyVoted), resp.Status)
	assert.True(t, resp.NeedsShare)

	t.Run("votes are listed", func(t *testing.T) {
		rec, env := s.do(http.MethodGet, path, uuid.Nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var page model.VotePage
		require.NoError(t, json.Unmarshal(env.Data, &page))
		require.Len(t, page.Votes, 1)
		assert.Equal(t, voter, page.Votes[0].ActorID)
	})

	t.Run("down-vote needs a positive net effect", func(t *testing.T) {
		other := s.createEntity(uuid.New(), "Fresh")
		rec, env := s.do(http.MethodPost, "/entities/"+other.ID.String()+"/votes", voter,
			model.CastVoteRequest{Kind: model.DownVote})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NoError(t, json.Unmarshal(env.Data, &resp))
		assert.Equal(t, string(ledger.StatusPreconditionFailed), resp.Status)
	})

	t.Run("invalid kind", func(t *testing.T) {
		rec, _ := s.do(http.MethodPost, path, voter, map[string]string{"kind": "super-vote"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown entity", func(t *testing.T) {
		rec, _ := s.do(http.MethodPost, "/entities/"+uuid.NewString()+"/votes", voter,
			model.CastVoteRequest{Kind: model.FreeVote})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestShareUnlockFlow(t *testing.T) {
	s := newServer(t)
	e := s.createEntity(uuid.New(), "Broken bench")
	voter := uuid.New()
	votePath := "/entities/" + e.ID.String() + "/votes"

	rec, _ := s.do(http.MethodPost, votePath, voter, model.CastVoteRequest{Kind: model.FreeVote})
	require.Equal(t, http.StatusCreated, rec.Code)

	start := func() model.ShareUnlockResponse {
		t.Helper()
		rec, env := s.do(http.MethodPost, "/share-unlocks", voter, model.ShareUnlockRequest{Category: model.FreeVote})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var ticket model.ShareUnlockResponse
		require.NoError(t, json.Unmarshal(env.Data, &ticket))
		return ticket
	}

	ticket := start()
	assert.NotEmpty(t, ticket.Token)

	confirmPath := "/share-unlocks/" + ticket.Token + "/confirm"
	rec, _ = s.do(http.MethodPost, confirmPath, uuid.New(), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := s.do(http.MethodPost, confirmPath, voter, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var confirmed model.ConfirmShareResponse
	require.NoError(t, json.Unmarshal(env.Data, &confirmed))
	assert.Equal(t, 1, confirmed.Grant.Seq)
	assert.Equal(t, 1, confirmed.RemainingToday)

	rec, _ = s.do(http.MethodPost, confirmPath, voter, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = s.do(http.MethodPost, votePath, voter, model.CastVoteRequest{Kind: model.FreeVote})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp model.VoteResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.True(t, resp.ViaGrant)
	assert.Equal(t, int64(2), resp.VoteCount)

	t.Run("expired token is gone", func(t *testing.T) {
		ticket := start()
		s.clock.Advance(16 * time.Minute)
		rec, _ := s.do(http.MethodPost, "/share-unlocks/"+ticket.Token+"/confirm", voter, nil)
		assert.Equal(t, http.StatusGone, rec.Code)
	})

	t.Run("cap reached", func(t *testing.T) {
		ticket := start()
		rec, _ := s.do(http.MethodPost, "/share-unlocks/"+ticket.Token+"/confirm", voter, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec, env := s.do(http.MethodPost, "/share-unlocks", voter, model.ShareUnlockRequest{Category: model.FreeVote})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, env.Message, "midnight")
	})
}

func TestGetQuota(t *testing.T) {
	s := newServer(t)
	actor := uuid.New()

	rec, env := s.do(http.MethodGet, "/quota", actor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status model.QuotaStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, model.FreeVote, status.Kind)
	assert.Equal(t, 2, status.Cap)
	assert.Equal(t, 2, status.RemainingUnlocks)

	rec, _ = s.do(http.MethodGet, "/quota?kind=bogus", actor, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	s.do(http.MethodGet, "/entities", uuid.Nil, nil)

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voteledger_http_requests_total")
}
