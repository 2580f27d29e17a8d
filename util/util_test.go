package util

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwise1/voteledger/internal/model"
	"github.com/bwise1/voteledger/util/tracing"
	"github.com/bwise1/voteledger/util/values"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	testCases := []struct {
		status string
		want   int
	}{
		{values.Success, http.StatusOK},
		{values.Created, http.StatusCreated},
		{values.BadRequestBody, http.StatusBadRequest},
		{values.Unprocessable, http.StatusUnprocessableEntity},
		{values.Conflict, http.StatusConflict},
		{values.NotFound, http.StatusNotFound},
		{values.NotAuthorised, http.StatusUnauthorized},
		{values.TokenExpired, http.StatusUnauthorized},
		{values.Gone, http.StatusGone},
		{values.TooManyRequest, http.StatusTooManyRequests},
		{values.Error, http.StatusInternalServerError},
		{"anything-else", http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusCode(tc.status))
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	tc := &tracing.Context{RequestID: "req-1", RequestSource: "test"}

	var req model.CastVoteRequest
	err := DecodeJSONBody(tc, io.NopCloser(strings.NewReader(`{"kind":"free-vote"}`)), &req)
	require.NoError(t, err)
	assert.Equal(t, model.FreeVote, req.Kind)

	err = DecodeJSONBody(tc, io.NopCloser(strings.NewReader(`{"kind":`)), &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "req-1")

	err = DecodeJSONBody(tc, io.NopCloser(strings.NewReader(`{"kind":"free-vote","extra":1}`)), &req)
	assert.Error(t, err)

	assert.Error(t, DecodeJSONBody(tc, nil, &req))
}

func TestValidateStruct_VoteKind(t *testing.T) {
	assert.NoError(t, ValidateStruct(model.CastVoteRequest{Kind: model.FreeVote}))
	assert.NoError(t, ValidateStruct(model.ShareUnlockRequest{Category: model.DownVote}))
	assert.Error(t, ValidateStruct(model.CastVoteRequest{Kind: "mega-vote"}))
	assert.Error(t, ValidateStruct(model.CastVoteRequest{}))
	assert.Error(t, ValidateStruct(model.CreateEntityRequest{Name: ""}))
}

func TestUserIDContext(t *testing.T) {
	_, err := GetUserIDFromContext(context.Background())
	assert.Error(t, err)

	id := uuid.New()
	got, err := GetUserIDFromContext(WithUserID(context.Background(), id))
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestPagination(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=500&offset=20", nil)
	limit, offset := Pagination(r, 20, 100)
	assert.Equal(t, 100, limit)
	assert.Equal(t, 20, offset)

	r = httptest.NewRequest(http.MethodGet, "/?limit=-1&offset=x", nil)
	limit, offset = Pagination(r, 20, 100)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "hi", Truncate("hi", 4))
	assert.True(t, NotBlank(" x "))
	assert.False(t, NotBlank("   "))
}
