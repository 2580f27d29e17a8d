package rest

import (
	"errors"
	"net/http"

	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/model"
	"github.com/bwise1/voteledger/util"
	"github.com/bwise1/voteledger/util/values"
)

// GetQuota reports the caller's unlock budget for ?kind=, free-vote by default.
func (api *API) GetQuota(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := tracingContext(r)

	kind := model.FreeVote
	if k := r.URL.Query().Get("kind"); k != "" {
		kind = model.VoteKind(k)
	}

	userID, err := util.GetUserIDFromContext(r.Context())
	if err != nil {
		return respondWithError(err, "unable to get user ID from context", values.NotAuthorised, &tc)
	}

	status, err := api.Deps.Engine.Status(r.Context(), userID, kind)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidKind) {
			return respondWithError(err, "invalid vote kind", values.BadRequestBody, &tc)
		}
		return respondWithError(err, "failed to get quota", values.Error, &tc)
	}

	return &ServerResponse{
		Message:    "Quota retrieved successfully",
		Status:     values.Success,
		StatusCode: util.StatusCode(values.Success),
		Data:       status,
	}
}
