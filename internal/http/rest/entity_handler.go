package rest

import (
	"net/http"

	"github.com/bwise1/voteledger/internal/model"
	"github.com/bwise1/voteledger/util"
	"github.com/bwise1/voteledger/util/values"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (api *API) EntityRoutes() chi.Router {
	mux := chi.NewRouter()

	mux.Method(http.MethodGet, "/", Handler(api.ListEntities))
	mux.Method(http.MethodGet, "/{entityID}", Handler(api.GetEntity))
	mux.Method(http.MethodGet, "/{entityID}/votes", Handler(api.GetVotes))

	mux.Group(func(r chi.Router) {
		r.Use(api.RequireLogin)
		r.Method(http.MethodPost, "/", Handler(api.CreateEntity))
		r.Method(http.MethodPost, "/{entityID}/votes", Handler(api.CastVote))
	})

	return mux
}

func (api *API) CreateEntity(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := tracingContext(r)

	var req model.CreateEntityRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}
	if err := util.ValidateStruct(req); err != nil {
		return respondWithError(err, "invalid entity", values.BadRequestBody, &tc)
	}

	userID, err := util.GetUserIDFromContext(r.Context())
	if err != nil {
		return respondWithError(err, "unable to get user ID from context", values.NotAuthorised, &tc)
	}
	req.OwnerID = userID

	entity, status, message, err := api.CreateEntityHelper(r.Context(), req)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       entity,
	}
}

func (api *API) ListEntities(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := tracingContext(r)
	limit, offset := util.Pagination(r, defaultPageSize, maxPageSize)

	entities, status, message, err := api.ListEntitiesHelper(r.Context(), limit, offset)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       entities,
	}
}

func (api *API) GetEntity(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := tracingContext(r)

	entityID, err := util.StringToUUID(chi.URLParam(r, "entityID"))
	if err != nil {
		return respondWithError(err, "invalid entity ID", values.BadRequestBody, &tc)
	}

	entity, status, message, err := api.GetEntityHelper(r.Context(), entityID)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       entity,
	}
}

func (api *API) GetVotes(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := tracingContext(r)

	entityID, err := util.StringToUUID(chi.URLParam(r, "entityID"))
	if err != nil {
		return respondWithError(err, "invalid entity ID", values.BadRequestBody, &tc)
	}
	limit, offset := util.Pagination(r, defaultPageSize, maxPageSize)

	page, status, message, err := api.GetVotesHelper(r.Context(), entityID, limit, offset)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       page,
	}
}

// CastVote runs a vote attempt through the quota engine. Refusals carry the
// outcome in Data so clients can offer a share unlock.
func (api *API) CastVote(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := tracingContext(r)

	entityID, err := util.StringToUUID(chi.URLParam(r, "entityID"))
	if err != nil {
		return respondWithError(err, "invalid entity ID", values.BadRequestBody, &tc)
	}

	var req model.CastVoteRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}
	if err := util.ValidateStruct(req); err != nil {
		return respondWithError(err, "invalid vote kind", values.BadRequestBody, &tc)
	}

	userID, err := util.GetUserIDFromContext(r.Context())
	if err != nil {
		return respondWithError(err, "unable to get user ID from context", values.NotAuthorised, &tc)
	}

	resp, status, message, err := api.CastVoteHelper(r.Context(), userID, entityID, req.Kind)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       resp,
	}
}
