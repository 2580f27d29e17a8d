package rest

import (
	"net/http"

	"github.com/bwise1/voteledger/internal/model"
	"github.com/bwise1/voteledger/util"
	"github.com/bwise1/voteledger/util/values"
	"github.com/go-chi/chi/v5"
)

func (api *API) ShareRoutes() chi.Router {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(api.RequireLogin)
		r.Method(http.MethodPost, "/", Handler(api.RequestShareUnlock))
		r.Method(http.MethodPost, "/{token}/confirm", Handler(api.ConfirmShareUnlock))
	})

	return mux
}

func (api *API) RequestShareUnlock(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := tracingContext(r)

	var req model.ShareUnlockRequest
	if decodeErr := util.DecodeJSONBody(&tc, r.Body, &req); decodeErr != nil {
		return respondWithError(decodeErr, "unable to decode request", values.BadRequestBody, &tc)
	}
	if err := util.ValidateStruct(req); err != nil {
		return respondWithError(err, "invalid category", values.BadRequestBody, &tc)
	}

	userID, err := util.GetUserIDFromContext(r.Context())
	if err != nil {
		return respondWithError(err, "unable to get user ID from context", values.NotAuthorised, &tc)
	}

	ticket, status, message, err := api.RequestShareUnlockHelper(r.Context(), userID, req.Category)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       ticket,
	}
}

func (api *API) ConfirmShareUnlock(_ http.ResponseWriter, r *http.Request) *ServerResponse {
	tc := tracingContext(r)

	token := chi.URLParam(r, "token")
	if !util.NotBlank(token) {
		return respondWithError(nil, "missing share token", values.BadRequestBody, &tc)
	}

	userID, err := util.GetUserIDFromContext(r.Context())
	if err != nil {
		return respondWithError(err, "unable to get user ID from context", values.NotAuthorised, &tc)
	}

	confirmation, status, message, err := api.ConfirmShareUnlockHelper(r.Context(), userID, token)
	if err != nil {
		return respondWithError(err, message, status, &tc)
	}

	return &ServerResponse{
		Message:    message,
		Status:     status,
		StatusCode: util.StatusCode(status),
		Data:       confirmation,
	}
}
