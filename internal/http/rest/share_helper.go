package rest

import (
	"context"
	"errors"

	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/model"
	"github.com/bwise1/voteledger/util/values"
	"github.com/google/uuid"
)

func (api *API) RequestShareUnlockHelper(ctx context.Context, actorID uuid.UUID, category model.VoteKind) (model.ShareUnlockResponse, string, string, error) {
	ticket, err := api.Deps.Unlocker.RequestUnlock(ctx, actorID, category)
	if err != nil {
		if status, message, ok := shareErrorStatus(err); ok {
			return model.ShareUnlockResponse{}, status, message, err
		}
		return model.ShareUnlockResponse{}, values.Error, "failed to start share unlock", err
	}

	return model.ShareUnlockResponse{
		Token:     ticket.Token,
		ExpiresAt: ticket.ExpiresAt,
		Remaining: ticket.Remaining,
	}, values.Created, "Share unlock started", nil
}

func (api *API) ConfirmShareUnlockHelper(ctx context.Context, actorID uuid.UUID, token string) (model.ConfirmShareResponse, string, string, error) {
	c, err := api.Deps.Unlocker.ConfirmShareProof(ctx, actorID, token)
	if err != nil {
		if status, message, ok := shareErrorStatus(err); ok {
			return model.ConfirmShareResponse{}, status, message, err
		}
		return model.ConfirmShareResponse{}, values.Error, "failed to confirm share", err
	}

	return model.ConfirmShareResponse{
		Grant:          c.Grant,
		RemainingToday: c.RemainingToday,
	}, values.Created, "Share confirmed, extra vote unlocked", nil
}

func shareErrorStatus(err error) (string, string, bool) {
	switch {
	case ledger.IsQuotaExhausted(err):
		return values.TooManyRequest, err.Error(), true
	case errors.Is(err, ledger.ErrAlreadyConfirmed):
		return values.Conflict, "share already confirmed", true
	case errors.Is(err, ledger.ErrExpired):
		return values.Gone, "share token expired or unknown", true
	case errors.Is(err, ledger.ErrNotOwner):
		return values.NotAuthorised, "share token belongs to another user", true
	case errors.Is(err, ledger.ErrInvalidKind):
		return values.BadRequestBody, "invalid category", true
	}
	return "", "", false
}
