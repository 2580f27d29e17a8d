package rest

import (
	"context"
	"errors"
	"time"

	"github.com/bwise1/voteledger/internal/ledger"
	"github.com/bwise1/voteledger/internal/model"
	"github.com/bwise1/voteledger/util/values"
	"github.com/google/uuid"
)

func (api *API) CreateEntityHelper(ctx context.Context, req model.CreateEntityRequest) (model.Entity, string, string, error) {
	entity, err := api.Deps.Store.CreateEntity(ctx, model.Entity{
		ID:        uuid.New(),
		Name:      req.Name,
		OwnerID:   req.OwnerID,
		BaseCount: req.BaseCount,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return model.Entity{}, values.Conflict, "entity already exists", err
		}
		return model.Entity{}, values.Error, "failed to create entity", err
	}
	return entity, values.Created, "Entity created successfully", nil
}

func (api *API) ListEntitiesHelper(ctx context.Context, limit, offset int) ([]model.Entity, string, string, error) {
	entities, err := api.Deps.Store.ListEntities(ctx, limit, offset)
	if err != nil {
		return nil, values.Error, "failed to list entities", err
	}
	if entities == nil {
		entities = []model.Entity{}
	}
	return entities, values.Success, "Entities retrieved successfully", nil
}

func (api *API) GetEntityHelper(ctx context.Context, id uuid.UUID) (model.Entity, string, string, error) {
	entity, err := api.Deps.Store.GetEntity(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return model.Entity{}, values.NotFound, "entity not found", err
		}
		return model.Entity{}, values.Error, "failed to get entity", err
	}
	return entity, values.Success, "Entity retrieved successfully", nil
}

func (api *API) GetVotesHelper(ctx context.Context, entityID uuid.UUID, limit, offset int) (model.VotePage, string, string, error) {
	if _, status, message, err := api.GetEntityHelper(ctx, entityID); err != nil {
		return model.VotePage{}, status, message, err
	}

	votes, err := api.Deps.Store.ListVotes(ctx, entityID, limit, offset)
	if err != nil {
		return model.VotePage{}, values.Error, "failed to get votes", err
	}
	if votes == nil {
		votes = []model.VoteEvent{}
	}
	return model.VotePage{
		EntityID: entityID,
		Votes:    votes,
		Limit:    limit,
		Offset:   offset,
	}, values.Success, "Votes retrieved successfully", nil
}

// CastVoteHelper maps an engine outcome onto a response status. A refused
// vote is not an error: the caller still gets the outcome body.
func (api *API) CastVoteHelper(ctx context.Context, actorID, entityID uuid.UUID, kind model.VoteKind) (model.VoteResponse, string, string, error) {
	out, err := api.Deps.Engine.TryVote(ctx, actorID, entityID, kind)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return model.VoteResponse{}, values.NotFound, "entity not found", err
		case errors.Is(err, ledger.ErrInvalidKind):
			return model.VoteResponse{}, values.BadRequestBody, "invalid vote kind", err
		}
		return model.VoteResponse{}, values.Error, "failed to record vote", err
	}

	resp := voteResponse(out)
	switch out.Status {
	case ledger.StatusGranted:
		return resp, values.Created, "Vote recorded successfully", nil
	case ledger.StatusPreconditionFailed:
		return resp, values.Unprocessable, out.Reason, nil
	default:
		return resp, values.Conflict, out.Reason, nil
	}
}

func voteResponse(out ledger.Outcome) model.VoteResponse {
	return model.VoteResponse{
		Status:     string(out.Status),
		Reason:     out.Reason,
		Remaining:  out.Remaining,
		NeedsShare: out.NeedsShare,
		ViaGrant:   out.ViaGrant,
		Degraded:   out.Degraded,
		VoteCount:  out.VoteCount,
		Event:      out.Event,
	}
}
