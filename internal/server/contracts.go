package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"guildline/internal/distribution"
	"guildline/internal/domain"
	"guildline/internal/engine"
)

type ContractParams struct {
	GuildID    string `path:"guild_id"`
	ContractID string `path:"contract_id"`
}

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-contract",
		Method:        http.MethodPost,
		Path:          "/guilds/{guild_id}/contracts",
		Summary:       "Create the contract for a job",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		GuildParams
		Body CreateContractRequest
	}) (*output[domain.GuildContract], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		c, err := e.CreateContract(ctx, input.GuildID, input.Body.JobID, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return ok(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/contracts",
		Summary:     "List contracts",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		GuildParams
		Status string `query:"status" enum:"draft,pending_votes,approved,rejected,active,completed"`
	}) (*output[[]domain.GuildContract], error) {
		items, err := e.ListContracts(ctx, input.GuildID, domain.ContractStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.GuildContract{}
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/contracts/{contract_id}",
		Summary:     "Get contract",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ContractParams) (*output[domain.GuildContract], error) {
		c, err := e.GetContract(ctx, input.GuildID, input.ContractID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vote-contract",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/contracts/{contract_id}/votes",
		Summary:     "Cast a member vote",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ContractParams
		Body VoteRequest
	}) (*output[domain.GuildContract], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		user := actor
		if input.Body.UserID != "" {
			user = input.Body.UserID
		}
		c, err := e.Vote(ctx, input.GuildID, input.ContractID, user, domain.Vote(input.Body.Vote))
		if err != nil {
			return nil, handleError(err)
		}
		return ok(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-contract",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/contracts/{contract_id}/activate",
		Summary:     "Start work on an approved contract",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *ContractParams) (*output[domain.GuildContract], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		c, err := e.ActivateContract(ctx, input.GuildID, input.ContractID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-milestone",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/contracts/{contract_id}/milestones/{milestone_id}/complete",
		Summary:     "Complete a milestone",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ContractParams
		MilestoneID string `path:"milestone_id"`
	}) (*output[domain.GuildContract], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		c, err := e.CompleteMilestone(ctx, input.GuildID, input.ContractID, input.MilestoneID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-distribution",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/contracts/{contract_id}/preview",
		Summary:     "Preview the profit split of the contract budget",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ContractParams
		Body *PreviewRequest
	}) (*output[distribution.Payout], error) {
		var levels map[string]float64
		if input.Body != nil {
			levels = input.Body.SkillLevels
		}
		p, err := e.PreviewDistribution(ctx, input.GuildID, input.ContractID, levels)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-contract",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/contracts/{contract_id}/complete",
		Summary:     "Complete a contract and distribute its earnings",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ContractParams
		Body CompleteContractRequest
	}) (*output[engine.Completion], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		done, err := e.CompleteContract(ctx, input.GuildID, input.ContractID, input.Body.ActualEarnings, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(done), nil
	})
}
