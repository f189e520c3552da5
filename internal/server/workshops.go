package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"guildline/internal/domain"
	"guildline/internal/engine"
)

type WorkshopParams struct {
	GuildID    string `path:"guild_id"`
	WorkshopID string `path:"workshop_id"`
}

func registerWorkshops(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workshop",
		Method:        http.MethodPost,
		Path:          "/guilds/{guild_id}/workshops",
		Summary:       "Create workshop",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		GuildParams
		Body CreateWorkshopRequest
	}) (*output[domain.GuildWorkshop], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		w, err := e.CreateWorkshop(ctx, input.GuildID, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return ok(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workshops",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/workshops",
		Summary:     "List workshops",
	}, func(ctx context.Context, input *struct {
		GuildParams
		Status string `query:"status" enum:"pending,approved,funded,completed"`
	}) (*output[[]domain.GuildWorkshop], error) {
		items, err := e.ListWorkshops(ctx, input.GuildID, domain.FundingStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.GuildWorkshop{}
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workshop",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/workshops/{workshop_id}",
		Summary:     "Get workshop",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *WorkshopParams) (*output[domain.GuildWorkshop], error) {
		w, err := e.GetWorkshop(ctx, input.GuildID, input.WorkshopID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "register-workshop-member",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/workshops/{workshop_id}/register",
		Summary:     "Register a member",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		WorkshopParams
		Body *MemberRequest
	}) (*output[domain.GuildWorkshop], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		user := actor
		if input.Body != nil && input.Body.UserID != "" {
			user = input.Body.UserID
		}
		w, err := e.RegisterMember(ctx, input.GuildID, input.WorkshopID, user)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(w), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-workshop-member",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/workshops/{workshop_id}/complete",
		Summary:     "Record a member's completion and rating",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		WorkshopParams
		Body CompleteWorkshopRequest
	}) (*output[engine.WorkshopCompletion], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		user := actor
		if input.Body.UserID != "" {
			user = input.Body.UserID
		}
		out, err := e.CompleteForMember(ctx, input.GuildID, input.WorkshopID, user, input.Body.Rating, input.Body.Feedback)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fund-workshop",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/workshops/{workshop_id}/fund",
		Summary:     "Fund a workshop from the vault",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *WorkshopParams) (*output[engine.FundingResult], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		res, err := e.FundWorkshop(ctx, input.GuildID, input.WorkshopID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-workshop",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/workshops/{workshop_id}/close",
		Summary:     "Complete a funded workshop and issue certificates",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *WorkshopParams) (*output[domain.GuildWorkshop], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		w, err := e.CloseWorkshop(ctx, input.GuildID, input.WorkshopID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(w), nil
	})
}

type MemberParams struct {
	GuildID string `path:"guild_id"`
	UserID  string `path:"user_id"`
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-skill-progress",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/members",
		Summary:     "List member skill progress",
	}, func(ctx context.Context, input *GuildParams) (*output[[]domain.GuildMemberSkillProgress], error) {
		items, err := e.ListMemberSkillProgress(ctx, input.GuildID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.GuildMemberSkillProgress{}
		}
		return ok(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-skill-progress",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/members/{user_id}/skills",
		Summary:     "Get a member's skill progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *MemberParams) (*output[domain.GuildMemberSkillProgress], error) {
		p, err := e.GetMemberSkillProgress(ctx, input.GuildID, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-workshop-skills",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/members/{user_id}/skills/workshops/{workshop_id}",
		Summary:     "Apply a workshop's skill points to a member",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		MemberParams
		WorkshopID string `path:"workshop_id"`
	}) (*output[skillProgressResponse], error) {
		if _, aerr := actorFromContext(ctx); aerr != nil {
			return nil, aerr
		}
		p, award, awarded, err := e.UpdateSkillProgress(ctx, input.GuildID, input.UserID, input.WorkshopID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(skillProgressResponse{Progress: p, Award: award, Awarded: awarded}), nil
	})
}
