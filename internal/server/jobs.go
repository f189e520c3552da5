package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"guildline/internal/domain"
	"guildline/internal/engine"
)

// output wraps a response body for huma.
type output[T any] struct {
	Body T `json:"body"`
}

func ok[T any](v T) *output[T] { return &output[T]{Body: v} }

type GuildParams struct {
	GuildID string `path:"guild_id"`
}

type JobParams struct {
	GuildID string `path:"guild_id"`
	JobID   string `path:"job_id"`
}

func registerJobs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/guilds/{guild_id}/jobs",
		Summary:       "Create job",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		GuildParams
		Body CreateJobRequest
	}) (*output[domain.GuildJob], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		job, err := e.CreateJob(ctx, input.GuildID, actor, input.Body.input())
		if err != nil {
			return nil, handleError(err)
		}
		return ok(job), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/jobs",
		Summary:     "List jobs",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		GuildParams
		Status string `query:"status" enum:"draft,pending_approval,active,in_progress,completed,cancelled"`
	}) (*output[[]domain.GuildJob], error) {
		jobs, err := e.ListJobs(ctx, input.GuildID, domain.JobStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		if jobs == nil {
			jobs = []domain.GuildJob{}
		}
		return ok(jobs), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/jobs/{job_id}",
		Summary:     "Get job",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *JobParams) (*output[domain.GuildJob], error) {
		job, err := e.GetJob(ctx, input.GuildID, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(job), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-job-members",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/jobs/{job_id}/assign",
		Summary:     "Assign members to a job",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		JobParams
		Body AssignMembersRequest
	}) (*output[domain.GuildJob], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		job, err := e.AssignMembers(ctx, input.GuildID, input.JobID, input.Body.MemberIDs, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(job), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-to-job",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/jobs/{job_id}/apply",
		Summary:     "Apply to a job",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		JobParams
		Body *ApplyRequest
	}) (*output[domain.GuildJob], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		user := actor
		if input.Body != nil && input.Body.UserID != "" {
			user = input.Body.UserID
		}
		job, err := e.ApplyToJob(ctx, input.GuildID, input.JobID, user)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(job), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-job-status",
		Method:      http.MethodPatch,
		Path:        "/guilds/{guild_id}/jobs/{job_id}/status",
		Summary:     "Set job status",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		JobParams
		Body SetJobStatusRequest
	}) (*output[domain.GuildJob], error) {
		actor, aerr := actorFromContext(ctx)
		if aerr != nil {
			return nil, aerr
		}
		job, err := e.UpdateJobStatus(ctx, input.GuildID, input.JobID, domain.JobStatus(input.Body.Status), actor, input.Body.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(job), nil
	})
}
