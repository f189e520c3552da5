package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"guildline/internal/distribution"
	"guildline/internal/domain"
	"guildline/internal/events"
)

// JobInput carries the caller-supplied fields of a new job. Zero values take the
// guild's configured defaults.
type JobInput struct {
	Title              string
	Description        string
	Category           string
	TotalBudget        float64
	EstimatedDuration  string
	RequiredSkills     []string
	DifficultyLevel    domain.Difficulty
	MaxParticipants    int
	MinRankRequired    string
	Deadline           *time.Time
	ProfitDistribution *domain.ProfitDistribution
	ClientName         string
	ClientContact      string
	IsExternalClient   *bool
}

func (e Engine) CreateJob(ctx context.Context, guildID, creatorID string, in JobInput) (domain.GuildJob, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.GuildJob{}, domain.Invalid("title", "is required")
	}
	budget, err := domain.NewMoney(in.TotalBudget)
	if err != nil {
		return domain.GuildJob{}, err
	}
	if in.MaxParticipants < 0 {
		return domain.GuildJob{}, domain.Invalid("maxParticipants", "must not be negative")
	}
	if in.DifficultyLevel != "" && !in.DifficultyLevel.Valid() {
		return domain.GuildJob{}, domain.Invalid("difficultyLevel", "unknown level %q", in.DifficultyLevel)
	}
	var job domain.GuildJob
	err = e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		cfg, err := e.guildConfig(ctx, tx, guildID)
		if err != nil {
			return err
		}
		now := e.now()
		policy := cfg.ProfitDistribution()
		if in.ProfitDistribution != nil {
			policy = in.ProfitDistribution.Clone()
			policy.TotalPercentage = 100
		}
		if err := distribution.ValidatePolicy(policy); err != nil {
			return err
		}
		job = domain.GuildJob{
			ID:                 domain.NewID(domain.PrefixJob),
			GuildID:            guildID,
			Title:              strings.TrimSpace(in.Title),
			Description:        in.Description,
			Category:           firstNonEmpty(in.Category, cfg.Jobs.Category),
			TotalBudget:        budget,
			EstimatedDuration:  firstNonEmpty(in.EstimatedDuration, cfg.Jobs.EstimatedDuration),
			RequiredSkills:     domain.Dedupe(in.RequiredSkills),
			DifficultyLevel:    domain.Difficulty(firstNonEmpty(string(in.DifficultyLevel), cfg.Jobs.Difficulty)),
			CreatedBy:          creatorID,
			MaxParticipants:    in.MaxParticipants,
			MinRankRequired:    firstNonEmpty(in.MinRankRequired, cfg.Jobs.MinRank),
			ProfitDistribution: policy,
			Status:             domain.JobDraft,
			CreatedAt:          now,
			Deadline:           now.AddDate(0, 0, cfg.Jobs.DeadlineDays),
			AssignedMembers:    []string{},
			Applicants:         []string{},
			ClientName:         in.ClientName,
			ClientContact:      in.ClientContact,
			IsExternalClient:   cfg.Jobs.ExternalClient,
		}
		if job.MaxParticipants == 0 {
			job.MaxParticipants = cfg.Jobs.MaxParticipants
		}
		if in.Deadline != nil {
			job.Deadline = in.Deadline.UTC()
		}
		if in.IsExternalClient != nil {
			job.IsExternalClient = *in.IsExternalClient
		}
		if err := e.Repo.InsertJob(ctx, tx, job); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return e.emit(ctx, tx, "job.create", guildID, "job", job.ID, creatorID, events.EventPayload{
			"title":  job.Title,
			"budget": job.TotalBudget,
		})
	})
	if err != nil {
		return domain.GuildJob{}, err
	}
	e.log().Info("job created", zap.String("guild_id", guildID), zap.String("job_id", job.ID), zap.Float64("budget", job.TotalBudget.Float()))
	return job, nil
}

// AssignMembers replaces the job's assigned members and activates it.
func (e Engine) AssignMembers(ctx context.Context, guildID, jobID string, memberIDs []string, actorID string) (domain.GuildJob, error) {
	members := domain.Dedupe(memberIDs)
	if len(members) == 0 {
		return domain.GuildJob{}, domain.Invalid("memberIds", "at least one member is required")
	}
	var job domain.GuildJob
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		var err error
		job, err = e.Repo.GetJob(ctx, tx, guildID, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return domain.Invalid("status", "job %s is %s", job.ID, job.Status)
		}
		if len(members) > job.MaxParticipants {
			return domain.Invalid("memberIds", "%d members exceed maxParticipants %d", len(members), job.MaxParticipants)
		}
		if open, err := e.openContract(ctx, tx, job); err != nil {
			return err
		} else if open != nil {
			return domain.Invalid("contractId", "job %s has open contract %s in status %s", job.ID, open.ID, open.Status)
		}
		job.AssignedMembers = members
		job.Status = domain.JobActive
		if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
			return err
		}
		return e.emit(ctx, tx, "job.assign", guildID, "job", job.ID, actorID, events.EventPayload{"members": members})
	})
	if err != nil {
		return domain.GuildJob{}, err
	}
	e.log().Info("job members assigned", zap.String("guild_id", guildID), zap.String("job_id", job.ID), zap.Strings("members", members))
	return job, nil
}

// ApplyToJob records userID as an applicant once.
func (e Engine) ApplyToJob(ctx context.Context, guildID, jobID, userID string) (domain.GuildJob, error) {
	if userID == "" {
		return domain.GuildJob{}, domain.Invalid("userId", "is required")
	}
	var job domain.GuildJob
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		var err error
		job, err = e.Repo.GetJob(ctx, tx, guildID, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return domain.Invalid("status", "job %s is %s", job.ID, job.Status)
		}
		var added bool
		job.Applicants, added = domain.AddToSet(job.Applicants, userID)
		if !added {
			return nil
		}
		if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
			return err
		}
		return e.emit(ctx, tx, "job.apply", guildID, "job", job.ID, userID, nil)
	})
	return job, err
}

// UpdateJobStatus sets the job status. Leaving completed or cancelled requires force.
func (e Engine) UpdateJobStatus(ctx context.Context, guildID, jobID string, status domain.JobStatus, actorID string, force bool) (domain.GuildJob, error) {
	if !status.Valid() {
		return domain.GuildJob{}, domain.Invalid("status", "unknown job status %q", status)
	}
	var job domain.GuildJob
	var from domain.JobStatus
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		var err error
		job, err = e.Repo.GetJob(ctx, tx, guildID, jobID)
		if err != nil {
			return err
		}
		from = job.Status
		if err := ensureJobTransition(from, status, force); err != nil {
			return err
		}
		if from == status {
			return nil
		}
		job.Status = status
		now := e.now()
		switch status {
		case domain.JobInProgress:
			if job.StartDate == nil {
				job.StartDate = ptrTime(now)
			}
		case domain.JobCompleted:
			job.CompletedAt = ptrTime(now)
		}
		if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
			return err
		}
		return e.emit(ctx, tx, "job.status", guildID, "job", job.ID, actorID, events.EventPayload{"from": from, "to": status, "force": force})
	})
	if err != nil {
		return domain.GuildJob{}, err
	}
	e.log().Info("job status updated", zap.String("guild_id", guildID), zap.String("job_id", job.ID), zap.String("from", string(from)), zap.String("to", string(status)))
	return job, nil
}

func ensureJobTransition(from, to domain.JobStatus, force bool) error {
	if force || from == to || !from.Terminal() {
		return nil
	}
	return domain.Invalid("status", "job is %s; leaving a terminal status requires force", from)
}

func (e Engine) GetJob(ctx context.Context, guildID, jobID string) (domain.GuildJob, error) {
	return e.Repo.GetJob(ctx, nil, guildID, jobID)
}

// ListJobs returns a guild's jobs; an empty status lists all of them.
func (e Engine) ListJobs(ctx context.Context, guildID string, status domain.JobStatus) ([]domain.GuildJob, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Invalid("status", "unknown job status %q", status)
	}
	return e.Repo.ListJobs(ctx, nil, guildID, status)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
