package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"guildline/internal/domain"
	"guildline/internal/events"
	"guildline/internal/repo"
	"guildline/internal/skills"
)

type WorkshopInput struct {
	Title           string
	Description     string
	SkillCategory   string
	TargetLevel     domain.TargetLevel
	Duration        *domain.LearningDuration
	MaxParticipants int
	Cost            float64
	FundedBy        string
	InstructorName  string
	InstructorType  string
	InstructorID    string
	ScheduledDate   *time.Time
	Location        string
	SkillsImproved  []string
}

func (e Engine) CreateWorkshop(ctx context.Context, guildID, creatorID string, in WorkshopInput) (domain.GuildWorkshop, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.GuildWorkshop{}, domain.Invalid("title", "is required")
	}
	cost, err := domain.NewMoney(in.Cost)
	if err != nil {
		return domain.GuildWorkshop{}, err
	}
	if in.TargetLevel != "" && !in.TargetLevel.Valid() {
		return domain.GuildWorkshop{}, domain.Invalid("targetLevel", "unknown level %q", in.TargetLevel)
	}
	if in.Duration != nil {
		if err := in.Duration.Validate(); err != nil {
			return domain.GuildWorkshop{}, err
		}
	}
	if in.MaxParticipants < 0 {
		return domain.GuildWorkshop{}, domain.Invalid("maxParticipants", "must not be negative")
	}
	var w domain.GuildWorkshop
	err = e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		cfg, err := e.guildConfig(ctx, tx, guildID)
		if err != nil {
			return err
		}
		d := cfg.Workshops
		w = domain.GuildWorkshop{
			ID:                domain.NewID(domain.PrefixWorkshop),
			GuildID:           guildID,
			Title:             strings.TrimSpace(in.Title),
			Description:       in.Description,
			SkillCategory:     firstNonEmpty(in.SkillCategory, d.SkillCategory),
			TargetLevel:       domain.TargetLevel(firstNonEmpty(string(in.TargetLevel), d.TargetLevel)),
			Duration:          d.Duration,
			MaxParticipants:   in.MaxParticipants,
			Cost:              cost,
			FundedBy:          firstNonEmpty(in.FundedBy, d.FundedBy),
			FundingStatus:     domain.FundingPending,
			InstructorName:    in.InstructorName,
			InstructorType:    firstNonEmpty(in.InstructorType, d.InstructorType),
			InstructorID:      in.InstructorID,
			Location:          firstNonEmpty(in.Location, d.Location),
			RegisteredMembers: []string{},
			CompletedMembers:  []string{},
			SkillsImproved:    domain.Dedupe(in.SkillsImproved),
			Feedback:          map[string]string{},
			CreatedAt:         e.now(),
			CreatedBy:         creatorID,
		}
		if in.Duration != nil {
			w.Duration = *in.Duration
		}
		if w.MaxParticipants == 0 {
			w.MaxParticipants = d.MaxParticipants
		}
		if in.ScheduledDate != nil {
			w.ScheduledDate = ptrTime(in.ScheduledDate.UTC())
		}
		if err := e.Repo.InsertWorkshop(ctx, tx, w); err != nil {
			return fmt.Errorf("insert workshop: %w", err)
		}
		return e.emit(ctx, tx, "workshop.create", guildID, "workshop", w.ID, creatorID, events.EventPayload{
			"title": w.Title,
			"cost":  w.Cost,
		})
	})
	if err != nil {
		return domain.GuildWorkshop{}, err
	}
	e.log().Info("workshop created", zap.String("guild_id", guildID), zap.String("workshop_id", w.ID), zap.Float64("cost", w.Cost.Float()))
	return w, nil
}

// RegisterMember adds userID to the workshop once. Capacity is advisory: going over
// maxParticipants only logs a warning.
func (e Engine) RegisterMember(ctx context.Context, guildID, workshopID, userID string) (domain.GuildWorkshop, error) {
	if userID == "" {
		return domain.GuildWorkshop{}, domain.Invalid("userId", "is required")
	}
	var w domain.GuildWorkshop
	var added bool
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		var err error
		w, err = e.Repo.GetWorkshop(ctx, tx, guildID, workshopID)
		if err != nil {
			return err
		}
		w.RegisteredMembers, added = domain.AddToSet(w.RegisteredMembers, userID)
		if !added {
			return nil
		}
		if err := e.Repo.UpdateWorkshop(ctx, tx, w); err != nil {
			return err
		}
		return e.emit(ctx, tx, "workshop.register", guildID, "workshop", w.ID, userID, nil)
	})
	if err != nil {
		return domain.GuildWorkshop{}, err
	}
	if added && len(w.RegisteredMembers) > w.MaxParticipants {
		e.log().Warn("workshop over capacity", zap.String("guild_id", guildID), zap.String("workshop_id", w.ID),
			zap.Int("registered", len(w.RegisteredMembers)), zap.Int("max_participants", w.MaxParticipants))
	}
	return w, nil
}

// WorkshopCompletion reports a member's completion and the skill points it awarded.
type WorkshopCompletion struct {
	Workshop domain.GuildWorkshop            `json:"workshop"`
	Progress domain.GuildMemberSkillProgress `json:"progress"`
	Award    skills.Award                    `json:"award"`
	Awarded  bool                            `json:"awarded"`
}

// CompleteForMember records a member finishing the workshop with a 0-5 rating.
// Completing again replaces the member's feedback and rating but awards no points.
func (e Engine) CompleteForMember(ctx context.Context, guildID, workshopID, userID string, rating float64, feedback string) (WorkshopCompletion, error) {
	if userID == "" {
		return WorkshopCompletion{}, domain.Invalid("userId", "is required")
	}
	if rating < 0 || rating > 5 {
		return WorkshopCompletion{}, domain.Invalid("rating", "must be within [0,5], got %v", rating)
	}
	var out WorkshopCompletion
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		w, err := e.Repo.GetWorkshop(ctx, tx, guildID, workshopID)
		if err != nil {
			return err
		}
		var first bool
		w.CompletedMembers, first = domain.AddToSet(w.CompletedMembers, userID)
		if w.Feedback == nil {
			w.Feedback = map[string]string{}
		}
		if w.Ratings == nil {
			w.Ratings = map[string]float64{}
		}
		_, rated := w.Feedback[userID]
		w.Feedback[userID] = feedback
		w.Ratings[userID] = rating
		avg := updateAverageRating(w, rating, !rated)
		w.AverageRating = &avg
		if err := e.Repo.UpdateWorkshop(ctx, tx, w); err != nil {
			return err
		}
		progress, award, awarded, err := e.applySkillProgress(ctx, tx, guildID, userID, w)
		if err != nil {
			return err
		}
		if err := e.emit(ctx, tx, "workshop.complete", guildID, "workshop", w.ID, userID, events.EventPayload{
			"rating":  rating,
			"first":   first,
			"awarded": award.PointsPerSkill,
		}); err != nil {
			return err
		}
		out = WorkshopCompletion{Workshop: w, Progress: progress, Award: award, Awarded: awarded}
		return nil
	})
	if err != nil {
		return WorkshopCompletion{}, err
	}
	e.log().Info("workshop completed", zap.String("guild_id", guildID), zap.String("workshop_id", workshopID),
		zap.String("user_id", userID), zap.Int("points", out.Award.PointsPerSkill), zap.Bool("awarded", out.Awarded))
	return out, nil
}

// updateAverageRating folds a new rating into the running average over n feedback
// entries. A replaced rating recomputes the mean of all stored ratings.
func updateAverageRating(w domain.GuildWorkshop, rating float64, newEntry bool) float64 {
	n := len(w.Feedback)
	if newEntry {
		if n <= 1 || w.AverageRating == nil {
			return rating
		}
		return (*w.AverageRating*float64(n-1) + rating) / float64(n)
	}
	if len(w.Ratings) == 0 {
		return rating
	}
	var sum float64
	for _, r := range w.Ratings {
		sum += r
	}
	return sum / float64(len(w.Ratings))
}

// UpdateSkillProgress applies a workshop's skill points to a member. A workshop the
// member already attended adds nothing.
func (e Engine) UpdateSkillProgress(ctx context.Context, guildID, userID, workshopID string) (domain.GuildMemberSkillProgress, skills.Award, bool, error) {
	if userID == "" {
		return domain.GuildMemberSkillProgress{}, skills.Award{}, false, domain.Invalid("userId", "is required")
	}
	var (
		progress domain.GuildMemberSkillProgress
		award    skills.Award
		awarded  bool
	)
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		w, err := e.Repo.GetWorkshop(ctx, tx, guildID, workshopID)
		if err != nil {
			return err
		}
		progress, award, awarded, err = e.applySkillProgress(ctx, tx, guildID, userID, w)
		return err
	})
	return progress, award, awarded, err
}

func (e Engine) applySkillProgress(ctx context.Context, q repo.Querier, guildID, userID string, w domain.GuildWorkshop) (domain.GuildMemberSkillProgress, skills.Award, bool, error) {
	now := e.now()
	current, err := e.Repo.GetSkillProgress(ctx, q, guildID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		current = skills.NewProgress(guildID, userID, now)
	} else if err != nil {
		return current, skills.Award{}, false, err
	}
	next, award, awarded := skills.ApplyWorkshop(current, w, now)
	if !awarded {
		return current, award, false, nil
	}
	if err := e.Repo.UpsertSkillProgress(ctx, q, next); err != nil {
		return current, award, false, err
	}
	if err := e.emit(ctx, q, "skills.update", guildID, "member", userID, userID, events.EventPayload{
		"workshopId": w.ID,
		"points":     award.PointsPerSkill,
		"skills":     award.Skills,
		"hours":      award.Hours,
	}); err != nil {
		return current, award, false, err
	}
	return next, award, true, nil
}

// CloseWorkshop completes a funded workshop and issues its certificates.
func (e Engine) CloseWorkshop(ctx context.Context, guildID, workshopID, actorID string) (domain.GuildWorkshop, error) {
	var w domain.GuildWorkshop
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		var err error
		w, err = e.Repo.GetWorkshop(ctx, tx, guildID, workshopID)
		if err != nil {
			return err
		}
		if w.FundingStatus != domain.FundingFunded {
			return domain.Invalid("fundingStatus", "workshop %s is %s, want funded", w.ID, w.FundingStatus)
		}
		w.FundingStatus = domain.FundingCompleted
		w.CertificatesIssued = true
		if err := e.Repo.UpdateWorkshop(ctx, tx, w); err != nil {
			return err
		}
		return e.emit(ctx, tx, "workshop.close", guildID, "workshop", w.ID, actorID, events.EventPayload{
			"completedMembers": len(w.CompletedMembers),
		})
	})
	if err != nil {
		return domain.GuildWorkshop{}, err
	}
	return w, nil
}

func (e Engine) GetWorkshop(ctx context.Context, guildID, workshopID string) (domain.GuildWorkshop, error) {
	return e.Repo.GetWorkshop(ctx, nil, guildID, workshopID)
}

func (e Engine) ListWorkshops(ctx context.Context, guildID string, status domain.FundingStatus) ([]domain.GuildWorkshop, error) {
	return e.Repo.ListWorkshops(ctx, nil, guildID, status)
}

func (e Engine) GetMemberSkillProgress(ctx context.Context, guildID, userID string) (domain.GuildMemberSkillProgress, error) {
	return e.Repo.GetSkillProgress(ctx, nil, guildID, userID)
}

func (e Engine) ListMemberSkillProgress(ctx context.Context, guildID string) ([]domain.GuildMemberSkillProgress, error) {
	return e.Repo.ListSkillProgress(ctx, nil, guildID)
}
