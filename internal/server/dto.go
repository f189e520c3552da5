package server

import (
	"time"

	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/skills"
)

// Request payloads

type ProfitDistributionRequest struct {
	GuildMasterShare      float64            `json:"guildMasterShare" minimum:"0" maximum:"100"`
	GuildVaultShare       float64            `json:"guildVaultShare" minimum:"0" maximum:"100"`
	ParticipantShares     map[string]float64 `json:"participantShares,omitempty"`
	EqualSplit            bool               `json:"equalSplit,omitempty"`
	PerformanceBasedBonus bool               `json:"performanceBasedBonus,omitempty"`
	SkillLevelMultiplier  bool               `json:"skillLevelMultiplier,omitempty"`
}

type CreateJobRequest struct {
	Title              string                     `json:"title" minLength:"1"`
	Description        string                     `json:"description,omitempty"`
	Category           string                     `json:"category,omitempty"`
	TotalBudget        float64                    `json:"totalBudget,omitempty" minimum:"0"`
	EstimatedDuration  string                     `json:"estimatedDuration,omitempty"`
	RequiredSkills     []string                   `json:"requiredSkills,omitempty"`
	DifficultyLevel    string                     `json:"difficultyLevel,omitempty" enum:"beginner,intermediate,advanced,expert"`
	MaxParticipants    int                        `json:"maxParticipants,omitempty" minimum:"0"`
	MinRankRequired    string                     `json:"minRankRequired,omitempty"`
	Deadline           *time.Time                 `json:"deadline,omitempty"`
	ProfitDistribution *ProfitDistributionRequest `json:"profitDistribution,omitempty"`
	ClientName         string                     `json:"clientName,omitempty"`
	ClientContact      string                     `json:"clientContact,omitempty"`
	IsExternalClient   *bool                      `json:"isExternalClient,omitempty"`
}

func (r CreateJobRequest) input() engine.JobInput {
	in := engine.JobInput{
		Title:             r.Title,
		Description:       r.Description,
		Category:          r.Category,
		TotalBudget:       r.TotalBudget,
		EstimatedDuration: r.EstimatedDuration,
		RequiredSkills:    r.RequiredSkills,
		DifficultyLevel:   domain.Difficulty(r.DifficultyLevel),
		MaxParticipants:   r.MaxParticipants,
		MinRankRequired:   r.MinRankRequired,
		Deadline:          r.Deadline,
		ClientName:        r.ClientName,
		ClientContact:     r.ClientContact,
		IsExternalClient:  r.IsExternalClient,
	}
	if p := r.ProfitDistribution; p != nil {
		pd := domain.ProfitDistribution{
			GuildMasterShare:      domain.Percentage(p.GuildMasterShare),
			GuildVaultShare:       domain.Percentage(p.GuildVaultShare),
			EqualSplit:            p.EqualSplit,
			PerformanceBasedBonus: p.PerformanceBasedBonus,
			SkillLevelMultiplier:  p.SkillLevelMultiplier,
		}
		if len(p.ParticipantShares) > 0 {
			pd.ParticipantShares = make(map[string]domain.Percentage, len(p.ParticipantShares))
			for u, v := range p.ParticipantShares {
				pd.ParticipantShares[u] = domain.Percentage(v)
			}
		}
		in.ProfitDistribution = &pd
	}
	return in
}

type AssignMembersRequest struct {
	MemberIDs []string `json:"memberIds" minItems:"1"`
}

type ApplyRequest struct {
	UserID string `json:"userId,omitempty"`
}

type SetJobStatusRequest struct {
	Status string `json:"status" enum:"draft,pending_approval,active,in_progress,completed,cancelled"`
	Force  bool   `json:"force,omitempty"`
}

type MilestoneRequest struct {
	Title             string     `json:"title" minLength:"1"`
	Description       string     `json:"description,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty"`
	PaymentPercentage float64    `json:"paymentPercentage" minimum:"0" maximum:"100"`
}

type CreateContractRequest struct {
	JobID            string              `json:"jobId" minLength:"1"`
	Terms            []string            `json:"terms,omitempty"`
	Responsibilities map[string][]string `json:"responsibilities,omitempty"`
	Milestones       []MilestoneRequest  `json:"milestones,omitempty"`
}

func (r CreateContractRequest) input() engine.ContractInput {
	in := engine.ContractInput{Terms: r.Terms, Responsibilities: r.Responsibilities}
	for _, m := range r.Milestones {
		in.Milestones = append(in.Milestones, engine.MilestoneInput{
			Title:             m.Title,
			Description:       m.Description,
			DueDate:           m.DueDate,
			PaymentPercentage: m.PaymentPercentage,
		})
	}
	return in
}

type VoteRequest struct {
	Vote string `json:"vote" enum:"accept,reject"`
	// UserID defaults to the calling actor.
	UserID string `json:"userId,omitempty"`
}

type CompleteContractRequest struct {
	ActualEarnings float64 `json:"actualEarnings" minimum:"0"`
}

type PreviewRequest struct {
	SkillLevels map[string]float64 `json:"skillLevels,omitempty"`
}

type DepositRequest struct {
	Amount      float64 `json:"amount" exclusiveMinimum:"0"`
	Description string  `json:"description,omitempty"`
}

type WithdrawRequest struct {
	Amount      float64 `json:"amount" exclusiveMinimum:"0"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
}

type DurationRequest struct {
	Value float64 `json:"value" exclusiveMinimum:"0"`
	Unit  string  `json:"unit" enum:"hours,days,weeks"`
}

type CreateWorkshopRequest struct {
	Title           string           `json:"title" minLength:"1"`
	Description     string           `json:"description,omitempty"`
	SkillCategory   string           `json:"skillCategory,omitempty"`
	TargetLevel     string           `json:"targetLevel,omitempty" enum:"beginner,intermediate,advanced"`
	Duration        *DurationRequest `json:"duration,omitempty"`
	MaxParticipants int              `json:"maxParticipants,omitempty" minimum:"0"`
	Cost            float64          `json:"cost,omitempty" minimum:"0"`
	FundedBy        string           `json:"fundedBy,omitempty"`
	InstructorName  string           `json:"instructorName,omitempty"`
	InstructorType  string           `json:"instructorType,omitempty"`
	InstructorID    string           `json:"instructorId,omitempty"`
	ScheduledDate   *time.Time       `json:"scheduledDate,omitempty"`
	Location        string           `json:"location,omitempty"`
	SkillsImproved  []string         `json:"skillsImproved,omitempty"`
}

func (r CreateWorkshopRequest) input() engine.WorkshopInput {
	in := engine.WorkshopInput{
		Title:           r.Title,
		Description:     r.Description,
		SkillCategory:   r.SkillCategory,
		TargetLevel:     domain.TargetLevel(r.TargetLevel),
		MaxParticipants: r.MaxParticipants,
		Cost:            r.Cost,
		FundedBy:        r.FundedBy,
		InstructorName:  r.InstructorName,
		InstructorType:  r.InstructorType,
		InstructorID:    r.InstructorID,
		ScheduledDate:   r.ScheduledDate,
		Location:        r.Location,
		SkillsImproved:  r.SkillsImproved,
	}
	if r.Duration != nil {
		in.Duration = &domain.LearningDuration{Value: r.Duration.Value, Unit: domain.DurationUnit(r.Duration.Unit)}
	}
	return in
}

type MemberRequest struct {
	// UserID defaults to the calling actor.
	UserID string `json:"userId,omitempty"`
}

type CompleteWorkshopRequest struct {
	UserID   string  `json:"userId,omitempty"`
	Rating   float64 `json:"rating" minimum:"0" maximum:"5"`
	Feedback string  `json:"feedback,omitempty"`
}

// Response payloads

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

type vaultInitResponse struct {
	Vault   domain.GuildVault `json:"vault"`
	Created bool              `json:"created"`
}

type skillProgressResponse struct {
	Progress domain.GuildMemberSkillProgress `json:"progress"`
	Award    skills.Award                    `json:"award"`
	Awarded  bool                            `json:"awarded"`
}
