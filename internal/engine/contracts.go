package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"guildline/internal/config"
	"guildline/internal/distribution"
	"guildline/internal/domain"
	"guildline/internal/events"
	"guildline/internal/ledger"
	"guildline/internal/repo"
	"guildline/internal/skills"
)

type MilestoneInput struct {
	Title             string
	Description       string
	DueDate           *time.Time
	PaymentPercentage float64
}

type ContractInput struct {
	Terms            []string
	Responsibilities map[string][]string
	// Milestones replace the configured defaults when non-empty.
	Milestones []MilestoneInput
}

// CreateContract drafts the contract for a job with assigned members.
func (e Engine) CreateContract(ctx context.Context, guildID, jobID, creatorID string, in ContractInput) (domain.GuildContract, error) {
	var contract domain.GuildContract
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		cfg, err := e.guildConfig(ctx, tx, guildID)
		if err != nil {
			return err
		}
		job, err := e.Repo.GetJob(ctx, tx, guildID, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return domain.Invalid("status", "job %s is %s", job.ID, job.Status)
		}
		if len(job.AssignedMembers) == 0 {
			return domain.Invalid("assignedMembers", "job %s has no assigned members", job.ID)
		}
		if open, err := e.openContract(ctx, tx, job); err != nil {
			return err
		} else if open != nil {
			return domain.Invalid("contractId", "job %s already has open contract %s", job.ID, open.ID)
		}
		responsibilities := map[string][]string{}
		for user, items := range in.Responsibilities {
			if !slices.Contains(job.AssignedMembers, user) {
				return domain.Invalid("responsibilities", "%s is not assigned to job %s", user, job.ID)
			}
			responsibilities[user] = append([]string(nil), items...)
		}
		now := e.now()
		milestones, err := buildMilestones(cfg, job, in.Milestones, now)
		if err != nil {
			return err
		}
		votes := make(map[string]domain.Vote, len(job.AssignedMembers))
		for _, m := range job.AssignedMembers {
			votes[m] = domain.VotePending
		}
		terms := append([]string{}, in.Terms...)
		contract = domain.GuildContract{
			ID:                 domain.NewID(domain.PrefixContract),
			GuildID:            guildID,
			JobID:              job.ID,
			Title:              "Contract: " + job.Title,
			Description:        fmt.Sprintf("Guild contract for %s - Total Budget: %s %s", job.Title, formatAmount(job.TotalBudget), cfg.Guild.Currency),
			TotalAmount:        job.TotalBudget,
			ProfitDistribution: job.ProfitDistribution.Clone(),
			Terms:              terms,
			Responsibilities:   responsibilities,
			Milestones:         milestones,
			Status:             domain.ContractDraft,
			CreatedBy:          creatorID,
			CreatedAt:          now,
			VotingDeadline:     now.AddDate(0, 0, cfg.Contracts.VotingDays),
			MemberVotes:        votes,
			RequiredApprovals:  requiredApprovals(cfg.Contracts.ApprovalRatio, len(job.AssignedMembers)),
		}
		if err := e.Repo.InsertContract(ctx, tx, contract); err != nil {
			return fmt.Errorf("insert contract: %w", err)
		}
		job.ContractID = contract.ID
		job.Status = domain.JobPendingApproval
		if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
			return err
		}
		return e.emit(ctx, tx, "contract.create", guildID, "contract", contract.ID, creatorID, events.EventPayload{
			"jobId":             job.ID,
			"requiredApprovals": contract.RequiredApprovals,
			"members":           len(votes),
		})
	})
	if err != nil {
		return domain.GuildContract{}, err
	}
	e.log().Info("contract created", zap.String("guild_id", guildID), zap.String("contract_id", contract.ID), zap.String("job_id", jobID), zap.Int("required_approvals", contract.RequiredApprovals))
	return contract, nil
}

func requiredApprovals(ratio float64, members int) int {
	n := int(math.Ceil(ratio*float64(members) - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

func buildMilestones(cfg *config.Config, job domain.GuildJob, custom []MilestoneInput, now time.Time) ([]domain.GuildContractMilestone, error) {
	var out []domain.GuildContractMilestone
	var sum float64
	if len(custom) == 0 {
		for _, t := range cfg.Contracts.Milestones {
			due := now.AddDate(0, 0, t.DueDays)
			if t.AtDeadline {
				due = job.Deadline
			}
			out = append(out, domain.GuildContractMilestone{
				ID:                domain.NewID(domain.PrefixMilestone),
				Title:             t.Title,
				Description:       t.Description,
				DueDate:           due,
				PaymentPercentage: domain.Percentage(t.Percentage),
			})
			sum += t.Percentage
		}
	} else {
		for i, m := range custom {
			if m.Title == "" {
				return nil, domain.Invalid(fmt.Sprintf("milestones[%d].title", i), "is required")
			}
			pct, err := domain.NewPercentage(m.PaymentPercentage)
			if err != nil {
				return nil, domain.Invalid(fmt.Sprintf("milestones[%d].paymentPercentage", i), "must be within [0,100]")
			}
			due := job.Deadline
			if m.DueDate != nil {
				due = m.DueDate.UTC()
			}
			out = append(out, domain.GuildContractMilestone{
				ID:                domain.NewID(domain.PrefixMilestone),
				Title:             m.Title,
				Description:       m.Description,
				DueDate:           due,
				PaymentPercentage: pct,
			})
			sum += pct.Float()
		}
	}
	if !domain.SumsTo(sum, 100) {
		return nil, domain.Violation("milestones.total", "milestone percentages sum to %v, want 100", sum)
	}
	return out, nil
}

// openContract returns the job's contract while it still blocks a new one.
func (e Engine) openContract(ctx context.Context, q repo.Querier, job domain.GuildJob) (*domain.GuildContract, error) {
	if job.ContractID == "" {
		return nil, nil
	}
	c, err := e.Repo.GetContract(ctx, q, job.GuildID, job.ContractID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !c.Status.Open() {
		return nil, nil
	}
	return &c, nil
}

// Vote records a member's choice and resolves the contract. Votes change freely while
// the contract is draft or pending_votes. Once it is resolved, repeating the recorded
// vote is a no-op and changing a cast vote is rejected. Members who had not voted yet
// may still vote on an approved or active contract without changing its status.
func (e Engine) Vote(ctx context.Context, guildID, contractID, userID string, vote domain.Vote) (domain.GuildContract, error) {
	if vote != domain.VoteAccept && vote != domain.VoteReject {
		return domain.GuildContract{}, domain.Invalid("vote", "must be accept or reject, got %q", vote)
	}
	var contract domain.GuildContract
	var changed bool
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		var err error
		contract, err = e.Repo.GetContract(ctx, tx, guildID, contractID)
		if err != nil {
			return err
		}
		prev, ok := contract.MemberVotes[userID]
		if !ok {
			return domain.Invalid("userId", "%s is not a member of contract %s", userID, contract.ID)
		}
		if prev == vote {
			return nil
		}
		from := contract.Status
		late := !contract.Status.VotingOpen()
		if late && !(prev == domain.VotePending && lateVoteAllowed(contract.Status)) {
			return domain.Invalid("vote", "voting on contract %s is closed (%s)", contract.ID, contract.Status)
		}
		contract.MemberVotes[userID] = vote
		approvals, status := tallyVotes(contract.MemberVotes, contract.RequiredApprovals)
		contract.CurrentApprovals = approvals
		if !late {
			contract.Status = status
		}
		changed = true
		if err := e.Repo.UpdateContract(ctx, tx, contract); err != nil {
			return err
		}
		return e.emit(ctx, tx, "contract.vote", guildID, "contract", contract.ID, userID, events.EventPayload{
			"vote":      vote,
			"previous":  prev,
			"approvals": contract.CurrentApprovals,
			"from":      from,
			"to":        contract.Status,
		})
	})
	if err != nil {
		return domain.GuildContract{}, err
	}
	if changed {
		e.log().Info("contract vote recorded", zap.String("guild_id", guildID), zap.String("contract_id", contract.ID),
			zap.String("user_id", userID), zap.String("vote", string(vote)), zap.String("status", string(contract.Status)))
	}
	return contract, nil
}

func lateVoteAllowed(s domain.ContractStatus) bool {
	return s == domain.ContractApproved || s == domain.ContractActive
}

// tallyVotes counts accept votes and derives the resulting voting status.
func tallyVotes(votes map[string]domain.Vote, required int) (int, domain.ContractStatus) {
	var approvals int
	pending := false
	for _, v := range votes {
		switch v {
		case domain.VoteAccept:
			approvals++
		case domain.VotePending:
			pending = true
		}
	}
	switch {
	case approvals >= required:
		return approvals, domain.ContractApproved
	case !pending:
		return approvals, domain.ContractRejected
	}
	return approvals, domain.ContractPendingVotes
}

// ActivateContract starts work on an approved contract.
func (e Engine) ActivateContract(ctx context.Context, guildID, contractID, actorID string) (domain.GuildContract, error) {
	var contract domain.GuildContract
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		var err error
		contract, err = e.Repo.GetContract(ctx, tx, guildID, contractID)
		if err != nil {
			return err
		}
		if contract.Status != domain.ContractApproved {
			return domain.Invalid("status", "contract %s is %s, want approved", contract.ID, contract.Status)
		}
		now := e.now()
		contract.Status = domain.ContractActive
		contract.StartDate = ptrTime(now)
		if err := e.Repo.UpdateContract(ctx, tx, contract); err != nil {
			return err
		}
		job, err := e.Repo.GetJob(ctx, tx, guildID, contract.JobID)
		if err != nil {
			return err
		}
		job.Status = domain.JobInProgress
		if job.StartDate == nil {
			job.StartDate = ptrTime(now)
		}
		if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
			return err
		}
		return e.emit(ctx, tx, "contract.activate", guildID, "contract", contract.ID, actorID, events.EventPayload{"jobId": job.ID})
	})
	if err != nil {
		return domain.GuildContract{}, err
	}
	e.log().Info("contract activated", zap.String("guild_id", guildID), zap.String("contract_id", contract.ID))
	return contract, nil
}

// CompleteMilestone marks one milestone of an approved or active contract as done.
func (e Engine) CompleteMilestone(ctx context.Context, guildID, contractID, milestoneID, userID string) (domain.GuildContract, error) {
	var contract domain.GuildContract
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		var err error
		contract, err = e.Repo.GetContract(ctx, tx, guildID, contractID)
		if err != nil {
			return err
		}
		if contract.Status != domain.ContractApproved && contract.Status != domain.ContractActive {
			return domain.Invalid("status", "contract %s is %s", contract.ID, contract.Status)
		}
		idx := -1
		for i, m := range contract.Milestones {
			if m.ID == milestoneID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.NotFound("milestone", milestoneID)
		}
		m := &contract.Milestones[idx]
		if m.IsCompleted {
			return domain.Invalid("milestoneId", "milestone %s is already completed", m.ID)
		}
		m.IsCompleted = true
		m.CompletedAt = ptrTime(e.now())
		m.CompletedBy = userID
		if err := e.Repo.UpdateContract(ctx, tx, contract); err != nil {
			return err
		}
		return e.emit(ctx, tx, "contract.milestone", guildID, "contract", contract.ID, userID, events.EventPayload{
			"milestoneId": m.ID,
			"percentage":  m.PaymentPercentage,
		})
	})
	if err != nil {
		return domain.GuildContract{}, err
	}
	return contract, nil
}

// Completion is everything CompleteContract changed.
type Completion struct {
	Contract    domain.GuildContract         `json:"contract"`
	Job         domain.GuildJob              `json:"job"`
	Payout      distribution.Payout          `json:"payout"`
	Vault       domain.GuildVault            `json:"vault"`
	Transaction domain.GuildVaultTransaction `json:"transaction"`
}

// CompleteContract distributes actualEarnings among the accepting members, pays the
// Guild Master share and credits the vault share, all in one transaction.
func (e Engine) CompleteContract(ctx context.Context, guildID, contractID string, actualEarnings float64, actorID string) (Completion, error) {
	earnings, err := domain.NewMoney(actualEarnings)
	if err != nil {
		return Completion{}, err
	}
	var out Completion
	err = e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		contract, err := e.Repo.GetContract(ctx, tx, guildID, contractID)
		if err != nil {
			return err
		}
		if contract.Status != domain.ContractApproved && contract.Status != domain.ContractActive {
			return domain.Invalid("status", "contract %s is %s, want approved or active", contract.ID, contract.Status)
		}
		vault, err := e.Repo.GetVault(ctx, tx, guildID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("complete contract %s: %w", contract.ID, domain.ErrVaultNotInitialized)
		}
		if err != nil {
			return err
		}
		job, err := e.Repo.GetJob(ctx, tx, guildID, contract.JobID)
		if err != nil {
			return err
		}
		participants := contract.Acceptors()
		progress := make(map[string]domain.GuildMemberSkillProgress, len(participants))
		var scores map[string]float64
		for _, u := range participants {
			p, err := e.Repo.GetSkillProgress(ctx, tx, guildID, u)
			if errors.Is(err, domain.ErrNotFound) {
				p = skills.NewProgress(guildID, u, e.now())
			} else if err != nil {
				return err
			}
			progress[u] = p
		}
		if contract.ProfitDistribution.SkillLevelMultiplier {
			scores = make(map[string]float64, len(participants))
			for _, u := range participants {
				scores[u] = skills.Score(progress[u], job.RequiredSkills)
			}
		}
		payout, err := distribution.Compute(contract.ProfitDistribution, earnings, participants, scores)
		if err != nil {
			return err
		}

		now := e.now()
		credited, err := ledger.Apply(vault, ledger.JobPayment(payout.Vault, earnings), now)
		if err != nil {
			return err
		}
		vault, err = e.Repo.UpdateVault(ctx, tx, credited)
		if err != nil {
			return err
		}
		entry := domain.GuildVaultTransaction{
			ID:                domain.NewID(domain.PrefixTransaction),
			GuildID:           guildID,
			Type:              domain.TxJobPayment,
			Amount:            payout.Vault,
			Description:       "Vault share from " + contract.Title,
			InitiatedBy:       actorID,
			RelatedJobID:      job.ID,
			RelatedContractID: contract.ID,
			Timestamp:         now,
			Status:            domain.TxCompleted,
		}
		if err := e.Repo.InsertVaultTransaction(ctx, tx, entry); err != nil {
			return err
		}

		contract.Status = domain.ContractCompleted
		contract.CompletedAt = ptrTime(now)
		contract.ActualEarnings = ptrMoney(earnings)
		contract.DistributedAmounts = payout.Participants
		contract.GuildMasterAmount = ptrMoney(payout.GuildMaster)
		contract.GuildVaultAmount = ptrMoney(payout.Vault)
		if err := e.Repo.UpdateContract(ctx, tx, contract); err != nil {
			return err
		}
		job.Status = domain.JobCompleted
		job.CompletedAt = ptrTime(now)
		if err := e.Repo.UpdateJob(ctx, tx, job); err != nil {
			return err
		}
		for _, u := range participants {
			if err := e.Repo.UpsertSkillProgress(ctx, tx, skills.RecordJob(progress[u], job.ID, now)); err != nil {
				return err
			}
		}
		if err := e.emit(ctx, tx, "contract.complete", guildID, "contract", contract.ID, actorID, events.EventPayload{
			"earnings":     earnings,
			"mode":         payout.Mode,
			"participants": payout.Participants,
			"guildMaster":  payout.GuildMaster,
			"vault":        payout.Vault,
		}); err != nil {
			return err
		}
		out = Completion{Contract: contract, Job: job, Payout: payout, Vault: vault, Transaction: entry}
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	e.log().Info("contract completed", zap.String("guild_id", guildID), zap.String("contract_id", contractID),
		zap.Float64("earnings", earnings.Float()), zap.Float64("vault_share", out.Payout.Vault.Float()), zap.Int("participants", len(out.Payout.Participants)))
	return out, nil
}

// PreviewDistribution runs the contract's policy on its budgeted amount over all
// assigned members without changing anything.
func (e Engine) PreviewDistribution(ctx context.Context, guildID, contractID string, skillLevels map[string]float64) (distribution.Payout, error) {
	contract, err := e.Repo.GetContract(ctx, nil, guildID, contractID)
	if err != nil {
		return distribution.Payout{}, err
	}
	members := make([]string, 0, len(contract.MemberVotes))
	for u := range contract.MemberVotes {
		members = append(members, u)
	}
	return distribution.Compute(contract.ProfitDistribution, contract.TotalAmount, domain.SortedCopy(members), skillLevels)
}

func (e Engine) GetContract(ctx context.Context, guildID, contractID string) (domain.GuildContract, error) {
	return e.Repo.GetContract(ctx, nil, guildID, contractID)
}

func (e Engine) ListContracts(ctx context.Context, guildID string, status domain.ContractStatus) ([]domain.GuildContract, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Invalid("status", "unknown contract status %q", status)
	}
	return e.Repo.ListContracts(ctx, nil, guildID, status)
}

func formatAmount(m domain.Money) string {
	return strconv.FormatFloat(m.Float(), 'f', -1, 64)
}
