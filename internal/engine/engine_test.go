package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"guildline/internal/config"
	"guildline/internal/db"
	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/migrate"
	"guildline/internal/repo"
)

const guild = "guild-1"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(guild), nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: ctx}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// assignedJob creates a job and assigns n members named m1..mn.
func (env testEnv) assignedJob(t *testing.T, budget float64, n int) (domain.GuildJob, []string) {
	t.Helper()
	job, err := env.Engine.CreateJob(env.Ctx, guild, "gm", engine.JobInput{Title: "Website", TotalBudget: budget})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	members := make([]string, n)
	for i := range members {
		members[i] = fmt.Sprintf("m%d", i+1)
	}
	job, err = env.Engine.AssignMembers(env.Ctx, guild, job.ID, members, "gm")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	return job, members
}

func (env testEnv) workshop(t *testing.T, cost float64) domain.GuildWorkshop {
	t.Helper()
	w, err := env.Engine.CreateWorkshop(env.Ctx, guild, "gm", engine.WorkshopInput{
		Title:          "Go basics",
		Cost:           cost,
		SkillsImproved: []string{"go"},
	})
	if err != nil {
		t.Fatalf("create workshop: %v", err)
	}
	return w
}

func TestCreateJobAppliesDefaults(t *testing.T) {
	env := newTestEnv(t)
	job, err := env.Engine.CreateJob(env.Ctx, guild, "gm", engine.JobInput{Title: "  Logo  ", TotalBudget: 500, RequiredSkills: []string{"design", "design"}})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Title != "Logo" || job.Status != domain.JobDraft || job.MaxParticipants != 5 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.ProfitDistribution.GuildMasterShare != 20 || job.ProfitDistribution.GuildVaultShare != 10 || !job.ProfitDistribution.EqualSplit {
		t.Fatalf("unexpected distribution: %+v", job.ProfitDistribution)
	}
	if len(job.RequiredSkills) != 1 {
		t.Fatalf("skills not deduplicated: %v", job.RequiredSkills)
	}
	if !job.Deadline.Equal(env.Engine.Now().AddDate(0, 0, 30)) {
		t.Fatalf("deadline = %v", job.Deadline)
	}
	if _, err := env.Engine.CreateJob(env.Ctx, guild, "gm", engine.JobInput{Title: "x", TotalBudget: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for negative budget, got %v", err)
	}
	bad := &domain.ProfitDistribution{GuildMasterShare: 80, GuildVaultShare: 30, EqualSplit: true}
	if _, err := env.Engine.CreateJob(env.Ctx, guild, "gm", engine.JobInput{Title: "x", ProfitDistribution: bad}); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation for shares over 100, got %v", err)
	}
}

func TestAssignAndApply(t *testing.T) {
	env := newTestEnv(t)
	job, err := env.Engine.CreateJob(env.Ctx, guild, "gm", engine.JobInput{Title: "Site", MaxParticipants: 2})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := env.Engine.AssignMembers(env.Ctx, guild, job.ID, []string{"a", "b", "c"}, "gm"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	job, err = env.Engine.AssignMembers(env.Ctx, guild, job.ID, []string{"a", "b", "a"}, "gm")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(job.AssignedMembers) != 2 || job.Status != domain.JobActive {
		t.Fatalf("unexpected job after assign: %+v", job)
	}
	for i := 0; i < 2; i++ {
		job, err = env.Engine.ApplyToJob(env.Ctx, guild, job.ID, "z")
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if len(job.Applicants) != 1 {
		t.Fatalf("applicants = %v", job.Applicants)
	}
	if _, err := env.Engine.GetJob(env.Ctx, "guild-2", job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("job leaked across guilds: %v", err)
	}
}

func TestJobStatusTerminalNeedsForce(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.assignedJob(t, 100, 1)
	job, err := env.Engine.UpdateJobStatus(env.Ctx, guild, job.ID, domain.JobCancelled, "gm", false)
	if err != nil || job.Status != domain.JobCancelled {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.Engine.UpdateJobStatus(env.Ctx, guild, job.ID, domain.JobActive, "gm", false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error leaving cancelled, got %v", err)
	}
	job, err = env.Engine.UpdateJobStatus(env.Ctx, guild, job.ID, domain.JobActive, "gm", true)
	if err != nil || job.Status != domain.JobActive {
		t.Fatalf("forced: %v", err)
	}
	if _, err := env.Engine.UpdateJobStatus(env.Ctx, guild, job.ID, "bogus", "gm", true); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestCreateContractFromJob(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.assignedJob(t, 10000, 4)
	if _, err := env.Engine.CreateContract(env.Ctx, guild, job.ID, "gm", engine.ContractInput{
		Responsibilities: map[string][]string{"stranger": {"design"}},
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected responsibilities error, got %v", err)
	}
	c, err := env.Engine.CreateContract(env.Ctx, guild, job.ID, "gm", engine.ContractInput{Terms: []string{"NDA"}})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	if c.Title != "Contract: Website" || c.Status != domain.ContractDraft || c.RequiredApprovals != 3 {
		t.Fatalf("unexpected contract: %+v", c)
	}
	if len(c.Milestones) != 3 || !c.Milestones[2].DueDate.Equal(job.Deadline) {
		t.Fatalf("unexpected milestones: %+v", c.Milestones)
	}
	if got := c.Milestones[1].Description; got != "50% of work completed and reviewed" {
		t.Fatalf("mid-project milestone description = %q", got)
	}
	if len(c.MemberVotes) != 4 {
		t.Fatalf("votes = %v", c.MemberVotes)
	}
	job, err = env.Engine.GetJob(env.Ctx, guild, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.ContractID != c.ID || job.Status != domain.JobPendingApproval {
		t.Fatalf("job not linked: %+v", job)
	}
	if _, err := env.Engine.CreateContract(env.Ctx, guild, job.ID, "gm", engine.ContractInput{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected open contract error, got %v", err)
	}
}

func TestContractMilestonesMustSumToHundred(t *testing.T) {
	env := newTestEnv(t)
	job, _ := env.assignedJob(t, 1000, 2)
	_, err := env.Engine.CreateContract(env.Ctx, guild, job.ID, "gm", engine.ContractInput{
		Milestones: []engine.MilestoneInput{{Title: "a", PaymentPercentage: 50}, {Title: "b", PaymentPercentage: 40}},
	})
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	c, err := env.Engine.CreateContract(env.Ctx, guild, job.ID, "gm", engine.ContractInput{
		Milestones: []engine.MilestoneInput{{Title: "a", PaymentPercentage: 60}, {Title: "b", PaymentPercentage: 40}},
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	if len(c.Milestones) != 2 {
		t.Fatalf("milestones = %+v", c.Milestones)
	}
}

// Three of five accept votes approve the contract without waiting for the rest.
func TestVoteApprovesAtThreshold(t *testing.T) {
	env := newTestEnv(t)
	job, members := env.assignedJob(t, 10000, 5)
	c, err := env.Engine.CreateContract(env.Ctx, guild, job.ID, "gm", engine.ContractInput{})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	if c.RequiredApprovals != 3 {
		t.Fatalf("required approvals = %d", c.RequiredApprovals)
	}
	for i, m := range members[:3] {
		c, err = env.Engine.Vote(env.Ctx, guild, c.ID, m, domain.VoteAccept)
		if err != nil {
			t.Fatalf("vote %s: %v", m, err)
		}
		if i < 2 && c.Status != domain.ContractPendingVotes {
			t.Fatalf("status after %d votes = %s", i+1, c.Status)
		}
	}
	if c.Status != domain.ContractApproved || c.CurrentApprovals != 3 {
		t.Fatalf("expected approved with 3 approvals, got %s/%d", c.Status, c.CurrentApprovals)
	}
	// Repeating a recorded vote after approval changes nothing.
	again, err := env.Engine.Vote(env.Ctx, guild, c.ID, members[0], domain.VoteAccept)
	if err != nil || again.CurrentApprovals != 3 {
		t.Fatalf("repeat vote: %v %+v", err, again)
	}
	if _, err := env.Engine.Vote(env.Ctx, guild, c.ID, members[0], domain.VoteReject); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected closed voting error, got %v", err)
	}
	if _, err := env.Engine.Vote(env.Ctx, guild, c.ID, "outsider", domain.VoteAccept); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected non-member error, got %v", err)
	}
}

func TestVoteSwitchingAndRejection(t *testing.T) {
	env := newTestEnv(t)
	job, members := env.assignedJob(t, 1000, 3)
	c, err := env.Engine.CreateContract(env.Ctx, guild, job.ID, "gm", engine.ContractInput{})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	if c, err = env.Engine.Vote(env.Ctx, guild, c.ID, members[0], domain.VoteAccept); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if c, err = env.Engine.Vote(env.Ctx, guild, c.ID, members[0], domain.VoteReject); err != nil {
		t.Fatalf("switch vote: %v", err)
	}
	if c.CurrentApprovals != 0 || c.Status != domain.ContractPendingVotes {
		t.Fatalf("after switch: %s/%d", c.Status, c.CurrentApprovals)
	}
	for _, m := range members[1:] {
		if c, err = env.Engine.Vote(env.Ctx, guild, c.ID, m, domain.VoteReject); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	if c.Status != domain.ContractRejected {
		t.Fatalf("status = %s, want rejected", c.Status)
	}
	if _, err := env.Engine.ActivateContract(env.Ctx, guild, c.ID, "gm"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected activation of rejected contract to fail, got %v", err)
	}
	// A rejected contract no longer blocks a new one.
	if _, err := env.Engine.CreateContract(env.Ctx, guild, job.ID, "gm", engine.ContractInput{}); err != nil {
		t.Fatalf("recreate contract: %v", err)
	}
}

func approvedContract(t *testing.T, env testEnv, budget float64, n int) (domain.GuildContract, []string) {
	t.Helper()
	job, members := env.assignedJob(t, budget, n)
	c, err := env.Engine.CreateContract(env.Ctx, guild, job.ID, "gm", engine.ContractInput{})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	for _, m := range members {
		if c, err = env.Engine.Vote(env.Ctx, guild, c.ID, m, domain.VoteAccept); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	return c, members
}

// Four members, the default 20/10/70 split and 10000 earned.
func TestCompleteContractDistributesEarnings(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.Engine.InitVault(env.Ctx, guild, "gm"); err != nil {
		t.Fatalf("init vault: %v", err)
	}
	c, members := approvedContract(t, env, 10000, 4)
	c, err := env.Engine.ActivateContract(env.Ctx, guild, c.ID, "gm")
	if err != nil || c.Status != domain.ContractActive {
		t.Fatalf("activate: %v", err)
	}
	c, err = env.Engine.CompleteMilestone(env.Ctx, guild, c.ID, c.Milestones[0].ID, members[0])
	if err != nil || !c.Milestones[0].IsCompleted {
		t.Fatalf("milestone: %v", err)
	}
	if _, err := env.Engine.CompleteMilestone(env.Ctx, guild, c.ID, c.Milestones[0].ID, members[0]); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected repeat milestone error, got %v", err)
	}

	done, err := env.Engine.CompleteContract(env.Ctx, guild, c.ID, 10000, "gm")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	for _, m := range members {
		if !near(done.Payout.Participants[m].Float(), 1750) {
			t.Fatalf("%s got %v, want 1750", m, done.Payout.Participants[m])
		}
	}
	if !near(done.Payout.GuildMaster.Float(), 2000) || !near(done.Payout.Vault.Float(), 1000) {
		t.Fatalf("gm/vault = %v/%v", done.Payout.GuildMaster, done.Payout.Vault)
	}
	if !near(done.Vault.Balance.Float(), 26000) || !near(done.Vault.TotalEarned.Float(), 10000) {
		t.Fatalf("vault = %+v", done.Vault)
	}
	if done.Contract.Status != domain.ContractCompleted || done.Job.Status != domain.JobCompleted {
		t.Fatalf("statuses = %s/%s", done.Contract.Status, done.Job.Status)
	}
	if done.Transaction.Type != domain.TxJobPayment || done.Transaction.RelatedContractID != c.ID {
		t.Fatalf("transaction = %+v", done.Transaction)
	}
	progress, err := env.Engine.GetMemberSkillProgress(env.Ctx, guild, members[0])
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if len(progress.JobsParticipated) != 1 || progress.JobsParticipated[0] != c.JobID {
		t.Fatalf("jobs participated = %v", progress.JobsParticipated)
	}
	if _, err := env.Engine.CompleteContract(env.Ctx, guild, c.ID, 10000, "gm"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected second completion to fail, got %v", err)
	}
	if _, err := env.Engine.AuditVault(env.Ctx, guild); err != nil {
		t.Fatalf("audit: %v", err)
	}
}

func TestCompleteContractWithoutVault(t *testing.T) {
	env := newTestEnv(t)
	c, _ := approvedContract(t, env, 1000, 2)
	_, err := env.Engine.CompleteContract(env.Ctx, guild, c.ID, 1000, "gm")
	if !errors.Is(err, domain.ErrVaultNotInitialized) {
		t.Fatalf("expected vault not initialized, got %v", err)
	}
	c, err = env.Engine.GetContract(env.Ctx, guild, c.ID)
	if err != nil || c.Status != domain.ContractApproved {
		t.Fatalf("contract changed after failure: %v %s", err, c.Status)
	}
}

func TestImportSnapshotVaultSeed(t *testing.T) {
	env := newTestEnv(t)
	decode := func(balance float64) engine.Snapshot {
		t.Helper()
		doc := fmt.Sprintf(`{
  "guildVault": {"balance": %v, "lastUpdated": "2023-05-02T10:00:00.000Z"},
  "vaultTransactions": [
    {"id": "transaction_1", "type": "deposit", "amount": 300, "status": "completed", "timestamp": "2023-05-02T10:00:00.000Z"},
    {"id": "transaction_2", "type": "withdrawal", "amount": 100, "status": "completed", "timestamp": "2023-05-02T11:00:00.000Z"}
  ]
}`, balance)
		snap, err := engine.DecodeSnapshot(bytes.NewBufferString(doc))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return snap
	}

	// Balance equals the ledger total: the vault had no seed.
	if err := env.Engine.ImportSnapshot(env.Ctx, "guild-2", decode(200), "gm"); err != nil {
		t.Fatalf("import: %v", err)
	}
	report, err := env.Engine.AuditVault(env.Ctx, "guild-2")
	if err != nil || !report.Balanced || report.SeedBalance != 0 {
		t.Fatalf("audit: %v %+v", err, report)
	}

	err = env.Engine.ImportSnapshot(env.Ctx, "guild-3", decode(150), "gm")
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation for balance below ledger total, got %v", err)
	}
	if _, err := env.Engine.GetVault(env.Ctx, "guild-3"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rejected import left a vault behind: %v", err)
	}
}

func TestPreviewDistribution(t *testing.T) {
	env := newTestEnv(t)
	c, members := approvedContract(t, env, 800, 2)
	p, err := env.Engine.PreviewDistribution(env.Ctx, guild, c.ID, nil)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !near(p.Participants[members[0]].Float(), 280) || !near(p.GuildMaster.Float(), 160) {
		t.Fatalf("preview = %+v", p)
	}
}

// A vault seeded at 25000 funds a 5000 workshop and then refuses a 25000 one.
func TestFundWorkshop(t *testing.T) {
	env := newTestEnv(t)
	w := env.workshop(t, 5000)
	res, err := env.Engine.FundWorkshop(env.Ctx, guild, w.ID, "gm")
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if !near(res.Vault.Balance.Float(), 20000) || !near(res.Vault.WorkshopFund.Float(), 5000) || !near(res.Vault.TotalSpentOnDevelopment.Float(), 5000) {
		t.Fatalf("vault = %+v", res.Vault)
	}
	if res.Workshop.FundingStatus != domain.FundingFunded || res.Transaction.Type != domain.TxWorkshopFunding {
		t.Fatalf("result = %+v", res)
	}
	if _, err := env.Engine.FundWorkshop(env.Ctx, guild, w.ID, "gm"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected double funding to fail, got %v", err)
	}

	big := env.workshop(t, 25000)
	_, err = env.Engine.FundWorkshop(env.Ctx, guild, big.ID, "gm")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	vault, err := env.Engine.GetVault(env.Ctx, guild)
	if err != nil || !near(vault.Balance.Float(), 20000) {
		t.Fatalf("balance changed after failure: %v %v", err, vault.Balance)
	}
	big, err = env.Engine.GetWorkshop(env.Ctx, guild, big.ID)
	if err != nil || big.FundingStatus != domain.FundingPending {
		t.Fatalf("workshop changed after failure: %v %s", err, big.FundingStatus)
	}
	txs, err := env.Engine.ListVaultTransactions(env.Ctx, guild, 0)
	if err != nil || len(txs) != 1 {
		t.Fatalf("transactions = %d (%v)", len(txs), err)
	}
}

func TestDepositAndWithdraw(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Deposit(env.Ctx, guild, 1000, "dues", "m1")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !near(res.Vault.Balance.Float(), 26000) || !near(res.Vault.TotalDeposited.Float(), 26000) {
		t.Fatalf("vault = %+v", res.Vault)
	}
	res, err = env.Engine.Withdraw(env.Ctx, guild, 300, "meetup", "gm", domain.CategoryEvent)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !near(res.Vault.Balance.Float(), 25700) || !near(res.Vault.EventFund.Float(), 300) {
		t.Fatalf("vault = %+v", res.Vault)
	}
	if _, err := env.Engine.Withdraw(env.Ctx, guild, 1e6, "", "gm", ""); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := env.Engine.Deposit(env.Ctx, guild, 0, "", "gm"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero deposit, got %v", err)
	}
	report, err := env.Engine.AuditVault(env.Ctx, guild)
	if err != nil || !report.Balanced || report.Transactions != 2 {
		t.Fatalf("audit: %v %+v", err, report)
	}
}

func TestConcurrentDepositsReconcile(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.Engine.InitVault(env.Ctx, guild, "gm"); err != nil {
		t.Fatalf("init vault: %v", err)
	}
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := env.Engine.Deposit(env.Ctx, guild, 10, fmt.Sprintf("dep %d", i), "m1"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("deposit: %v", err)
	}
	vault, err := env.Engine.GetVault(env.Ctx, guild)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if !near(vault.Balance.Float(), 25000+10*n) {
		t.Fatalf("balance = %v", vault.Balance)
	}
	if _, err := env.Engine.AuditVault(env.Ctx, guild); err != nil {
		t.Fatalf("audit: %v", err)
	}
}

func TestWorkshopCompletionAwardsOnce(t *testing.T) {
	env := newTestEnv(t)
	w := env.workshop(t, 0)
	if w.TargetLevel != domain.TargetBeginner || w.Duration.Hours() != 2 || w.MaxParticipants != 10 {
		t.Fatalf("defaults not applied: %+v", w)
	}
	if _, err := env.Engine.RegisterMember(env.Ctx, guild, w.ID, "m1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	out, err := env.Engine.CompleteForMember(env.Ctx, guild, w.ID, "m1", 4, "good")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !out.Awarded || out.Award.PointsPerSkill != 50 || out.Progress.Skills["go"].Points != 50 {
		t.Fatalf("award = %+v progress = %+v", out.Award, out.Progress)
	}
	if out.Workshop.AverageRating == nil || *out.Workshop.AverageRating != 4 {
		t.Fatalf("average = %v", out.Workshop.AverageRating)
	}
	out, err = env.Engine.CompleteForMember(env.Ctx, guild, w.ID, "m2", 2, "ok")
	if err != nil || *out.Workshop.AverageRating != 3 {
		t.Fatalf("second member: %v %v", err, out.Workshop.AverageRating)
	}
	out, err = env.Engine.CompleteForMember(env.Ctx, guild, w.ID, "m1", 5, "great")
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if out.Awarded || out.Progress.Skills["go"].Points != 50 {
		t.Fatalf("repeat awarded points: %+v", out)
	}
	if *out.Workshop.AverageRating != 3.5 || out.Workshop.Feedback["m1"] != "great" || len(out.Workshop.CompletedMembers) != 2 {
		t.Fatalf("workshop = %+v", out.Workshop)
	}
	if _, err := env.Engine.CompleteForMember(env.Ctx, guild, w.ID, "m3", 6, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected rating error, got %v", err)
	}
	_, _, awarded, err := env.Engine.UpdateSkillProgress(env.Ctx, guild, "m1", w.ID)
	if err != nil || awarded {
		t.Fatalf("update progress: %v awarded=%v", err, awarded)
	}
}

func TestCloseWorkshopRequiresFunding(t *testing.T) {
	env := newTestEnv(t)
	w := env.workshop(t, 100)
	if _, err := env.Engine.CloseWorkshop(env.Ctx, guild, w.ID, "gm"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected close of unfunded workshop to fail, got %v", err)
	}
	if _, err := env.Engine.FundWorkshop(env.Ctx, guild, w.ID, "gm"); err != nil {
		t.Fatalf("fund: %v", err)
	}
	w, err := env.Engine.CloseWorkshop(env.Ctx, guild, w.ID, "gm")
	if err != nil || w.FundingStatus != domain.FundingCompleted || !w.CertificatesIssued {
		t.Fatalf("close: %v %+v", err, w)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Deposit(env.Ctx, guild, 500, "dues", "m1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	env.assignedJob(t, 1000, 2)
	w := env.workshop(t, 0)
	if _, err := env.Engine.CompleteForMember(env.Ctx, guild, w.ID, "m1", 5, ""); err != nil {
		t.Fatalf("complete workshop: %v", err)
	}
	snap, err := env.Engine.ExportSnapshot(env.Ctx, guild)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(snap); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := engine.DecodeSnapshot(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := env.Engine.ImportSnapshot(env.Ctx, "guild-2", decoded, "gm"); err != nil {
		t.Fatalf("import: %v", err)
	}
	vault, err := env.Engine.GetVault(env.Ctx, "guild-2")
	if err != nil || !near(vault.Balance.Float(), 25500) {
		t.Fatalf("imported vault: %v %v", err, vault.Balance)
	}
	jobs, err := env.Engine.ListJobs(env.Ctx, "guild-2", "")
	if err != nil || len(jobs) != 1 || jobs[0].GuildID != "guild-2" {
		t.Fatalf("imported jobs: %v %+v", err, jobs)
	}
	progress, err := env.Engine.GetMemberSkillProgress(env.Ctx, "guild-2", "m1")
	if err != nil || progress.Skills["go"].Points != 50 {
		t.Fatalf("imported progress: %v %+v", err, progress)
	}
	if _, err := env.Engine.AuditVault(env.Ctx, "guild-2"); err != nil {
		t.Fatalf("audit imported guild: %v", err)
	}
}

func TestImportLegacySnapshot(t *testing.T) {
	env := newTestEnv(t)
	doc := `{
  "guildWorkshops": [{"id": "workshop_1", "title": "Intro", "duration": "1 day", "targetLevel": "advanced",
    "fundingStatus": "pending", "createdAt": "2023-05-01T10:00:00.000Z", "skillsImproved": ["sql"]}],
  "guildVault": {"balance": 1200, "lastUpdated": "2023-05-02T10:00:00.000Z"},
  "vaultTransactions": [{"id": "transaction_1", "type": "deposit", "amount": 200, "status": "completed",
    "timestamp": "2023-05-02T10:00:00.000Z"}]
}`
	snap, err := engine.DecodeSnapshot(bytes.NewBufferString(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := env.Engine.ImportSnapshot(env.Ctx, guild, snap, "gm"); err != nil {
		t.Fatalf("import: %v", err)
	}
	w, err := env.Engine.GetWorkshop(env.Ctx, guild, "workshop_1")
	if err != nil {
		t.Fatalf("get workshop: %v", err)
	}
	if w.Duration.Unit != domain.UnitDays || w.Duration.Hours() != 8 {
		t.Fatalf("duration = %+v", w.Duration)
	}
	report, err := env.Engine.AuditVault(env.Ctx, guild)
	if err != nil || !near(report.SeedBalance.Float(), 1000) {
		t.Fatalf("audit: %v %+v", err, report)
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	c, _ := approvedContract(t, env, 100, 1)
	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{GuildID: guild})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) == 0 || evts[0].Type != "contract.vote" || evts[0].EntityID != c.ID {
		t.Fatalf("latest event = %+v", evts)
	}
}
