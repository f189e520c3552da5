// Package ledger applies vault entries and reconciles a vault against its transaction log.
package ledger

import (
	"math"
	"time"

	"guildline/internal/domain"
)

// Tolerance absorbs float drift when comparing balances.
const Tolerance = 1e-6

// Seed configures a newly created vault.
type Seed struct {
	Balance               domain.Money
	MinBalanceRequired    domain.Money
	AutoFundingEnabled    bool
	AutoFundingPercentage domain.Percentage
}

// NewVault returns a vault holding seed.Balance with zeroed sub-funds.
func NewVault(guildID string, seed Seed, now time.Time) domain.GuildVault {
	return domain.GuildVault{
		GuildID:               guildID,
		Balance:               seed.Balance,
		SeedBalance:           seed.Balance,
		TotalDeposited:        seed.Balance,
		MinBalanceRequired:    seed.MinBalanceRequired,
		AutoFundingEnabled:    seed.AutoFundingEnabled,
		AutoFundingPercentage: seed.AutoFundingPercentage,
		LastUpdated:           now,
	}
}

// Entry is one balance change before it is recorded as a transaction.
type Entry struct {
	Type     domain.TransactionType
	Amount   domain.Money
	Category string
	// Earnings is the full job amount behind a job_payment.
	Earnings domain.Money
}

func Deposit(amount domain.Money) Entry {
	return Entry{Type: domain.TxDeposit, Amount: amount}
}

func Withdrawal(amount domain.Money, category string) Entry {
	return Entry{Type: domain.TxWithdrawal, Amount: amount, Category: category}
}

func JobPayment(vaultCut, earnings domain.Money) Entry {
	return Entry{Type: domain.TxJobPayment, Amount: vaultCut, Earnings: earnings}
}

func WorkshopFunding(cost domain.Money) Entry {
	return Entry{Type: domain.TxWorkshopFunding, Amount: cost, Category: domain.CategoryWorkshop}
}

// Apply returns v with e applied. On error v is returned unchanged.
func Apply(v domain.GuildVault, e Entry, now time.Time) (domain.GuildVault, error) {
	if _, err := domain.NewMoney(e.Amount.Float()); err != nil {
		return v, err
	}
	out := v
	if e.Type.Inflow() {
		out.Balance += e.Amount
		out.TotalDeposited += e.Amount
		if e.Type == domain.TxJobPayment {
			out.TotalEarned += e.Earnings
		}
	} else {
		if v.Balance < e.Amount {
			return v, &domain.InsufficientFundsError{Available: v.Balance, Requested: e.Amount}
		}
		out.Balance -= e.Amount
		out.TotalWithdrawn += e.Amount
		switch e.Category {
		case domain.CategoryWorkshop:
			out.WorkshopFund += e.Amount
			out.TotalSpentOnDevelopment += e.Amount
		case domain.CategoryCourse:
			out.CourseFund += e.Amount
			out.TotalSpentOnDevelopment += e.Amount
		case domain.CategoryEvent:
			out.EventFund += e.Amount
		}
	}
	if out.Balance < 0 {
		return v, domain.Violation("vault.balance", "balance would become %.2f", out.Balance.Float())
	}
	out.LastUpdated = now
	return out, nil
}

// SignedAmount is the balance effect of a completed transaction; other statuses count zero.
func SignedAmount(tx domain.GuildVaultTransaction) float64 {
	if tx.Status != domain.TxCompleted {
		return 0
	}
	if tx.Type.Inflow() {
		return tx.Amount.Float()
	}
	return -tx.Amount.Float()
}

// Report is the outcome of a reconciliation.
type Report struct {
	GuildID      string       `json:"guildId"`
	SeedBalance  domain.Money `json:"seedBalance"`
	SignedSum    float64      `json:"signedSum"`
	Expected     float64      `json:"expected"`
	Balance      domain.Money `json:"balance"`
	Transactions int          `json:"transactions"`
	Balanced     bool         `json:"balanced"`
}

// Reconcile checks balance == seed + Σ signed completed entries and balance >= 0.
func Reconcile(v domain.GuildVault, txs []domain.GuildVaultTransaction) (Report, error) {
	r := Report{GuildID: v.GuildID, SeedBalance: v.SeedBalance, Balance: v.Balance, Transactions: len(txs)}
	for _, tx := range txs {
		r.SignedSum += SignedAmount(tx)
	}
	r.Expected = v.SeedBalance.Float() + r.SignedSum
	r.Balanced = math.Abs(r.Expected-v.Balance.Float()) <= Tolerance && v.Balance >= 0
	if v.Balance < 0 {
		return r, domain.Violation("vault.balance", "balance %.2f is negative", v.Balance.Float())
	}
	if !r.Balanced {
		return r, domain.Violation("vault.ledger", "balance %.2f differs from seed plus ledger %.2f", v.Balance.Float(), r.Expected)
	}
	return r, nil
}
