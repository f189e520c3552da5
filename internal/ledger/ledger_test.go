package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildline/internal/domain"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func seeded() domain.GuildVault {
	return NewVault("g1", Seed{Balance: 25000, MinBalanceRequired: 5000, AutoFundingEnabled: true, AutoFundingPercentage: 15}, now)
}

func completed(e Entry) domain.GuildVaultTransaction {
	return domain.GuildVaultTransaction{Type: e.Type, Amount: e.Amount, Category: e.Category, Status: domain.TxCompleted}
}

func TestWorkshopFundingDebitsAndAccumulates(t *testing.T) {
	v, err := Apply(seeded(), WorkshopFunding(5000), now)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(20000), v.Balance)
	assert.Equal(t, domain.Money(5000), v.WorkshopFund)
	assert.Equal(t, domain.Money(5000), v.TotalSpentOnDevelopment)
	assert.Equal(t, domain.Money(5000), v.TotalWithdrawn)

	after, err := Apply(v, WorkshopFunding(25000), now)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, v, after)
}

func TestWithdrawalCategories(t *testing.T) {
	v := seeded()
	var err error
	v, err = Apply(v, Withdrawal(100, domain.CategoryCourse), now)
	require.NoError(t, err)
	v, err = Apply(v, Withdrawal(50, domain.CategoryEvent), now)
	require.NoError(t, err)
	v, err = Apply(v, Withdrawal(25, ""), now)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(100), v.CourseFund)
	assert.Equal(t, domain.Money(50), v.EventFund)
	assert.Equal(t, domain.Money(100), v.TotalSpentOnDevelopment)
	assert.Equal(t, domain.Money(175), v.TotalWithdrawn)
	assert.Equal(t, domain.Money(0), v.EmergencyFund)
}

func TestJobPaymentCountsFullEarnings(t *testing.T) {
	v, err := Apply(seeded(), JobPayment(1000, 10000), now)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(26000), v.Balance)
	assert.Equal(t, domain.Money(10000), v.TotalEarned)
	assert.Equal(t, domain.Money(26000), v.TotalDeposited)
}

func TestApplyRejectsNegativeAmount(t *testing.T) {
	_, err := Apply(seeded(), Deposit(-5), now)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconcileAfterSequence(t *testing.T) {
	v := seeded()
	var log []domain.GuildVaultTransaction
	entries := []Entry{Deposit(300), Withdrawal(1200, domain.CategoryWorkshop), JobPayment(450.5, 4505), WorkshopFunding(999.99), Withdrawal(999999, "")}
	for _, e := range entries {
		next, err := Apply(v, e, now)
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			continue
		}
		v = next
		log = append(log, completed(e))
	}
	// a rejected entry never changes the balance
	log = append(log, domain.GuildVaultTransaction{Type: domain.TxWithdrawal, Amount: 10, Status: domain.TxRejected})
	r, err := Reconcile(v, log)
	require.NoError(t, err)
	assert.True(t, r.Balanced)
	assert.InDelta(t, 25000+300-1200+450.5-999.99, v.Balance.Float(), 1e-9)

	v.Balance += 1
	_, err = Reconcile(v, log)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}
