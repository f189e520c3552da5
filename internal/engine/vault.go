package engine

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"guildline/internal/domain"
	"guildline/internal/events"
	"guildline/internal/ledger"
	"guildline/internal/repo"
)

// VaultResult is the vault after a ledger entry together with the recorded entry.
type VaultResult struct {
	Vault       domain.GuildVault            `json:"vault"`
	Transaction domain.GuildVaultTransaction `json:"transaction"`
}

// InitVault creates the guild vault from the configured seed. It reports false when
// the vault already existed.
func (e Engine) InitVault(ctx context.Context, guildID, actorID string) (domain.GuildVault, bool, error) {
	var vault domain.GuildVault
	var created bool
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		var err error
		vault, created, err = e.ensureVault(ctx, tx, guildID, actorID)
		return err
	})
	return vault, created, err
}

func (e Engine) ensureVault(ctx context.Context, q repo.Querier, guildID, actorID string) (domain.GuildVault, bool, error) {
	vault, err := e.Repo.GetVault(ctx, q, guildID)
	if err == nil {
		return vault, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return vault, false, err
	}
	cfg, err := e.guildConfig(ctx, q, guildID)
	if err != nil {
		return vault, false, err
	}
	vault = ledger.NewVault(guildID, ledger.Seed{
		Balance:               domain.Money(cfg.Vault.SeedBalance),
		MinBalanceRequired:    domain.Money(cfg.Vault.MinBalance),
		AutoFundingEnabled:    cfg.Vault.AutoFunding,
		AutoFundingPercentage: domain.Percentage(cfg.Vault.AutoFundingPercentage),
	}, e.now())
	vault, err = e.Repo.InsertVault(ctx, q, vault)
	if err != nil {
		return vault, false, err
	}
	if err := e.emit(ctx, q, "vault.init", guildID, "vault", guildID, actorID, events.EventPayload{"seedBalance": vault.SeedBalance}); err != nil {
		return vault, false, err
	}
	e.log().Info("vault initialized", zap.String("guild_id", guildID), zap.Float64("seed_balance", vault.SeedBalance.Float()))
	return vault, true, nil
}

func (e Engine) Deposit(ctx context.Context, guildID string, amount float64, description, initiator string) (VaultResult, error) {
	m, err := domain.NewPositiveMoney(amount)
	if err != nil {
		return VaultResult{}, err
	}
	return e.record(ctx, guildID, ledger.Deposit(m), domain.GuildVaultTransaction{
		Type:        domain.TxDeposit,
		Amount:      m,
		Description: description,
		InitiatedBy: initiator,
	})
}

// Withdraw debits the vault. Categories workshop, course and event also feed the
// matching sub-fund.
func (e Engine) Withdraw(ctx context.Context, guildID string, amount float64, description, initiator, category string) (VaultResult, error) {
	m, err := domain.NewPositiveMoney(amount)
	if err != nil {
		return VaultResult{}, err
	}
	return e.record(ctx, guildID, ledger.Withdrawal(m, category), domain.GuildVaultTransaction{
		Type:        domain.TxWithdrawal,
		Amount:      m,
		Description: description,
		InitiatedBy: initiator,
		Category:    category,
	})
}

// record applies entry to the guild vault and appends tx in the same transaction.
func (e Engine) record(ctx context.Context, guildID string, entry ledger.Entry, tx domain.GuildVaultTransaction) (VaultResult, error) {
	var res VaultResult
	err := e.inGuildTx(ctx, guildID, func(sqlTx *sql.Tx) error {
		vault, _, err := e.ensureVault(ctx, sqlTx, guildID, tx.InitiatedBy)
		if err != nil {
			return err
		}
		res, err = e.applyEntry(ctx, sqlTx, vault, entry, tx)
		return err
	})
	if err != nil {
		e.logLedgerFailure(guildID, entry, err)
		return VaultResult{}, err
	}
	e.log().Info("vault updated", zap.String("guild_id", guildID), zap.String("type", string(entry.Type)),
		zap.Float64("amount", entry.Amount.Float()), zap.Float64("balance", res.Vault.Balance.Float()))
	return res, nil
}

func (e Engine) applyEntry(ctx context.Context, q repo.Querier, vault domain.GuildVault, entry ledger.Entry, tx domain.GuildVaultTransaction) (VaultResult, error) {
	now := e.now()
	next, err := ledger.Apply(vault, entry, now)
	if err != nil {
		return VaultResult{}, err
	}
	next, err = e.Repo.UpdateVault(ctx, q, next)
	if err != nil {
		return VaultResult{}, err
	}
	tx.ID = domain.NewID(domain.PrefixTransaction)
	tx.GuildID = vault.GuildID
	tx.Timestamp = now
	tx.Status = domain.TxCompleted
	if err := e.Repo.InsertVaultTransaction(ctx, q, tx); err != nil {
		return VaultResult{}, err
	}
	if err := e.emit(ctx, q, "vault."+string(tx.Type), vault.GuildID, "vault_transaction", tx.ID, tx.InitiatedBy, events.EventPayload{
		"amount":   tx.Amount,
		"category": tx.Category,
		"balance":  next.Balance,
	}); err != nil {
		return VaultResult{}, err
	}
	return VaultResult{Vault: next, Transaction: tx}, nil
}

func (e Engine) logLedgerFailure(guildID string, entry ledger.Entry, err error) {
	var funds *domain.InsufficientFundsError
	if errors.As(err, &funds) {
		e.log().Warn("insufficient vault funds", zap.String("guild_id", guildID), zap.String("type", string(entry.Type)),
			zap.Float64("requested", funds.Requested.Float()), zap.Float64("available", funds.Available.Float()))
	}
}

// FundingResult is the outcome of funding a workshop from the vault.
type FundingResult struct {
	Vault       domain.GuildVault            `json:"vault"`
	Transaction domain.GuildVaultTransaction `json:"transaction"`
	Workshop    domain.GuildWorkshop         `json:"workshop"`
}

// FundWorkshop pays a pending or approved workshop's cost from the vault and marks it
// funded. On any failure neither the vault nor the workshop changes.
func (e Engine) FundWorkshop(ctx context.Context, guildID, workshopID, initiator string) (FundingResult, error) {
	var out FundingResult
	var entry ledger.Entry
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		w, err := e.Repo.GetWorkshop(ctx, tx, guildID, workshopID)
		if err != nil {
			return err
		}
		if w.FundingStatus != domain.FundingPending && w.FundingStatus != domain.FundingApproved {
			return domain.Invalid("fundingStatus", "workshop %s is already %s", w.ID, w.FundingStatus)
		}
		vault, _, err := e.ensureVault(ctx, tx, guildID, initiator)
		if err != nil {
			return err
		}
		entry = ledger.WorkshopFunding(w.Cost)
		res, err := e.applyEntry(ctx, tx, vault, entry, domain.GuildVaultTransaction{
			Type:        domain.TxWorkshopFunding,
			Amount:      w.Cost,
			Description: "Workshop funding: " + w.Title,
			InitiatedBy: initiator,
			Category:    domain.CategoryWorkshop,
		})
		if err != nil {
			return err
		}
		w.FundingStatus = domain.FundingFunded
		if err := e.Repo.UpdateWorkshop(ctx, tx, w); err != nil {
			return err
		}
		out = FundingResult{Vault: res.Vault, Transaction: res.Transaction, Workshop: w}
		return nil
	})
	if err != nil {
		e.logLedgerFailure(guildID, entry, err)
		return FundingResult{}, err
	}
	e.log().Info("workshop funded", zap.String("guild_id", guildID), zap.String("workshop_id", workshopID),
		zap.Float64("cost", out.Workshop.Cost.Float()), zap.Float64("balance", out.Vault.Balance.Float()))
	return out, nil
}

func (e Engine) GetVault(ctx context.Context, guildID string) (domain.GuildVault, error) {
	return e.Repo.GetVault(ctx, nil, guildID)
}

func (e Engine) ListVaultTransactions(ctx context.Context, guildID string, limit int) ([]domain.GuildVaultTransaction, error) {
	return e.Repo.ListVaultTransactions(ctx, nil, guildID, limit)
}

// AuditVault reconciles the vault balance against its seed and full ledger.
func (e Engine) AuditVault(ctx context.Context, guildID string) (ledger.Report, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Report{}, err
	}
	defer tx.Rollback()
	vault, err := e.Repo.GetVault(ctx, tx, guildID)
	if err != nil {
		return ledger.Report{}, err
	}
	txs, err := e.Repo.ListVaultTransactions(ctx, tx, guildID, 0)
	if err != nil {
		return ledger.Report{}, err
	}
	report, err := ledger.Reconcile(vault, txs)
	if err != nil {
		e.log().Error("vault audit failed", zap.String("guild_id", guildID), zap.Error(err))
	}
	return report, err
}
