package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"guildline/internal/domain"
	"guildline/internal/events"
	"guildline/internal/ledger"
)

// Snapshot is a whole-guild export keyed the way guild data was namespaced before
// the relational store.
type Snapshot struct {
	GuildID             string                                     `json:"guildId,omitempty"`
	ExportedAt          time.Time                                  `json:"exportedAt"`
	GuildJobs           []domain.GuildJob                          `json:"guildJobs"`
	GuildContracts      []domain.GuildContract                     `json:"guildContracts"`
	GuildVault          *domain.GuildVault                         `json:"guildVault,omitempty"`
	GuildWorkshops      []domain.GuildWorkshop                     `json:"guildWorkshops"`
	MemberSkillProgress map[string]domain.GuildMemberSkillProgress `json:"memberSkillProgress"`
	VaultTransactions   []domain.GuildVaultTransaction             `json:"vaultTransactions"`
}

// DecodeSnapshot reads a snapshot document. Legacy duration strings and ISO dates are
// converted on the way in.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, domain.Invalid("snapshot", "decode: %v", err)
	}
	return s, nil
}

func (e Engine) ExportSnapshot(ctx context.Context, guildID string) (Snapshot, error) {
	if guildID == "" {
		return Snapshot{}, domain.Invalid("guildId", "is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	out := Snapshot{GuildID: guildID, ExportedAt: e.now(), MemberSkillProgress: map[string]domain.GuildMemberSkillProgress{}}
	if out.GuildJobs, err = e.Repo.ListJobs(ctx, tx, guildID, ""); err != nil {
		return Snapshot{}, err
	}
	if out.GuildContracts, err = e.Repo.ListContracts(ctx, tx, guildID, ""); err != nil {
		return Snapshot{}, err
	}
	if out.GuildWorkshops, err = e.Repo.ListWorkshops(ctx, tx, guildID, ""); err != nil {
		return Snapshot{}, err
	}
	if out.VaultTransactions, err = e.Repo.ListVaultTransactions(ctx, tx, guildID, 0); err != nil {
		return Snapshot{}, err
	}
	progress, err := e.Repo.ListSkillProgress(ctx, tx, guildID)
	if err != nil {
		return Snapshot{}, err
	}
	for _, p := range progress {
		out.MemberSkillProgress[p.UserID] = p
	}
	vault, err := e.Repo.GetVault(ctx, tx, guildID)
	switch {
	case err == nil:
		out.GuildVault = &vault
	case !isNotFound(err):
		return Snapshot{}, err
	}
	return out, nil
}

// ImportSnapshot replaces the guild's data with s. Every entity is rebound to guildID.
// A vault without a seed balance gets the seed implied by its transactions.
func (e Engine) ImportSnapshot(ctx context.Context, guildID string, s Snapshot, actorID string) error {
	err := e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteGuildData(ctx, tx, guildID); err != nil {
			return err
		}
		for _, j := range s.GuildJobs {
			if j.ID == "" {
				return domain.Invalid("guildJobs", "job without id")
			}
			j.GuildID = guildID
			if err := e.Repo.InsertJob(ctx, tx, j); err != nil {
				return err
			}
		}
		for _, c := range s.GuildContracts {
			if c.ID == "" {
				return domain.Invalid("guildContracts", "contract without id")
			}
			c.GuildID = guildID
			if err := e.Repo.InsertContract(ctx, tx, c); err != nil {
				return err
			}
		}
		for _, w := range s.GuildWorkshops {
			if w.ID == "" {
				return domain.Invalid("guildWorkshops", "workshop without id")
			}
			w.GuildID = guildID
			if err := e.Repo.InsertWorkshop(ctx, tx, w); err != nil {
				return err
			}
		}
		for userID, p := range s.MemberSkillProgress {
			p.GuildID = guildID
			if p.UserID == "" {
				p.UserID = userID
			}
			if err := e.Repo.UpsertSkillProgress(ctx, tx, p); err != nil {
				return err
			}
		}
		var signed float64
		for _, t := range s.VaultTransactions {
			if t.ID == "" {
				t.ID = domain.NewID(domain.PrefixTransaction)
			}
			if t.Amount < 0 {
				return domain.Invalid("vaultTransactions", "transaction %s has negative amount", t.ID)
			}
			t.GuildID = guildID
			signed += ledger.SignedAmount(t)
			if err := e.Repo.InsertVaultTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		if s.GuildVault != nil {
			v := *s.GuildVault
			v.GuildID = guildID
			if v.Balance < 0 {
				return domain.Violation("vault-balance", "imported balance %v is negative", v.Balance)
			}
			if v.SeedBalance == 0 {
				seed := v.Balance.Float() - signed
				if seed < -ledger.Tolerance {
					return domain.Violation("vault-seed", "balance %v is below the transaction total %.2f", v.Balance, signed)
				}
				if seed > 0 {
					v.SeedBalance = domain.Money(seed)
				}
			}
			if _, err := e.Repo.InsertVault(ctx, tx, v); err != nil {
				return err
			}
		}
		return e.emit(ctx, tx, "snapshot.import", guildID, "guild", guildID, actorID, events.EventPayload{
			"jobs":         len(s.GuildJobs),
			"contracts":    len(s.GuildContracts),
			"workshops":    len(s.GuildWorkshops),
			"transactions": len(s.VaultTransactions),
		})
	})
	if err != nil {
		return err
	}
	e.log().Info("snapshot imported", zap.String("guild_id", guildID), zap.Int("jobs", len(s.GuildJobs)),
		zap.Int("transactions", len(s.VaultTransactions)))
	return nil
}
