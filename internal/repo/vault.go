package repo

import (
	"context"
	"fmt"

	"guildline/internal/domain"
)

// InsertVault stores a new vault at version 1 and returns it.
func (r Repo) InsertVault(ctx context.Context, q Querier, v domain.GuildVault) (domain.GuildVault, error) {
	v.Version = 1
	doc, err := encodeDoc(v)
	if err != nil {
		return v, err
	}
	_, err = r.Q(q).ExecContext(ctx, `INSERT INTO guild_vaults(guild_id,version,balance,updated_at,doc_json) VALUES (?,?,?,?,?)`,
		v.GuildID, v.Version, v.Balance.Float(), stamp(v.LastUpdated), doc)
	if err != nil {
		return v, fmt.Errorf("insert vault %s: %w", v.GuildID, err)
	}
	return v, nil
}

// UpdateVault writes v if the stored version still equals v.Version and returns the
// vault at its new version. A stale version yields domain.ErrConflict.
func (r Repo) UpdateVault(ctx context.Context, q Querier, v domain.GuildVault) (domain.GuildVault, error) {
	expected := v.Version
	v.Version = expected + 1
	doc, err := encodeDoc(v)
	if err != nil {
		return v, err
	}
	res, err := r.Q(q).ExecContext(ctx, `UPDATE guild_vaults SET version=?, balance=?, updated_at=?, doc_json=? WHERE guild_id=? AND version=?`,
		v.Version, v.Balance.Float(), stamp(v.LastUpdated), doc, v.GuildID, expected)
	if err != nil {
		return v, fmt.Errorf("update vault %s: %w", v.GuildID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return v, err
	}
	if n == 0 {
		return v, fmt.Errorf("vault %s at version %d: %w", v.GuildID, expected, domain.ErrConflict)
	}
	return v, nil
}

func (r Repo) GetVault(ctx context.Context, q Querier, guildID string) (domain.GuildVault, error) {
	return getDoc[domain.GuildVault](ctx, r.Q(q), "guild vault", guildID, `SELECT doc_json FROM guild_vaults WHERE guild_id=?`, guildID)
}

func (r Repo) InsertVaultTransaction(ctx context.Context, q Querier, tx domain.GuildVaultTransaction) error {
	doc, err := encodeDoc(tx)
	if err != nil {
		return err
	}
	_, err = r.Q(q).ExecContext(ctx, `INSERT INTO vault_transactions(id,guild_id,type,amount,status,ts,doc_json) VALUES (?,?,?,?,?,?,?)`,
		tx.ID, tx.GuildID, string(tx.Type), tx.Amount.Float(), string(tx.Status), stamp(tx.Timestamp), doc)
	if err != nil {
		return fmt.Errorf("insert vault transaction %s: %w", tx.ID, err)
	}
	return nil
}

// ListVaultTransactions returns entries oldest first. A positive limit keeps only the
// most recent limit entries.
func (r Repo) ListVaultTransactions(ctx context.Context, q Querier, guildID string, limit int) ([]domain.GuildVaultTransaction, error) {
	if limit > 0 {
		return listDocs[domain.GuildVaultTransaction](ctx, r.Q(q), "vault transactions",
			`SELECT doc_json FROM (SELECT seq, doc_json FROM vault_transactions WHERE guild_id=? ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`, guildID, limit)
	}
	return listDocs[domain.GuildVaultTransaction](ctx, r.Q(q), "vault transactions",
		`SELECT doc_json FROM vault_transactions WHERE guild_id=? ORDER BY seq ASC`, guildID)
}
