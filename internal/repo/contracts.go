package repo

import (
	"context"

	"guildline/internal/domain"
)

func (r Repo) InsertContract(ctx context.Context, q Querier, c domain.GuildContract) error {
	doc, err := encodeDoc(c)
	if err != nil {
		return err
	}
	_, err = r.Q(q).ExecContext(ctx, `INSERT INTO guild_contracts(id,guild_id,job_id,status,created_at,doc_json) VALUES (?,?,?,?,?,?)`,
		c.ID, c.GuildID, c.JobID, string(c.Status), stamp(c.CreatedAt), doc)
	return err
}

func (r Repo) UpdateContract(ctx context.Context, q Querier, c domain.GuildContract) error {
	doc, err := encodeDoc(c)
	if err != nil {
		return err
	}
	res, err := r.Q(q).ExecContext(ctx, `UPDATE guild_contracts SET status=?, doc_json=? WHERE id=? AND guild_id=?`,
		string(c.Status), doc, c.ID, c.GuildID)
	if err != nil {
		return err
	}
	return mustAffect(res, "guild contract", c.ID)
}

func (r Repo) GetContract(ctx context.Context, q Querier, guildID, id string) (domain.GuildContract, error) {
	return getDoc[domain.GuildContract](ctx, r.Q(q), "guild contract", id, `SELECT doc_json FROM guild_contracts WHERE id=? AND guild_id=?`, id, guildID)
}

func (r Repo) ListContracts(ctx context.Context, q Querier, guildID string, status domain.ContractStatus) ([]domain.GuildContract, error) {
	if status != "" {
		return listDocs[domain.GuildContract](ctx, r.Q(q), "guild contracts", `SELECT doc_json FROM guild_contracts WHERE guild_id=? AND status=? ORDER BY created_at, id`, guildID, string(status))
	}
	return listDocs[domain.GuildContract](ctx, r.Q(q), "guild contracts", `SELECT doc_json FROM guild_contracts WHERE guild_id=? ORDER BY created_at, id`, guildID)
}

// ContractsForJob returns every contract ever drawn up for a job.
func (r Repo) ContractsForJob(ctx context.Context, q Querier, guildID, jobID string) ([]domain.GuildContract, error) {
	return listDocs[domain.GuildContract](ctx, r.Q(q), "guild contracts", `SELECT doc_json FROM guild_contracts WHERE guild_id=? AND job_id=? ORDER BY created_at, id`, guildID, jobID)
}
