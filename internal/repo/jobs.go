package repo

import (
	"context"

	"guildline/internal/domain"
)

func (r Repo) InsertJob(ctx context.Context, q Querier, j domain.GuildJob) error {
	doc, err := encodeDoc(j)
	if err != nil {
		return err
	}
	_, err = r.Q(q).ExecContext(ctx, `INSERT INTO guild_jobs(id,guild_id,status,created_at,doc_json) VALUES (?,?,?,?,?)`,
		j.ID, j.GuildID, string(j.Status), stamp(j.CreatedAt), doc)
	return err
}

func (r Repo) UpdateJob(ctx context.Context, q Querier, j domain.GuildJob) error {
	doc, err := encodeDoc(j)
	if err != nil {
		return err
	}
	res, err := r.Q(q).ExecContext(ctx, `UPDATE guild_jobs SET status=?, doc_json=? WHERE id=? AND guild_id=?`,
		string(j.Status), doc, j.ID, j.GuildID)
	if err != nil {
		return err
	}
	return mustAffect(res, "guild job", j.ID)
}

func (r Repo) GetJob(ctx context.Context, q Querier, guildID, id string) (domain.GuildJob, error) {
	return getDoc[domain.GuildJob](ctx, r.Q(q), "guild job", id, `SELECT doc_json FROM guild_jobs WHERE id=? AND guild_id=?`, id, guildID)
}

// ListJobs returns a guild's jobs in creation order, optionally filtered by status.
func (r Repo) ListJobs(ctx context.Context, q Querier, guildID string, status domain.JobStatus) ([]domain.GuildJob, error) {
	if status != "" {
		return listDocs[domain.GuildJob](ctx, r.Q(q), "guild jobs", `SELECT doc_json FROM guild_jobs WHERE guild_id=? AND status=? ORDER BY created_at, id`, guildID, string(status))
	}
	return listDocs[domain.GuildJob](ctx, r.Q(q), "guild jobs", `SELECT doc_json FROM guild_jobs WHERE guild_id=? ORDER BY created_at, id`, guildID)
}
