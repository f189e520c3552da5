package repo

import (
	"context"

	"guildline/internal/domain"
)

func (r Repo) InsertWorkshop(ctx context.Context, q Querier, w domain.GuildWorkshop) error {
	doc, err := encodeDoc(w)
	if err != nil {
		return err
	}
	_, err = r.Q(q).ExecContext(ctx, `INSERT INTO guild_workshops(id,guild_id,funding_status,created_at,doc_json) VALUES (?,?,?,?,?)`,
		w.ID, w.GuildID, string(w.FundingStatus), stamp(w.CreatedAt), doc)
	return err
}

func (r Repo) UpdateWorkshop(ctx context.Context, q Querier, w domain.GuildWorkshop) error {
	doc, err := encodeDoc(w)
	if err != nil {
		return err
	}
	res, err := r.Q(q).ExecContext(ctx, `UPDATE guild_workshops SET funding_status=?, doc_json=? WHERE id=? AND guild_id=?`,
		string(w.FundingStatus), doc, w.ID, w.GuildID)
	if err != nil {
		return err
	}
	return mustAffect(res, "workshop", w.ID)
}

func (r Repo) GetWorkshop(ctx context.Context, q Querier, guildID, id string) (domain.GuildWorkshop, error) {
	return getDoc[domain.GuildWorkshop](ctx, r.Q(q), "workshop", id, `SELECT doc_json FROM guild_workshops WHERE id=? AND guild_id=?`, id, guildID)
}

func (r Repo) ListWorkshops(ctx context.Context, q Querier, guildID string, status domain.FundingStatus) ([]domain.GuildWorkshop, error) {
	if status != "" {
		return listDocs[domain.GuildWorkshop](ctx, r.Q(q), "workshops", `SELECT doc_json FROM guild_workshops WHERE guild_id=? AND funding_status=? ORDER BY created_at, id`, guildID, string(status))
	}
	return listDocs[domain.GuildWorkshop](ctx, r.Q(q), "workshops", `SELECT doc_json FROM guild_workshops WHERE guild_id=? ORDER BY created_at, id`, guildID)
}
