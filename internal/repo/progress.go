package repo

import (
	"context"

	"guildline/internal/domain"
)

// UpsertSkillProgress writes one member's progress record.
func (r Repo) UpsertSkillProgress(ctx context.Context, q Querier, p domain.GuildMemberSkillProgress) error {
	doc, err := encodeDoc(p)
	if err != nil {
		return err
	}
	_, err = r.Q(q).ExecContext(ctx, `INSERT INTO member_skill_progress(guild_id,user_id,updated_at,doc_json) VALUES (?,?,?,?)
ON CONFLICT(guild_id,user_id) DO UPDATE SET updated_at=excluded.updated_at, doc_json=excluded.doc_json`,
		p.GuildID, p.UserID, stamp(p.LastUpdated), doc)
	return err
}

func (r Repo) GetSkillProgress(ctx context.Context, q Querier, guildID, userID string) (domain.GuildMemberSkillProgress, error) {
	return getDoc[domain.GuildMemberSkillProgress](ctx, r.Q(q), "skill progress", userID,
		`SELECT doc_json FROM member_skill_progress WHERE guild_id=? AND user_id=?`, guildID, userID)
}

func (r Repo) ListSkillProgress(ctx context.Context, q Querier, guildID string) ([]domain.GuildMemberSkillProgress, error) {
	return listDocs[domain.GuildMemberSkillProgress](ctx, r.Q(q), "skill progress",
		`SELECT doc_json FROM member_skill_progress WHERE guild_id=? ORDER BY user_id`, guildID)
}
