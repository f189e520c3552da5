package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"guildline/internal/config"
	"guildline/internal/domain"
)

// Querier is satisfied by *sql.DB and *sql.Tx. Reads made during a mutation must go
// through the mutation's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB *sql.DB
}

// Q returns q, or the pool when q is nil.
func (r Repo) Q(q Querier) Querier {
	if q == nil {
		return r.DB
	}
	return q
}

// Guild is a registered guild partition.
type Guild struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// stampLayout is fixed width so created_at columns sort in time order as text.
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func stamp(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

func encodeDoc(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(data), nil
}

// getDoc loads a single doc_json column and decodes it into T.
func getDoc[T any](ctx context.Context, q Querier, kind, id, query string, args ...any) (T, error) {
	var out T
	var payload string
	err := q.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return out, domain.NotFound(kind, id)
	}
	if err != nil {
		return out, fmt.Errorf("load %s %s: %w", kind, id, err)
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return out, nil
}

// listDocs decodes every doc_json row returned by query.
func listDocs[T any](ctx context.Context, q Querier, kind, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()
	var res []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func mustAffect(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound(kind, id)
	}
	return nil
}

func (r Repo) EnsureGuild(ctx context.Context, q Querier, id, name string, now time.Time) error {
	_, err := r.Q(q).ExecContext(ctx, `INSERT INTO guilds(id,name,created_at) VALUES (?,?,?) ON CONFLICT(id) DO NOTHING`, id, name, stamp(now))
	if err != nil {
		return fmt.Errorf("ensure guild %s: %w", id, err)
	}
	return nil
}

func (r Repo) GetGuild(ctx context.Context, q Querier, id string) (Guild, error) {
	var g Guild
	err := r.Q(q).QueryRowContext(ctx, `SELECT id,name,created_at FROM guilds WHERE id=?`, id).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return g, domain.NotFound("guild", id)
	}
	return g, err
}

func (r Repo) ListGuilds(ctx context.Context, q Querier) ([]Guild, error) {
	rows, err := r.Q(q).QueryContext(ctx, `SELECT id,name,created_at FROM guilds ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Guild
	for rows.Next() {
		var g Guild
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// SingleGuild returns the only guild in the database.
func (r Repo) SingleGuild(ctx context.Context) (Guild, error) {
	guilds, err := r.ListGuilds(ctx, nil)
	if err != nil {
		return Guild{}, err
	}
	if len(guilds) == 0 {
		return Guild{}, domain.NotFound("guild", "")
	}
	if len(guilds) > 1 {
		return Guild{}, fmt.Errorf("multiple guilds exist; specify --guild")
	}
	return guilds[0], nil
}

func (r Repo) UpsertGuildConfig(ctx context.Context, q Querier, guildID string, cfg *config.Config, now time.Time) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Guild.ID = guildID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := encodeDoc(cfg)
	if err != nil {
		return err
	}
	_, err = r.Q(q).ExecContext(ctx, `INSERT INTO guild_configs(guild_id,config_json,updated_at) VALUES (?,?,?)
ON CONFLICT(guild_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, guildID, payload, stamp(now))
	return err
}

func (r Repo) GetGuildConfig(ctx context.Context, q Querier, guildID string) (*config.Config, error) {
	cfg, err := getDoc[config.Config](ctx, r.Q(q), "guild config", guildID, `SELECT config_json FROM guild_configs WHERE guild_id=?`, guildID)
	if err != nil {
		return nil, err
	}
	cfg.Guild.ID = guildID
	return &cfg, cfg.Validate()
}

// DeleteGuildData removes every entity of a guild except its config and audit events.
func (r Repo) DeleteGuildData(ctx context.Context, q Querier, guildID string) error {
	for _, table := range []string{"vault_transactions", "guild_vaults", "member_skill_progress", "guild_workshops", "guild_contracts", "guild_jobs"} {
		if _, err := r.Q(q).ExecContext(ctx, `DELETE FROM `+table+` WHERE guild_id=?`, guildID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
