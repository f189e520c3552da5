package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"guildline/internal/config"
	"guildline/internal/domain"
	"guildline/internal/events"
	"guildline/internal/logger"
	"guildline/internal/repo"
)

// Engine runs every guild economy operation. Mutations on one guild are serialized
// and each one commits in a single transaction.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	// Config applies to guilds without a stored config.
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time

	locks *guildLocks
}

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Log:    logger.OrNop(log),
		Now:    time.Now,
		locks:  &guildLocks{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *zap.Logger {
	return logger.OrNop(e.Log)
}

type guildLocks struct {
	m sync.Map
}

func (l *guildLocks) lock(guildID string) func() {
	v, _ := l.m.LoadOrStore(guildID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Engines assembled without New share these locks.
var sharedLocks = &guildLocks{}

// inGuildTx runs fn under the guild's lock inside one transaction and commits
// only when fn succeeds.
func (e Engine) inGuildTx(ctx context.Context, guildID string, fn func(tx *sql.Tx) error) error {
	if guildID == "" {
		return domain.Invalid("guildId", "is required")
	}
	locks := e.locks
	if locks == nil {
		locks = sharedLocks
	}
	unlock := locks.lock(guildID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureGuild(ctx, tx, guildID, guildID, e.now()); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GuildConfig returns the stored config of a guild, or the engine default.
func (e Engine) GuildConfig(ctx context.Context, guildID string) (*config.Config, error) {
	return e.guildConfig(ctx, nil, guildID)
}

func (e Engine) guildConfig(ctx context.Context, q repo.Querier, guildID string) (*config.Config, error) {
	cfg, err := e.Repo.GetGuildConfig(ctx, q, guildID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if e.Config != nil {
		return e.Config, nil
	}
	return config.Default(guildID), nil
}

// SetGuildConfig validates and stores cfg as the guild's economy config.
func (e Engine) SetGuildConfig(ctx context.Context, guildID string, cfg *config.Config, actorID string) error {
	return e.inGuildTx(ctx, guildID, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertGuildConfig(ctx, tx, guildID, cfg, e.now()); err != nil {
			return err
		}
		return e.emit(ctx, tx, "guild.config", guildID, "guild", guildID, actorID, nil)
	})
}

// ListEvents returns audit events newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, nil, f)
}

// emit appends an audit event stamped with the engine clock.
func (e Engine) emit(ctx context.Context, q repo.Querier, evtType, guildID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, q, evtType, guildID, entityKind, entityID, actorID, payload)
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrMoney(m domain.Money) *domain.Money { return &m }

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
