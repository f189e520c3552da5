package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"guildline/internal/config"
	"guildline/internal/db"
	"guildline/internal/domain"
	"guildline/internal/engine"
)

const currentGuildFile = "current_guild"

// CurrentGuild returns the guild selected with UseGuild, or "" when none is.
func CurrentGuild(workspace string) (string, error) {
	data, err := os.ReadFile(filepath.Join(db.StateDir(workspace), currentGuildFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// UseGuild makes guildID the workspace default.
func UseGuild(workspace, guildID string) error {
	if strings.TrimSpace(guildID) == "" {
		return domain.Invalid("guildId", "is required")
	}
	dir, err := db.EnsureWorkspace(workspace)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, currentGuildFile), []byte(guildID+"\n"), 0o644)
}

// ResolveGuildAndConfig picks the active guild and makes sure it has a stored config
// and a seeded vault. It prefers the override, then the workspace selection, then the
// only guild in the database. Unknown guilds are created on the fly from guildline.yml
// or the built-in defaults.
func ResolveGuildAndConfig(ctx context.Context, workspace, guildOverride, actorID string, eng engine.Engine) (string, *config.Config, error) {
	guildID := guildOverride
	if guildID == "" {
		current, err := CurrentGuild(workspace)
		if err != nil {
			return "", nil, err
		}
		guildID = current
	}
	if guildID == "" {
		g, err := eng.Repo.SingleGuild(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("guild not specified; use --guild or `gl guild use`")
		}
		guildID = g.ID
	}

	cfg, err := eng.Repo.GetGuildConfig(ctx, nil, guildID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return "", nil, err
		}
		cfg, err = seedConfig(workspace, guildID)
		if err != nil {
			return "", nil, err
		}
		if err := eng.SetGuildConfig(ctx, guildID, cfg, actorID); err != nil {
			return "", nil, fmt.Errorf("seed guild config: %w", err)
		}
	}
	if _, _, err := eng.InitVault(ctx, guildID, actorID); err != nil {
		return "", nil, fmt.Errorf("init vault: %w", err)
	}
	cfg.Guild.ID = guildID
	return guildID, cfg, nil
}

func seedConfig(workspace, guildID string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(guildID)
	}
	cfg.Guild.ID = guildID
	return cfg, nil
}
