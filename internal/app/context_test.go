package app

import (
	"context"
	"os"
	"testing"

	"guildline/internal/config"
	"guildline/internal/db"
	"guildline/internal/engine"
	"guildline/internal/migrate"
)

func newEngine(t *testing.T, workspace string) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, nil, nil)
}

func TestResolveSeedsConfigAndVault(t *testing.T) {
	ws := t.TempDir()
	eng := newEngine(t, ws)
	ctx := context.Background()
	yml := "guild:\n  currency: USD\nvault:\n  seed_balance: 1000\n  min_balance: 100\n"
	if err := os.WriteFile(config.Path(ws), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	id, cfg, err := ResolveGuildAndConfig(ctx, ws, "g1", "gm", eng)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "g1" || cfg.Guild.Currency != "USD" || cfg.Guild.ID != "g1" {
		t.Fatalf("unexpected config: %s %+v", id, cfg.Guild)
	}
	vault, err := eng.GetVault(ctx, "g1")
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if vault.Balance.Float() != 1000 {
		t.Fatalf("seed balance = %v", vault.Balance)
	}
	// The only guild is picked without an override.
	id, _, err = ResolveGuildAndConfig(ctx, ws, "", "gm", eng)
	if err != nil || id != "g1" {
		t.Fatalf("single guild: %s %v", id, err)
	}
}

func TestResolveRequiresGuild(t *testing.T) {
	ws := t.TempDir()
	eng := newEngine(t, ws)
	if _, _, err := ResolveGuildAndConfig(context.Background(), ws, "", "gm", eng); err == nil {
		t.Fatalf("expected error without guilds")
	}
}

func TestUseGuild(t *testing.T) {
	ws := t.TempDir()
	if err := UseGuild(ws, "alpha"); err != nil {
		t.Fatalf("use: %v", err)
	}
	got, err := CurrentGuild(ws)
	if err != nil || got != "alpha" {
		t.Fatalf("current = %q %v", got, err)
	}
	eng := newEngine(t, ws)
	id, _, err := ResolveGuildAndConfig(context.Background(), ws, "", "gm", eng)
	if err != nil || id != "alpha" {
		t.Fatalf("resolve = %q %v", id, err)
	}
}
