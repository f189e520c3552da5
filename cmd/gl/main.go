package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"guildline/internal/app"
	"guildline/internal/config"
	"guildline/internal/db"
	"guildline/internal/domain"
	"guildline/internal/engine"
	"guildline/internal/logger"
	"guildline/internal/migrate"
	"guildline/internal/repo"
	"guildline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gl",
	Short: "Guildline CLI",
	Long: `Guildline runs the economy of a guild: members take jobs, vote on contracts,
share the earnings and put part of them in a common vault that funds workshops.
- Job: client work with a budget and a profit distribution policy.
- Contract: the agreement for a job; assigned members vote it through.
- Vault: the guild treasury. Every movement is a ledger entry; 'gl vault audit' reconciles it.
- Workshop: training paid from the vault that awards skill points on completion.
- Event log: every change, view with 'gl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GUILDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// A missing .env is fine; values already in the environment win.
	_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "acting member")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	rootCmd.PersistentFlags().String("guild", "", "guild id (overrides the workspace default)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	for _, name := range []string{"workspace", "json", "actor-id", "force", "guild", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(guildCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(vaultCmd())
	rootCmd.AddCommand(workshopCmd())
	rootCmd.AddCommand(skillsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(serveCmd())
}

func guildCmd() *cobra.Command {
	g := &cobra.Command{Use: "guild", Short: "Manage guilds"}
	g.AddCommand(&cobra.Command{
		Use:   "use <id>",
		Short: "Set the current guild for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID := strings.TrimSpace(args[0])
			workspace := viper.GetString("workspace")
			if err := app.UseGuild(workspace, guildID); err != nil {
				return err
			}
			fmt.Printf("Current guild is %s\n", guildID)
			return nil
		},
	})
	g.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List guilds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				guilds, err := r.ListGuilds(ctx, nil)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(guilds)
				}
				tw := newTable("ID", "Name", "Created")
				for _, g := range guilds {
					tw.AppendRow(table.Row{g.ID, g.Name, g.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	g.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				guild, err := r.GetGuild(ctx, nil, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(guild)
			})
		},
	})
	return g
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect guild config",
		Long:  "Config holds the guild's economy defaults (stored in DB): profit shares, contract milestones, vault seed and workshop defaults. Import from guildline.yml with 'gl config import'.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				return printJSONOrTable(e.Config)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import guild config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				cfg.Guild.ID = guildID
				if err := e.SetGuildConfig(ctx, guildID, cfg, actor()); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "guildline.yml", "path to YAML config")
	return cmd
}

func dbCmd() *cobra.Command {
	d := &cobra.Command{Use: "db", Short: "Workspace database"}
	d.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := migrate.Status(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"path": db.StateDir(viper.GetString("workspace")), "migrations": applied})
			}
			tw := newTable("Version", "Name", "Applied")
			for _, a := range applied {
				tw.AppendRow(table.Row{a.Version, a.Name, a.AppliedAt})
			}
			tw.Render()
			return nil
		},
	})
	return d
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every change to jobs, contracts, the vault and workshops, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, guildID string) error {
				f.GuildID = guildID
				events, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor")
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, defaultActor string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			conn, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			e := engine.New(conn, config.Default(""), log)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Logger: log, DefaultActor: defaultActor})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath))
			fmt.Printf("Serving Guildline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&defaultActor, "default-actor", "", "actor for requests without X-Actor-Id")
	return cmd
}

// --- helpers ---

func actor() string { return viper.GetString("actor-id") }

func forced() bool { return viper.GetBool("force") }

func newLogger() (*zap.Logger, error) {
	return logger.New(viper.GetString("log-level"), viper.GetString("log-format"))
}

func openDB(ctx context.Context) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()
	conn, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	workspace := viper.GetString("workspace")
	e := engine.New(conn, config.Default(""), log)
	guildID, cfg, err := app.ResolveGuildAndConfig(ctx, workspace, viper.GetString("guild"), actor(), e)
	if err != nil {
		return err
	}
	e.Config = cfg
	return fn(ctx, e, guildID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func money(m domain.Money) string { return fmt.Sprintf("%.2f", m.Float()) }

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
