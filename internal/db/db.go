// Package db opens the workspace SQLite database.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDirName = ".guildline"
	dbFileName   = "guildline.db"
)

// Config locates the database. File overrides the default file inside the state dir.
type Config struct {
	Workspace string
	File      string
}

func (c Config) path() string {
	if c.File != "" {
		return c.File
	}
	return filepath.Join(StateDir(c.Workspace), dbFileName)
}

// StateDir returns the directory holding the database and workspace state files.
func StateDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDirName)
}

// EnsureWorkspace creates the state directory if missing and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := StateDir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}

// Open opens the database with foreign keys, WAL journaling and BEGIN IMMEDIATE
// transactions, so concurrent writers queue on busy_timeout instead of failing.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.File == "" {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + cfg.path() + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", cfg.path(), err)
	}
	return conn, nil
}
