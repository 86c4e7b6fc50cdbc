package world

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a [Store] backed by an embedded SQLite database. It suits
// single-node deployments and local scene authoring.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ Store    = (*SQLiteStore)(nil)
	_ Migrator = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens or creates a SQLite database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("world: create db dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("world: open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises
	// writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the schema. The PostgreSQL DDL is valid SQLite.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("world: migrate sqlite: %w", err)
	}
	return nil
}

// GetNPC implements [Store.GetNPC].
func (s *SQLiteStore) GetNPC(ctx context.Context, id string) (*NPC, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+npcColumns+` FROM npcs WHERE npc_id = ?`, id)
	npc, err := scanNPC(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("world: get npc %q: %w", id, err)
	}
	return npc, nil
}

// GetScene implements [Store.GetScene].
func (s *SQLiteStore) GetScene(ctx context.Context, id string) (*Scene, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE scene_id = ?`, id)
	sc, err := scanScene(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("world: get scene %q: %w", id, err)
	}
	return sc, nil
}

// UpsertNPC implements [Store.UpsertNPC].
func (s *SQLiteStore) UpsertNPC(ctx context.Context, npc *NPC) error {
	if err := npc.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO npcs (` + npcColumns + `) VALUES (` + placeholders(7) + `)
		ON CONFLICT (npc_id) DO UPDATE SET
			background = excluded.background,
			name = excluded.name,
			class = excluded.class,
			class_level = excluded.class_level,
			status = excluded.status,
			lore_level = excluded.lore_level`
	if _, err := s.db.ExecContext(ctx, query, npcArgs(npc)...); err != nil {
		return fmt.Errorf("world: upsert npc %q: %w", npc.ID, err)
	}
	return nil
}

// UpsertScene implements [Store.UpsertScene].
func (s *SQLiteStore) UpsertScene(ctx context.Context, scene *Scene) error {
	if err := scene.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO scenes (` + sceneColumns + `) VALUES (` + placeholders(6) + `)
		ON CONFLICT (scene_id) DO UPDATE SET
			scene = excluded.scene,
			status = excluded.status,
			goal = excluded.goal,
			npc_ids = excluded.npc_ids,
			knowledge = excluded.knowledge`
	if _, err := s.db.ExecContext(ctx, query, sceneArgs(scene)...); err != nil {
		return fmt.Errorf("world: upsert scene %q: %w", scene.ID, err)
	}
	return nil
}

// ListNPCs implements [Store.ListNPCs].
func (s *SQLiteStore) ListNPCs(ctx context.Context) ([]NPC, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+npcColumns+` FROM npcs ORDER BY npc_id`)
	if err != nil {
		return nil, fmt.Errorf("world: list npcs: %w", err)
	}
	defer rows.Close()

	var out []NPC
	for rows.Next() {
		npc, err := scanNPC(rows)
		if err != nil {
			return nil, fmt.Errorf("world: list npcs scan: %w", err)
		}
		out = append(out, *npc)
	}
	return out, rows.Err()
}

// ListScenes implements [Store.ListScenes].
func (s *SQLiteStore) ListScenes(ctx context.Context) ([]Scene, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sceneColumns+` FROM scenes ORDER BY scene_id`)
	if err != nil {
		return nil, fmt.Errorf("world: list scenes: %w", err)
	}
	defer rows.Close()

	var out []Scene
	for rows.Next() {
		sc, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("world: list scenes scan: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
