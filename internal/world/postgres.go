package world

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the npcs and scenes tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
//
// scenes.npc_ids and scenes.knowledge are comma-separated id lists.
const Schema = `
CREATE TABLE IF NOT EXISTS npcs (
    npc_id      TEXT PRIMARY KEY,
    background  TEXT NOT NULL DEFAULT '',
    name        TEXT NOT NULL,
    class       TEXT NOT NULL DEFAULT '',
    class_level INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL DEFAULT '',
    lore_level  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS scenes (
    scene_id  TEXT PRIMARY KEY,
    scene     TEXT NOT NULL DEFAULT '',
    status    TEXT NOT NULL DEFAULT '',
    goal      TEXT NOT NULL DEFAULT '',
    npc_ids   TEXT NOT NULL DEFAULT '',
    knowledge TEXT NOT NULL DEFAULT ''
);
`

// Queries shared by the PostgreSQL and SQLite stores. Column order is part
// of the contract with scanNPC and scanScene.
const (
	npcColumns   = `npc_id, background, name, class, class_level, status, lore_level`
	sceneColumns = `scene_id, scene, status, goal, npc_ids, knowledge`
)

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

var (
	_ Store    = (*PostgresStore)(nil)
	_ Migrator = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("world: migrate: %w", err)
	}
	return nil
}

// GetNPC implements [Store.GetNPC].
func (s *PostgresStore) GetNPC(ctx context.Context, id string) (*NPC, error) {
	row := s.db.QueryRow(ctx, `SELECT `+npcColumns+` FROM npcs WHERE npc_id = $1`, id)
	npc, err := scanNPC(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("world: get npc %q: %w", id, err)
	}
	return npc, nil
}

// GetScene implements [Store.GetScene].
func (s *PostgresStore) GetScene(ctx context.Context, id string) (*Scene, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE scene_id = $1`, id)
	sc, err := scanScene(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("world: get scene %q: %w", id, err)
	}
	return sc, nil
}

// UpsertNPC implements [Store.UpsertNPC].
func (s *PostgresStore) UpsertNPC(ctx context.Context, npc *NPC) error {
	if err := npc.Validate(); err != nil {
		return err
	}
	const query = `
		INSERT INTO npcs (` + npcColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (npc_id) DO UPDATE SET
			background = EXCLUDED.background,
			name = EXCLUDED.name,
			class = EXCLUDED.class,
			class_level = EXCLUDED.class_level,
			status = EXCLUDED.status,
			lore_level = EXCLUDED.lore_level`
	if _, err := s.db.Exec(ctx, query, npcArgs(npc)...); err != nil {
		return fmt.Errorf("world: upsert npc %q: %w", npc.ID, err)
	}
	return nil
}

// UpsertScene implements [Store.UpsertScene].
func (s *PostgresStore) UpsertScene(ctx context.Context, scene *Scene) error {
	if err := scene.Validate(); err != nil {
		return err
	}
	const query = `
		INSERT INTO scenes (` + sceneColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (scene_id) DO UPDATE SET
			scene = EXCLUDED.scene,
			status = EXCLUDED.status,
			goal = EXCLUDED.goal,
			npc_ids = EXCLUDED.npc_ids,
			knowledge = EXCLUDED.knowledge`
	if _, err := s.db.Exec(ctx, query, sceneArgs(scene)...); err != nil {
		return fmt.Errorf("world: upsert scene %q: %w", scene.ID, err)
	}
	return nil
}

// ListNPCs implements [Store.ListNPCs].
func (s *PostgresStore) ListNPCs(ctx context.Context) ([]NPC, error) {
	rows, err := s.db.Query(ctx, `SELECT `+npcColumns+` FROM npcs ORDER BY npc_id`)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("world: list npcs: %w", err)
	}
	return out, nil
}

// ListScenes implements [Store.ListScenes].
func (s *PostgresStore) ListScenes(ctx context.Context) ([]Scene, error) {
	rows, err := s.db.Query(ctx, `SELECT `+sceneColumns+` FROM scenes ORDER BY scene_id`)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("world: list scenes: %w", err)
	}
	return out, nil
}

// scanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNPC(row scanner) (*NPC, error) {
	var n NPC
	if err := row.Scan(&n.ID, &n.Background, &n.Name, &n.Class, &n.ClassLevel, &n.Status, &n.LoreLevel); err != nil {
		return nil, err
	}
	return &n, nil
}

func scanScene(row scanner) (*Scene, error) {
	var (
		sc     Scene
		npcIDs string
	)
	if err := row.Scan(&sc.ID, &sc.Scene, &sc.Status, &sc.Goal, &npcIDs, &sc.Knowledge); err != nil {
		return nil, err
	}
	sc.NPCIDs = SplitCSV(npcIDs)
	return &sc, nil
}

func npcArgs(n *NPC) []any {
	return []any{n.ID, n.Background, n.Name, n.Class, n.ClassLevel, n.Status, n.LoreLevel}
}

func sceneArgs(sc *Scene) []any {
	return []any{sc.ID, sc.Scene, sc.Status, sc.Goal, JoinCSV(sc.NPCIDs), sc.Knowledge}
}
