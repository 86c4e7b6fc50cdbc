package world

import "context"

// Store reads and writes NPC and scene records.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetNPC returns the NPC with the given id, or (nil, nil) if absent.
	GetNPC(ctx context.Context, id string) (*NPC, error)

	// GetScene returns the scene with the given id, or (nil, nil) if absent.
	GetScene(ctx context.Context, id string) (*Scene, error)

	// UpsertNPC validates and creates or replaces an NPC.
	UpsertNPC(ctx context.Context, npc *NPC) error

	// UpsertScene validates and creates or replaces a scene.
	UpsertScene(ctx context.Context, scene *Scene) error

	// ListNPCs returns all NPCs ordered by id.
	ListNPCs(ctx context.Context) ([]NPC, error)

	// ListScenes returns all scenes ordered by id.
	ListScenes(ctx context.Context) ([]Scene, error)
}

// Migrator is implemented by stores that manage their own schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}
