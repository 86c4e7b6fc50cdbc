package world

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the top-level structure of a world seed YAML file.
//
// Example:
//
//	npcs:
//	  - id: bob
//	    name: Bob
//	    background: "Bob is the village smith."
//	    lore_level: 2
//	scenes:
//	  - id: smithy
//	    scene: "A hot smithy at dawn."
//	    goal: NA
//	    npc_ids: [Erika, bob]
//	conversation_examples:
//	  smithy: |
//	    [CHAR(bob)]Morning!
//	knowledge:
//	  - knowledge: "The old road north is flooded."
//	    lore_level: 1
type SeedFile struct {
	NPCs   []NPC   `yaml:"npcs"`
	Scenes []Scene `yaml:"scenes"`

	// ConversationExamples maps scene ids to worked dialogue examples. They
	// are written to the conv_example cache namespace, not the store.
	ConversationExamples map[string]string `yaml:"conversation_examples"`

	// Knowledge is lore for the knowledge index. It is embedded on import
	// and is not written to the store.
	Knowledge []Lore `yaml:"knowledge"`
}

// Lore is one knowledge snippet, visible to NPCs whose lore level is at
// least LoreLevel.
type Lore struct {
	Text      string `yaml:"knowledge"`
	LoreLevel int    `yaml:"lore_level"`
}

// LoadSeedFile reads and parses a seed YAML file from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("world: open seed file %q: %w", path, err)
	}
	defer f.Close()

	sf, err := LoadSeedFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("world: parse seed file %q: %w", path, err)
	}
	return sf, nil
}

// LoadSeedFromReader parses seed YAML from an [io.Reader].
func LoadSeedFromReader(r io.Reader) (*SeedFile, error) {
	var sf SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject typos such as "npc_id" for "npc_ids"
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("world: decode seed yaml: %w", err)
	}
	return &sf, nil
}

// Import upserts every NPC and scene of seed into store and returns the
// number of records written. The first store error aborts the import.
func Import(ctx context.Context, store Store, seed *SeedFile) (int, error) {
	if seed == nil {
		return 0, fmt.Errorf("world: seed must not be nil")
	}
	n := 0
	for i := range seed.NPCs {
		if err := store.UpsertNPC(ctx, &seed.NPCs[i]); err != nil {
			return n, fmt.Errorf("world: import: %w", err)
		}
		n++
	}
	for i := range seed.Scenes {
		if err := store.UpsertScene(ctx, &seed.Scenes[i]); err != nil {
			return n, fmt.Errorf("world: import: %w", err)
		}
		n++
	}
	return n, nil
}
