// Package world holds the reference data the dialogue pipeline reads: NPCs
// and scenes.
//
// Records are created out of band (seed files or direct database ingestion)
// and only read at request time through a [Resolver], which caches them in
// the shared cache with no expiry. The [Store] implementations are a
// PostgreSQL store for shared deployments, an embedded SQLite store for
// single-node use, and an in-memory store for tests and demos.
package world

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by [Resolver] when a record exists neither in the
// cache nor in the store.
var ErrNotFound = errors.New("world: not found")

// NPC is a non-player character.
type NPC struct {
	ID         string `yaml:"id"          json:"npc_id"`
	Name       string `yaml:"name"        json:"name"`
	Background string `yaml:"background"  json:"background"`
	Class      string `yaml:"class"       json:"class"`
	ClassLevel int    `yaml:"class_level" json:"class_level"`
	Status     string `yaml:"status"      json:"status"`
	// LoreLevel gates which knowledge rows the NPC can see.
	LoreLevel int `yaml:"lore_level" json:"lore_level"`
}

// Validate checks the fields a store requires.
func (n *NPC) Validate() error {
	var errs []error
	if strings.TrimSpace(n.ID) == "" {
		errs = append(errs, errors.New("world: npc id is required"))
	}
	if strings.TrimSpace(n.Name) == "" {
		errs = append(errs, fmt.Errorf("world: npc %q: name is required", n.ID))
	}
	if n.LoreLevel < 0 {
		errs = append(errs, fmt.Errorf("world: npc %q: lore_level must not be negative", n.ID))
	}
	return errors.Join(errs...)
}

// Scene is a shared narrative context with its participants.
type Scene struct {
	ID string `yaml:"id" json:"scene_id"`
	// Scene is the narrative description injected into the prompt.
	Scene  string `yaml:"scene"  json:"scene"`
	Status string `yaml:"status" json:"status"`
	// Goal is empty or "NA" for scenes without a goal.
	Goal string `yaml:"goal" json:"goal"`
	// NPCIDs are the participants in prompt order.
	NPCIDs []string `yaml:"npc_ids" json:"npc_ids"`
	// Knowledge is a comma-separated list of NPC ids whose backgrounds are
	// added to the prompt as extra knowledge.
	Knowledge string `yaml:"knowledge" json:"knowledge"`
}

// Validate checks the fields a store requires.
func (s *Scene) Validate() error {
	var errs []error
	if strings.TrimSpace(s.ID) == "" {
		errs = append(errs, errors.New("world: scene id is required"))
	}
	for i, id := range s.NPCIDs {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, fmt.Errorf("world: scene %q: npc_ids[%d] is empty", s.ID, i))
		}
	}
	return errors.Join(errs...)
}

// KnowledgeIDs splits [Scene.Knowledge] into NPC ids.
func (s *Scene) KnowledgeIDs() []string {
	return SplitCSV(s.Knowledge)
}

// SplitCSV splits a comma-separated list, trimming each element and
// dropping empty ones. An empty string yields nil.
func SplitCSV(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinCSV is the inverse of [SplitCSV].
func JoinCSV(ids []string) string {
	return strings.Join(ids, ",")
}
