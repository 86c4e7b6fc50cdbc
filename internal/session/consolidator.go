package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// defaultConsolidationInterval is the default period between consolidation
// ticks.
const defaultConsolidationInterval = 30 * time.Minute

// pair identifies a player/NPC relationship.
type pair struct {
	player, npc string
}

// Consolidator turns conversation logs into memory records. Pairs are
// registered with [Consolidator.Track] after each chat; every interval the
// turns logged since the last consolidation of a tracked pair are
// summarised and appended to the [MemoryStore].
//
// Progress is held in process memory only. After a restart the first
// consolidation of a pair summarises its whole log again.
//
// All methods are safe for concurrent use.
type Consolidator struct {
	log        *ConversationLog
	memories   *MemoryStore
	summariser MemorySummariser
	interval   time.Duration
	minTurns   int

	// mu guards the maps below and is never held across a store or model
	// call, so Track stays cheap on the chat path.
	mu sync.Mutex
	// lastIndex is the number of log turns already consolidated per pair.
	lastIndex map[pair]int
	// pending maps a tracked pair to the sequence number of its latest Track.
	pending map[pair]uint64
	seq     uint64
	// busy serialises consolidation of one pair.
	busy map[pair]*sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

// ConsolidatorConfig configures a [Consolidator].
type ConsolidatorConfig struct {
	Log        *ConversationLog
	Memories   *MemoryStore
	Summariser MemorySummariser

	// Interval is how often to consolidate. Defaults to 30 minutes if zero.
	Interval time.Duration

	// MinTurns is the number of new turns a pair needs before a periodic
	// tick summarises it. Defaults to 1.
	MinTurns int
}

// NewConsolidator creates a new [Consolidator] with the given configuration.
func NewConsolidator(cfg ConsolidatorConfig) *Consolidator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultConsolidationInterval
	}
	minTurns := cfg.MinTurns
	if minTurns <= 0 {
		minTurns = 1
	}
	return &Consolidator{
		log:        cfg.Log,
		memories:   cfg.Memories,
		summariser: cfg.Summariser,
		interval:   interval,
		minTurns:   minTurns,
		lastIndex:  make(map[pair]int),
		pending:    make(map[pair]uint64),
		busy:       make(map[pair]*sync.Mutex),
		done:       make(chan struct{}),
	}
}

// Track marks the pair as having new turns.
func (c *Consolidator) Track(playerID, npcID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.pending[pair{playerID, npcID}] = c.seq
}

// Start begins periodic consolidation in a background goroutine.
// The goroutine runs until [Consolidator.Stop] is called or ctx is cancelled.
func (c *Consolidator) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Stop halts the consolidation loop. Safe to call multiple times.
func (c *Consolidator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

// ConsolidateNow consolidates every tracked pair immediately, regardless of
// MinTurns. Errors for individual pairs are joined.
func (c *Consolidator) ConsolidateNow(ctx context.Context) error {
	return c.consolidatePending(ctx, 1)
}

// ConsolidatePair summarises the turns logged between player and npc since
// the last consolidation and appends the result to the memory store. It
// returns nil and no error when there is nothing new.
func (c *Consolidator) ConsolidatePair(ctx context.Context, playerID, npcID string) (*MemoryRecord, error) {
	return c.consolidate(ctx, pair{playerID, npcID}, 1)
}

func (c *Consolidator) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.consolidatePending(ctx, c.minTurns); err != nil {
				slog.Warn("periodic memory consolidation failed", "err", err)
			}
		}
	}
}

func (c *Consolidator) consolidatePending(ctx context.Context, minTurns int) error {
	c.mu.Lock()
	pairs := slices.Collect(maps.Keys(c.pending))
	c.mu.Unlock()

	var errs []error
	for _, p := range pairs {
		if _, err := c.consolidate(ctx, p, minTurns); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pairLock returns the mutex serialising consolidation of p.
func (c *Consolidator) pairLock(p pair) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.busy[p]
	if !ok {
		l = &sync.Mutex{}
		c.busy[p] = l
	}
	return l
}

// settle records that the first n log turns of p are consolidated. The pair
// stays pending when it was tracked again after mark.
func (c *Consolidator) settle(p pair, mark uint64, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= 0 {
		c.lastIndex[p] = n
	}
	if c.pending[p] == mark {
		delete(c.pending, p)
	}
}

func (c *Consolidator) consolidate(ctx context.Context, p pair, minTurns int) (*MemoryRecord, error) {
	l := c.pairLock(p)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	from, mark := c.lastIndex[p], c.pending[p]
	c.mu.Unlock()

	turns, err := c.log.History(ctx, p.player, p.npc)
	if err != nil {
		return nil, err
	}
	if from > len(turns) {
		from = 0
	}
	fresh := turns[from:]
	if len(fresh) == 0 {
		c.settle(p, mark, -1)
		return nil, nil
	}
	if len(fresh) < minTurns {
		return nil, nil
	}

	rec, err := c.summariser.Summarise(ctx, p.player, p.npc, fresh)
	if err != nil {
		return nil, fmt.Errorf("session: consolidate %s/%s: %w", p.player, p.npc, err)
	}
	all, err := c.memories.AddMemory(ctx, p.player, p.npc, rec)
	if err != nil {
		return nil, err
	}

	c.settle(p, mark, len(turns))
	slog.Info("memory consolidated",
		"player_id", p.player,
		"npc_id", p.npc,
		"turns", len(fresh),
	)
	added := all[len(all)-1]
	return &added, nil
}
