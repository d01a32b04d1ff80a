package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transitkl/kl-bus/internal/models"
)

// Redis key schema. Positions and motion states are hashes keyed by
// bus number; last-seen is a sorted set scored by unix milliseconds;
// the heartbeat is a plain string.
const (
	keyLatest    = "buses:latest"
	keyLastSeen  = "buses:last_seen"
	keyMotion    = "buses:motion"
	keyHeartbeat = "ingestor:last_ingest_at"
)

// Cache is the active-fleet cache: three coupled redis indexes plus
// the ingest heartbeat. The ingestor writes, queries read; per-key
// atomicity comes from redis, cross-key skew is tolerated by readers.
type Cache struct {
	rdb *redis.Client
}

// NewCache wraps a connected redis client.
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Snapshot is one freshness-bounded read of the active fleet.
type Snapshot struct {
	Positions    []models.VehiclePosition
	Motion       map[string]*models.MotionState
	ActiveCount  int
	LastIngestAt int64 // unix ms; zero if no batch has ever landed
}

// WriteBatch upserts a batch of position reports: for each vehicle the
// latest position is replaced, the motion state is reclassified from
// its prior state, and last-seen is set to now. The ingest heartbeat
// advances when at least one vehicle was written. Returns the number
// of vehicles written.
func (c *Cache) WriteBatch(ctx context.Context, positions []models.VehiclePosition, now time.Time) (int, error) {
	busNos := make([]string, 0, len(positions))
	valid := make([]*models.VehiclePosition, 0, len(positions))
	for i := range positions {
		if positions[i].BusNo == "" {
			continue
		}
		busNos = append(busNos, positions[i].BusNo)
		valid = append(valid, &positions[i])
	}
	if len(valid) == 0 {
		return 0, nil
	}

	priors, err := c.motionStates(ctx, busNos)
	if err != nil {
		return 0, err
	}

	nowMs := now.UnixMilli()
	pipe := c.rdb.Pipeline()
	for i, pos := range valid {
		posJSON, err := json.Marshal(pos)
		if err != nil {
			return 0, fmt.Errorf("failed to encode position for %s: %v", pos.BusNo, err)
		}

		state := Classify(priors[busNos[i]], pos, now)
		stateJSON, err := json.Marshal(state)
		if err != nil {
			return 0, fmt.Errorf("failed to encode motion state for %s: %v", pos.BusNo, err)
		}

		pipe.HSet(ctx, keyLatest, pos.BusNo, posJSON)
		pipe.HSet(ctx, keyMotion, pos.BusNo, stateJSON)
		pipe.ZAdd(ctx, keyLastSeen, redis.Z{Score: float64(nowMs), Member: pos.BusNo})
	}
	pipe.Set(ctx, keyHeartbeat, strconv.FormatInt(nowMs, 10), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cache write failed: %v", err)
	}
	return len(valid), nil
}

// Snapshot evicts every vehicle whose last-seen is at or before
// now-ttl from all three indexes, then bulk-fetches the remaining
// active set. Eviction is lazy: it happens here, on read, not on a
// timer.
func (c *Cache) Snapshot(ctx context.Context, ttl time.Duration, now time.Time) (*Snapshot, error) {
	cutoff := now.UnixMilli() - ttl.Milliseconds()
	cutoffStr := strconv.FormatInt(cutoff, 10)

	expired, err := c.rdb.ZRangeByScore(ctx, keyLastSeen, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoffStr,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %v", err)
	}

	if len(expired) > 0 {
		pipe := c.rdb.Pipeline()
		pipe.HDel(ctx, keyLatest, expired...)
		pipe.HDel(ctx, keyMotion, expired...)
		members := make([]interface{}, len(expired))
		for i, id := range expired {
			members[i] = id
		}
		pipe.ZRem(ctx, keyLastSeen, members...)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("cache eviction failed: %v", err)
		}
	}

	active, err := c.rdb.ZRangeByScore(ctx, keyLastSeen, &redis.ZRangeBy{
		Min: "(" + cutoffStr,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %v", err)
	}

	snap := &Snapshot{
		ActiveCount: len(active),
		Motion:      make(map[string]*models.MotionState),
	}

	if len(active) > 0 {
		rawPositions, err := c.rdb.HMGet(ctx, keyLatest, active...).Result()
		if err != nil {
			return nil, fmt.Errorf("cache read failed: %v", err)
		}
		for _, raw := range rawPositions {
			s, ok := raw.(string)
			if !ok {
				// Position hash entry racing an eviction; last-seen stays
				// authoritative for membership.
				continue
			}
			var pos models.VehiclePosition
			if err := json.Unmarshal([]byte(s), &pos); err != nil {
				continue
			}
			snap.Positions = append(snap.Positions, pos)
		}

		states, err := c.motionStates(ctx, active)
		if err != nil {
			return nil, err
		}
		snap.Motion = states
	}

	heartbeat, err := c.rdb.Get(ctx, keyHeartbeat).Result()
	switch {
	case err == redis.Nil:
		// No batch has ever landed
	case err != nil:
		return nil, fmt.Errorf("cache read failed: %v", err)
	default:
		snap.LastIngestAt, _ = strconv.ParseInt(heartbeat, 10, 64)
	}

	return snap, nil
}

// Stale derives the feed staleness flag from a snapshot's heartbeat.
func (s *Snapshot) Stale(staleAfter time.Duration, now time.Time) bool {
	if s.LastIngestAt == 0 {
		return true
	}
	return now.UnixMilli()-s.LastIngestAt > staleAfter.Milliseconds()
}

// motionStates bulk-fetches motion states; vehicles never classified
// are absent from the result.
func (c *Cache) motionStates(ctx context.Context, busNos []string) (map[string]*models.MotionState, error) {
	states := make(map[string]*models.MotionState, len(busNos))
	if len(busNos) == 0 {
		return states, nil
	}

	raw, err := c.rdb.HMGet(ctx, keyMotion, busNos...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %v", err)
	}
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var state models.MotionState
		if err := json.Unmarshal([]byte(s), &state); err != nil {
			continue
		}
		states[busNos[i]] = &state
	}
	return states, nil
}
