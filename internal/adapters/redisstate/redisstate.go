// Package redisstate shares room listings and user presence across
// server processes via Redis, grounded in
// original_source/shared/src/service/redis/room_redis_service.rs's
// make_room/get_room_list pipeline shape: a hash per room
// (room:list:{id}) with a 1-hour TTL, plus a sorted set
// (room:list:time) scored by creation time for newest-first paginated
// listing. go-redis/v9 is the out-of-pack dependency that plays this
// role in Go (the pack itself never uses a Redis client directly); a
// github.com/patrickmn/go-cache layer in front of the listing read mirrors
// the teacher pack's own read-through cache usage in
// cppla-moto/controller/server.go's ipCache, applied here to a
// read-mostly listing instead of a rate counter.
package redisstate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const (
	roomTTL        = time.Hour
	roomListPage   = 20
	roomListZSetKey = "room:list:time"
)

func roomKey(roomID uint64) string { return fmt.Sprintf("room:list:%d", roomID) }
func userKey(userID uint64) string { return fmt.Sprintf("user:%d", userID) }

// RoomRecord is the hash stored per room, mirroring RoomInfo's
// room_name/max_player_num/current_player_num/create_at fields.
type RoomRecord struct {
	RoomID           uint64
	RoomName         string
	MaxPlayerNum     int
	CurrentPlayerNum int
	CreatedAt        time.Time
}

// Store wraps a go-redis client with the room-listing pipeline and a
// local TTL read-through cache for the listing query, which is read far
// more often than rooms are created.
type Store struct {
	client *redis.Client
	cache  *gocache.Cache
}

// New wraps client. cacheTTL bounds how stale a cached listing page may
// be; cppla-moto's ipCache uses a 30s window for its read-through, reused
// here as the default.
func New(client *redis.Client, cacheTTL time.Duration) *Store {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Store{client: client, cache: gocache.New(cacheTTL, 2*cacheTTL)}
}

// MakeRoom writes room via a pipeline: HSET the room's fields with a
// 1-hour expiry, then ZADD its id into the time-ordered index, mirroring
// make_room's redis::pipe() usage exactly.
func (s *Store) MakeRoom(ctx context.Context, room RoomRecord) error {
	key := roomKey(room.RoomID)
	score := float64(room.CreatedAt.UnixNano())

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"room_name":          room.RoomName,
		"max_player_num":     room.MaxPlayerNum,
		"current_player_num": room.CurrentPlayerNum,
		"create_at":          room.CreatedAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, roomTTL)
	pipe.ZAdd(ctx, roomListZSetKey, redis.Z{Score: score, Member: strconv.FormatUint(room.RoomID, 10)})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstate: make_room pipeline: %w", err)
	}
	s.cache.Flush()
	return nil
}

// RemoveRoom deletes a room's hash and its zset entry, used once the
// room fabric's empty-room GC fires locally and the change needs
// propagating to shared state.
func (s *Store) RemoveRoom(ctx context.Context, roomID uint64) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, roomKey(roomID))
	pipe.ZRem(ctx, roomListZSetKey, strconv.FormatUint(roomID, 10))
	_, err := pipe.Exec(ctx)
	s.cache.Flush()
	return err
}

// ListRooms returns up to roomListPage rooms older than lastID's score
// (0 meaning "start from newest"), mirroring get_room_list's
// ZREVRANGEBYSCORE-based cursor pagination. Results are served from the
// local cache when available, since listings are read far more
// frequently than rooms churn.
func (s *Store) ListRooms(ctx context.Context, lastID uint64) ([]RoomRecord, error) {
	cacheKey := fmt.Sprintf("list:%d", lastID)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]RoomRecord), nil
	}

	maxScore := "+inf"
	if lastID != 0 {
		score, err := s.client.ZScore(ctx, roomListZSetKey, strconv.FormatUint(lastID, 10)).Result()
		if err == nil {
			maxScore = strconv.FormatFloat(score-0.0001, 'f', -1, 64)
		}
	}

	ids, err := s.client.ZRevRangeByScore(ctx, roomListZSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: roomListPage,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstate: zrevrangebyscore: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, fmt.Sprintf("room:list:%s", id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redisstate: hgetall pipeline: %w", err)
	}

	out := make([]RoomRecord, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		roomID, _ := strconv.ParseUint(ids[i], 10, 64)
		maxPlayers, _ := strconv.Atoi(fields["max_player_num"])
		current, _ := strconv.Atoi(fields["current_player_num"])
		createdAt, _ := time.Parse(time.RFC3339Nano, fields["create_at"])
		out = append(out, RoomRecord{
			RoomID:           roomID,
			RoomName:         fields["room_name"],
			MaxPlayerNum:     maxPlayers,
			CurrentPlayerNum: current,
			CreatedAt:        createdAt,
		})
	}

	s.cache.Set(cacheKey, out, gocache.DefaultExpiration)
	return out, nil
}

// SetUserHost records which TCP host a user's companion connection lives
// on, for cross-process user lookup.
func (s *Store) SetUserHost(ctx context.Context, userID uint64, tcpHost string) error {
	return s.client.HSet(ctx, userKey(userID), "tcp_host", tcpHost).Err()
}

// UserHost looks up a user's recorded TCP host.
func (s *Store) UserHost(ctx context.Context, userID uint64) (string, error) {
	return s.client.HGet(ctx, userKey(userID), "tcp_host").Result()
}
