package room

import (
	"sync"
	"time"
)

// Fabric owns every Room plus the user→room reverse index, under one
// lock, so that join/leave/broadcast each execute as a single
// linearizable step (spec.md §4.6's "linearization point" requirement).
type Fabric struct {
	mu sync.Mutex

	rooms      map[uint64]*Room
	userToRoom map[uint64]uint64

	nextRoomID uint64

	maxRooms        int
	maxUsersPerRoom int
	roomMaxAge      time.Duration

	notifier Notifier
}

// Config bounds a Fabric. Zero values fall back to the package defaults.
// Notifier is optional: a nil Notifier means Join/Leave mutate state
// without sending any JoinSuccess/UserJoined/UserLeft notifications,
// which is all the admin HTTP surface's read-only fabric needs.
type Config struct {
	MaxRooms        int
	MaxUsersPerRoom int
	RoomMaxAge      time.Duration
	Notifier        Notifier
}

// New constructs an empty Fabric.
func New(cfg Config) *Fabric {
	maxRooms := cfg.MaxRooms
	if maxRooms == 0 {
		maxRooms = DefaultMaxRooms
	}
	maxUsers := cfg.MaxUsersPerRoom
	if maxUsers == 0 {
		maxUsers = DefaultMaxUsersPerRoom
	}
	maxAge := cfg.RoomMaxAge
	if maxAge == 0 {
		maxAge = DefaultRoomMaxAge
	}
	return &Fabric{
		rooms:           make(map[uint64]*Room),
		userToRoom:      make(map[uint64]uint64),
		maxRooms:        maxRooms,
		maxUsersPerRoom: maxUsers,
		roomMaxAge:      maxAge,
		notifier:        cfg.Notifier,
	}
}

// CreateRoom allocates a new room and returns its id. It fails once
// maxRooms is reached, per room_handler.rs's create_room.
func (f *Fabric) CreateRoom(name string, now time.Time) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.rooms) >= f.maxRooms {
		return 0, ErrTooManyRooms
	}
	f.nextRoomID++
	id := f.nextRoomID
	f.rooms[id] = newRoom(id, name, f.maxUsersPerRoom, now)
	return id, nil
}

// leaveOutcome carries what a lock-held removal learned, for
// notification once the lock is released.
type leaveOutcome struct {
	roomID    uint64
	userID    uint64
	nickname  string
	remaining []Writer
	count     int
}

// leaveLocked removes userID from roomID, deleting the room immediately
// if it becomes empty (spec.md §4.6: "empty-room GC immediate-on-leave"),
// mirroring room_handler.rs's leave_room. f.mu must already be held. ok
// is false if userID was not actually a member of roomID.
func (f *Fabric) leaveLocked(userID uint64, roomID uint64) (leaveOutcome, bool) {
	r, ok := f.rooms[roomID]
	if !ok {
		return leaveOutcome{}, false
	}
	m, in := r.members[userID]
	if !in {
		return leaveOutcome{}, false
	}
	delete(r.members, userID)
	delete(f.userToRoom, userID)

	remaining := make([]Writer, 0, len(r.members))
	for _, other := range r.members {
		remaining = append(remaining, other.writer)
	}
	out := leaveOutcome{roomID: roomID, userID: userID, nickname: m.Nickname, remaining: remaining, count: len(r.members)}

	if len(r.members) == 0 {
		delete(f.rooms, roomID)
	}
	return out, true
}

// Join adds user to room as a single linearized step: look up the room,
// check capacity and existing membership, and update both the room's
// member map and the user→room index together, per spec.md §4.6's "under
// one logical transaction" requirement. Per spec.md §4.6, if user is
// already a member of a different room, that membership is left first
// (as part of the same transaction) rather than rejecting the join.
// Once state is updated, Join sends JoinSuccess to the joiner and
// broadcasts UserJoined to the rest of the destination room (and
// UserLeft to the room the user moved out of, if any).
func (f *Fabric) Join(userID uint64, nickname string, roomID uint64, writer Writer, now time.Time) error {
	f.mu.Lock()

	r, ok := f.rooms[roomID]
	if !ok {
		f.mu.Unlock()
		return ErrRoomNotFound
	}
	if _, joined := r.members[userID]; joined {
		f.mu.Unlock()
		return ErrAlreadyJoined
	}
	if len(r.members) >= r.MaxUsers {
		f.mu.Unlock()
		return ErrRoomFull
	}

	var left leaveOutcome
	movedRoom := false
	if existing, inAnyRoom := f.userToRoom[userID]; inAnyRoom && existing != roomID {
		if out, ok := f.leaveLocked(userID, existing); ok {
			left = out
			movedRoom = true
		}
	}

	r.members[userID] = &Member{UserID: userID, Nickname: nickname, JoinedAt: now, writer: writer}
	f.userToRoom[userID] = roomID

	others := make([]Writer, 0, len(r.members)-1)
	for uid, m := range r.members {
		if uid == userID {
			continue
		}
		others = append(others, m.writer)
	}
	userCount := len(r.members)

	f.mu.Unlock()

	if movedRoom {
		f.notifyUserLeft(left)
	}
	f.notifyJoinSuccess(writer, roomID, userCount)
	f.notifyUserJoined(others, userID, nickname, userCount)
	return nil
}

// Leave removes user from room, deleting the room immediately if it
// becomes empty, and broadcasts UserLeft to the members left behind.
func (f *Fabric) Leave(userID uint64, roomID uint64) error {
	f.mu.Lock()
	if _, ok := f.rooms[roomID]; !ok {
		f.mu.Unlock()
		return ErrRoomNotFound
	}
	out, ok := f.leaveLocked(userID, roomID)
	f.mu.Unlock()
	if !ok {
		return ErrUserNotInRoom
	}
	f.notifyUserLeft(out)
	return nil
}

func (f *Fabric) notifyJoinSuccess(w Writer, roomID uint64, userCount int) {
	if f.notifier == nil || w == nil {
		return
	}
	_ = w.Deliver(f.notifier.EncodeJoinSuccess(roomID, userCount))
}

func (f *Fabric) notifyUserJoined(writers []Writer, userID uint64, nickname string, userCount int) {
	if f.notifier == nil || len(writers) == 0 {
		return
	}
	payload := f.notifier.EncodeUserJoined(userID, nickname, userCount)
	for _, w := range writers {
		if w == nil {
			continue
		}
		_ = w.Deliver(payload)
	}
}

func (f *Fabric) notifyUserLeft(out leaveOutcome) {
	if f.notifier == nil {
		return
	}
	payload := f.notifier.EncodeUserLeft(out.userID, out.nickname, out.count)
	for _, w := range out.remaining {
		if w == nil {
			continue
		}
		_ = w.Deliver(payload)
	}
}

// DisconnectUser removes a user from whatever room it currently occupies,
// for use when the underlying connection is torn down rather than the
// user explicitly leaving. A no-op if the user is not in any room.
func (f *Fabric) DisconnectUser(userID uint64) {
	f.mu.Lock()
	roomID, ok := f.userToRoom[userID]
	f.mu.Unlock()
	if !ok {
		return
	}
	_ = f.Leave(userID, roomID)
}

// Broadcast delivers payload to every member of roomID except excludeUser
// (if nonzero), returning the number of members whose writer accepted the
// payload (failed deliveries are not counted).
// Delivery failures from individual writers do not abort the broadcast to
// the rest (at-most-once per recipient, per spec.md §4.6).
func (f *Fabric) Broadcast(roomID uint64, payload []byte, excludeUser uint64) (delivered int, err error) {
	f.mu.Lock()
	r, ok := f.rooms[roomID]
	if !ok {
		f.mu.Unlock()
		return 0, ErrRoomNotFound
	}
	writers := make([]Writer, 0, len(r.members))
	for uid, m := range r.members {
		if uid == excludeUser {
			continue
		}
		writers = append(writers, m.writer)
	}
	f.mu.Unlock()

	for _, w := range writers {
		if w == nil {
			continue
		}
		if w.Deliver(payload) == nil {
			delivered++
		}
	}
	return delivered, nil
}

// UserRoom reports which room, if any, userID currently occupies.
func (f *Fabric) UserRoom(userID uint64) (roomID uint64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roomID, ok = f.userToRoom[userID]
	return roomID, ok
}

// RoomSnapshot returns a point-in-time view of one room.
func (f *Fabric) RoomSnapshot(roomID uint64) (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{ID: r.ID, Name: r.Name, CurrentUsers: len(r.members), MaxUsers: r.MaxUsers, CreatedAt: r.CreatedAt}, true
}

// ListRooms returns a snapshot of every room, for admin/listing surfaces.
func (f *Fabric) ListRooms() []Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Snapshot, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, Snapshot{ID: r.ID, Name: r.Name, CurrentUsers: len(r.members), MaxUsers: r.MaxUsers, CreatedAt: r.CreatedAt})
	}
	return out
}

// Cleanup is the periodic GC safety net: it removes any room that is
// empty or older than roomMaxAge, mirroring room_handler.rs's
// cleanup_rooms. The immediate-on-leave path in Leave makes the
// empty-room branch here mostly redundant, but it still catches rooms
// that were never explicitly left (e.g. every member's connection reset
// without a clean FIN).
func (f *Fabric) Cleanup(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var stale []uint64
	for id, r := range f.rooms {
		if len(r.members) == 0 || now.Sub(r.CreatedAt) > f.roomMaxAge {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		for uid := range f.rooms[id].members {
			delete(f.userToRoom, uid)
		}
		delete(f.rooms, id)
	}
	return len(stale)
}

// Stats summarizes the fabric for metrics, mirroring room_handler.rs's
// RoomStats.
type Stats struct {
	TotalRooms      int
	TotalUsers      int
	MaxRooms        int
	MaxUsersPerRoom int
}

func (f *Fabric) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, r := range f.rooms {
		total += len(r.members)
	}
	return Stats{
		TotalRooms:      len(f.rooms),
		TotalUsers:      total,
		MaxRooms:        f.maxRooms,
		MaxUsersPerRoom: f.maxUsersPerRoom,
	}
}
