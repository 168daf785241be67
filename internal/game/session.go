package game

import (
	"fmt"
	"sync"
	"time"
)

// Vector3 is a generic 3D position, kept from the teacher's freeroam.go
// Vector3 shape since any real-time game backend needs one, stripped of
// the SA-MP-specific Rotation/Interior/World/Team/Wanted fields that only
// made sense for that one game.
type Vector3 struct {
	X, Y, Z float64
}

// Player is one connected player's generic game-layer state: identity,
// position, and last-seen time. Game-specific state (score, inventory,
// custom attributes) is expected to live in the Attrs map rather than as
// named fields, since this layer is deliberately game-agnostic.
type Player struct {
	ID       uint64
	Name     string
	Position Vector3
	LastSeen time.Time
	Attrs    map[string]interface{}
}

// Command is one named player action, structurally the same as the
// teacher's PlayerCommand/AdminCommand (name + handler func), merged into
// a single generic type since this layer has no admin/player privilege
// split of its own.
type Command struct {
	Name        string
	Description string
	Handler     func(p *Player, args []string) (string, error)
}

// Session owns the registry of connected players and the set of
// registered commands, adapted from the teacher's FreeroamGamemode
// (players map + adminCommands/playerCommands maps) with the SA-MP
// gamemode specifics (vehicles, spawn points, freeroam rules) removed.
type Session struct {
	mu       sync.RWMutex
	players  map[uint64]*Player
	commands map[string]Command
	bus      *Bus
}

// NewSession constructs an empty Session wired to bus for event
// publication.
func NewSession(bus *Bus) *Session {
	return &Session{
		players:  make(map[uint64]*Player),
		commands: make(map[string]Command),
		bus:      bus,
	}
}

// RegisterCommand adds cmd to the dispatch table, keyed by name.
func (s *Session) RegisterCommand(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[cmd.Name] = cmd
}

// Join admits a new player, publishing EventPlayerJoined.
func (s *Session) Join(id uint64, name string, now time.Time) *Player {
	s.mu.Lock()
	p := &Player{ID: id, Name: name, LastSeen: now, Attrs: make(map[string]interface{})}
	s.players[id] = p
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(Event{Type: EventPlayerJoined, PlayerID: id, Timestamp: now})
	}
	return p
}

// Leave removes a player, publishing EventPlayerLeft. A no-op if id is
// not a current player.
func (s *Session) Leave(id uint64, now time.Time) {
	s.mu.Lock()
	_, ok := s.players[id]
	delete(s.players, id)
	s.mu.Unlock()

	if ok && s.bus != nil {
		s.bus.Publish(Event{Type: EventPlayerLeft, PlayerID: id, Timestamp: now})
	}
}

// Move updates a player's position, publishing EventPlayerMoved.
func (s *Session) Move(id uint64, pos Vector3, now time.Time) error {
	s.mu.Lock()
	p, ok := s.players[id]
	if ok {
		p.Position = pos
		p.LastSeen = now
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("game: unknown player %d", id)
	}
	if s.bus != nil {
		s.bus.Publish(Event{Type: EventPlayerMoved, PlayerID: id, Data: MovedData{X: pos.X, Y: pos.Y, Z: pos.Z}, Timestamp: now})
	}
	return nil
}

// Dispatch looks up name in the command table and invokes it for player
// id, publishing EventPlayerCommand either way (so metrics/logging can
// observe unknown-command attempts too).
func (s *Session) Dispatch(id uint64, name string, args []string, now time.Time) (string, error) {
	s.mu.RLock()
	p, playerOK := s.players[id]
	cmd, cmdOK := s.commands[name]
	s.mu.RUnlock()

	if s.bus != nil {
		s.bus.Publish(Event{Type: EventPlayerCommand, PlayerID: id, Data: CommandData{Name: name, Args: args}, Timestamp: now})
	}

	if !playerOK {
		return "", fmt.Errorf("game: unknown player %d", id)
	}
	if !cmdOK {
		return "", fmt.Errorf("game: unknown command %q", name)
	}
	return cmd.Handler(p, args)
}

// Player looks up a connected player by id.
func (s *Session) Player(id uint64) (*Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	return p, ok
}

// Count reports the number of currently connected players.
func (s *Session) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}
