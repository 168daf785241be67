// Package game provides the generic player/session registry and event
// pub-sub that application logic sits on top of the room/connection
// fabric. It is adapted from the teacher's core/events/events.go and
// core/gamemode/freeroam.go, stripped of SA-MP/GTA specifics (no vehicle
// models, no San Andreas spawn coordinates) and generalized to an
// application-agnostic tagged event union, per SPEC_FULL.md's
// domain-stack section.
package game

import "time"

// EventType enumerates the kinds of application-level events the game
// layer dispatches, generalized from the teacher's SA-MP-specific
// EventType (EventPlayerSpawn, EventVehicleSpawn, ...).
type EventType int

const (
	EventPlayerJoined EventType = iota
	EventPlayerLeft
	EventPlayerMoved
	EventRoomBroadcast
	EventPlayerCommand
)

func (t EventType) String() string {
	switch t {
	case EventPlayerJoined:
		return "player-joined"
	case EventPlayerLeft:
		return "player-left"
	case EventPlayerMoved:
		return "player-moved"
	case EventRoomBroadcast:
		return "room-broadcast"
	case EventPlayerCommand:
		return "player-command"
	default:
		return "unknown"
	}
}

// Event is one occurrence in the game layer. Data's concrete type is
// determined exhaustively by Type; handlers are expected to switch on
// Type and type-assert accordingly.
type Event struct {
	Type      EventType
	PlayerID  uint64
	Data      interface{}
	Timestamp time.Time
}

// MovedData is Event.Data's shape when Type == EventPlayerMoved.
type MovedData struct {
	X, Y, Z float64
}

// CommandData is Event.Data's shape when Type == EventPlayerCommand.
type CommandData struct {
	Name string
	Args []string
}

// BroadcastData is Event.Data's shape when Type == EventRoomBroadcast.
type BroadcastData struct {
	RoomID  uint64
	Payload []byte
}

// Handler processes one Event.
type Handler func(Event)

// Bus is a minimal pub-sub dispatcher, structurally identical to the
// teacher's EventManager (map[EventType][]EventHandler + Register/Trigger)
// but renamed to match this package's vocabulary.
type Bus struct {
	handlers map[EventType][]Handler
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers handler for every occurrence of eventType.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish invokes every handler subscribed to event.Type, in registration
// order. A Publish with no subscribers is a silent no-op.
func (b *Bus) Publish(event Event) {
	for _, h := range b.handlers[event.Type] {
		h(event)
	}
}
