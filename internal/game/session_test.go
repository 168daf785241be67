package game

import (
	"testing"
	"time"
)

func TestJoinLeavePublishesEvents(t *testing.T) {
	bus := NewBus()
	var seen []EventType
	bus.Subscribe(EventPlayerJoined, func(e Event) { seen = append(seen, e.Type) })
	bus.Subscribe(EventPlayerLeft, func(e Event) { seen = append(seen, e.Type) })

	s := NewSession(bus)
	now := time.Now()
	s.Join(1, "alice", now)
	s.Leave(1, now)

	if len(seen) != 2 || seen[0] != EventPlayerJoined || seen[1] != EventPlayerLeft {
		t.Fatalf("events = %v, want [joined left]", seen)
	}
	if s.Count() != 0 {
		t.Fatalf("count = %d, want 0 after leave", s.Count())
	}
}

func TestMoveUpdatesPositionAndPublishes(t *testing.T) {
	bus := NewBus()
	var moved MovedData
	bus.Subscribe(EventPlayerMoved, func(e Event) { moved = e.Data.(MovedData) })

	s := NewSession(bus)
	now := time.Now()
	s.Join(1, "alice", now)

	if err := s.Move(1, Vector3{X: 1, Y: 2, Z: 3}, now); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved != (MovedData{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("moved = %+v, want {1 2 3}", moved)
	}
	p, _ := s.Player(1)
	if p.Position != (Vector3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("position = %+v", p.Position)
	}
}

func TestMoveUnknownPlayerErrors(t *testing.T) {
	s := NewSession(nil)
	if err := s.Move(99, Vector3{}, time.Now()); err == nil {
		t.Fatal("expected error moving an unjoined player")
	}
}

func TestDispatchKnownCommand(t *testing.T) {
	s := NewSession(nil)
	s.Join(1, "alice", time.Now())
	s.RegisterCommand(Command{
		Name: "say",
		Handler: func(p *Player, args []string) (string, error) {
			return p.Name + " says " + args[0], nil
		},
	})

	out, err := s.Dispatch(1, "say", []string{"hi"}, time.Now())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out != "alice says hi" {
		t.Fatalf("out = %q", out)
	}
}

func TestDispatchUnknownCommandErrors(t *testing.T) {
	s := NewSession(nil)
	s.Join(1, "alice", time.Now())
	if _, err := s.Dispatch(1, "nope", nil, time.Now()); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
